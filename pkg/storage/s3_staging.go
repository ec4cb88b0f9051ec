package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
)

// Chunks of an unfinished S3 upload live in the bucket under uploadsPrefix,
// one object per chunk keyed by its offset, so any worker can take the next
// chunk of a session.
const uploadsPrefix = ".uploads/"

// sniffLen is how much of an assembled upload is read for type detection.
const sniffLen = 3072

type stagedChunk struct {
	key  string
	size int64
}

func uploadPrefix(p, session string) string {
	sum := sha256.Sum256([]byte(p + "|" + session))
	return uploadsPrefix + hex.EncodeToString(sum[:]) + "/"
}

func chunkKey(prefix string, offset int64) string {
	return fmt.Sprintf("%s%020d", prefix, offset)
}

func isInternalKey(key string) bool {
	return strings.HasPrefix(key, ".sidecars/") || strings.HasPrefix(key, uploadsPrefix)
}

// stagedChunks lists the chunks of a session in offset order and verifies
// they form a contiguous prefix of the file.
func (s *S3Storage) stagedChunks(ctx context.Context, prefix string) ([]stagedChunk, int64, error) {
	var chunks []stagedChunk
	var total int64
	var gap bool
	err := s.listKeys(ctx, prefix, false, func(obj *types.Object, _ *string) {
		if obj == nil {
			return
		}
		key := aws.ToString(obj.Key)
		if key != chunkKey(prefix, total) {
			gap = true
		}
		size := aws.ToInt64(obj.Size)
		chunks = append(chunks, stagedChunk{key: key, size: size})
		total += size
	})
	if err != nil {
		return nil, 0, err
	}
	if gap {
		return chunks, -1, nil
	}
	return chunks, total, nil
}

func chunkKeys(chunks []stagedChunk) []string {
	keys := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keys = append(keys, c.key)
	}
	return keys
}

// stageChunk stores one chunk in the bucket and returns every chunk of the
// session together with the received byte count. A chunk at offset 0
// restarts the session.
func (s *S3Storage) stageChunk(ctx context.Context, in UploadInput) ([]stagedChunk, int64, error) {
	prefix := uploadPrefix(in.Path, in.Session)
	chunks, received, err := s.stagedChunks(ctx, prefix)
	if err != nil {
		return nil, 0, classifyS3Error(err, "upload", in.Path)
	}
	if in.Offset == 0 && len(chunks) > 0 {
		if err := s.deleteKeys(ctx, chunkKeys(chunks)); err != nil {
			return nil, 0, classifyS3Error(err, "upload", in.Path)
		}
		chunks, received = nil, 0
	}
	if received != in.Offset {
		return nil, 0, invalidArgument("upload", in.Path, ErrChunkOffset)
	}

	body := in.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}
	counter := &countingReader{r: body}
	key := chunkKey(prefix, in.Offset)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   counter,
	})
	if err != nil {
		return nil, 0, classifyS3Error(err, "upload", in.Path)
	}

	// An empty chunk may already sit at this offset and is now replaced.
	if last := len(chunks) - 1; last >= 0 && chunks[last].key == key {
		chunks = chunks[:last]
	}
	chunks = append(chunks, stagedChunk{key: key, size: counter.n})
	return chunks, received + counter.n, nil
}

// publishChunks streams the staged chunks into the object at p and removes
// them afterwards.
func (s *S3Storage) publishChunks(ctx context.Context, p string, chunks []stagedChunk) error {
	body := &chunkReader{ctx: ctx, s: s, keys: chunkKeys(chunks)}
	defer body.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	head = head[:n]

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(p)),
		Body:        io.MultiReader(bytes.NewReader(head), body),
		ContentType: aws.String(mimetype.Detect(head).String()),
	})
	if err != nil {
		return err
	}
	return s.deleteKeys(ctx, chunkKeys(chunks))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// chunkReader concatenates staged chunk objects, opening one at a time.
type chunkReader struct {
	ctx  context.Context
	s    *S3Storage
	keys []string
	cur  io.ReadCloser
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}
			out, err := r.s.client.GetObject(r.ctx, &s3.GetObjectInput{
				Bucket: aws.String(r.s.bucket),
				Key:    aws.String(r.keys[0]),
			})
			if err != nil {
				return 0, err
			}
			r.keys = r.keys[1:]
			r.cur = out.Body
		}
		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			_ = r.cur.Close()
			r.cur = nil
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (r *chunkReader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
