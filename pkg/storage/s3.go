package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client defines the S3 operations used by S3Storage. It is a superset of
// manager.UploadAPIClient so final chunks can go through the multipart uploader.
type S3Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3ListObjectsV2Paginator defines the interface for paginated list operations.
type S3ListObjectsV2Paginator interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Presigner signs GET requests for DownloadRedirect.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Storage implements Storage for Amazon S3 and S3-compatible services.
// Folders are zero-byte marker objects whose key ends with "/"; versions
// come from bucket versioning. It is safe for concurrent use.
type S3Storage struct {
	client           S3Client
	uploader         *manager.Uploader
	presigner        S3Presigner
	bucket           string
	presignTTL       time.Duration
	tempDir          string
	paginatorFactory func(client S3Client, params *s3.ListObjectsV2Input) S3ListObjectsV2Paginator
}

// S3Config contains configuration for S3 storage.
type S3Config struct {
	Bucket         string        `env:"S3_BUCKET"`
	Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string        `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string        `env:"S3_SECRET_KEY"`
	Endpoint       string        `env:"S3_ENDPOINT"` // Optional: for S3-compatible services
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
	PresignTTL     time.Duration `env:"S3_PRESIGN_TTL" envDefault:"15m"`
}

// S3Option defines a function that configures S3Storage.
type S3Option func(*s3Options)

type s3Options struct {
	httpClient       *http.Client
	s3Client         S3Client
	presigner        S3Presigner
	s3ConfigOptions  []func(*config.LoadOptions) error
	s3ClientOptions  []func(*s3.Options)
	paginatorFactory func(client S3Client, params *s3.ListObjectsV2Input) S3ListObjectsV2Paginator
	tempDir          string
}

// WithS3Client sets a custom pre-configured S3 client.
// Useful for testing with mocks.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) {
		o.s3Client = client
	}
}

// WithS3Presigner overrides the presigner used for redirect downloads.
func WithS3Presigner(p S3Presigner) S3Option {
	return func(o *s3Options) {
		o.presigner = p
	}
}

// WithHTTPClient sets a custom HTTP client for S3 requests.
func WithHTTPClient(client *http.Client) S3Option {
	return func(o *s3Options) {
		o.httpClient = client
	}
}

// WithS3ConfigOption adds a custom AWS config option.
func WithS3ConfigOption(option func(*config.LoadOptions) error) S3Option {
	return func(o *s3Options) {
		o.s3ConfigOptions = append(o.s3ConfigOptions, option)
	}
}

// WithS3ClientOption adds a custom S3 client option.
func WithS3ClientOption(option func(*s3.Options)) S3Option {
	return func(o *s3Options) {
		o.s3ClientOptions = append(o.s3ClientOptions, option)
	}
}

// WithPaginatorFactory sets a custom paginator factory.
// Useful for testing pagination.
func WithPaginatorFactory(factory func(client S3Client, params *s3.ListObjectsV2Input) S3ListObjectsV2Paginator) S3Option {
	return func(o *s3Options) {
		o.paginatorFactory = factory
	}
}

// WithS3TempDir sets where DownloadLocal copies are written.
func WithS3TempDir(dir string) S3Option {
	return func(o *s3Options) {
		if dir != "" {
			o.tempDir = dir
		}
	}
}

// NewS3Storage creates a new S3 storage instance.
func NewS3Storage(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Storage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	options := &s3Options{tempDir: os.TempDir()}
	for _, opt := range opts {
		opt(options)
	}

	var client S3Client
	presigner := options.presigner
	if options.s3Client != nil {
		client = options.s3Client
	} else {
		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}
		if options.httpClient != nil {
			awsOptions = append(awsOptions, config.WithHTTPClient(options.httpClient))
		}
		awsOptions = append(awsOptions, options.s3ConfigOptions...)

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadConfig, err)
		}

		realClient := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
			for _, opt := range options.s3ClientOptions {
				opt(o)
			}
		})
		client = realClient
		if presigner == nil {
			presigner = s3.NewPresignClient(realClient)
		}
	}

	paginatorFactory := options.paginatorFactory
	if paginatorFactory == nil {
		paginatorFactory = func(c S3Client, params *s3.ListObjectsV2Input) S3ListObjectsV2Paginator {
			return s3.NewListObjectsV2Paginator(c, params)
		}
	}

	presignTTL := cfg.PresignTTL
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}

	return &S3Storage{
		client:           client,
		uploader:         manager.NewUploader(client),
		presigner:        presigner,
		bucket:           cfg.Bucket,
		presignTTL:       presignTTL,
		tempDir:          options.tempDir,
		paginatorFactory: paginatorFactory,
	}, nil
}

// classifyS3Error converts S3 errors to storage kinds.
func classifyS3Error(err error, op, p string) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return newError(KindNotFound, op, p, err)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return newError(KindNotFound, op, p, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchVersion":
			return newError(KindNotFound, op, p, err)
		case "InvalidObjectName", "KeyTooLongError":
			return newError(KindInvalidPath, op, p, err)
		default:
			return other(op, p, fmt.Errorf("code %s: %w", apiErr.ErrorCode(), err))
		}
	}

	return other(op, p, err)
}

func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

func folderKey(p string) string {
	if p == "/" {
		return ""
	}
	return objectKey(p) + "/"
}

func physicalPath(key string) string {
	return "/" + strings.TrimSuffix(key, "/")
}

func sidecarPrefix(entryID string) string {
	return ".sidecars/" + entryID + "/"
}

func (s *S3Storage) fileEntry(p string, size int64, modTime time.Time) Entry {
	name := path.Base(p)
	return Entry{
		ID:        EntryID(p),
		Name:      name,
		Path:      p,
		Size:      size,
		Extension: Ext(name),
		ModTime:   modTime,
	}
}

func folderEntry(p string, modTime time.Time) Entry {
	return Entry{ID: EntryID(p), Name: path.Base(p), Path: p, IsFolder: true, ModTime: modTime}
}

func (s *S3Storage) Info(ctx context.Context, p string) (*Entry, error) {
	if err := ValidatePath(p); err != nil {
		return nil, err
	}
	if p == "/" {
		e := folderEntry(p, time.Time{})
		return &e, nil
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(p)),
	})
	if err == nil {
		e := s.fileEntry(p, aws.ToInt64(head.ContentLength), aws.ToTime(head.LastModified))
		e.MIMEType = aws.ToString(head.ContentType)
		e.VersionID = aws.ToString(head.VersionId)
		return &e, nil
	}
	if err := classifyS3Error(err, "info", p); KindOf(err) != KindNotFound {
		return nil, err
	}

	// Folders exist either as a marker or implicitly through their children.
	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(folderKey(p)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, classifyS3Error(err, "info", p)
	}
	if len(resp.Contents) == 0 {
		return nil, notFound("info", p)
	}
	var modTime time.Time
	if aws.ToString(resp.Contents[0].Key) == folderKey(p) {
		modTime = aws.ToTime(resp.Contents[0].LastModified)
	}
	e := folderEntry(p, modTime)
	return &e, nil
}

func (s *S3Storage) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Info(ctx, p)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == KindNotFound {
		return false, nil
	}
	return false, err
}

func (s *S3Storage) requireFolder(ctx context.Context, op, p string) error {
	e, err := s.Info(ctx, p)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return notFound(op, p)
		}
		return err
	}
	if !e.IsFolder {
		return notAFolder(op, p)
	}
	return nil
}

// listKeys walks every object under prefix. With a delimiter it also reports
// the common prefixes (sub-folders).
func (s *S3Storage) listKeys(ctx context.Context, prefix string, delimited bool, fn func(obj *types.Object, commonPrefix *string)) error {
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimited {
		params.Delimiter = aws.String("/")
	}

	paginator := s.paginatorFactory(s.client, params)
	if paginator == nil {
		return ErrPaginatorNil
	}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, cp := range page.CommonPrefixes {
			fn(nil, cp.Prefix)
		}
		for i := range page.Contents {
			fn(&page.Contents[i], nil)
		}
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context, dir string, opts ListOptions) ([]Entry, error) {
	if err := s.requireFolder(ctx, "list", dir); err != nil {
		return nil, err
	}

	prefix := folderKey(dir)
	seen := make(map[string]struct{})
	var entries []Entry

	err := s.listKeys(ctx, prefix, !opts.Recursive, func(obj *types.Object, commonPrefix *string) {
		if commonPrefix != nil {
			if isInternalKey(*commonPrefix) {
				return
			}
			p := physicalPath(*commonPrefix)
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				entries = append(entries, folderEntry(p, time.Time{}))
			}
			return
		}
		key := aws.ToString(obj.Key)
		if key == prefix || isInternalKey(key) {
			return
		}
		p := physicalPath(key)
		if strings.HasSuffix(key, "/") {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				entries = append(entries, folderEntry(p, aws.ToTime(obj.LastModified)))
			}
			return
		}
		entries = append(entries, s.fileEntry(p, aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified)))
	})
	if err != nil {
		return nil, classifyS3Error(err, "list", dir)
	}

	return ApplyListOptions(entries, opts)
}

func (s *S3Storage) CreateFolder(ctx context.Context, p string) (*Entry, error) {
	if err := ValidatePath(p); err != nil {
		return nil, err
	}
	if p == "/" {
		return nil, alreadyExists("create folder", p)
	}
	if ok, err := s.Exists(ctx, p); err != nil {
		return nil, err
	} else if ok {
		return nil, alreadyExists("create folder", p)
	}
	if parent := path.Dir(p); parent != "/" {
		if err := s.requireFolder(ctx, "create folder", parent); err != nil {
			return nil, err
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(folderKey(p)),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return nil, classifyS3Error(err, "create folder", p)
	}

	e := folderEntry(p, time.Now())
	return &e, nil
}

// Upload stages chunks in the bucket and ships the assembled file through
// the multipart uploader once the final chunk arrives.
func (s *S3Storage) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if err := ValidatePath(in.Path); err != nil {
		return nil, err
	}

	chunks, received, err := s.stageChunk(ctx, in)
	if err != nil {
		return nil, err
	}
	if !in.Final {
		return &UploadResult{Received: received}, nil
	}

	if parent := path.Dir(in.Path); parent != "/" {
		if err := s.requireFolder(ctx, "upload", parent); err != nil {
			return nil, err
		}
	}
	if e, err := s.Info(ctx, in.Path); err == nil && e.IsFolder {
		return nil, notAFile("upload", in.Path)
	}

	if err := s.publishChunks(ctx, in.Path, chunks); err != nil {
		return nil, classifyS3Error(err, "upload", in.Path)
	}

	e, err := s.Info(ctx, in.Path)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Complete: true, Received: received, Entry: e}, nil
}

func (s *S3Storage) Download(ctx context.Context, p string, opts DownloadOptions) (*Download, error) {
	e, err := s.Info(ctx, p)
	if err != nil {
		return nil, err
	}
	if e.IsFolder {
		return nil, notAFile("download", p)
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(p)),
	}
	if opts.VersionID != "" && opts.VersionID != CurrentVersion {
		input.VersionId = aws.String(opts.VersionID)
		e.VersionID = opts.VersionID
	}

	if opts.Mode == DownloadRedirect && s.presigner != nil {
		req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(s.presignTTL))
		if err != nil {
			return nil, classifyS3Error(err, "download", p)
		}
		return &Download{Entry: *e, URL: req.URL}, nil
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, classifyS3Error(err, "download", p)
	}
	if out.ContentLength != nil {
		e.Size = *out.ContentLength
	}

	if opts.Mode == DownloadLocal {
		defer func() { _ = out.Body.Close() }()
		local, err := writeTemp(ctx, s.tempDir, out.Body, e.Extension)
		if err != nil {
			return nil, other("download", p, err)
		}
		return &Download{Entry: *e, LocalPath: local}, nil
	}

	return &Download{Entry: *e, Body: out.Body}, nil
}

func copySource(bucket, key string) string {
	return bucket + "/" + (&url.URL{Path: key}).EscapedPath()
}

// transfer copies from -> to and, for moves, deletes the source objects.
func (s *S3Storage) transfer(ctx context.Context, op, from, to string, removeSource bool) (*Entry, error) {
	if err := ValidatePath(to); err != nil {
		return nil, err
	}
	src, err := s.Info(ctx, from)
	if err != nil {
		return nil, err
	}
	if to == from || strings.HasPrefix(to, from+"/") {
		return nil, newError(KindInvalidPath, op, to, nil)
	}
	if ok, err := s.Exists(ctx, to); err != nil {
		return nil, err
	} else if ok {
		return nil, alreadyExists(op, to)
	}
	if parent := path.Dir(to); parent != "/" {
		if err := s.requireFolder(ctx, op, parent); err != nil {
			return nil, err
		}
	}

	var keys []string
	if src.IsFolder {
		err = s.listKeys(ctx, folderKey(from), false, func(obj *types.Object, _ *string) {
			keys = append(keys, aws.ToString(obj.Key))
		})
		if err != nil {
			return nil, classifyS3Error(err, op, from)
		}
		if !slices.Contains(keys, folderKey(from)) {
			keys = append(keys, folderKey(from))
		}
	} else {
		keys = []string{objectKey(from)}
	}

	fromPrefix := objectKey(from)
	toPrefix := objectKey(to)
	for _, key := range keys {
		target := toPrefix + strings.TrimPrefix(key, fromPrefix)
		if key == folderKey(from) {
			_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(target),
				Body:   strings.NewReader(""),
			})
		} else {
			_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
				Bucket:     aws.String(s.bucket),
				Key:        aws.String(target),
				CopySource: aws.String(copySource(s.bucket, key)),
			})
		}
		if err != nil {
			return nil, classifyS3Error(err, op, from)
		}
	}

	if removeSource {
		if err := s.deleteKeys(ctx, keys); err != nil {
			return nil, classifyS3Error(err, op, from)
		}
	}

	return s.Info(ctx, to)
}

func (s *S3Storage) Move(ctx context.Context, from, to string) (*Entry, error) {
	return s.transfer(ctx, "move", from, to, true)
}

func (s *S3Storage) Copy(ctx context.Context, from, to string) (*Entry, error) {
	return s.transfer(ctx, "copy", from, to, false)
}

func (s *S3Storage) deleteKeys(ctx context.Context, keys []string) error {
	for i := 0; i < len(keys); i += 1000 {
		end := min(i+1000, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-i)
		for _, key := range keys[i:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return err
		}
		if out != nil && len(out.Errors) > 0 {
			return deleteObjectsError(out.Errors)
		}
	}
	return nil
}

// deleteObjectsError reports the keys a batch delete left behind.
// DeleteObjects answers 200 even when individual keys fail.
func deleteObjectsError(failed []types.Error) error {
	errs := make([]error, 0, len(failed))
	for _, e := range failed {
		errs = append(errs, fmt.Errorf("%s: %s: %s",
			aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
	}
	return errors.Join(ErrPartialDelete, errors.Join(errs...))
}

func (s *S3Storage) Delete(ctx context.Context, p string) error {
	if p == "/" {
		return newError(KindInvalidPath, "delete", p, nil)
	}
	e, err := s.Info(ctx, p)
	if err != nil {
		return err
	}

	if !e.IsFolder {
		_ = s.DeleteSidecars(ctx, e.ID)
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey(p)),
		})
		return classifyS3Error(err, "delete", p)
	}

	var keys []string
	err = s.listKeys(ctx, folderKey(p), false, func(obj *types.Object, _ *string) {
		key := aws.ToString(obj.Key)
		keys = append(keys, key)
		if !strings.HasSuffix(key, "/") {
			_ = s.DeleteSidecars(ctx, EntryID(physicalPath(key)))
		}
	})
	if err != nil {
		return classifyS3Error(err, "delete", p)
	}
	return classifyS3Error(s.deleteKeys(ctx, keys), "delete", p)
}

func (s *S3Storage) Versions(ctx context.Context, p string) ([]Entry, error) {
	e, err := s.Info(ctx, p)
	if err != nil {
		return nil, err
	}
	if e.IsFolder {
		return nil, notAFile("versions", p)
	}

	key := objectKey(p)
	var versions []Entry
	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key),
	}
	for {
		out, err := s.client.ListObjectVersions(ctx, input)
		if err != nil {
			return nil, classifyS3Error(err, "versions", p)
		}
		for _, v := range out.Versions {
			if aws.ToString(v.Key) != key {
				continue
			}
			entry := s.fileEntry(p, aws.ToInt64(v.Size), aws.ToTime(v.LastModified))
			entry.VersionID = aws.ToString(v.VersionId)
			versions = append(versions, entry)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.KeyMarker = out.NextKeyMarker
		input.VersionIdMarker = out.NextVersionIdMarker
	}

	if len(versions) == 0 {
		versions = append(versions, *e)
	}
	slices.SortStableFunc(versions, func(a, b Entry) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return versions, nil
}

func (s *S3Storage) PutSidecar(ctx context.Context, entryID, key string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(sidecarPrefix(entryID) + url.PathEscape(key)),
		Body:   body,
	})
	return classifyS3Error(err, "put sidecar", entryID)
}

func (s *S3Storage) GetSidecar(ctx context.Context, entryID, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(sidecarPrefix(entryID) + url.PathEscape(key)),
	})
	if err != nil {
		return nil, classifyS3Error(err, "get sidecar", entryID+"/"+key)
	}
	return out.Body, nil
}

func (s *S3Storage) DeleteSidecars(ctx context.Context, entryID string) error {
	var keys []string
	err := s.listKeys(ctx, sidecarPrefix(entryID), false, func(obj *types.Object, _ *string) {
		keys = append(keys, aws.ToString(obj.Key))
	})
	if err != nil {
		return classifyS3Error(err, "delete sidecars", entryID)
	}
	return classifyS3Error(s.deleteKeys(ctx, keys), "delete sidecars", entryID)
}
