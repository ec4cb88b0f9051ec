package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/teamfiles/pkg/storage"
)

// MockS3Client is a mock implementation of the S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.UploadPartOutput), args.Error(1)
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CreateMultipartUploadOutput), args.Error(1)
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CompleteMultipartUploadOutput), args.Error(1)
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.AbortMultipartUploadOutput), args.Error(1)
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CopyObjectOutput), args.Error(1)
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

func (m *MockS3Client) ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.ListObjectVersionsOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectsOutput), args.Error(1)
}

// MockS3ListObjectsV2Paginator is a mock implementation of the S3ListObjectsV2Paginator interface
type MockS3ListObjectsV2Paginator struct {
	mock.Mock
}

func (m *MockS3ListObjectsV2Paginator) HasMorePages() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockS3ListObjectsV2Paginator) NextPage(ctx context.Context, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*v4.PresignedHTTPRequest), args.Error(1)
}

func keyIs(key string) any {
	return mock.MatchedBy(func(in *s3.HeadObjectInput) bool { return aws.ToString(in.Key) == key })
}

func prefixIs(prefix string) any {
	return mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool { return aws.ToString(in.Prefix) == prefix })
}

// expectFolder makes Info(p) resolve to a folder marker.
func expectFolder(m *MockS3Client, key string) {
	m.On("HeadObject", mock.Anything, keyIs(key), mock.Anything).Return(nil, &types.NotFound{})
	m.On("ListObjectsV2", mock.Anything, prefixIs(key+"/"), mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{{Key: aws.String(key + "/")}},
	}, nil)
}

// expectMissing makes Info(p) report not found.
func expectMissing(m *MockS3Client, key string) {
	m.On("HeadObject", mock.Anything, keyIs(key), mock.Anything).Return(nil, &types.NotFound{})
	m.On("ListObjectsV2", mock.Anything, prefixIs(key+"/"), mock.Anything).Return(&s3.ListObjectsV2Output{}, nil)
}

func newS3(t *testing.T, client *MockS3Client, opts ...storage.S3Option) *storage.S3Storage {
	t.Helper()
	opts = append([]storage.S3Option{storage.WithS3Client(client), storage.WithS3TempDir(t.TempDir())}, opts...)
	s, err := storage.NewS3Storage(context.Background(), storage.S3Config{
		Bucket: "test-bucket",
		Region: "us-east-1",
	}, opts...)
	require.NoError(t, err)
	return s
}

func TestNewS3Storage(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		s, err := storage.NewS3Storage(context.Background(), storage.S3Config{
			Bucket:      "test-bucket",
			Region:      "us-east-1",
			AccessKeyID: "test-key",
			SecretKey:   "test-secret",
		})
		require.NoError(t, err)
		require.NotNil(t, s)
	})

	t.Run("with custom endpoint and http client", func(t *testing.T) {
		t.Parallel()
		s, err := storage.NewS3Storage(context.Background(), storage.S3Config{
			Bucket:         "test-bucket",
			Region:         "us-east-1",
			Endpoint:       "http://localhost:9000",
			ForcePathStyle: true,
		}, storage.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
		require.NoError(t, err)
		require.NotNil(t, s)
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Parallel()
		s, err := storage.NewS3Storage(context.Background(), storage.S3Config{Region: "us-east-1"})
		assert.True(t, errors.Is(err, storage.ErrInvalidConfig))
		assert.Nil(t, s)
	})

	t.Run("missing region", func(t *testing.T) {
		t.Parallel()
		s, err := storage.NewS3Storage(context.Background(), storage.S3Config{Bucket: "b"})
		assert.True(t, errors.Is(err, storage.ErrInvalidConfig))
		assert.Nil(t, s)
	})
}

func TestS3Storage_Info(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		client.On("HeadObject", mock.Anything, keyIs("f/7/report.pdf"), mock.Anything).Return(&s3.HeadObjectOutput{
			ContentLength: aws.Int64(42),
			ContentType:   aws.String("application/pdf"),
			LastModified:  aws.Time(modified),
			VersionId:     aws.String("v9"),
		}, nil)
		s := newS3(t, client)

		e, err := s.Info(ctx, "/f/7/report.pdf")
		require.NoError(t, err)
		assert.False(t, e.IsFolder)
		assert.Equal(t, int64(42), e.Size)
		assert.Equal(t, "pdf", e.Extension)
		assert.Equal(t, "application/pdf", e.MIMEType)
		assert.Equal(t, "v9", e.VersionID)
		assert.Equal(t, modified, e.ModTime)
		assert.Equal(t, storage.EntryID("/f/7/report.pdf"), e.ID)
		client.AssertExpectations(t)
	})

	t.Run("folder", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		expectFolder(client, "f/7")
		s := newS3(t, client)

		e, err := s.Info(ctx, "/f/7")
		require.NoError(t, err)
		assert.True(t, e.IsFolder)
		assert.Equal(t, "7", e.Name)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		expectMissing(client, "f/missing")
		s := newS3(t, client)

		_, err := s.Info(ctx, "/f/missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		ok, err := s.Exists(ctx, "/f/missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("access denied is not classified as missing", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		client.On("HeadObject", mock.Anything, keyIs("f/x"), mock.Anything).Return(nil, &smithy.GenericAPIError{
			Code:    "AccessDenied",
			Message: "Access Denied",
		})
		s := newS3(t, client)

		_, err := s.Info(ctx, "/f/x")
		require.Error(t, err)
		assert.Equal(t, storage.KindOther, storage.KindOf(err))

		_, err = s.Exists(ctx, "/f/x")
		assert.Error(t, err)
	})

	t.Run("invalid path", func(t *testing.T) {
		t.Parallel()
		s := newS3(t, &MockS3Client{})
		_, err := s.Info(ctx, "f/x/")
		assert.True(t, errors.Is(err, storage.ErrInvalidPath))
	})
}

func TestS3Storage_ErrorClassification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want storage.Kind
	}{
		{"no such key", &types.NoSuchKey{}, storage.KindNotFound},
		{"api not found code", &smithy.GenericAPIError{Code: "NoSuchVersion"}, storage.KindNotFound},
		{"key too long", &smithy.GenericAPIError{Code: "KeyTooLongError"}, storage.KindInvalidPath},
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown"}, storage.KindOther},
		{"network", errors.New("connection reset"), storage.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := &MockS3Client{}
			client.On("HeadObject", mock.Anything, keyIs("f/a.txt"), mock.Anything).Return(&s3.HeadObjectOutput{
				ContentLength: aws.Int64(1),
			}, nil)
			client.On("GetObject", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newS3(t, client)

			_, err := s.Download(ctx, "/f/a.txt", storage.DownloadOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.want, storage.KindOf(err))
		})
	}
}

func TestS3Storage_CreateFolder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates marker", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		expectMissing(client, "f/7/Reports")
		expectFolder(client, "f/7")
		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Key) == "f/7/Reports/"
		}), mock.Anything).Return(&s3.PutObjectOutput{}, nil)
		s := newS3(t, client)

		e, err := s.CreateFolder(ctx, "/f/7/Reports")
		require.NoError(t, err)
		assert.True(t, e.IsFolder)
		client.AssertExpectations(t)
	})

	t.Run("already exists", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		expectFolder(client, "f/7")
		s := newS3(t, client)

		_, err := s.CreateFolder(ctx, "/f/7")
		assert.True(t, errors.Is(err, storage.ErrAlreadyExists))
	})

	t.Run("missing parent", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		expectMissing(client, "f/7/a/b")
		expectMissing(client, "f/7/a")
		s := newS3(t, client)

		_, err := s.CreateFolder(ctx, "/f/7/a/b")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}

func TestS3Storage_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &MockS3Client{}
	expectFolder(client, "f/7")

	paginator := &MockS3ListObjectsV2Paginator{}
	paginator.On("HasMorePages").Return(true).Once()
	paginator.On("NextPage", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("f/7/Channels/")}},
		Contents: []types.Object{
			{Key: aws.String("f/7/")},
			{Key: aws.String("f/7/b.txt"), Size: aws.Int64(2)},
		},
	}, nil).Once()
	paginator.On("HasMorePages").Return(true).Once()
	paginator.On("NextPage", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{{Key: aws.String("f/7/a.jpg"), Size: aws.Int64(1)}},
	}, nil).Once()
	paginator.On("HasMorePages").Return(false).Once()

	var gotParams *s3.ListObjectsV2Input
	s := newS3(t, client, storage.WithPaginatorFactory(func(_ storage.S3Client, params *s3.ListObjectsV2Input) storage.S3ListObjectsV2Paginator {
		gotParams = params
		return paginator
	}))

	entries, err := s.List(ctx, "/f/7", storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Channels", "a.jpg", "b.txt"}, names(entries))
	assert.Equal(t, "/f/7/Channels", entries[0].Path)
	assert.True(t, entries[0].IsFolder)
	require.NotNil(t, gotParams)
	assert.Equal(t, "f/7/", aws.ToString(gotParams.Prefix))
	assert.Equal(t, "/", aws.ToString(gotParams.Delimiter))
	paginator.AssertExpectations(t)
}

func TestS3Storage_List_NilPaginator(t *testing.T) {
	t.Parallel()

	client := &MockS3Client{}
	expectFolder(client, "f/7")
	s := newS3(t, client, storage.WithPaginatorFactory(func(storage.S3Client, *s3.ListObjectsV2Input) storage.S3ListObjectsV2Paginator {
		return nil
	}))

	_, err := s.List(context.Background(), "/f/7", storage.ListOptions{})
	assert.True(t, errors.Is(err, storage.ErrPaginatorNil))
}

// bucketClient keeps objects in memory. Calls it does not implement fall
// through to the embedded mock.
type bucketClient struct {
	*MockS3Client
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newBucketClient(keys ...string) *bucketClient {
	c := &bucketClient{MockS3Client: &MockS3Client{}, objects: map[string][]byte{}, types: map[string]string{}}
	for _, k := range keys {
		c.objects[k] = nil
	}
	return c
}

func (c *bucketClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[aws.ToString(in.Key)] = data
	c.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (c *bucketClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (c *bucketClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(c.types[aws.ToString(in.Key)]),
	}, nil
}

func (c *bucketClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if in.MaxKeys != nil && len(keys) > int(*in.MaxKeys) {
		keys = keys[:*in.MaxKeys]
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(c.objects[k])))})
	}
	return out, nil
}

func (c *bucketClient) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range in.Delete.Objects {
		delete(c.objects, aws.ToString(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (c *bucketClient) keys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestS3Storage_Upload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newWorker := func(t *testing.T, client *bucketClient) *storage.S3Storage {
		t.Helper()
		s, err := storage.NewS3Storage(ctx, storage.S3Config{Bucket: "test-bucket", Region: "us-east-1"},
			storage.WithS3Client(client), storage.WithS3TempDir(t.TempDir()))
		require.NoError(t, err)
		return s
	}

	t.Run("chunks reach different workers", func(t *testing.T) {
		t.Parallel()
		client := newBucketClient("f/7/")
		a, b := newWorker(t, client), newWorker(t, client)

		res, err := a.Upload(ctx, storage.UploadInput{Path: "/f/7/notes.txt", Body: strings.NewReader("hello "), Session: "s1"})
		require.NoError(t, err)
		assert.False(t, res.Complete)
		assert.Equal(t, int64(6), res.Received)
		assert.Len(t, client.keys(".uploads/"), 1)

		res, err = b.Upload(ctx, storage.UploadInput{Path: "/f/7/notes.txt", Body: strings.NewReader("world"), Offset: 6, Final: true, Session: "s1"})
		require.NoError(t, err)
		assert.True(t, res.Complete)
		assert.Equal(t, int64(11), res.Received)
		require.NotNil(t, res.Entry)
		assert.Equal(t, int64(11), res.Entry.Size)
		assert.Equal(t, "hello world", string(client.objects["f/7/notes.txt"]))
		assert.Contains(t, client.types["f/7/notes.txt"], "text/plain")
		assert.Empty(t, client.keys(".uploads/"), "staged chunks are removed")
	})

	t.Run("wrong offset", func(t *testing.T) {
		t.Parallel()
		client := newBucketClient("f/7/")
		s := newWorker(t, client)

		_, err := s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.bin", Body: strings.NewReader("tail"), Offset: 100, Final: true, Session: "s1"})
		require.Error(t, err)
		assert.Equal(t, storage.KindInvalidArgument, storage.KindOf(err))
		assert.True(t, errors.Is(err, storage.ErrChunkOffset))
		assert.NotContains(t, client.objects, "f/7/x.bin")
	})

	t.Run("offset zero restarts the session", func(t *testing.T) {
		t.Parallel()
		client := newBucketClient("f/7/")
		s := newWorker(t, client)

		_, err := s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("stale data"), Session: "s1"})
		require.NoError(t, err)
		_, err = s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("ab"), Session: "s1"})
		require.NoError(t, err)
		res, err := s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("cd"), Offset: 2, Final: true, Session: "s1"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), res.Received)
		assert.Equal(t, "abcd", string(client.objects["f/7/x.txt"]))
	})

	t.Run("sessions do not interleave", func(t *testing.T) {
		t.Parallel()
		client := newBucketClient("f/7/")
		s := newWorker(t, client)

		_, err := s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("aa"), Session: "a"})
		require.NoError(t, err)
		_, err = s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("bb"), Session: "b"})
		require.NoError(t, err)
		_, err = s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("AA"), Offset: 2, Final: true, Session: "a"})
		require.NoError(t, err)
		assert.Equal(t, "aaAA", string(client.objects["f/7/x.txt"]))
		assert.Len(t, client.keys(".uploads/"), 1, "the other session is still staged")
	})

	t.Run("staging is hidden from listings", func(t *testing.T) {
		t.Parallel()
		client := newBucketClient("f/", "f/7/")
		s := newWorker(t, client)

		_, err := s.Upload(ctx, storage.UploadInput{Path: "/f/7/x.txt", Body: strings.NewReader("aa"), Session: "a"})
		require.NoError(t, err)
		entries, err := s.List(ctx, "/", storage.ListOptions{Recursive: true})
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Path, ".uploads")
		}
	})
}

func TestS3Storage_Download(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	headFile := func(client *MockS3Client) {
		client.On("HeadObject", mock.Anything, keyIs("f/7/a.txt"), mock.Anything).Return(&s3.HeadObjectOutput{
			ContentLength: aws.Int64(7),
		}, nil)
	}

	t.Run("stream specific version", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		headFile(client)
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.VersionId) == "v1"
		}), mock.Anything).Return(&s3.GetObjectOutput{
			Body:          io.NopCloser(strings.NewReader("old")),
			ContentLength: aws.Int64(3),
		}, nil)
		s := newS3(t, client)

		d, err := s.Download(ctx, "/f/7/a.txt", storage.DownloadOptions{VersionID: "v1"})
		require.NoError(t, err)
		defer d.Body.Close()
		data, err := io.ReadAll(d.Body)
		require.NoError(t, err)
		assert.Equal(t, "old", string(data))
		assert.Equal(t, int64(3), d.Entry.Size)
		assert.Equal(t, "v1", d.Entry.VersionID)
	})

	t.Run("redirect uses presigner", func(t *testing.T) {
		t.Parallel()
		client := &MockS3Client{}
		headFile(client)
		presigner := &MockPresigner{}
		presigner.On("PresignGetObject", mock.Anything, mock.Anything, mock.Anything).Return(&v4.PresignedHTTPRequest{
			URL: "https://test-bucket.s3.amazonaws.com/f/7/a.txt?X-Amz-Signature=abc",
		}, nil)
		s := newS3(t, client, storage.WithS3Presigner(presigner))

		d, err := s.Download(ctx, "/f/7/a.txt", storage.DownloadOptions{Mode: storage.DownloadRedirect})
		require.NoError(t, err)
		assert.Contains(t, d.URL, "X-Amz-Signature")
		assert.Nil(t, d.Body)
		client.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestS3Storage_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &MockS3Client{}
	expectFolder(client, "f/7/old")

	folder := &MockS3ListObjectsV2Paginator{}
	folder.On("HasMorePages").Return(true).Once()
	folder.On("NextPage", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("f/7/old/")},
			{Key: aws.String("f/7/old/a.txt")},
		},
	}, nil).Once()
	folder.On("HasMorePages").Return(false).Once()

	empty := &MockS3ListObjectsV2Paginator{}
	empty.On("HasMorePages").Return(false)

	var deleted []string
	client.On("DeleteObjects", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.DeleteObjectsInput)
		for _, o := range in.Delete.Objects {
			deleted = append(deleted, aws.ToString(o.Key))
		}
	}).Return(&s3.DeleteObjectsOutput{}, nil)

	s := newS3(t, client, storage.WithPaginatorFactory(func(_ storage.S3Client, params *s3.ListObjectsV2Input) storage.S3ListObjectsV2Paginator {
		if aws.ToString(params.Prefix) == "f/7/old/" {
			return folder
		}
		return empty
	}))

	require.NoError(t, s.Delete(ctx, "/f/7/old"))
	assert.ElementsMatch(t, []string{"f/7/old/", "f/7/old/a.txt"}, deleted)
}

func TestS3Storage_Delete_PartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &MockS3Client{}
	expectFolder(client, "f/7/old")

	folder := &MockS3ListObjectsV2Paginator{}
	folder.On("HasMorePages").Return(true).Once()
	folder.On("NextPage", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("f/7/old/")},
			{Key: aws.String("f/7/old/a.txt")},
		},
	}, nil).Once()
	folder.On("HasMorePages").Return(false).Once()

	empty := &MockS3ListObjectsV2Paginator{}
	empty.On("HasMorePages").Return(false)

	client.On("DeleteObjects", mock.Anything, mock.Anything, mock.Anything).Return(&s3.DeleteObjectsOutput{
		Errors: []types.Error{{Key: aws.String("f/7/old/a.txt"), Code: aws.String("AccessDenied"), Message: aws.String("Access Denied")}},
	}, nil)

	s := newS3(t, client, storage.WithPaginatorFactory(func(_ storage.S3Client, params *s3.ListObjectsV2Input) storage.S3ListObjectsV2Paginator {
		if aws.ToString(params.Prefix) == "f/7/old/" {
			return folder
		}
		return empty
	}))

	err := s.Delete(ctx, "/f/7/old")
	require.Error(t, err)
	assert.Equal(t, storage.KindOther, storage.KindOf(err))
	assert.ErrorIs(t, err, storage.ErrPartialDelete)
	assert.Contains(t, err.Error(), "f/7/old/a.txt")
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestS3Storage_Versions(t *testing.T) {
	t.Parallel()

	client := &MockS3Client{}
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client.On("HeadObject", mock.Anything, keyIs("f/7/a.txt"), mock.Anything).Return(&s3.HeadObjectOutput{
		ContentLength: aws.Int64(3),
	}, nil)
	client.On("ListObjectVersions", mock.Anything, mock.Anything, mock.Anything).Return(&s3.ListObjectVersionsOutput{
		Versions: []types.ObjectVersion{
			{Key: aws.String("f/7/a.txt"), VersionId: aws.String("old"), LastModified: aws.Time(t1), Size: aws.Int64(1)},
			{Key: aws.String("f/7/a.txt.bak"), VersionId: aws.String("other"), LastModified: aws.Time(t1)},
			{Key: aws.String("f/7/a.txt"), VersionId: aws.String("new"), LastModified: aws.Time(t1.Add(time.Hour)), Size: aws.Int64(3)},
		},
		IsTruncated: aws.Bool(false),
	}, nil)
	s := newS3(t, client)

	versions, err := s.Versions(context.Background(), "/f/7/a.txt")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "new", versions[0].VersionID)
	assert.Equal(t, "old", versions[1].VersionID)
}
