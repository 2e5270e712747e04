package kss

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory. Only the calls used by the driver are implemented.
type fakeS3 struct {
	S3API
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func testDriver(t *testing.T, d Driver) {
	ctx := context.Background()
	require.NoError(t, d.Put(ctx, "records/2021/a.json", []byte(`{"a":1}`)))
	require.NoError(t, d.Put(ctx, "records/2021/b.json", []byte(`{"b":2}`)))
	require.NoError(t, d.Put(ctx, "other/c.json", []byte(`{}`)))

	data, err := d.Get(ctx, "records/2021/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	keys, err := d.ListAllWithPrefix(ctx, "records/")
	require.NoError(t, err)
	assert.Equal(t, []string{"records/2021/a.json", "records/2021/b.json"}, keys)

	require.NoError(t, d.Delete(ctx, "records/2021/a.json"))
	_, err = d.Get(ctx, "records/2021/a.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestS3(t *testing.T) {
	fake := newFakeS3()
	testDriver(t, NewS3WithClient(fake, "twinrelay-archive", "test/"))

	assert.Contains(t, fake.objects, "test/records/2021/b.json")

	_, err := NewS3WithClient(fake, "twinrelay-archive", "").GetPreSignedURL(context.Background(), "a", time.Minute)
	assert.Error(t, err)
}

func TestS3_PreSignedURL(t *testing.T) {
	client := s3.New(s3.Options{
		Region:      "eu-central-1",
		Credentials: credentials.NewStaticCredentialsProvider("id", "secret", ""),
	})
	s := NewS3WithClient(client, "twinrelay-archive", "test/")
	url, err := s.GetPreSignedURL(context.Background(), "records/a.json", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "test/records/a.json")
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestNewS3_MissingBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Configuration{})
	assert.Error(t, err)
}

func TestLocalFilesystem(t *testing.T) {
	f, err := NewLocalFilesystem(LocalConfiguration{BasePath: t.TempDir()})
	require.NoError(t, err)
	testDriver(t, f)

	assert.Error(t, f.Put(context.Background(), "../escape", nil))
	assert.True(t, errors.Is(f.Delete(context.Background(), "missing"), ErrNotFound))
}

func TestNew(t *testing.T) {
	d, err := New(context.Background(), Configuration{})
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = New(context.Background(), Configuration{DriverType: DriverTypeLocal, LocalConfiguration: LocalConfiguration{BasePath: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalFilesystem{}, d)

	_, err = New(context.Background(), Configuration{DriverType: "FTP"})
	assert.Error(t, err)
}
