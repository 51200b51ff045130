package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// fakeS3 is an in-memory API keyed by bucket/key.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = data
	f.types[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakePresigner struct {
	lastKey     string
	lastExpires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.lastKey = aws.ToString(in.Key)
	f.lastExpires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://" + aws.ToString(in.Bucket) + ".s3.example.com/" + f.lastKey + "?X-Amz-Signature=abc",
		Method: "GET",
	}, nil
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestObjectStore_PutAndGet(t *testing.T) {
	api := newFakeS3()
	store := NewWithClients(api, &fakePresigner{}, Options{Bucket: "b", Prefix: "/stitch"})
	ctx := context.Background()
	key := domain.SegmentInputKey("s1", 0)

	require.NoError(t, store.Put(ctx, key, []byte("hello"), domain.ContentTypeText))

	assert.Equal(t, domain.ContentTypeText, api.types["b/stitch/"+key])
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestObjectStore_Get_NotFound(t *testing.T) {
	store := NewWithClients(newFakeS3(), &fakePresigner{}, Options{Bucket: "b"})

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"typed", &s3types.NoSuchKey{}, true},
		{"generic no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"generic not found", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestObjectStore_PutError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("access denied")
	store := NewWithClients(api, &fakePresigner{}, Options{Bucket: "b"})

	err := store.Put(context.Background(), "k", []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestObjectStore_PresignedGetURL(t *testing.T) {
	presigner := &fakePresigner{}
	store := NewWithClients(newFakeS3(), presigner, Options{Bucket: "b"})

	url, err := store.PresignedGetURL(context.Background(), "sessions/s1/raw/a.webm", 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.example.com/sessions/s1/raw/a.webm?X-Amz-Signature=abc", url)
	assert.Equal(t, "sessions/s1/raw/a.webm", presigner.lastKey)
	assert.Equal(t, 15*time.Minute, presigner.lastExpires)
}
