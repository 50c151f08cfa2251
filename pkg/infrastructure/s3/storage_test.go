package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	puts    map[string][]byte
	deleted []string
	err     error
}

func (f *fakeClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts[aws.ToString(params.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestPut(t *testing.T) {
	client := &fakeClient{puts: make(map[string][]byte)}
	storage := NewStorage(client, Config{Bucket: "shop", Region: "eu-west-1", PublicBaseURL: "https://cdn.example.com/"})

	image, err := storage.Put(context.Background(), []byte("png"), "image/png", "products/Front.PNG")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(image.Key, "products/"))
	assert.True(t, strings.HasSuffix(image.Key, ".png"))
	assert.Equal(t, "https://cdn.example.com/"+image.Key, image.URL)
	assert.Equal(t, []byte("png"), client.puts[image.Key])
}

func TestDefaultPublicURL(t *testing.T) {
	client := &fakeClient{puts: make(map[string][]byte)}
	storage := NewStorage(client, Config{Bucket: "shop", Region: "eu-west-1"})

	image, err := storage.Put(context.Background(), []byte("jpg"), "image/jpeg", "payments/receipt")

	require.NoError(t, err)
	assert.Equal(t, "https://shop.s3.eu-west-1.amazonaws.com/"+image.Key, image.URL)
	assert.True(t, strings.HasPrefix(image.Key, "payments/"))
	assert.True(t, strings.HasSuffix(image.Key, ".jpg"))
}

func TestObjectKeyWithoutFolder(t *testing.T) {
	key := objectKey("avatar.gif", "image/gif")
	assert.NotContains(t, key, "/")
	assert.True(t, strings.HasSuffix(key, ".gif"))
}

func TestPutFailure(t *testing.T) {
	storage := NewStorage(&fakeClient{err: errors.New("access denied")}, Config{Bucket: "shop"})

	_, err := storage.Put(context.Background(), []byte("x"), "image/png", "products")

	assert.ErrorContains(t, err, "access denied")
}

func TestDelete(t *testing.T) {
	client := &fakeClient{puts: make(map[string][]byte)}
	storage := NewStorage(client, Config{Bucket: "shop"})

	require.NoError(t, storage.Delete(context.Background(), "products/a.png"))
	assert.Equal(t, []string{"products/a.png"}, client.deleted)
}
