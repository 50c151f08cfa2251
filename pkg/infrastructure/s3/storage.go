package s3

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"storefront/pkg/common/domain"
)

type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Path-style addressing is used then.
	Endpoint string
	// PublicBaseURL is prepended to object keys to build public URLs.
	PublicBaseURL string
}

// Client is the subset of the S3 API the storage uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Storage struct {
	client  Client
	bucket  string
	baseURL string
}

var _ domain.ObjectStorage = &Storage{}

func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}
	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewStorage(client Client, cfg Config) *Storage {
	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &Storage{client: client, bucket: cfg.Bucket, baseURL: baseURL}
}

// Put stores body next to keyHint under a random name, keeping the hint's folder
// and extension so client file names never collide.
func (s *Storage) Put(ctx context.Context, body []byte, contentType, keyHint string) (domain.Image, error) {
	key := objectKey(keyHint, contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return domain.Image{}, errors.Wrapf(err, "failed to upload %s", key)
	}
	return domain.Image{URL: s.baseURL + "/" + key, Key: key}, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "failed to delete %s", key)
}

func objectKey(keyHint, contentType string) string {
	ext := path.Ext(keyHint)
	if ext == "" {
		ext = extension(contentType)
	}
	dir := path.Dir(keyHint)
	if dir == "." || dir == "/" {
		return uuid.NewString() + strings.ToLower(ext)
	}
	return path.Join(dir, uuid.NewString()+strings.ToLower(ext))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
