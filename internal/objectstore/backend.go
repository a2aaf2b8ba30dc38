package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentTypeJSON = "application/json"

// Backend is the object store connection the Client drives. Implementations
// return a *StatusError for failed calls and must be safe for concurrent use.
type Backend interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) (int, error)
	// GetObject may return a nil body when the store answered without one.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	HeadObject(ctx context.Context, bucket, key string) (int, error)
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// MinioBackend talks to any S3 compatible endpoint, including the OCI
// Amazon S3 compatibility API.
type MinioBackend struct {
	client *minio.Client
}

func NewMinioBackend(opts MinioOptions) (*MinioBackend, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioBackend{client: client}, nil
}

func (b *MinioBackend) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) (int, error) {
	_, err := b.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentTypeJSON})
	if err != nil {
		return 0, toStatusError(ctx, err)
	}
	return http.StatusOK, nil
}

func (b *MinioBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, toStatusError(ctx, err)
	}
	// GetObject is lazy; Stat forces the request so a missing key surfaces here.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, toStatusError(ctx, err)
	}
	return obj, nil
}

func (b *MinioBackend) HeadObject(ctx context.Context, bucket, key string) (int, error) {
	if _, err := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return 0, toStatusError(ctx, err)
	}
	return http.StatusOK, nil
}

func toStatusError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.StatusCode != 0 {
		return &StatusError{StatusCode: resp.StatusCode, Code: resp.Code, Message: resp.Message}
	}
	return &StatusError{StatusCode: StatusClientFailure, Message: err.Error()}
}
