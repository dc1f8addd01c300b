// Package blob stores media bytes in an S3-compatible bucket and hands back
// durable URLs. Used for avatars and story images.
package blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mahaj/chat-sync/pkg/errs"
)

// Uploader accepts a binary blob and a path and returns a retrievable URL.
type Uploader interface {
	Put(ctx context.Context, path string, reader io.Reader, size int64, contentType string) (string, error)
}

// MinioUploader is the S3/MinIO implementation.
type MinioUploader struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *slog.Logger

	initOnce sync.Once
	initErr  error
}

func NewMinio(endpoint string, useSSL bool, accessKey, secretKey, bucket, publicBaseURL string, logger *slog.Logger) (*MinioUploader, error) {
	if endpoint == "" {
		return nil, errs.InvalidArg("blob: endpoint is required")
	}
	if bucket == "" {
		return nil, errs.InvalidArg("blob: bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errs.UploadFailed("blob: create client", err)
	}

	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		base = scheme + "://" + endpoint
	}

	return &MinioUploader{client: client, bucket: bucket, baseURL: base, logger: logger}, nil
}

// Put stores the blob and returns its URL. Failures surface as UploadFailed;
// the caller decides whether to retry (a blind retry could duplicate bytes
// but never corrupts state).
func (u *MinioUploader) Put(ctx context.Context, path string, reader io.Reader, size int64, contentType string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errs.InvalidArg("blob: object path is required")
	}
	if reader == nil {
		return "", errs.InvalidArg("blob: reader is required")
	}
	if err := u.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := u.client.PutObject(ctx, u.bucket, path, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errs.UploadFailed("blob: put object", err)
	}

	url := u.baseURL + "/" + u.bucket + "/" + path
	u.logger.Info("blob stored", "bucket", u.bucket, "path", path)
	return url, nil
}

func (u *MinioUploader) ensureBucket(ctx context.Context) error {
	u.initOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.initErr = errs.UploadFailed("blob: check bucket", err)
			return
		}
		if exists {
			return
		}
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			u.initErr = errs.UploadFailed("blob: create bucket", err)
		}
	})
	return u.initErr
}

var _ Uploader = (*MinioUploader)(nil)
