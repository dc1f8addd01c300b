package blob

import (
	"context"
	"io"

	"github.com/mahaj/chat-sync/pkg/errs"
)

// NoopUploader stands in when no object storage is configured. Every Put
// fails so the API surfaces a clear error instead of silently dropping
// media.
type NoopUploader struct{}

func (NoopUploader) Put(ctx context.Context, path string, reader io.Reader, size int64, contentType string) (string, error) {
	return "", errs.UploadFailed("blob: object storage is not configured", nil)
}

var _ Uploader = NoopUploader{}
