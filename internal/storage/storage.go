package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	SRTContentType = "application/x-subrip"
)

// BlobStore keeps the uploaded audio and the generated subtitles.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PutBytes(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Ping(ctx context.Context) error
}

func AudioKey(jobID uuid.UUID, filename string) string {
	return fmt.Sprintf("audio/%s/%s", jobID, filename)
}

func ResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("srt/%s.srt", jobID)
}
