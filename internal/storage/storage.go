package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mkthub/edi/internal/models"
)

// ErrNotFound is returned when no object exists for a reference.
var ErrNotFound = errors.New("stored object not found")

// FileStore is the blob storage collaborator. References are opaque strings;
// callers must not parse them.
type FileStore interface {
	Upload(ctx context.Context, key string, r io.Reader) (ref string, err error)
	Download(ctx context.Context, ref string) (io.ReadCloser, error)
}

// DocumentKey builds the storage key for a rendered bundle document, scoped
// by category, receiving actor and date.
func DocumentKey(receiver models.Actor, createdAt time.Time, bundleID uuid.UUID, format models.DocumentFormat) string {
	return fmt.Sprintf("outgoing-messages/%s/%s/%s.%s",
		receiver.Number,
		createdAt.UTC().Format("2006-01-02"),
		bundleID,
		format.FileExtension(),
	)
}
