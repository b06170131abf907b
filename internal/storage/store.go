// Package storage holds captured label images.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore is the blob store behind capture uploads and the OCR worker.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Fetch(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// ImagePath is the object key of a roll photo: sessions/<session>/<roll>.<ext>.
func ImagePath(sessionID, rollID uuid.UUID, ext string) string {
	ext = constants.NormalizeExt(ext)
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("sessions/%s/%s.%s", sessionID, rollID, ext)
}
