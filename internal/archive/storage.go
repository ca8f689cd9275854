package archive

import (
	"context"
	"errors"
	"io"
	"regexp"
)

var (
	ErrNotFound   = errors.New("archive entry not found")
	ErrInvalidKey = errors.New("invalid archive key")
)

// validKeyPattern admits ticker-style keys only, so a key never escapes the
// archive root or prefix.
var validKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func validateKey(key string) error {
	if len(key) > 64 || !validKeyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

// Storage defines the interface for archive blob storage.
type Storage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error)
	Load(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
