// Package documents stores uploaded files (contracts, receipts, inspection
// photos) on the local filesystem or in S3-compatible object storage.
// Metadata lives in the database; this package only moves bytes.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperengineering/rentops/internal/config"
)

var (
	// ErrNotFound is returned when no object exists under a key.
	ErrNotFound = errors.New("document object not found")
	// ErrInvalidKey is returned for keys that escape the storage root.
	ErrInvalidKey = errors.New("invalid document key")
	// ErrNotConfigured is returned by PresignedURL when the backend cannot
	// sign download URLs.
	ErrNotConfigured = errors.New("pre-signed URLs not supported by storage backend")
)

// Storage stores and retrieves document bytes by key.
type Storage interface {
	// Save writes r under key. size is -1 when unknown.
	Save(ctx context.Context, key string, r io.Reader, size int64, mimeType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by backends that can hand out direct download
// links.
type Presigner interface {
	PresignedURL(ctx context.Context, key, filename string) (url string, expiry time.Time, err error)
}

// NewStorage creates the backend selected by cfg.Backend.
func NewStorage(cfg config.DocumentsConfig) (Storage, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		return NewS3Storage(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown documents backend %q", cfg.Backend)
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectKey returns the storage key for a document.
// Convention: {property_id}/{document_id}{ext}
func ObjectKey(propertyID, documentID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	ext = unsafeChars.ReplaceAllString(ext, "")
	if len(ext) > 10 {
		ext = ""
	}
	return propertyID + "/" + documentID + ext
}

const maxFilenameBytes = 255

// SanitizeFilename strips directory components and control characters from
// a client-supplied filename and caps it at maxFilenameBytes without
// splitting a character.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	if len(name) > maxFilenameBytes {
		cut := maxFilenameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}
