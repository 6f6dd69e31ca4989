package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Record describes one object in a listing.
type Record struct {
	// Key is the logical, backend-independent path.
	Key string
	// LocalKey is the backend-specific address (file path or object key).
	LocalKey string
	Size     int64
	// Timestamp is the backend's last-modified time in UTC.
	Timestamp time.Time
}

// Provider is the capability set every storage backend implements.
//
// List returns records sorted ascending by Key, restricted to keys starting
// with prefix when prefix is non-empty. Read returns a stream positioned at
// offset 0 of exactly rec.Size bytes. Write stores exactly rec.Size bytes
// from r under rec.Key and stamps rec.Timestamp as the stored modification
// time. Delete treats an absent object as success.
type Provider interface {
	List(ctx context.Context, prefix string) ([]Record, error)
	Read(ctx context.Context, rec Record) (io.ReadCloser, error)
	Write(ctx context.Context, rec Record, r io.Reader, overwrite bool) error
	Delete(ctx context.Context, rec Record) error
}

// RangeReader is implemented by providers that can fetch a byte range of
// an object independently. length bytes are read starting at off.
type RangeReader interface {
	ReadRange(ctx context.Context, rec Record, off, length int64) (io.ReadCloser, error)
}

var (
	ErrListing  = errors.New("listing failed")
	ErrTransfer = errors.New("transfer failed")
	ErrConflict = errors.New("object already exists")
	ErrDelete   = errors.New("delete failed")
)

// Error is returned by providers. Kind is one of the Err* sentinels above.
type Error struct {
	Kind error
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// SanitizeKey normalizes a logical key: surrounding whitespace and leading
// slashes are removed and backslashes become forward slashes.
func SanitizeKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimSpace(key)
	key = strings.TrimLeft(key, "/")
	return strings.TrimSpace(key)
}
