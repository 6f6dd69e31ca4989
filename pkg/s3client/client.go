package s3client

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound           = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

type ListObjectsRequest struct {
	Bucket string
	Prefix string
}

type HeadObjectRequest struct {
	Bucket string
	Key    string
}

// GetObjectRequest reads the whole object when Length is zero, otherwise
// the Length bytes starting at Offset.
type GetObjectRequest struct {
	Bucket string
	Key    string
	Offset int64
	Length int64
}

type PutObjectRequest struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
	// IfNoneMatch makes the write fail with ErrPreconditionFailed when the key exists.
	IfNoneMatch bool
}

type DeleteObjectRequest struct {
	Bucket string
	Key    string
}

type Client interface {
	ListObjects(ctx context.Context, req *ListObjectsRequest) ([]ObjectInfo, error)
	HeadObject(ctx context.Context, req *HeadObjectRequest) (*ObjectInfo, error)
	GetObject(ctx context.Context, req *GetObjectRequest) (io.ReadCloser, error)
	PutObject(ctx context.Context, req *PutObjectRequest) error
	DeleteObject(ctx context.Context, req *DeleteObjectRequest) error
}
