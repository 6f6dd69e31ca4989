package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yuya-takeyama/mirrorsync/pkg/s3client"
)

const (
	// TimestampMetadataKey is the user metadata field (x-amz-meta-mirrorsync-ts)
	// holding the record timestamp.
	TimestampMetadataKey = "mirrorsync-ts"

	DefaultHeadConcurrency = 16
)

// Epoch is the timestamp reported for objects without timestamp metadata.
var Epoch = time.Unix(0, 0).UTC()

// ObjectStorage is a Provider rooted at bucket/root in an S3-compatible store.
// The store does not expose a settable modification time, so timestamps
// travel in user metadata and are resolved with one HEAD per listed object.
type ObjectStorage struct {
	client          s3client.Client
	bucket          string
	root            string
	headConcurrency int
}

type ObjectStorageOption func(*ObjectStorage)

// WithHeadConcurrency bounds the HEAD requests issued while listing.
func WithHeadConcurrency(n int) ObjectStorageOption {
	return func(p *ObjectStorage) {
		if n > 0 {
			p.headConcurrency = n
		}
	}
}

func NewObjectStorage(client s3client.Client, bucket, root string, opts ...ObjectStorageOption) *ObjectStorage {
	p := &ObjectStorage{
		client:          client,
		bucket:          bucket,
		root:            strings.Trim(sanitizeObjectKey(root), "/"),
		headConcurrency: DefaultHeadConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ObjectStorage) Bucket() string {
	return p.bucket
}

func (p *ObjectStorage) Root() string {
	return p.root
}

func (p *ObjectStorage) List(ctx context.Context, prefix string) ([]Record, error) {
	prefix = sanitizeObjectKey(prefix)

	listPrefix := s3client.JoinKey(p.root, prefix)
	if p.root != "" && prefix == "" {
		listPrefix = p.root + "/"
	}

	objects, err := p.client.ListObjects(ctx, &s3client.ListObjectsRequest{
		Bucket: p.bucket,
		Prefix: listPrefix,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(ErrListing, "list", p.location(listPrefix), err)
	}

	records := make([]Record, 0, len(objects))
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// zero-byte "folder/" placeholders created by consoles and other tools
		if obj.Size == 0 && strings.HasSuffix(obj.Key, "/") {
			continue
		}

		records = append(records, Record{
			Key:       sanitizeObjectKey(s3client.TrimKeyPrefix(obj.Key, p.root)),
			LocalKey:  obj.Key,
			Size:      obj.Size,
			Timestamp: Epoch,
		})
	}

	records, err = p.resolveTimestamps(ctx, records)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(ErrListing, "list", p.location(listPrefix), err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})

	return records, nil
}

// resolveTimestamps fills in Timestamp from object metadata. Objects that
// disappear between LIST and HEAD are dropped from the listing.
func (p *ObjectStorage) resolveTimestamps(ctx context.Context, records []Record) ([]Record, error) {
	gone := make([]bool, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.headConcurrency)

	for i := range records {
		i := i
		g.Go(func() error {
			info, err := p.client.HeadObject(gctx, &s3client.HeadObjectRequest{
				Bucket: p.bucket,
				Key:    records[i].LocalKey,
			})
			if err != nil {
				if errors.Is(err, s3client.ErrNotFound) {
					gone[i] = true
					return nil
				}
				return err
			}
			records[i].Timestamp = TimestampFromMetadata(info.Metadata)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := records[:0]
	for i, rec := range records {
		if !gone[i] {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (p *ObjectStorage) Read(ctx context.Context, rec Record) (io.ReadCloser, error) {
	body, err := p.client.GetObject(ctx, &s3client.GetObjectRequest{
		Bucket: p.bucket,
		Key:    p.objectKey(rec),
	})
	if err != nil {
		return nil, newError(ErrTransfer, "read", rec.Key, err)
	}
	return body, nil
}

func (p *ObjectStorage) ReadRange(ctx context.Context, rec Record, off, length int64) (io.ReadCloser, error) {
	body, err := p.client.GetObject(ctx, &s3client.GetObjectRequest{
		Bucket: p.bucket,
		Key:    p.objectKey(rec),
		Offset: off,
		Length: length,
	})
	if err != nil {
		return nil, newError(ErrTransfer, "read range", rec.Key, err)
	}
	return body, nil
}

func (p *ObjectStorage) Write(ctx context.Context, rec Record, r io.Reader, overwrite bool) error {
	localKey := p.resolveLocalKey(rec.Key)

	if !overwrite {
		_, err := p.client.HeadObject(ctx, &s3client.HeadObjectRequest{
			Bucket: p.bucket,
			Key:    localKey,
		})
		if err == nil {
			return newError(ErrConflict, "write", rec.Key, nil)
		}
		if !errors.Is(err, s3client.ErrNotFound) {
			return newError(ErrTransfer, "write", rec.Key, err)
		}
	}

	body := r
	if _, ok := r.(io.Seeker); !ok {
		body = io.LimitReader(r, rec.Size)
	}

	err := p.client.PutObject(ctx, &s3client.PutObjectRequest{
		Bucket:      p.bucket,
		Key:         localKey,
		Body:        body,
		Size:        rec.Size,
		ContentType: guessContentType(rec.Key),
		Metadata: map[string]string{
			TimestampMetadataKey: FormatTimestamp(rec.Timestamp),
		},
		IfNoneMatch: !overwrite,
	})
	if err != nil {
		if errors.Is(err, s3client.ErrPreconditionFailed) {
			return newError(ErrConflict, "write", rec.Key, nil)
		}
		return newError(ErrTransfer, "write", rec.Key, err)
	}

	return nil
}

func (p *ObjectStorage) Delete(ctx context.Context, rec Record) error {
	err := p.client.DeleteObject(ctx, &s3client.DeleteObjectRequest{
		Bucket: p.bucket,
		Key:    p.objectKey(rec),
	})
	if err != nil {
		return newError(ErrDelete, "delete", rec.Key, err)
	}
	return nil
}

func (p *ObjectStorage) resolveLocalKey(key string) string {
	return s3client.JoinKey(p.root, sanitizeObjectKey(key))
}

// objectKey addresses an existing object. Listed records carry their exact
// object key in LocalKey; others are resolved from Key.
func (p *ObjectStorage) objectKey(rec Record) string {
	if rec.LocalKey != "" {
		return rec.LocalKey
	}
	return p.resolveLocalKey(rec.Key)
}

// sanitizeObjectKey trims whitespace and leading slashes. Backslashes are
// legal in object keys and are kept.
func sanitizeObjectKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimLeft(key, "/")
	return strings.TrimSpace(key)
}

func (p *ObjectStorage) location(key string) string {
	return "s3://" + p.bucket + "/" + key
}

// FormatTimestamp encodes t for the timestamp metadata field.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// TimestampFromMetadata decodes the timestamp metadata field, falling back
// to Epoch when it is missing or malformed.
func TimestampFromMetadata(metadata map[string]string) time.Time {
	for k, v := range metadata {
		if !strings.EqualFold(k, TimestampMetadataKey) {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Epoch
		}
		return ts.UTC()
	}
	return Epoch
}

func guessContentType(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}

var (
	_ Provider    = (*ObjectStorage)(nil)
	_ RangeReader = (*ObjectStorage)(nil)
)
