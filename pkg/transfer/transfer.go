// Package transfer fetches large objects as concurrent byte ranges and
// reassembles them into a single seekable destination.
package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/yuya-takeyama/mirrorsync/pkg/pool"
	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
)

const (
	DefaultChunkSize   = 1 << 20
	DefaultConcurrency = 4
)

// Range is a contiguous byte span [Offset, Offset+Length).
type Range struct {
	Offset int64
	Length int64
}

// SplitRanges cuts [0, size) into chunk-sized ranges. The final range holds
// the remainder.
func SplitRanges(size, chunk int64) []Range {
	if size <= 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	ranges := make([]Range, 0, (size+chunk-1)/chunk)
	for off := int64(0); off < size; off += chunk {
		ranges = append(ranges, Range{
			Offset: off,
			Length: min(chunk, size-off),
		})
	}
	return ranges
}

type Options struct {
	ChunkSize   int64
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Flusher is implemented by destinations that buffer writes.
type Flusher interface {
	Flush() error
}

// ParallelRead copies rec from src into dst by fetching its ranges on a
// dedicated pool. Ranges may finish in any order: each one seeks dst to its
// own offset, and the seek and write happen under a lock shared by all
// ranges of this call.
//
// ctx is checked before each range is started. Ranges already started are
// not interrupted, so a cancelled call returns ctx.Err() once they finish
// and leaves dst partially written.
func ParallelRead(ctx context.Context, src storage.RangeReader, rec storage.Record, dst io.WriteSeeker, opts Options) error {
	opts = opts.withDefaults()
	ranges := SplitRanges(rec.Size, opts.ChunkSize)
	mu := NewMutex()

	ioCtx := context.WithoutCancel(ctx)
	return pool.New(opts.Concurrency).Run(ctx, len(ranges), func(_ context.Context, i int) error {
		r := ranges[i]

		buf, err := fetchRange(ioCtx, src, rec, r)
		if err != nil {
			return err
		}

		unlock, err := mu.Lock(ioCtx)
		if err != nil {
			return err
		}
		defer unlock()

		if _, err := dst.Seek(r.Offset, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to %d: %w", r.Offset, err)
		}
		if _, err := dst.Write(buf); err != nil {
			return fmt.Errorf("failed to write range %d-%d: %w", r.Offset, r.Offset+r.Length-1, err)
		}
		if f, ok := dst.(Flusher); ok {
			if err := f.Flush(); err != nil {
				return fmt.Errorf("failed to flush range %d-%d: %w", r.Offset, r.Offset+r.Length-1, err)
			}
		}
		return nil
	})
}

// fetchRange reads exactly r.Length bytes of the range. Bytes past the
// expected length are discarded; a short body is an error.
func fetchRange(ctx context.Context, src storage.RangeReader, rec storage.Record, r Range) ([]byte, error) {
	body, err := src.ReadRange(ctx, rec, r.Offset, r.Length)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	buf := make([]byte, r.Length)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, fmt.Errorf("failed to read range %d-%d of %s: %w", r.Offset, r.Offset+r.Length-1, rec.Key, err)
	}
	return buf, nil
}
