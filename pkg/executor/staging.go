package executor

import (
	"fmt"

	"github.com/spf13/afero"
)

// stagingBuffer holds one payload between the source read and the
// destination write.
type stagingBuffer struct {
	fs   afero.Fs
	file afero.File
}

// stage returns a buffer for a payload of size bytes: in memory up to the
// staging threshold, on disk above it. The buffer is preallocated so range
// writes may land in any order.
func (e *Executor) stage(size int64) (*stagingBuffer, error) {
	fs, dir := e.opts.TempFs, e.opts.TempDir
	if size <= e.opts.StagingThreshold {
		fs, dir = afero.NewMemMapFs(), ""
	}

	file, err := afero.TempFile(fs, dir, "mirrorsync-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	buf := &stagingBuffer{fs: fs, file: file}
	if size > 0 {
		if err := file.Truncate(size); err != nil {
			buf.release()
			return nil, fmt.Errorf("failed to allocate staging file: %w", err)
		}
	}
	return buf, nil
}

// release closes and removes the staging file. Errors are ignored.
func (b *stagingBuffer) release() {
	_ = b.file.Close()
	_ = b.fs.Remove(b.file.Name())
}
