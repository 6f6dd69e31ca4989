package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FileSystem is a Provider rooted at a directory. Timestamps are the native
// file modification times.
type FileSystem struct {
	fs   afero.Fs
	root string
}

// NewFileSystem returns a provider rooted at root on the local disk.
func NewFileSystem(root string) *FileSystem {
	return NewFileSystemFs(afero.NewOsFs(), root)
}

// NewFileSystemFs returns a provider rooted at root on the given afero.Fs.
func NewFileSystemFs(fsys afero.Fs, root string) *FileSystem {
	return &FileSystem{
		fs:   fsys,
		root: filepath.Clean(root),
	}
}

func (p *FileSystem) List(ctx context.Context, prefix string) ([]Record, error) {
	prefix = SanitizeKey(prefix)

	exists, err := afero.DirExists(p.fs, p.root)
	if err != nil {
		return nil, newError(ErrListing, "list", p.root, err)
	}
	if !exists {
		return []Record{}, nil
	}

	records := []Record{}
	err = afero.Walk(p.fs, p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}

		key := SanitizeKey(filepath.ToSlash(relPath))
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		records = append(records, Record{
			Key:       key,
			LocalKey:  path,
			Size:      info.Size(),
			Timestamp: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, newError(ErrListing, "list", p.root, err)
	}

	// Walk order is per directory, not per full key ("a/b" sorts after "a.txt").
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})

	return records, nil
}

func (p *FileSystem) Read(ctx context.Context, rec Record) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := p.resolvePath(rec.Key)
	if err != nil {
		return nil, newError(ErrTransfer, "read", rec.Key, err)
	}

	file, err := p.fs.Open(path)
	if err != nil {
		return nil, newError(ErrTransfer, "read", rec.Key, err)
	}
	return file, nil
}

// ReadRange returns length bytes of the file starting at off.
func (p *FileSystem) ReadRange(ctx context.Context, rec Record, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := p.resolvePath(rec.Key)
	if err != nil {
		return nil, newError(ErrTransfer, "read range", rec.Key, err)
	}

	file, err := p.fs.Open(path)
	if err != nil {
		return nil, newError(ErrTransfer, "read range", rec.Key, err)
	}
	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(file, off, length),
		file:          file,
	}, nil
}

type sectionReadCloser struct {
	*io.SectionReader
	file afero.File
}

func (s *sectionReadCloser) Close() error {
	return s.file.Close()
}

func (p *FileSystem) Write(ctx context.Context, rec Record, r io.Reader, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := p.resolvePath(rec.Key)
	if err != nil {
		return newError(ErrTransfer, "write", rec.Key, err)
	}
	if err := p.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return newError(ErrTransfer, "write", rec.Key, fmt.Errorf("create parent directory: %w", err))
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	file, err := p.fs.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return newError(ErrConflict, "write", rec.Key, nil)
		}
		return newError(ErrTransfer, "write", rec.Key, err)
	}

	if _, err := io.CopyN(file, r, rec.Size); err != nil {
		file.Close()
		return newError(ErrTransfer, "write", rec.Key, err)
	}
	if err := file.Close(); err != nil {
		return newError(ErrTransfer, "write", rec.Key, err)
	}

	if err := p.fs.Chtimes(path, rec.Timestamp, rec.Timestamp); err != nil {
		return newError(ErrTransfer, "write", rec.Key, fmt.Errorf("set modification time: %w", err))
	}

	return nil
}

func (p *FileSystem) Delete(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := p.resolvePath(rec.Key)
	if err != nil {
		return newError(ErrDelete, "delete", rec.Key, err)
	}

	err = p.fs.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return newError(ErrDelete, "delete", rec.Key, err)
	}
	return nil
}

// errOutsideRoot is returned for keys that do not name a file below the root,
// such as "../x" or "".
var errOutsideRoot = errors.New("key does not resolve to a file under the root")

func (p *FileSystem) resolvePath(key string) (string, error) {
	path := filepath.Join(p.root, filepath.FromSlash(SanitizeKey(key)))

	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return path, nil
}

var (
	_ Provider    = (*FileSystem)(nil)
	_ RangeReader = (*FileSystem)(nil)
)
