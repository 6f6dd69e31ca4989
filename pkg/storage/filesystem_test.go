package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemFileSystem(t *testing.T, files map[string]string) (*FileSystem, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, "/data/"+name, []byte(content), 0o644))
	}
	return NewFileSystemFs(fsys, "/data"), fsys
}

func keysOf(records []Record) []string {
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key)
	}
	return keys
}

func TestFileSystemList(t *testing.T) {
	p, _ := newMemFileSystem(t, map[string]string{
		"b.txt":          "bb",
		"a/b.txt":        "ab",
		"a.txt":          "a",
		"docs/readme.md": "# readme",
		"docs/x/y.md":    "y",
	})

	records, err := p.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "a/b.txt", "b.txt", "docs/readme.md", "docs/x/y.md"}, keysOf(records))

	for _, rec := range records {
		assert.Equal(t, time.UTC, rec.Timestamp.Location(), rec.Key)
		if rec.Key == "docs/readme.md" {
			assert.Equal(t, int64(8), rec.Size)
			assert.Equal(t, "/data/docs/readme.md", rec.LocalKey)
		}
	}

	records, err = p.List(context.Background(), "/docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/readme.md", "docs/x/y.md"}, keysOf(records))
}

func TestFileSystemListMissingRoot(t *testing.T) {
	p := NewFileSystemFs(afero.NewMemMapFs(), "/nowhere")

	records, err := p.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileSystemListCancelled(t *testing.T) {
	p, _ := newMemFileSystem(t, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrListing)
}

func TestFileSystemWrite(t *testing.T) {
	p, fsys := newMemFileSystem(t, nil)
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	rec := Record{Key: "nested/dir/file.txt", Size: 5, Timestamp: ts}

	require.NoError(t, p.Write(context.Background(), rec, strings.NewReader("hello"), false))

	data, err := afero.ReadFile(fsys, "/data/nested/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	records, err := p.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(5), records[0].Size)
	assert.True(t, records[0].Timestamp.Equal(ts), "timestamp = %v, want %v", records[0].Timestamp, ts)
}

func TestFileSystemWriteConflict(t *testing.T) {
	p, fsys := newMemFileSystem(t, map[string]string{"a.txt": "old"})
	rec := Record{Key: "a.txt", Size: 3, Timestamp: time.Now()}

	err := p.Write(context.Background(), rec, strings.NewReader("new"), false)
	require.ErrorIs(t, err, ErrConflict)

	data, _ := afero.ReadFile(fsys, "/data/a.txt")
	assert.Equal(t, "old", string(data))

	require.NoError(t, p.Write(context.Background(), rec, strings.NewReader("new"), true))
	data, _ = afero.ReadFile(fsys, "/data/a.txt")
	assert.Equal(t, "new", string(data))
}

func TestFileSystemWriteShortStream(t *testing.T) {
	p, _ := newMemFileSystem(t, nil)
	rec := Record{Key: "short.bin", Size: 10}

	err := p.Write(context.Background(), rec, bytes.NewReader([]byte("abc")), true)
	require.ErrorIs(t, err, ErrTransfer)
}

func TestFileSystemRead(t *testing.T) {
	p, _ := newMemFileSystem(t, map[string]string{"dir/a.txt": "content"})

	rc, err := p.Read(context.Background(), Record{Key: "dir/a.txt", Size: 7})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	_, err = p.Read(context.Background(), Record{Key: "missing.txt"})
	assert.ErrorIs(t, err, ErrTransfer)
}

func TestFileSystemReadRange(t *testing.T) {
	p, _ := newMemFileSystem(t, map[string]string{"digits.txt": "0123456789"})
	rec := Record{Key: "digits.txt", Size: 10}

	rc, err := p.ReadRange(context.Background(), rec, 3, 4)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "3456", string(data))

	// the final range is cut at the end of the file
	rc, err = p.ReadRange(context.Background(), rec, 8, 4)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "89", string(data))
}

func TestFileSystemDeleteIsIdempotent(t *testing.T) {
	p, fsys := newMemFileSystem(t, map[string]string{"a.txt": "a"})
	rec := Record{Key: "a.txt"}

	require.NoError(t, p.Delete(context.Background(), rec))
	exists, _ := afero.Exists(fsys, "/data/a.txt")
	assert.False(t, exists)

	assert.NoError(t, p.Delete(context.Background(), rec))
}

func TestFileSystemRejectsKeysOutsideRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/secret.txt", []byte("secret"), 0o644))
	p := NewFileSystemFs(fsys, "/data/dst")

	keys := []string{"../../etc/evil", "../secret.txt", `..\secret.txt`, "a/../../secret.txt", "", "."}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			rec := Record{Key: key, Size: 4}

			err := p.Write(context.Background(), rec, strings.NewReader("evil"), true)
			assert.ErrorIs(t, err, ErrTransfer)

			_, err = p.Read(context.Background(), rec)
			assert.ErrorIs(t, err, ErrTransfer)

			_, err = p.ReadRange(context.Background(), rec, 0, 1)
			assert.ErrorIs(t, err, ErrTransfer)

			err = p.Delete(context.Background(), rec)
			assert.ErrorIs(t, err, ErrDelete)
		})
	}

	exists, _ := afero.Exists(fsys, "/etc/evil")
	assert.False(t, exists)
	data, err := afero.ReadFile(fsys, "/data/secret.txt")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))

	// dots inside a name stay below the root
	require.NoError(t, p.Write(context.Background(), Record{Key: "a/..b/c..txt", Size: 2}, strings.NewReader("ok"), false))
	exists, _ = afero.Exists(fsys, "/data/dst/a/..b/c..txt")
	assert.True(t, exists)
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.txt", "a.txt"},
		{"/a.txt", "a.txt"},
		{"  //dir/a.txt ", "dir/a.txt"},
		{`dir\sub\a.txt`, "dir/sub/a.txt"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeKey(tt.in), "SanitizeKey(%q)", tt.in)
	}
}
