package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := New(Config{RootPath: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestNew(t *testing.T) {
	root := t.TempDir()

	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{RootPath: filepath.Join(root, "missing")})
	assert.Error(t, err)

	b, err := New(Config{RootPath: filepath.Join(root, "created"), CreateDirs: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "created"), b.Location())
	assert.Equal(t, "local", b.Type())

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Config{RootPath: file})
	assert.Error(t, err)
}

func TestNewFromJSON(t *testing.T) {
	root := t.TempDir()
	raw, err := json.Marshal(Config{RootPath: root})
	require.NoError(t, err)

	b, err := NewFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, root, b.Location())

	_, err = NewFromJSON(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestDirectories(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	ok, err := b.DirExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.MakeDir(ctx, "docs"))
	ok, err = b.DirExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, b.MakeDir(ctx, "docs"), fs.ErrExist)

	require.NoError(t, b.PutFile(ctx, "docs", "a.txt", strings.NewReader("a"), 1))
	assert.Error(t, b.RemoveDir(ctx, "docs"), "non-empty directory must not be removed")

	require.NoError(t, b.DeleteFile(ctx, "docs", "a.txt"))
	require.NoError(t, b.RemoveDir(ctx, "docs"))
	assert.ErrorIs(t, b.RemoveDir(ctx, "docs"), fs.ErrNotExist)
}

func TestPutFileOverwritesAndCleansUp(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.MakeDir(ctx, "docs"))

	require.NoError(t, b.PutFile(ctx, "docs", "a.txt", strings.NewReader("first version"), -1))
	require.NoError(t, b.PutFile(ctx, "docs", "a.txt", strings.NewReader("second"), -1))

	var buf bytes.Buffer
	n, err := b.GetFile(ctx, "docs", "a.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, "second", buf.String())

	names, err := os.ReadDir(b.fullPath("docs"))
	require.NoError(t, err)
	require.Len(t, names, 1, "temp files must not be left behind")
}

func TestListFilesSkipsDirectoriesAndTempFiles(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.MakeDir(ctx, "docs"))
	require.NoError(t, b.PutFile(ctx, "docs", "a.txt", strings.NewReader("abc"), 3))
	require.NoError(t, os.Mkdir(filepath.Join(b.fullPath("docs"), "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.fullPath("docs"), tempPrefix+"x.tmp"), []byte("zz"), 0o644))

	entries, err := b.ListFiles(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, uint64(3), entries[0].Length)

	_, err = b.ListFiles(ctx, "missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCopyFile(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.MakeDir(ctx, "src"))
	require.NoError(t, b.MakeDir(ctx, "dst"))
	require.NoError(t, b.PutFile(ctx, "src", "a.txt", strings.NewReader("payload"), 7))

	require.NoError(t, b.CopyFile(ctx, "src", "a.txt", "dst"))
	got, err := os.ReadFile(b.filePath("dst", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	assert.ErrorIs(t, b.CopyFile(ctx, "src", "a.txt", "dst"), fs.ErrExist)
	assert.ErrorIs(t, b.CopyFile(ctx, "src", "missing.txt", "dst"), fs.ErrNotExist)
}

func TestFileExistsIgnoresDirectories(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.MakeDir(ctx, "docs"))
	require.NoError(t, os.Mkdir(b.filePath("docs", "inner"), 0o755))

	ok, err := b.FileExists(ctx, "docs", "inner")
	require.NoError(t, err)
	assert.False(t, ok)
}

type closeRecorder struct {
	io.Reader
	io.Writer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestStreamCopyClosesBothEnds(t *testing.T) {
	data := bytes.Repeat([]byte("x"), copyBufferSize*2+10)
	src := &closeRecorder{Reader: bytes.NewReader(data)}
	var out bytes.Buffer
	dst := &closeRecorder{Writer: &out}

	n, err := streamCopy(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
	assert.True(t, src.closed)
	assert.True(t, dst.closed)
}

func TestStreamCopyClosesOnFailure(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("abc")}
	dst := &closeRecorder{Writer: failingWriter{}}

	_, err := streamCopy(src, dst)
	assert.EqualError(t, err, "disk full")
	assert.True(t, src.closed)
	assert.True(t, dst.closed)
}
