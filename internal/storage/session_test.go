package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend that counts every call it serves.
type fakeBackend struct {
	mu    sync.Mutex
	dirs  map[string]map[string][]byte
	calls int
	fail  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{dirs: make(map[string]map[string][]byte)}
}

func (f *fakeBackend) enter() error {
	f.mu.Lock()
	f.calls++
	return f.fail
}

func (f *fakeBackend) DirExists(_ context.Context, dir string) (bool, error) {
	err := f.enter()
	defer f.mu.Unlock()
	_, ok := f.dirs[dir]
	return ok, err
}

func (f *fakeBackend) MakeDir(_ context.Context, dir string) error {
	if err := f.enter(); err != nil {
		f.mu.Unlock()
		return err
	}
	defer f.mu.Unlock()
	f.dirs[dir] = map[string][]byte{}
	return nil
}

func (f *fakeBackend) RemoveDir(_ context.Context, dir string) error {
	if err := f.enter(); err != nil {
		f.mu.Unlock()
		return err
	}
	defer f.mu.Unlock()
	delete(f.dirs, dir)
	return nil
}

func (f *fakeBackend) FileExists(_ context.Context, dir, name string) (bool, error) {
	err := f.enter()
	defer f.mu.Unlock()
	_, ok := f.dirs[dir][name]
	return ok, err
}

func (f *fakeBackend) FileLength(_ context.Context, dir, name string) (int64, error) {
	f.enter()
	defer f.mu.Unlock()
	data, ok := f.dirs[dir][name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return int64(len(data)), nil
}

func (f *fakeBackend) DeleteFile(_ context.Context, dir, name string) error {
	f.enter()
	defer f.mu.Unlock()
	delete(f.dirs[dir], name)
	return nil
}

func (f *fakeBackend) ListFiles(_ context.Context, dir string) ([]DirectoryEntry, error) {
	f.enter()
	defer f.mu.Unlock()
	var out []DirectoryEntry
	for name, data := range f.dirs[dir] {
		out = append(out, DirectoryEntry{Name: name, Length: uint64(len(data))})
	}
	return out, nil
}

func (f *fakeBackend) CopyFile(_ context.Context, dir, name, targetDir string) error {
	f.enter()
	defer f.mu.Unlock()
	f.dirs[targetDir][name] = bytes.Clone(f.dirs[dir][name])
	return nil
}

func (f *fakeBackend) PutFile(_ context.Context, dir, name string, body io.Reader, _ int64) error {
	if err := f.enter(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[dir][name] = data
	return nil
}

func (f *fakeBackend) GetFile(_ context.Context, dir, name string, w io.Writer) (int64, error) {
	f.enter()
	data := bytes.Clone(f.dirs[dir][name])
	f.mu.Unlock()
	n, err := w.Write(data)
	return int64(n), err
}

func (f *fakeBackend) Location() string { return "fake://root" }
func (f *fakeBackend) Type() string     { return "fake" }
func (f *fakeBackend) Close() error     { return nil }

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Test.log", true},
		{"report 2024.pdf", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
		{"../etc/passwd", false},
		{"nul\x00byte", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidName(tt.name))
		})
	}
}

func TestInvalidNamesNeverReachBackend(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	fb.dirs["docs"] = map[string][]byte{}
	s := NewSession(fb)
	s.current = "docs"

	ops := map[string]func(name string) error{
		"FileExists": func(n string) error { _, err := s.FileExists(ctx, n); return err },
		"FileLength": func(n string) error { _, err := s.FileLength(ctx, n); return err },
		"FileDelete": func(n string) error { return s.FileDelete(ctx, n) },
		"FileCopy":   func(n string) error { return s.FileCopy(ctx, n, "other") },
		"FileUpload": func(n string) error { return s.FileUpload(ctx, n, strings.NewReader("x")) },
		"FileDownload": func(n string) error {
			return s.FileDownload(ctx, n, io.Discard)
		},
		"FileDownloadToPath": func(n string) error { return s.FileDownloadToPath(ctx, n, t.TempDir()) },
		"MakeDirectory":      func(n string) error { return s.MakeDirectory(ctx, n) },
		"DeleteDirectory":    func(n string) error { return s.DeleteDirectory(ctx, n) },
		"ChangeDirectory":    func(n string) error { return s.ChangeDirectory(ctx, n) },
	}

	for op, fn := range ops {
		for _, name := range []string{"../secret.txt", "a/b.txt", `a\b.txt`, ".."} {
			t.Run(op+" "+name, func(t *testing.T) {
				before := fb.callCount()
				err := fn(name)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidName)
				assert.Equal(t, before, fb.callCount(), "backend was contacted")
			})
		}
	}
}

func TestFileOpsRequireCurrentDirectory(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	s := NewSession(fb)

	_, err := s.FileExists(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.FileLength(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.FileDelete(ctx, "a.txt"), ErrNotReady)
	_, err = s.FileList(ctx)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.FileUpload(ctx, "a.txt", strings.NewReader("x")), ErrNotReady)
	assert.ErrorIs(t, s.FileDownload(ctx, "a.txt", io.Discard), ErrNotReady)
	assert.ErrorIs(t, s.FileCopy(ctx, "a.txt", "b"), ErrNotReady)
	assert.Zero(t, fb.callCount())
}

func TestMakeAndChangeDirectory(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newFakeBackend())

	require.NoError(t, s.MakeDirectory(ctx, "one"))
	assert.Equal(t, "one", s.CurrentDirectory())
	require.NoError(t, s.MakeDirectory(ctx, "two"))
	assert.Equal(t, "two", s.CurrentDirectory())

	require.NoError(t, s.ChangeDirectory(ctx, "one"))
	assert.Equal(t, "one", s.CurrentDirectory())

	err := s.ChangeDirectory(ctx, "never")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "one", s.CurrentDirectory(), "failed change must keep the current directory")

	err = s.MakeDirectory(ctx, "two")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, "one", s.CurrentDirectory())
}

func TestDeleteDirectory(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newFakeBackend())
	require.NoError(t, s.MakeDirectory(ctx, "keep"))
	require.NoError(t, s.MakeDirectory(ctx, "drop"))
	require.NoError(t, s.ChangeDirectory(ctx, "keep"))

	require.NoError(t, s.DeleteDirectory(ctx, "drop"))
	assert.Equal(t, "keep", s.CurrentDirectory())
	assert.ErrorIs(t, s.DeleteDirectory(ctx, "drop"), ErrNotFound)

	require.NoError(t, s.DeleteDirectory(ctx, "keep"))
	assert.Empty(t, s.CurrentDirectory())
}

func TestFileCopyChecks(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newFakeBackend())
	require.NoError(t, s.MakeDirectory(ctx, "dst"))
	require.NoError(t, s.MakeDirectory(ctx, "src"))
	require.NoError(t, s.FileUpload(ctx, "a.txt", strings.NewReader("abc")))

	assert.ErrorIs(t, s.FileCopy(ctx, "missing.txt", "dst"), ErrNotFound)
	assert.ErrorIs(t, s.FileCopy(ctx, "a.txt", "nowhere"), ErrNotFound)

	require.NoError(t, s.FileCopy(ctx, "a.txt", "dst"))
	assert.ErrorIs(t, s.FileCopy(ctx, "a.txt", "dst"), ErrAlreadyExists)
}

func TestUploadOverwritesDownloadToPathRefuses(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newFakeBackend())
	require.NoError(t, s.MakeDirectory(ctx, "docs"))

	require.NoError(t, s.FileUpload(ctx, "a.txt", strings.NewReader("first")))
	require.NoError(t, s.FileUpload(ctx, "a.txt", strings.NewReader("second!")))
	data, err := s.FileDownloadBytes(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second!", string(data))

	dir := t.TempDir()
	require.NoError(t, s.FileDownloadToPath(ctx, "a.txt", dir))
	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second!", string(got))

	err = s.FileDownloadToPath(ctx, "a.txt", dir)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestFileDownloadToPathMissingFileLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newFakeBackend())
	require.NoError(t, s.MakeDirectory(ctx, "docs"))

	dir := t.TempDir()
	assert.ErrorIs(t, s.FileDownloadToPath(ctx, "ghost.txt", dir), ErrNotFound)
	_, err := os.Stat(filepath.Join(dir, "ghost.txt"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestBackendFailureCarriesContext(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend()
	s := NewSession(fb)
	require.NoError(t, s.MakeDirectory(ctx, "docs"))

	cause := errors.New("connection reset")
	fb.fail = cause
	err := s.FileUpload(ctx, "a.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrBackendFailure, KindOf(err))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "a.txt", se.Name)
	assert.Equal(t, "fake://root/docs", se.Location)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFileLengthMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewSession(newFakeBackend())
	require.NoError(t, s.MakeDirectory(ctx, "docs"))

	_, err := s.FileLength(ctx, "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReaderSize(t *testing.T) {
	assert.Equal(t, int64(3), readerSize(strings.NewReader("abc")))
	assert.Equal(t, int64(4), readerSize(bytes.NewReader([]byte("abcd"))))
	assert.Equal(t, int64(-1), readerSize(io.MultiReader(strings.NewReader("x"))))

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(3), readerSize(f))
}
