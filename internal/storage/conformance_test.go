package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mistware/files/internal/storage"
	"github.com/mistware/files/internal/storage/local"
	"github.com/mistware/files/internal/storage/remote"
)

// testLog is 37 bytes long.
const testLog = "2024-01-02 10:00:00 INFO started ok\n\n"

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()

	lb, err := local.New(local.Config{RootPath: t.TempDir()})
	require.NoError(t, err)

	rb, err := remote.New(context.Background(),
		remote.NewMemoryShare("conformance", remote.WithCopyLatency(2)),
		remote.Options{PollInterval: remote.Duration(time.Millisecond), CopyTimeout: remote.Duration(time.Second)},
	)
	require.NoError(t, err)

	return map[string]storage.Backend{"local": lb, "remote": rb}
}

func TestBackendConformance(t *testing.T) {
	require.Len(t, testLog, 37)

	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			s := storage.NewSession(b)

			// Upload into Test1
			require.NoError(t, s.MakeDirectory(ctx, "Test1"))
			require.NoError(t, s.FileUpload(ctx, "Test.log", bytes.NewReader([]byte(testLog))))

			entries, err := s.FileList(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "Test.log", entries[0].Name)
			assert.Equal(t, uint64(37), entries[0].Length)

			length, err := s.FileLength(ctx, "Test.log")
			require.NoError(t, err)
			assert.Equal(t, int64(37), length)

			// Copy into Test2 and read it back from there
			require.NoError(t, s.MakeDirectory(ctx, "Test2"))
			require.NoError(t, s.ChangeDirectory(ctx, "Test1"))
			require.NoError(t, s.FileCopy(ctx, "Test.log", "Test2"))

			require.NoError(t, s.ChangeDirectory(ctx, "Test2"))
			copied, err := s.FileDownloadBytes(ctx, "Test.log")
			require.NoError(t, err)
			assert.Equal(t, []byte(testLog), copied)

			// Delete from Test1
			require.NoError(t, s.ChangeDirectory(ctx, "Test1"))
			require.NoError(t, s.FileDelete(ctx, "Test.log"))
			exists, err := s.FileExists(ctx, "Test.log")
			require.NoError(t, err)
			assert.False(t, exists)
			assert.ErrorIs(t, s.FileDelete(ctx, "Test.log"), storage.ErrNotFound)

			// Download to a local path, refusing to overwrite
			require.NoError(t, s.ChangeDirectory(ctx, "Test2"))
			out := t.TempDir()
			require.NoError(t, s.FileDownloadToPath(ctx, "Test.log", out))
			onDisk, err := os.ReadFile(filepath.Join(out, "Test.log"))
			require.NoError(t, err)
			assert.Equal(t, testLog, string(onDisk))
			assert.ErrorIs(t, s.FileDownloadToPath(ctx, "Test.log", out), storage.ErrAlreadyExists)

			// Clean up; the second delete is not idempotent
			require.NoError(t, s.FileDelete(ctx, "Test.log"))
			require.NoError(t, s.DeleteDirectory(ctx, "Test2"))
			require.NoError(t, s.DeleteDirectory(ctx, "Test1"))
			assert.ErrorIs(t, s.DeleteDirectory(ctx, "Test1"), storage.ErrNotFound)
		})
	}
}

func TestBackendUploadDownloadBinary(t *testing.T) {
	payload := make([]byte, 3*4096+17)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			s := storage.NewSession(b)
			require.NoError(t, s.MakeDirectory(ctx, "bin"))
			require.NoError(t, s.FileUpload(ctx, "blob.dat", bytes.NewReader(payload)))

			var buf bytes.Buffer
			require.NoError(t, s.FileDownload(ctx, "blob.dat", &buf))
			assert.Equal(t, payload, buf.Bytes())

			length, err := s.FileLength(ctx, "blob.dat")
			require.NoError(t, err)
			assert.Equal(t, int64(len(payload)), length)
		})
	}
}

func TestBackendCopyRefusesExistingTarget(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			s := storage.NewSession(b)
			require.NoError(t, s.MakeDirectory(ctx, "b"))
			require.NoError(t, s.FileUpload(ctx, "x.txt", bytes.NewReader([]byte("old"))))
			require.NoError(t, s.MakeDirectory(ctx, "a"))
			require.NoError(t, s.FileUpload(ctx, "x.txt", bytes.NewReader([]byte("new"))))

			assert.ErrorIs(t, s.FileCopy(ctx, "x.txt", "b"), storage.ErrAlreadyExists)

			require.NoError(t, s.ChangeDirectory(ctx, "b"))
			data, err := s.FileDownloadBytes(ctx, "x.txt")
			require.NoError(t, err)
			assert.Equal(t, "old", string(data))
		})
	}
}

func TestBackendSessionsAreIndependent(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			s1 := storage.NewSession(b)
			s2 := storage.NewSession(b)
			require.NoError(t, s1.MakeDirectory(ctx, "one"))
			require.NoError(t, s2.MakeDirectory(ctx, "two"))

			assert.Equal(t, "one", s1.CurrentDirectory())
			assert.Equal(t, "two", s2.CurrentDirectory())
		})
	}
}
