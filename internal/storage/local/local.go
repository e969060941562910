// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mistware/files/internal/storage"
)

const (
	// copyBufferSize is the chunk size of streamCopy.
	copyBufferSize = 4096

	tempPrefix = ".mistware-"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// LocalBackend implements storage.Backend using a directory on the local
// filesystem. Each storage directory is a subdirectory of the root.
type LocalBackend struct {
	rootPath string
}

var _ storage.Backend = (*LocalBackend)(nil)

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &LocalBackend{rootPath: filepath.Clean(cfg.RootPath)}, nil
}

// NewFromJSON creates a LocalBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// fullPath returns the path of dir below the root.
func (b *LocalBackend) fullPath(dir string) string {
	return filepath.Join(b.rootPath, dir)
}

func (b *LocalBackend) filePath(dir, name string) string {
	return filepath.Join(b.rootPath, dir, name)
}

// DirExists reports whether dir exists below the root.
func (b *LocalBackend) DirExists(_ context.Context, dir string) (bool, error) {
	info, err := os.Stat(b.fullPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat dir %s: %w", dir, err)
	}
	return info.IsDir(), nil
}

// MakeDir creates dir below the root.
func (b *LocalBackend) MakeDir(_ context.Context, dir string) error {
	if err := os.Mkdir(b.fullPath(dir), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// RemoveDir deletes dir. It fails if dir is not empty.
func (b *LocalBackend) RemoveDir(_ context.Context, dir string) error {
	if err := os.Remove(b.fullPath(dir)); err != nil {
		return fmt.Errorf("rmdir %s: %w", dir, err)
	}
	return nil
}

// FileExists reports whether a regular file name exists in dir.
func (b *LocalBackend) FileExists(_ context.Context, dir, name string) (bool, error) {
	info, err := os.Stat(b.filePath(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

// FileLength returns the size of name in dir.
func (b *LocalBackend) FileLength(_ context.Context, dir, name string) (int64, error) {
	info, err := os.Stat(b.filePath(dir, name))
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.Size(), nil
}

// DeleteFile removes name from dir.
func (b *LocalBackend) DeleteFile(_ context.Context, dir, name string) error {
	if err := os.Remove(b.filePath(dir, name)); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// ListFiles returns the regular files in dir. Each length is resolved with
// its own stat call.
func (b *LocalBackend) ListFiles(ctx context.Context, dir string) ([]storage.DirectoryEntry, error) {
	dirEntries, err := os.ReadDir(b.fullPath(dir))
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	entries := make([]storage.DirectoryEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		n, err := b.FileLength(ctx, dir, de.Name())
		if err != nil {
			return nil, err
		}
		entries = append(entries, storage.DirectoryEntry{Name: de.Name(), Length: uint64(n)})
	}
	return entries, nil
}

// CopyFile copies name from dir into targetDir by streaming it into a newly
// created file. An existing target file is never replaced.
func (b *LocalBackend) CopyFile(_ context.Context, dir, name, targetDir string) error {
	src, err := os.Open(b.filePath(dir, name))
	if err != nil {
		return fmt.Errorf("open src %s: %w", name, err)
	}

	dstPath := b.filePath(targetDir, name)
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		src.Close()
		return fmt.Errorf("create %s in %s: %w", name, targetDir, err)
	}

	if _, err := streamCopy(src, dst); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("copy %s -> %s: %w", dir, targetDir, err)
	}
	return nil
}

// PutFile writes body to name in dir through a temp file renamed over the
// target, so an existing file is replaced whole.
func (b *LocalBackend) PutFile(_ context.Context, dir, name string, body io.Reader, _ int64) error {
	tmp, err := os.CreateTemp(b.fullPath(dir), tempPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	tmp.Chmod(0644)

	if _, err := streamCopy(io.NopCloser(body), tmp); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := os.Rename(tmpName, b.filePath(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}

// GetFile streams name from dir to w.
func (b *LocalBackend) GetFile(_ context.Context, dir, name string, w io.Writer) (int64, error) {
	f, err := os.Open(b.filePath(dir, name))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	n, err := streamCopy(f, nopWriteCloser{w})
	if err != nil {
		return n, fmt.Errorf("read %s: %w", name, err)
	}
	return n, nil
}

// Location returns the root path.
func (b *LocalBackend) Location() string { return b.rootPath }

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

// streamCopy copies from src to dst in fixed-size chunks, writing each chunk
// as soon as it is read. Both ends are closed whether or not the copy
// succeeds.
func streamCopy(src io.ReadCloser, dst io.WriteCloser) (int64, error) {
	var written int64
	buf := make([]byte, copyBufferSize)
	var copyErr error
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr == nil && m < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				copyErr = werr
				break
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			copyErr = rerr
			break
		}
	}

	srcErr := src.Close()
	dstErr := dst.Close()
	switch {
	case copyErr != nil:
		return written, copyErr
	case dstErr != nil:
		return written, dstErr
	default:
		return written, srcErr
	}
}

// nopWriteCloser leaves caller-owned writers open.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
