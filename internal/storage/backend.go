// Package storage defines the Backend interface implemented by every storage
// engine and the Session type that layers directory-scoped file operations on
// top of a Backend.
package storage

import (
	"context"
	"io"
)

// DirectoryEntry describes one file in a listed directory.
type DirectoryEntry struct {
	Name   string `json:"name"`
	Length uint64 `json:"length"`
}

// Backend is the interface for storage engines (local filesystem, SMB mount,
// remote file share). A Backend holds no per-session state: every call names
// the directory it operates on, so one Backend may serve many Sessions
// concurrently.
//
// Backends perform raw I/O only. Preconditions (current directory set, name
// validity, existence checks) are enforced by Session before a Backend is
// called.
type Backend interface {
	// DirExists reports whether the top-level directory exists.
	DirExists(ctx context.Context, dir string) (bool, error)

	// MakeDir creates a top-level directory.
	MakeDir(ctx context.Context, dir string) error

	// RemoveDir deletes an empty top-level directory.
	RemoveDir(ctx context.Context, dir string) error

	// FileExists reports whether name exists in dir.
	FileExists(ctx context.Context, dir, name string) (bool, error)

	// FileLength returns the size in bytes of name in dir.
	FileLength(ctx context.Context, dir, name string) (int64, error)

	// DeleteFile removes name from dir.
	DeleteFile(ctx context.Context, dir, name string) error

	// ListFiles returns the files in dir. Order is backend defined.
	ListFiles(ctx context.Context, dir string) ([]DirectoryEntry, error)

	// CopyFile copies name from dir into targetDir under the same name.
	CopyFile(ctx context.Context, dir, name, targetDir string) error

	// PutFile writes body to name in dir, replacing any existing file.
	// size is the body length, or -1 when unknown.
	PutFile(ctx context.Context, dir, name string, body io.Reader, size int64) error

	// GetFile streams the content of name in dir to w.
	GetFile(ctx context.Context, dir, name string, w io.Writer) (int64, error)

	// Location describes where the backend stores data (root path, share URL).
	Location() string

	// Type returns the backend type identifier ("local", "smb", "s3", "minio", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
