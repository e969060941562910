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
	"time"

	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/metrics"
)

// Session is a directory-scoped view of a Backend. It carries the current
// directory that file operations are relative to.
//
// A Session is not safe for concurrent use. Give each logical session (an
// HTTP request, a background job) its own Session; they may share a Backend.
type Session struct {
	backend Backend
	current string
}

// NewSession returns a Session over b with no current directory.
func NewSession(b Backend) *Session {
	return &Session{backend: b}
}

// Backend returns the underlying storage engine.
func (s *Session) Backend() Backend { return s.backend }

// CurrentDirectory returns the current directory, or "" when unset.
func (s *Session) CurrentDirectory() string { return s.current }

// MakeDirectory creates dir and makes it the current directory.
func (s *Session) MakeDirectory(ctx context.Context, dir string) error {
	const op = "make directory"
	if !ValidName(dir) {
		return s.fail(op, dir, ErrInvalidName, nil)
	}
	exists, err := s.dirExists(ctx, op, dir)
	if err != nil {
		return err
	}
	if exists {
		return s.fail(op, dir, ErrAlreadyExists, nil)
	}
	if err := s.call(op, dir, func() error { return s.backend.MakeDir(ctx, dir) }); err != nil {
		return err
	}
	s.current = dir
	logging.Debug("directory created", zap.String("dir", dir), zap.String("backend", s.backend.Type()))
	return nil
}

// DeleteDirectory removes dir. The current directory is left alone unless it
// is the one being removed.
func (s *Session) DeleteDirectory(ctx context.Context, dir string) error {
	const op = "delete directory"
	if !ValidName(dir) {
		return s.fail(op, dir, ErrInvalidName, nil)
	}
	exists, err := s.dirExists(ctx, op, dir)
	if err != nil {
		return err
	}
	if !exists {
		return s.fail(op, dir, ErrNotFound, nil)
	}
	if err := s.call(op, dir, func() error { return s.backend.RemoveDir(ctx, dir) }); err != nil {
		return err
	}
	if s.current == dir {
		s.current = ""
	}
	logging.Debug("directory deleted", zap.String("dir", dir), zap.String("backend", s.backend.Type()))
	return nil
}

// ChangeDirectory makes dir the current directory.
func (s *Session) ChangeDirectory(ctx context.Context, dir string) error {
	const op = "change directory"
	if !ValidName(dir) {
		return s.fail(op, dir, ErrInvalidName, nil)
	}
	exists, err := s.dirExists(ctx, op, dir)
	if err != nil {
		return err
	}
	if !exists {
		return s.fail(op, dir, ErrNotFound, nil)
	}
	s.current = dir
	return nil
}

// FileExists reports whether name exists in the current directory.
func (s *Session) FileExists(ctx context.Context, name string) (bool, error) {
	const op = "file exists"
	if err := s.ready(op, name); err != nil {
		return false, err
	}
	return s.fileExists(ctx, op, name)
}

// FileLength returns the size of name in the current directory.
func (s *Session) FileLength(ctx context.Context, name string) (int64, error) {
	const op = "file length"
	if err := s.ready(op, name); err != nil {
		return 0, err
	}
	var n int64
	err := s.call(op, name, func() (err error) {
		n, err = s.backend.FileLength(ctx, s.current, name)
		return err
	})
	return n, err
}

// FileDelete removes name from the current directory.
func (s *Session) FileDelete(ctx context.Context, name string) error {
	const op = "delete file"
	if err := s.requireFile(ctx, op, name); err != nil {
		return err
	}
	return s.call(op, name, func() error { return s.backend.DeleteFile(ctx, s.current, name) })
}

// FileList lists the files in the current directory.
func (s *Session) FileList(ctx context.Context) ([]DirectoryEntry, error) {
	const op = "list files"
	if s.current == "" {
		return nil, s.fail(op, "", ErrNotReady, nil)
	}
	var entries []DirectoryEntry
	err := s.call(op, s.current, func() (err error) {
		entries, err = s.backend.ListFiles(ctx, s.current)
		return err
	})
	return entries, err
}

// FileCopy copies name from the current directory into targetDir, which must
// already exist and must not already hold a file of that name.
func (s *Session) FileCopy(ctx context.Context, name, targetDir string) error {
	const op = "copy file"
	if err := s.requireFile(ctx, op, name); err != nil {
		return err
	}
	if !ValidName(targetDir) {
		return s.fail(op, targetDir, ErrInvalidName, nil)
	}
	exists, err := s.dirExists(ctx, op, targetDir)
	if err != nil {
		return err
	}
	if !exists {
		return s.fail(op, targetDir, ErrNotFound, nil)
	}
	var clash bool
	err = s.call(op, name, func() (err error) {
		clash, err = s.backend.FileExists(ctx, targetDir, name)
		return err
	})
	if err != nil {
		return err
	}
	if clash {
		return s.fail(op, name, ErrAlreadyExists, fmt.Errorf("exists in %s", targetDir))
	}
	return s.call(op, name, func() error { return s.backend.CopyFile(ctx, s.current, name, targetDir) })
}

// FileUpload writes body to name in the current directory. An existing file
// of the same name is overwritten.
func (s *Session) FileUpload(ctx context.Context, name string, body io.Reader) error {
	const op = "upload file"
	if err := s.ready(op, name); err != nil {
		return err
	}
	size := readerSize(body)
	err := s.call(op, name, func() error { return s.backend.PutFile(ctx, s.current, name, body, size) })
	metrics.RecordStorageBytes(s.backend.Type(), "upload", size, err == nil)
	return err
}

// FileUploadPath uploads the local file at path into the current directory
// under its base name.
func (s *Session) FileUploadPath(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if err := s.ready("upload file", name); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return s.fail("upload file", name, ErrBackendFailure, err)
	}
	defer f.Close()
	return s.FileUpload(ctx, name, f)
}

// FileDownload streams name from the current directory to w.
func (s *Session) FileDownload(ctx context.Context, name string, w io.Writer) error {
	const op = "download file"
	if err := s.requireFile(ctx, op, name); err != nil {
		return err
	}
	var n int64
	err := s.call(op, name, func() (err error) {
		n, err = s.backend.GetFile(ctx, s.current, name, w)
		return err
	})
	metrics.RecordStorageBytes(s.backend.Type(), "download", n, err == nil)
	return err
}

// FileDownloadBytes returns the content of name in the current directory.
func (s *Session) FileDownloadBytes(ctx context.Context, name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.FileDownload(ctx, name, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileDownloadToPath saves name from the current directory into the local
// directory targetDir (the working directory when empty). It refuses to
// overwrite an existing file.
func (s *Session) FileDownloadToPath(ctx context.Context, name, targetDir string) error {
	const op = "download file"
	if err := s.requireFile(ctx, op, name); err != nil {
		return err
	}
	dst := name
	if targetDir != "" {
		dst = filepath.Join(targetDir, name)
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return s.fail(op, name, ErrAlreadyExists, fmt.Errorf("exists in %s", targetDir))
		}
		return s.fail(op, name, ErrBackendFailure, err)
	}
	if err := s.FileDownload(ctx, name, f); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return s.fail(op, name, ErrBackendFailure, err)
	}
	return nil
}

func (s *Session) ready(op, name string) error {
	if !ValidName(name) {
		return s.fail(op, name, ErrInvalidName, nil)
	}
	if s.current == "" {
		return s.fail(op, name, ErrNotReady, nil)
	}
	return nil
}

// requireFile checks readiness and that name exists in the current directory.
func (s *Session) requireFile(ctx context.Context, op, name string) error {
	if err := s.ready(op, name); err != nil {
		return err
	}
	exists, err := s.fileExists(ctx, op, name)
	if err != nil {
		return err
	}
	if !exists {
		return s.fail(op, name, ErrNotFound, nil)
	}
	return nil
}

func (s *Session) fileExists(ctx context.Context, op, name string) (bool, error) {
	var exists bool
	err := s.call(op, name, func() (err error) {
		exists, err = s.backend.FileExists(ctx, s.current, name)
		return err
	})
	return exists, err
}

func (s *Session) dirExists(ctx context.Context, op, dir string) (bool, error) {
	var exists bool
	err := s.call(op, dir, func() (err error) {
		exists, err = s.backend.DirExists(ctx, dir)
		return err
	})
	return exists, err
}

// call runs a backend operation, records it and classifies any error.
func (s *Session) call(op, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStorageOperation(s.backend.Type(), op, time.Since(start), err == nil)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s.fail(op, name, ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return s.fail(op, name, ErrAlreadyExists, err)
	default:
		return s.fail(op, name, ErrBackendFailure, err)
	}
}

func (s *Session) fail(op, name string, kind, cause error) error {
	loc := s.backend.Location()
	if s.current != "" {
		loc += "/" + s.current
	}
	return &Error{Op: op, Name: name, Location: loc, Kind: kind, Err: cause}
}

// readerSize returns the number of bytes remaining in r when it can be
// determined without reading, or -1.
func readerSize(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case *os.File:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		return info.Size() - pos
	case io.Seeker:
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return -1
		}
		if _, err := v.Seek(pos, io.SeekStart); err != nil {
			return -1
		}
		return end - pos
	}
	return -1
}
