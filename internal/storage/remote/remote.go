// Package remote provides a storage backend over a network file share.
//
// The backend speaks to the share through a ShareClient. Three clients are
// provided: S3Share (AWS S3 and compatibles, via aws-sdk-go-v2), MinioShare
// (MinIO, via minio-go) and MemoryShare (in-process, for tests and local
// development).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/metrics"
	"github.com/mistware/files/internal/storage"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultCopyTimeout  = 5 * time.Minute

	discardTimeout = 30 * time.Second
)

// Options tunes the remote backend.
type Options struct {
	PollInterval Duration `json:"poll_interval"`
	CopyTimeout  Duration `json:"copy_timeout"`
}

// Duration is a time.Duration that reads from JSON strings such as "250ms".
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Backend implements storage.Backend over a ShareClient.
type Backend struct {
	client       ShareClient
	pollInterval time.Duration
	copyTimeout  time.Duration
}

var _ storage.Backend = (*Backend)(nil)

// New creates a remote backend. The share must already exist.
func New(ctx context.Context, client ShareClient, opts Options) (*Backend, error) {
	ok, err := client.ShareExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check share %s: %w", client.URL(), err)
	}
	if !ok {
		return nil, fmt.Errorf("cannot access file share %s", client.URL())
	}

	b := &Backend{
		client:       client,
		pollInterval: time.Duration(opts.PollInterval),
		copyTimeout:  time.Duration(opts.CopyTimeout),
	}
	if b.pollInterval <= 0 {
		b.pollInterval = DefaultPollInterval
	}
	if b.copyTimeout <= 0 {
		b.copyTimeout = DefaultCopyTimeout
	}
	return b, nil
}

// Client returns the underlying share client.
func (b *Backend) Client() ShareClient { return b.client }

func (b *Backend) DirExists(ctx context.Context, dir string) (bool, error) {
	return b.client.DirectoryExists(ctx, dir)
}

func (b *Backend) MakeDir(ctx context.Context, dir string) error {
	return b.client.CreateDirectory(ctx, dir)
}

func (b *Backend) RemoveDir(ctx context.Context, dir string) error {
	return b.client.DeleteDirectory(ctx, dir)
}

func (b *Backend) FileExists(ctx context.Context, dir, name string) (bool, error) {
	_, err := b.client.FileProperties(ctx, dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Backend) FileLength(ctx context.Context, dir, name string) (int64, error) {
	props, err := b.client.FileProperties(ctx, dir, name)
	if err != nil {
		return 0, err
	}
	return props.Length, nil
}

func (b *Backend) DeleteFile(ctx context.Context, dir, name string) error {
	return b.client.DeleteFile(ctx, dir, name)
}

// ListFiles enumerates dir and then fetches the properties of every entry
// with its own request.
func (b *Backend) ListFiles(ctx context.Context, dir string) ([]storage.DirectoryEntry, error) {
	names, err := b.client.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	entries := make([]storage.DirectoryEntry, 0, len(names))
	for _, name := range names {
		props, err := b.client.FileProperties(ctx, dir, name)
		if err != nil {
			return nil, fmt.Errorf("properties of %s: %w", name, err)
		}
		entries = append(entries, storage.DirectoryEntry{Name: name, Length: uint64(props.Length)})
	}
	return entries, nil
}

// CopyFile starts a server-side copy and blocks until the server reports a
// terminal state, the copy timeout elapses, or ctx is done.
func (b *Backend) CopyFile(ctx context.Context, dir, name, targetDir string) error {
	if err := b.client.StartCopy(ctx, dir, name, targetDir); err != nil {
		return fmt.Errorf("start copy of %s to %s: %w", name, targetDir, err)
	}

	res, err := PollCopy(ctx, b.client, targetDir, name, b.pollInterval, b.copyTimeout)
	if err != nil {
		return fmt.Errorf("poll copy of %s to %s: %w", name, targetDir, err)
	}
	metrics.RecordRemoteCopy(res.Outcome.String(), res.Polls)

	switch res.Outcome {
	case OutcomeFailed:
		b.discardCopy(ctx, targetDir, name)
		return fmt.Errorf("copy of %s to %s failed: %s", name, targetDir, res.Description)
	case OutcomeTimedOut:
		b.discardCopy(ctx, targetDir, name)
		return fmt.Errorf("copy of %s to %s still pending after %s", name, targetDir, b.copyTimeout)
	}

	logging.Debug("remote copy complete",
		zap.String("share", b.client.URL()),
		zap.String("file", name),
		zap.String("from", dir),
		zap.String("to", targetDir),
		zap.Int("polls", res.Polls))
	return nil
}

// discardCopy removes the destination of a copy that did not complete so
// the target directory holds no partial file. Failures are only logged.
func (b *Backend) discardCopy(ctx context.Context, dir, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	if err := b.client.DeleteFile(ctx, dir, name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("could not remove incomplete copy",
			zap.String("share", b.client.URL()),
			zap.String("dir", dir),
			zap.String("file", name),
			zap.Error(err))
	}
}

// PutFile creates the remote file at the payload's size and then uploads the
// payload in one call. A payload of unknown size is buffered first.
func (b *Backend) PutFile(ctx context.Context, dir, name string, body io.Reader, size int64) error {
	if size < 0 {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(body); err != nil {
			return fmt.Errorf("buffer %s: %w", name, err)
		}
		body, size = bytes.NewReader(buf.Bytes()), int64(buf.Len())
	}
	if err := b.client.CreateFile(ctx, dir, name, size); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := b.client.UploadFile(ctx, dir, name, body, size); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (b *Backend) GetFile(ctx context.Context, dir, name string, w io.Writer) (int64, error) {
	rc, err := b.client.DownloadFile(ctx, dir, name)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	n, err := io.Copy(w, rc)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", name, err)
	}
	return n, nil
}

// Location returns the share URL.
func (b *Backend) Location() string { return b.client.URL() }

// Type returns the share client type.
func (b *Backend) Type() string { return b.client.Type() }

// Close closes the share client.
func (b *Backend) Close() error { return b.client.Close() }
