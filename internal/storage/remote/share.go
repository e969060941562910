package remote

import (
	"context"
	"io"
)

// CopyState is the server-reported state of a server-side copy into a file.
type CopyState int

const (
	// CopyStateNone means the file was not produced by a copy.
	CopyStateNone CopyState = iota
	// CopyStatePending means a copy into the file is still running.
	CopyStatePending
	// CopyStateSuccess means the copy into the file completed.
	CopyStateSuccess
	// CopyStateFailed means the copy into the file failed or was aborted.
	CopyStateFailed
)

func (s CopyState) String() string {
	switch s {
	case CopyStatePending:
		return "pending"
	case CopyStateSuccess:
		return "success"
	case CopyStateFailed:
		return "failed"
	default:
		return "none"
	}
}

// FileProperties is the metadata a share reports for one file.
type FileProperties struct {
	Length                int64
	CopyState             CopyState
	CopyStatusDescription string
}

// ShareClient is a network file-share API. Directories are flat and live
// directly below the share root. Methods that address a missing file or
// directory return an error wrapping fs.ErrNotExist.
type ShareClient interface {
	// ShareExists reports whether the share (bucket) is reachable.
	ShareExists(ctx context.Context) (bool, error)

	DirectoryExists(ctx context.Context, dir string) (bool, error)
	CreateDirectory(ctx context.Context, dir string) error
	DeleteDirectory(ctx context.Context, dir string) error

	// ListFiles returns the names of the files in dir, without metadata.
	ListFiles(ctx context.Context, dir string) ([]string, error)

	// FileProperties fetches metadata for one file, including copy state.
	FileProperties(ctx context.Context, dir, name string) (FileProperties, error)

	// CreateFile allocates name in dir with the given size, replacing any
	// existing file.
	CreateFile(ctx context.Context, dir, name string, size int64) error

	// UploadFile writes exactly size bytes of body into a created file.
	UploadFile(ctx context.Context, dir, name string, body io.Reader, size int64) error

	DownloadFile(ctx context.Context, dir, name string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, dir, name string) error

	// StartCopy asks the server to copy name from srcDir into dstDir. It
	// returns once the copy is accepted; completion is observed through
	// FileProperties on the destination.
	StartCopy(ctx context.Context, srcDir, name, dstDir string) error

	// URL identifies the share for error messages.
	URL() string

	// Type returns the client type identifier ("s3", "minio", "memory").
	Type() string

	Close() error
}
