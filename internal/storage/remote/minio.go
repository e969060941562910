package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mistware/files/internal/metrics"
)

// MinioConfig is a JSON-serializable config for MinIO shares.
type MinioConfig struct {
	Endpoint  string `json:"endpoint"` // host:port, no scheme
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`
	Options
}

// MinioShare implements ShareClient over a MinIO bucket, using the same key
// layout as S3Share.
type MinioShare struct {
	client *minio.Client
	bucket string
	url    string
}

var _ ShareClient = (*MinioShare)(nil)

// NewMinioShare creates a MinIO share client.
func NewMinioShare(cfg MinioConfig) (*MinioShare, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioShare{
		client: client,
		bucket: cfg.Bucket,
		url:    "minio://" + cfg.Endpoint + "/" + cfg.Bucket,
	}, nil
}

// NewMinioShareFromJSON creates a MinioShare and its backend options from raw
// JSON config.
func NewMinioShareFromJSON(raw json.RawMessage) (*MinioShare, Options, error) {
	var cfg MinioConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, Options{}, fmt.Errorf("parse minio config: %w", err)
	}
	share, err := NewMinioShare(cfg)
	return share, cfg.Options, err
}

func (m *MinioShare) record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation("minio", op, time.Since(start), err == nil)
}

func (m *MinioShare) ShareExists(ctx context.Context) (bool, error) {
	start := time.Now()
	ok, err := m.client.BucketExists(ctx, m.bucket)
	m.record("bucket_exists", start, err)
	return ok, err
}

func (m *MinioShare) stat(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	m.record("stat_object", start, err)
	if err != nil {
		if minioNotFound(err) {
			return 0, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
		}
		return 0, fmt.Errorf("stat object %s: %w", key, err)
	}
	return info.Size, nil
}

func (m *MinioShare) DirectoryExists(ctx context.Context, dir string) (bool, error) {
	if _, err := m.stat(ctx, dirKey(dir)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MinioShare) CreateDirectory(ctx context.Context, dir string) error {
	return m.put(ctx, dirKey(dir), strings.NewReader(""), 0)
}

func (m *MinioShare) DeleteDirectory(ctx context.Context, dir string) error {
	names, err := m.ListFiles(ctx, dir)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return fmt.Errorf("directory %s is not empty", dir)
	}
	return m.remove(ctx, dirKey(dir))
}

func (m *MinioShare) ListFiles(ctx context.Context, dir string) ([]string, error) {
	prefix := dirKey(dir)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			m.record("list_objects", start, obj.Err)
			return nil, fmt.Errorf("list %s: %w", dir, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	m.record("list_objects", start, nil)
	return names, nil
}

func (m *MinioShare) FileProperties(ctx context.Context, dir, name string) (FileProperties, error) {
	n, err := m.stat(ctx, fileKey(dir, name))
	if err != nil {
		return FileProperties{}, err
	}
	return FileProperties{Length: n, CopyState: CopyStateSuccess}, nil
}

// CreateFile is a no-op; see S3Share.CreateFile.
func (m *MinioShare) CreateFile(context.Context, string, string, int64) error { return nil }

func (m *MinioShare) UploadFile(ctx context.Context, dir, name string, body io.Reader, size int64) error {
	return m.put(ctx, fileKey(dir, name), body, size)
}

func (m *MinioShare) DownloadFile(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	key := fileKey(dir, name)
	// GetObject is lazy; stat first so a missing object surfaces here.
	if _, err := m.stat(ctx, key); err != nil {
		return nil, err
	}
	start := time.Now()
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	m.record("get_object", start, err)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

func (m *MinioShare) DeleteFile(ctx context.Context, dir, name string) error {
	return m.remove(ctx, fileKey(dir, name))
}

func (m *MinioShare) StartCopy(ctx context.Context, srcDir, name, dstDir string) error {
	start := time.Now()
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: fileKey(dstDir, name)},
		minio.CopySrcOptions{Bucket: m.bucket, Object: fileKey(srcDir, name)},
	)
	m.record("copy_object", start, err)
	if err != nil {
		return fmt.Errorf("copy %s from %s to %s: %w", name, srcDir, dstDir, err)
	}
	return nil
}

func (m *MinioShare) URL() string { return m.url }

func (m *MinioShare) Type() string { return "minio" }

// Close is a no-op for MinIO shares.
func (m *MinioShare) Close() error { return nil }

func (m *MinioShare) put(ctx context.Context, key string, body io.Reader, size int64) error {
	start := time.Now()
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{})
	m.record("put_object", start, err)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (m *MinioShare) remove(ctx context.Context, key string) error {
	start := time.Now()
	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	m.record("remove_object", start, err)
	if err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func minioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
