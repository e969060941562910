package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/metrics"
)

// S3Config is a JSON-serializable config for S3 shares.
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
	Options
}

// S3Share implements ShareClient over an S3 bucket. A directory is a
// zero-byte marker object "dir/"; a file is the object "dir/name".
//
// CopyObject returns only once the copy is done and S3 reads are strongly
// consistent, so FileProperties never reports a pending copy. A destination
// that is missing after StartCopy is an error, not a pending copy.
type S3Share struct {
	client *s3.Client
	bucket string
	url    string
}

var _ ShareClient = (*S3Share)(nil)

// NewS3Share creates an S3 share client from an S3Config.
func NewS3Share(ctx context.Context, cfg S3Config) (*S3Share, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = true
	})

	return &S3Share{
		client: client,
		bucket: cfg.Bucket,
		url:    "s3://" + cfg.Bucket,
	}, nil
}

// NewS3ShareFromJSON creates an S3Share and its backend options from raw
// JSON config.
func NewS3ShareFromJSON(ctx context.Context, raw json.RawMessage) (*S3Share, Options, error) {
	var cfg S3Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, Options{}, fmt.Errorf("parse s3 config: %w", err)
	}
	share, err := NewS3Share(ctx, cfg)
	return share, cfg.Options, err
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func dirKey(dir string) string        { return dir + "/" }
func fileKey(dir, name string) string { return dir + "/" + name }

func (s *S3Share) record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation("s3", op, time.Since(start), err == nil)
}

// ShareExists checks the bucket with HeadBucket.
func (s *S3Share) ShareExists(ctx context.Context) (bool, error) {
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	s.record("head_bucket", start, err)
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// head returns the object size, wrapping fs.ErrNotExist when it is missing.
func (s *S3Share) head(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.record("head_object", start, err)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
		}
		return 0, fmt.Errorf("head object %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3Share) DirectoryExists(ctx context.Context, dir string) (bool, error) {
	if _, err := s.head(ctx, dirKey(dir)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Share) CreateDirectory(ctx context.Context, dir string) error {
	return s.put(ctx, dirKey(dir), strings.NewReader(""), 0)
}

// DeleteDirectory removes the directory marker. It refuses when the
// directory still holds files.
func (s *S3Share) DeleteDirectory(ctx context.Context, dir string) error {
	names, err := s.ListFiles(ctx, dir)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return fmt.Errorf("directory %s is not empty", dir)
	}
	return s.delete(ctx, dirKey(dir))
}

func (s *S3Share) ListFiles(ctx context.Context, dir string) ([]string, error) {
	prefix := dirKey(dir)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var names []string
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		s.record("list_objects", start, err)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *S3Share) FileProperties(ctx context.Context, dir, name string) (FileProperties, error) {
	n, err := s.head(ctx, fileKey(dir, name))
	if err != nil {
		return FileProperties{}, err
	}
	return FileProperties{Length: n, CopyState: CopyStateSuccess}, nil
}

// CreateFile is a no-op: S3 objects come into existence whole, sized by the
// ContentLength of UploadFile.
func (s *S3Share) CreateFile(context.Context, string, string, int64) error { return nil }

func (s *S3Share) UploadFile(ctx context.Context, dir, name string, body io.Reader, size int64) error {
	return s.put(ctx, fileKey(dir, name), body, size)
}

func (s *S3Share) DownloadFile(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	key := fileKey(dir, name)
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.record("get_object", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Share) DeleteFile(ctx context.Context, dir, name string) error {
	return s.delete(ctx, fileKey(dir, name))
}

// StartCopy issues a server-side CopyObject.
func (s *S3Share) StartCopy(ctx context.Context, srcDir, name, dstDir string) error {
	src, dst := fileKey(srcDir, name), fileKey(dstDir, name)
	start := time.Now()
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(s.bucket + "/" + url.PathEscape(srcDir) + "/" + url.PathEscape(name)),
	})
	s.record("copy_object", start, err)
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	logging.Debug("S3 copy object", zap.String("src", src), zap.String("dst", dst))
	return nil
}

func (s *S3Share) URL() string { return s.url }

func (s *S3Share) Type() string { return "s3" }

// Close is a no-op for S3 shares.
func (s *S3Share) Close() error { return nil }

func (s *S3Share) put(ctx context.Context, key string, body io.Reader, size int64) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	s.record("put_object", start, err)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	logging.Debug("S3 put object", zap.String("key", key), zap.Int64("size", size))
	return nil
}

func (s *S3Share) delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.record("delete_object", start, err)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
