// Package logstore keeps application logs as dated objects in a storage
// backend and expires old ones.
//
// Each day's log is the object <stem>-YYYYMMDD<ext> in one directory. Lines
// are appended by rewriting the day's object, so concurrent writers are
// serialised by the Writer.
package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mistware/files/internal/storage"
)

const stampLayout = "20060102"

// Config names where logs are kept.
type Config struct {
	// Dir is the backend directory holding the log objects.
	Dir string
	// LogFile is the name stem; a date stamp goes before its extension.
	LogFile string
}

// Writer appends log lines to the current day's object. It implements
// zapcore.WriteSyncer.
type Writer struct {
	mu      sync.Mutex
	backend storage.Backend
	dir     string
	stem    string
	ext     string
	now     func() time.Time
	timeout time.Duration
}

var _ zapcore.WriteSyncer = (*Writer)(nil)

// NewWriter returns a Writer over backend, creating cfg.Dir if needed.
func NewWriter(ctx context.Context, backend storage.Backend, cfg Config) (*Writer, error) {
	if cfg.LogFile == "" {
		return nil, fmt.Errorf("log file name is required")
	}
	if !storage.ValidName(cfg.Dir) {
		return nil, fmt.Errorf("log directory %q: %w", cfg.Dir, storage.ErrInvalidName)
	}
	ext := filepath.Ext(cfg.LogFile)
	w := &Writer{
		backend: backend,
		dir:     cfg.Dir,
		stem:    strings.TrimSuffix(cfg.LogFile, ext),
		ext:     ext,
		now:     time.Now,
		timeout: 30 * time.Second,
	}

	s := storage.NewSession(backend)
	if err := s.ChangeDirectory(ctx, cfg.Dir); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if err := s.MakeDirectory(ctx, cfg.Dir); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Name returns the object name for the day containing t.
func (w *Writer) Name(t time.Time) string {
	return fmt.Sprintf("%s-%s%s", w.stem, t.Format(stampLayout), w.ext)
}

// Write appends p to today's log object.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	s := storage.NewSession(w.backend)
	if err := s.ChangeDirectory(ctx, w.dir); err != nil {
		return 0, err
	}
	name := w.Name(w.now())

	var buf bytes.Buffer
	exists, err := s.FileExists(ctx, name)
	if err != nil {
		return 0, err
	}
	if exists {
		if err := s.FileDownload(ctx, name, &buf); err != nil {
			return 0, err
		}
	}
	buf.Write(p)
	if len(p) > 0 && p[len(p)-1] != '\n' {
		buf.WriteByte('\n')
	}
	if err := s.FileUpload(ctx, name, bytes.NewReader(buf.Bytes())); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync is a no-op; every Write is stored before it returns.
func (w *Writer) Sync() error { return nil }

// Core returns a JSON zap core writing to w. Entries below info are never
// stored, so the storage calls made by Write cannot log back into it.
func (w *Writer) Core(level zapcore.LevelEnabler) zapcore.Core {
	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.InfoLevel && level.Enabled(l)
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, enabler)
}
