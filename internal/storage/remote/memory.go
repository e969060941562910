package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
)

// MemoryShare is an in-process ShareClient. Copies behave like a real file
// share: StartCopy leaves the destination pending and the copy completes
// after a number of FileProperties calls.
type MemoryShare struct {
	mu      sync.Mutex
	name    string
	dirs    map[string]map[string]*memFile
	latency int    // FileProperties calls before a pending copy finishes
	failure string // when set, copies fail with this description
	stalled bool   // when set, copies never finish

	propertyCalls int
}

type memFile struct {
	data      []byte
	state     CopyState
	desc      string
	pollsLeft int
	pending   []byte
}

// MemoryOption configures a MemoryShare.
type MemoryOption func(*MemoryShare)

// WithCopyLatency makes copies stay pending for n status polls.
func WithCopyLatency(n int) MemoryOption {
	return func(m *MemoryShare) { m.latency = n }
}

// WithCopyFailure makes every copy fail with the given status description.
func WithCopyFailure(desc string) MemoryOption {
	return func(m *MemoryShare) { m.failure = desc }
}

// WithStalledCopies makes every copy stay pending forever.
func WithStalledCopies() MemoryOption {
	return func(m *MemoryShare) { m.stalled = true }
}

// NewMemoryShare returns an empty share.
func NewMemoryShare(name string, opts ...MemoryOption) *MemoryShare {
	m := &MemoryShare{
		name: name,
		dirs: make(map[string]map[string]*memFile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCopyFailure changes the failure description for copies that finish
// from now on. An empty desc lets them succeed.
func (m *MemoryShare) SetCopyFailure(desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = desc
}

// PropertyCalls returns how many FileProperties requests the share served.
func (m *MemoryShare) PropertyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.propertyCalls
}

func (m *MemoryShare) ShareExists(context.Context) (bool, error) { return true, nil }

func (m *MemoryShare) DirectoryExists(_ context.Context, dir string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dirs[dir]
	return ok, nil
}

func (m *MemoryShare) CreateDirectory(_ context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dirs[dir]; ok {
		return fmt.Errorf("directory %s: %w", dir, fs.ErrExist)
	}
	m.dirs[dir] = make(map[string]*memFile)
	return nil
}

func (m *MemoryShare) DeleteDirectory(_ context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.dirs[dir]
	if !ok {
		return fmt.Errorf("directory %s: %w", dir, fs.ErrNotExist)
	}
	if len(files) > 0 {
		return fmt.Errorf("directory %s is not empty", dir)
	}
	delete(m.dirs, dir)
	return nil
}

func (m *MemoryShare) ListFiles(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("directory %s: %w", dir, fs.ErrNotExist)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryShare) FileProperties(_ context.Context, dir, name string) (FileProperties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.propertyCalls++
	f, err := m.lookup(dir, name)
	if err != nil {
		return FileProperties{}, err
	}
	if f.state == CopyStatePending && !m.stalled {
		f.pollsLeft--
		if f.pollsLeft < 0 {
			if m.failure != "" {
				f.state, f.desc = CopyStateFailed, m.failure
			} else {
				f.data, f.state = f.pending, CopyStateSuccess
			}
			f.pending = nil
		}
	}
	return FileProperties{
		Length:                int64(len(f.data)),
		CopyState:             f.state,
		CopyStatusDescription: f.desc,
	}, nil
}

func (m *MemoryShare) CreateFile(_ context.Context, dir, name string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.dirs[dir]
	if !ok {
		return fmt.Errorf("directory %s: %w", dir, fs.ErrNotExist)
	}
	files[name] = &memFile{data: make([]byte, size)}
	return nil
}

func (m *MemoryShare) UploadFile(ctx context.Context, dir, name string, body io.Reader, size int64) error {
	data, err := io.ReadAll(io.LimitReader(body, size+1))
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("upload %s: got %d bytes, file was created with %d", name, len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.lookup(dir, name)
	if err != nil {
		return err
	}
	if int64(len(f.data)) != size {
		return fmt.Errorf("upload %s: range exceeds file size %d", name, len(f.data))
	}
	f.data = data
	return nil
}

func (m *MemoryShare) DownloadFile(_ context.Context, dir, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.lookup(dir, name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(f.data))), nil
}

func (m *MemoryShare) DeleteFile(_ context.Context, dir, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(dir, name); err != nil {
		return err
	}
	delete(m.dirs[dir], name)
	return nil
}

func (m *MemoryShare) StartCopy(_ context.Context, srcDir, name, dstDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.lookup(srcDir, name)
	if err != nil {
		return err
	}
	files, ok := m.dirs[dstDir]
	if !ok {
		return fmt.Errorf("directory %s: %w", dstDir, fs.ErrNotExist)
	}
	files[name] = &memFile{
		state:     CopyStatePending,
		pollsLeft: m.latency,
		pending:   bytes.Clone(src.data),
	}
	return nil
}

func (m *MemoryShare) URL() string { return "memory://" + m.name }

func (m *MemoryShare) Type() string { return "memory" }

func (m *MemoryShare) Close() error { return nil }

// lookup must be called with m.mu held.
func (m *MemoryShare) lookup(dir, name string) (*memFile, error) {
	files, ok := m.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("directory %s: %w", dir, fs.ErrNotExist)
	}
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("file %s/%s: %w", dir, name, fs.ErrNotExist)
	}
	return f, nil
}
