package upload

import (
	"strings"
	"sync"
)

// Registry maps lowercase extensions (with the dot) to the byte prefixes
// that genuine files of that type begin with. An extension may have several
// alternative prefixes.
type Registry struct {
	mu   sync.RWMutex
	sigs map[string][][]byte
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sigs: make(map[string][][]byte)}
}

// DefaultRegistry returns a registry of common image, document and archive
// signatures. See https://www.filesignatures.net/ for more.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".gif", []byte("GIF8"))
	r.Register(".png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	r.Register(".jpeg",
		[]byte{0xFF, 0xD8, 0xFF, 0xE0},
		[]byte{0xFF, 0xD8, 0xFF, 0xE2},
		[]byte{0xFF, 0xD8, 0xFF, 0xE3},
	)
	r.Register(".jpg",
		[]byte{0xFF, 0xD8, 0xFF, 0xE0},
		[]byte{0xFF, 0xD8, 0xFF, 0xE1},
		[]byte{0xFF, 0xD8, 0xFF, 0xE8},
	)
	r.Register(".pdf", []byte("%PDF"))
	r.Register(".zip",
		[]byte{0x50, 0x4B, 0x03, 0x04},
		[]byte("PKLITE"),
		[]byte("PKSpX"),
		[]byte{0x50, 0x4B, 0x05, 0x06},
		[]byte{0x50, 0x4B, 0x07, 0x08},
		[]byte("WinZip"),
	)
	return r
}

// Register adds prefixes for ext. The extension is lowercased and given a
// leading dot if it lacks one.
func (r *Registry) Register(ext string, prefixes ...[]byte) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prefixes {
		if len(p) == 0 {
			continue
		}
		r.sigs[ext] = append(r.sigs[ext], append([]byte(nil), p...))
	}
}

// Signatures returns the prefixes registered for ext.
func (r *Registry) Signatures(ext string) [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sigs[strings.ToLower(ext)]
}

// Has reports whether ext has at least one registered prefix.
func (r *Registry) Has(ext string) bool {
	return len(r.Signatures(ext)) > 0
}
