// Package upload validates uploaded files and ingests multipart upload
// requests into a storage session.
package upload

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
)

// Reason is the outcome of validating one uploaded file.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEmpty
	ReasonTooLarge
	ReasonMissingExtension
	ReasonUnsupportedType
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonEmpty:
		return "empty"
	case ReasonTooLarge:
		return "too large"
	case ReasonMissingExtension:
		return "missing extension"
	case ReasonUnsupportedType:
		return "unsupported type"
	default:
		return "unknown"
	}
}

// Status maps the reason onto the ingest status codes: 0 when accepted,
// 413 when too large, 415 for every content rejection.
func (r Reason) Status() int {
	switch r {
	case ReasonNone:
		return StatusOK
	case ReasonTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusUnsupportedMediaType
	}
}

// StatusOK is the ingest status of an accepted upload.
const StatusOK = 0

// textExtensions are checked for 7-bit ASCII content instead of a signature.
var textExtensions = map[string]bool{
	".txt": true,
	".csv": true,
	".log": true,
}

var defaultRegistry = DefaultRegistry()

// CheckSize rejects empty content and content longer than limit.
func CheckSize(length, limit int64) Reason {
	switch {
	case length == 0:
		return ReasonEmpty
	case length > limit:
		return ReasonTooLarge
	default:
		return ReasonNone
	}
}

// Extension returns the lowercase extension of filename including the dot,
// or "" when it has none.
func Extension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "." {
		return ""
	}
	return strings.ToLower(ext)
}

// CheckSignature checks that sourceFilename has a permitted extension and
// that data really is of that type: text types must be 7-bit ASCII, other
// types must start with a signature registered in reg (DefaultRegistry when
// nil).
func CheckSignature(reg *Registry, data []byte, sourceFilename string, permitted []string) Reason {
	if reg == nil {
		reg = defaultRegistry
	}
	if len(data) == 0 {
		return ReasonEmpty
	}
	ext := Extension(sourceFilename)
	if ext == "" {
		return ReasonMissingExtension
	}
	if !permittedExtension(ext, permitted) {
		return ReasonUnsupportedType
	}

	if textExtensions[ext] {
		for _, b := range data {
			if b > 0x7F {
				return ReasonUnsupportedType
			}
		}
		return ReasonNone
	}

	signatures := reg.Signatures(ext)
	if len(signatures) == 0 {
		logging.Warn("permitted extension has no registered signature",
			zap.String("extension", ext))
		return ReasonUnsupportedType
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig) {
			return ReasonNone
		}
	}
	return ReasonUnsupportedType
}

func permittedExtension(ext string, permitted []string) bool {
	for _, p := range permitted {
		if strings.ToLower(p) == ext {
			return true
		}
	}
	return false
}
