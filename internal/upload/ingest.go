package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/metrics"
	"github.com/mistware/files/internal/storage"
)

// ErrMalformedRequest is returned for request bodies that are not a
// single-purpose multipart file upload.
var ErrMalformedRequest = errors.New("malformed upload request")

// maxBoundaryLength is the RFC 2046 limit on a multipart boundary.
const maxBoundaryLength = 70

// Options controls one ingest call.
type Options struct {
	// Folder is the directory the files are written to. It must exist.
	Folder string
	// Filename overrides the stored name. The source extension is kept.
	Filename string
	// SizeLimit is the largest accepted file, in bytes.
	SizeLimit int64
	// Permitted lists the accepted lowercase extensions, with the dot.
	Permitted []string
	// Registry holds the binary signatures; DefaultRegistry when nil.
	Registry *Registry
}

// Result is the outcome of an ingest call.
type Result struct {
	// Status is 0 when every file was stored, or the 413/415 status of the
	// first rejected file.
	Status int
	// Files are the names stored, in request order.
	Files []string
}

// Ingest reads the multipart body of r and stores each file section in
// opts.Folder through session. It returns the ingest status (0, 413 or 415).
func Ingest(ctx context.Context, r *http.Request, session *storage.Session, opts Options) (int, error) {
	res, err := Run(ctx, r.Header.Get("Content-Type"), r.Body, session, opts)
	return res.Status, err
}

// Run is Ingest over a raw content type and body.
//
// Sections are processed one at a time: read, validate, persist. The first
// rejected section ends the call with its status; files stored before it
// are kept. Each section is buffered up to SizeLimit+1 bytes, anything
// beyond is drained and the section is reported too large.
func Run(ctx context.Context, contentType string, body io.Reader, session *storage.Session, opts Options) (Result, error) {
	var res Result
	if opts.SizeLimit <= 0 {
		return res, fmt.Errorf("size limit must be positive, got %d", opts.SizeLimit)
	}

	boundary, err := multipartBoundary(contentType)
	if err != nil {
		return res, err
	}

	watch := &closeWatcher{r: body, delim: []byte("--" + boundary + "--")}
	reader := multipart.NewReader(watch, boundary)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			// NextPart also reports a bare EOF when the body ends inside
			// a section's headers.
			if !watch.closed {
				return res, fmt.Errorf("%w: body ended before the closing boundary", ErrMalformedRequest)
			}
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("%w: read section: %v", ErrMalformedRequest, err)
		}

		name, reason, err := ingestPart(ctx, part, session, opts)
		part.Close()
		if err != nil {
			return res, err
		}
		if reason != ReasonNone {
			res.Status = reason.Status()
			return res, nil
		}
		res.Files = append(res.Files, name)
	}
}

// closeWatcher records whether the closing boundary delimiter has passed
// through it.
type closeWatcher struct {
	r      io.Reader
	delim  []byte
	tail   []byte // last len(delim)-1 bytes read
	closed bool
}

func (w *closeWatcher) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if n > 0 && !w.closed {
		window := append(append([]byte(nil), w.tail...), p[:n]...)
		if bytes.Contains(window, w.delim) {
			w.closed = true
		}
		if keep := len(w.delim) - 1; len(window) > keep {
			window = window[len(window)-keep:]
		}
		w.tail = window
	}
	return n, err
}

func multipartBoundary(contentType string) (string, error) {
	if contentType == "" {
		return "", fmt.Errorf("%w: missing content type", ErrMalformedRequest)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: content type %q: %v", ErrMalformedRequest, contentType, err)
	}
	if !strings.EqualFold(mediaType, "multipart/form-data") {
		return "", fmt.Errorf("%w: content type %q is not multipart/form-data", ErrMalformedRequest, mediaType)
	}
	boundary := strings.Trim(params["boundary"], `"`)
	if boundary == "" {
		return "", fmt.Errorf("%w: missing content-type boundary", ErrMalformedRequest)
	}
	if len(boundary) > maxBoundaryLength {
		return "", fmt.Errorf("%w: multipart boundary length limit %d exceeded", ErrMalformedRequest, maxBoundaryLength)
	}
	return boundary, nil
}

// ingestPart validates one section and, when it passes, stores it. It
// returns the stored name or the rejection reason.
func ingestPart(ctx context.Context, part *multipart.Part, session *storage.Session, opts Options) (string, Reason, error) {
	if part.Header.Get("Content-Disposition") == "" {
		return "", ReasonNone, fmt.Errorf("%w: section has no content-disposition", ErrMalformedRequest)
	}
	source := part.FileName()
	if source == "" {
		return "", ReasonNone, fmt.Errorf("%w: section %q is not a file", ErrMalformedRequest, part.FormName())
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(part, opts.SizeLimit+1))
	if err != nil {
		return "", ReasonNone, fmt.Errorf("%w: read %s: %v", ErrMalformedRequest, source, err)
	}
	if n > opts.SizeLimit {
		drained, err := io.Copy(io.Discard, part)
		if err != nil {
			return "", ReasonNone, fmt.Errorf("%w: read %s: %v", ErrMalformedRequest, source, err)
		}
		n += drained
	}

	reason := CheckSize(n, opts.SizeLimit)
	if reason == ReasonNone {
		reason = CheckSignature(opts.Registry, buf.Bytes(), source, opts.Permitted)
	}
	if reason != ReasonNone {
		metrics.RecordUpload(reason.Status(), n)
		logging.Info("upload rejected",
			zap.String("source", html.EscapeString(source)),
			zap.Int64("size", n),
			zap.String("reason", reason.String()),
			zap.Int("status", reason.Status()))
		return "", reason, nil
	}

	if err := session.ChangeDirectory(ctx, opts.Folder); err != nil {
		return "", ReasonNone, err
	}
	name := destinationName(opts.Filename, source)
	if err := session.FileUpload(ctx, name, bytes.NewReader(buf.Bytes())); err != nil {
		return "", ReasonNone, err
	}

	metrics.RecordUpload(StatusOK, n)
	logging.Info("uploaded",
		zap.String("source", html.EscapeString(source)),
		zap.String("name", name),
		zap.String("folder", opts.Folder),
		zap.Int64("size", n))
	return name, ReasonNone, nil
}

// destinationName is explicit, or the HTML-escaped source name, with the
// source's lowercase extension applied.
func destinationName(explicit, source string) string {
	name := explicit
	if name == "" {
		name = html.EscapeString(source)
	}
	return changeExtension(name, Extension(source))
}

func changeExtension(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
