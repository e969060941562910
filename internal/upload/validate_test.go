package upload

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}
	permitted = []string{".txt", ".csv", ".log", ".png", ".jpg", ".pdf", ".zip"}
)

func TestCheckSize(t *testing.T) {
	tests := []struct {
		name   string
		length int64
		limit  int64
		want   Reason
		status int
	}{
		{"empty", 0, 100, ReasonEmpty, http.StatusUnsupportedMediaType},
		{"one byte", 1, 100, ReasonNone, StatusOK},
		{"at limit", 100, 100, ReasonNone, StatusOK},
		{"over limit", 101, 100, ReasonTooLarge, http.StatusRequestEntityTooLarge},
		{"60MB against 50MB", 60 << 20, 50 << 20, ReasonTooLarge, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckSize(tt.length, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.status, got.Status())
		})
	}
}

func TestCheckSignature(t *testing.T) {
	corrupt := append([]byte{0x89, 0x50, 0x00}, pngHeader[3:]...)

	tests := []struct {
		name     string
		data     []byte
		filename string
		want     Reason
	}{
		{"png header", pngHeader, "x.png", ReasonNone},
		{"png uppercase extension", pngHeader, "X.PNG", ReasonNone},
		{"corrupt png header", corrupt, "x.png", ReasonUnsupportedType},
		{"truncated png header", pngHeader[:4], "x.png", ReasonUnsupportedType},
		{"png bytes named jpg", pngHeader, "x.jpg", ReasonUnsupportedType},
		{"exe not permitted", []byte("MZ\x90\x00"), "x.exe", ReasonUnsupportedType},
		{"exe with png content", pngHeader, "x.exe", ReasonUnsupportedType},
		{"no extension", pngHeader, "README", ReasonMissingExtension},
		{"trailing dot", pngHeader, "x.", ReasonMissingExtension},
		{"empty content", nil, "x.png", ReasonEmpty},
		{"ascii text", []byte("hello, world\n"), "notes.txt", ReasonNone},
		{"ascii log", []byte("2024-01-01 INFO ok\n"), "Test.log", ReasonNone},
		{"non-ascii text", []byte("caf\xc3\xa9"), "notes.txt", ReasonUnsupportedType},
		{"pdf", []byte("%PDF-1.7\n"), "doc.pdf", ReasonNone},
		{"zip", []byte{0x50, 0x4B, 0x03, 0x04, 0x14}, "a.zip", ReasonNone},
		{"empty zip", []byte{0x50, 0x4B, 0x05, 0x06, 0x00}, "a.zip", ReasonNone},
		{"jpg exif", []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00}, "p.jpg", ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckSignature(nil, tt.data, tt.filename, permitted))
		})
	}
}

func TestCheckSignatureUnregisteredExtension(t *testing.T) {
	// .webp is permitted but has no signature, which rejects every file.
	got := CheckSignature(nil, []byte("RIFF\x00\x00\x00\x00WEBP"), "a.webp", []string{".webp"})
	assert.Equal(t, ReasonUnsupportedType, got)
	assert.Equal(t, http.StatusUnsupportedMediaType, got.Status())
}

func TestCheckSignatureCustomRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("webp", []byte("RIFF"))
	assert.True(t, reg.Has(".webp"))
	assert.True(t, reg.Has(".WEBP"))
	assert.False(t, reg.Has(".png"))

	assert.Equal(t, ReasonNone, CheckSignature(reg, []byte("RIFF\x00\x00"), "a.webp", []string{".webp"}))
	assert.Equal(t, ReasonUnsupportedType, CheckSignature(reg, pngHeader, "a.png", []string{".png"}))
}

func TestRegistryIgnoresEmptyPrefix(t *testing.T) {
	reg := NewRegistry()
	reg.Register(".bin", nil, []byte{})
	assert.False(t, reg.Has(".bin"))
}

func TestRegistryCopiesPrefixes(t *testing.T) {
	reg := NewRegistry()
	sig := []byte("ABCD")
	reg.Register(".abc", sig)
	sig[0] = 'Z'
	assert.Equal(t, []byte("ABCD"), reg.Signatures(".abc")[0])
}

func TestReasonStatus(t *testing.T) {
	assert.Equal(t, 0, ReasonNone.Status())
	assert.Equal(t, 415, ReasonEmpty.Status())
	assert.Equal(t, 413, ReasonTooLarge.Status())
	assert.Equal(t, 415, ReasonMissingExtension.Status())
	assert.Equal(t, 415, ReasonUnsupportedType.Status())
	assert.Equal(t, "too large", ReasonTooLarge.String())
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", Extension("a.PNG"))
	assert.Equal(t, ".gz", Extension("a.tar.gz"))
	assert.Equal(t, "", Extension("noext"))
	assert.Equal(t, "", Extension("dot."))
}
