package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesPattern(t *testing.T) {
	h := Middleware(func(*http.Request) string { return "/files/{name}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/files/{name}", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/files/a.txt", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/files/{name}", "404"))
	assert.Equal(t, before+1, after)
}

func TestRecordUpload(t *testing.T) {
	before := testutil.ToFloat64(uploadBytes)
	RecordUpload(0, 10)
	RecordUpload(413, 99)
	assert.Equal(t, before+10, testutil.ToFloat64(uploadBytes))
	assert.GreaterOrEqual(t, testutil.ToFloat64(uploadsTotal.WithLabelValues("413")), 1.0)
}

func TestRecordStorageBytesIgnoresUnknown(t *testing.T) {
	c := storageBytesTotal.WithLabelValues("test", "up")
	before := testutil.ToFloat64(c)
	RecordStorageBytes("test", "up", -1, true)
	RecordStorageBytes("test", "up", 5, false)
	RecordStorageBytes("test", "up", 5, true)
	assert.Equal(t, before+5, testutil.ToFloat64(c))
}
