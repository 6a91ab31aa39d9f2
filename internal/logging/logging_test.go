package logging

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewReturnsUsableLogger(t *testing.T) {
	logger := New(Config{Level: "info", Format: "json", Output: "stdout"})
	assert.NotNil(t, logger)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(t.Context(), "abc123")
	assert.Equal(t, "abc123", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(t.Context()))
}

func TestFromContextAnnotatesLogger(t *testing.T) {
	base := slog.Default()
	ctx := WithRequestID(t.Context(), "xyz")
	annotated := FromContext(ctx, base)
	assert.NotSame(t, base, annotated)
}

func TestMiddlewareAssignsRequestIDAndLogsStatus(t *testing.T) {
	handler := Middleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
