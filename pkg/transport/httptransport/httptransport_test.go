package httptransport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

type todo struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type query struct {
	Scope string `json:"scope"`
}

func TestRouterHandlesFetchRequest(t *testing.T) {
	handler := func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		require.NotNil(t, req.Query)
		assert.Equal(t, "home", req.Query.Scope)
		return transport.Response[todo]{Results: []todo{{ID: "1", Text: "a"}}}, nil
	}
	router := NewRouter[todo, query]("/api/collection", handler, Options{})

	body, _ := json.Marshal(map[string]any{"query": map[string]string{"scope": "home"}})
	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var out responseBody[todo]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "a", out.Results[0].Text)
}

func TestRouterHandlesSyncRequest(t *testing.T) {
	handler := func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		require.Len(t, req.Changes, 1)
		assert.Equal(t, "1", req.Changes[0].ID)
		return transport.Response[todo]{
			SyncResults: map[string]transport.SyncResult{"1": {Status: "success"}},
		}, nil
	}
	router := NewRouter[todo, query]("/api/collection", handler, Options{})

	body, _ := json.Marshal(map[string]any{
		"changes": []map[string]any{{"id": "1", "type": "create", "data": map[string]string{"id": "1", "text": "x"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var out responseBody[todo]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "success", out.SyncResults["1"].Status)
}

func TestRouterRejectsWrongMethod(t *testing.T) {
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{}, nil
	}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/collection", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouterRejectsMalformedBody(t *testing.T) {
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{}, nil
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterRejectsInvalidChangeType(t *testing.T) {
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{}, nil
	}, Options{})

	body, _ := json.Marshal(map[string]any{
		"changes": []map[string]any{{"id": "1", "type": "bogus", "data": map[string]string{}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterSurfacesHandlerErrorAs500(t *testing.T) {
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{}, assertErr{}
	}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestRouterEnforcesRateLimit(t *testing.T) {
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{}, nil
	}, Options{RateLimit: RateLimitConfig{RequestsPerMinute: 60, Burst: 1}})

	makeReq := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader([]byte(`{}`)))
		req.RemoteAddr = "1.2.3.4:555"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := makeReq()
	second := makeReq()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRouterAppliesCORSHeadersAndPreflight(t *testing.T) {
	cors := DefaultCORSConfig()
	cors.AllowedOrigins = []string{"https://example.com"}
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{}, nil
	}, Options{CORS: &cors})

	preflight := httptest.NewRequest(http.MethodOptions, "/api/collection", nil)
	preflight.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, preflight)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterCompressesResponseWhenRequested(t *testing.T) {
	router := NewRouter[todo, query]("/api/collection", func(ctx context.Context, req transport.Request[todo, query]) (transport.Response[todo], error) {
		return transport.Response[todo]{Results: []todo{{ID: "1", Text: "a"}}}, nil
	}, Options{Compression: true})

	req := httptest.NewRequest(http.MethodPost, "/api/collection", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))

	gzr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gzr)
	require.NoError(t, err)
	var out responseBody[todo]
	require.NoError(t, json.Unmarshal(decoded, &out))
	require.Len(t, out.Results, 1)
}
