// Package httptransport is the canonical HTTP adapter for the wire contract
// in pkg/transport: a single POST endpoint taking a JSON body of
// {scope?, query?, changes?} and returning {results?, syncResults?,
// serverTimeStamp?}.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/collectionengine/internal/logging"
	"github.com/vitaliisemenov/collectionengine/pkg/syncqueue"
	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

var validate = validator.New()

// changeWire is the over-the-wire shape of one pending change.
type changeWire[T any] struct {
	ID   string `json:"id" validate:"required"`
	Type string `json:"type" validate:"required,oneof=create update remove"`
	Data T      `json:"data"`
}

// requestBody is the over-the-wire shape of the single POST endpoint's body.
type requestBody[T any, Q any] struct {
	Scope   *string        `json:"scope,omitempty"`
	Query   *Q             `json:"query,omitempty"`
	Changes []changeWire[T] `json:"changes,omitempty"`
}

type syncResultWire struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type responseBody[T any] struct {
	Results         []T                       `json:"results,omitempty"`
	SyncResults     map[string]syncResultWire `json:"syncResults,omitempty"`
	ServerTimeStamp *time.Time                `json:"serverTimeStamp,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// RateLimitConfig configures the optional per-client token-bucket limiter.
// Zero value disables rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// Options configures NewRouter.
type Options struct {
	Logger      *slog.Logger
	RateLimit   RateLimitConfig
	Swagger     bool        // mount /docs via swaggo/http-swagger
	CORS        *CORSConfig // nil disables CORS headers entirely
	Compression bool        // gzip responses when the client supports it
}

type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newLimiterPool(requestsPerMinute, burst int) *limiterPool {
	return &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

func (p *limiterPool) allow(clientID string) bool {
	p.mu.Lock()
	limiter, ok := p.limiters[clientID]
	if !ok {
		limiter = rate.NewLimiter(p.rate, p.burst)
		p.limiters[clientID] = limiter
	}
	p.mu.Unlock()
	return limiter.Allow()
}

// NewRouter wires a mux.Router exposing POST path as the canonical adapter
// in front of handler. Request validation rejects malformed bodies with 400;
// unexpected methods get 405; handler errors surface as 500.
func NewRouter[T any, Q any](path string, handler transport.Handler[T, Q], opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var limiter *limiterPool
	if opts.RateLimit.RequestsPerMinute > 0 {
		limiter = newLimiterPool(opts.RateLimit.RequestsPerMinute, opts.RateLimit.Burst)
	}

	router := mux.NewRouter()
	router.Use(logging.Middleware(opts.Logger))
	if opts.CORS != nil {
		router.Use(corsMiddleware(*opts.CORS))
	}
	if opts.Compression {
		router.Use(compressionMiddleware)
	}
	router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
			return
		}

		if limiter != nil && !limiter.allow(clientID(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		var body requestBody[T, Q]
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
		for _, c := range body.Changes {
			if err := validate.Struct(c); err != nil {
				writeError(w, http.StatusBadRequest, "invalid change: "+err.Error())
				return
			}
		}

		req := transport.Request[T, Q]{Scope: body.Scope, Query: body.Query}
		for _, c := range body.Changes {
			req.Changes = append(req.Changes, syncqueue.Change[T]{
				ID:   c.ID,
				Type: syncqueue.ChangeType(c.Type),
				Data: c.Data,
			})
		}

		resp, err := handler(r.Context(), req)
		if err != nil {
			opts.Logger.Error("collection handler failed", "path", path, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		out := responseBody[T]{Results: resp.Results, ServerTimeStamp: resp.ServerTimeStamp}
		if resp.SyncResults != nil {
			out.SyncResults = make(map[string]syncResultWire, len(resp.SyncResults))
			for id, r := range resp.SyncResults {
				out.SyncResults[id] = syncResultWire{Status: r.Status, Error: r.Error}
			}
		}
		writeJSON(w, http.StatusOK, out)
	})

	if opts.Swagger {
		mountSwagger(router)
	}

	return router
}

func clientID(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
