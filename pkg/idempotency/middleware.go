package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const Header = "Idempotency-Key"

// Backend is the subset of Store used by Middleware.
type Backend interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Load(ctx context.Context, key string) (Response, error)
	Save(ctx context.Context, key string, resp Response) error
	Release(ctx context.Context, key string) error
}

// Middleware replays the stored response for a repeated Idempotency-Key.
// scope namespaces keys per caller so two callers cannot collide.
// Requests without the header pass through untouched.
func Middleware(log *slog.Logger, backend Backend, scope func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(Header))
			if raw == "" || backend == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := "idem:http:" + scope(r) + ":" + raw
			ctx := r.Context()

			reserved, err := backend.Reserve(ctx, key)
			if err != nil {
				log.Error("idempotency reserve failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				replay(log, w, r, backend, key)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// 5xx responses are retryable, so the key is freed.
			if rec.status >= http.StatusInternalServerError {
				if err := backend.Release(context.WithoutCancel(ctx), key); err != nil {
					log.Error("idempotency release failed", "err", err)
				}
				return
			}
			resp := Response{Status: rec.status, Body: json.RawMessage(bytes.TrimSpace(rec.body.Bytes()))}
			if !json.Valid(resp.Body) {
				resp.Body = json.RawMessage("null")
			}
			if err := backend.Save(context.WithoutCancel(ctx), key, resp); err != nil {
				log.Error("idempotency save failed", "err", err)
			}
		})
	}
}

func replay(log *slog.Logger, w http.ResponseWriter, r *http.Request, backend Backend, key string) {
	resp, err := backend.Load(r.Context(), key)
	if errors.Is(err, ErrPending) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "request with this idempotency key is in progress"})
		return
	}
	if err != nil {
		log.Error("idempotency load failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}
	w.Header().Set("Idempotent-Replay", "true")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
