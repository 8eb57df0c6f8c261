package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	Header         = "Idempotency-Key"
	ReplayedHeader = "Idempotent-Replayed"
)

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Middleware replays the first successful response for a repeated
// Idempotency-Key. Requests without the header pass straight through, and
// so do requests arriving while redis is unreachable.
func Middleware(store *Store, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := Key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := "idem:http:" + r.Method + ":" + r.URL.Path + ":" + k
			ctx := r.Context()

			stored, err := store.Begin(ctx, key)
			switch {
			case errors.Is(err, ErrInProgress):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrInProgress.Error()})
				return
			case err != nil:
				log.Warn("idempotency store unavailable", "key", k, "err", err)
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			// The key is released unless a 2xx response was stored, including
			// when next panics.
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := store.Forget(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("idempotency key release failed", "key", k, "err", err)
				}
			}()

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}
			resp := Response{Status: status, ContentType: ww.Header().Get("Content-Type"), Body: body.Bytes()}
			if err := store.Complete(ctx, key, resp); err != nil {
				log.Warn("idempotency response not stored", "key", k, "err", err)
				return
			}
			completed = true
		})
	}
}
