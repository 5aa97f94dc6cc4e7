package httpapi

import (
	"net/http"

	"github.com/google/uuid"
)

// requestID stamps every request with an X-Request-Id header, reusing
// one supplied by an upstream proxy if present. Grounded on
// drobiAlex-wabus-backend's per-websocket-client id generation
// (hub.NewClient(uuid.New().String(), ...)), generalized here to every
// HTTP request rather than just websocket connections.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
