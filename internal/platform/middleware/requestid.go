package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"aegis/pkg/requestcontext"
)

// requestIDHeader is honored when the caller (or an upstream proxy) already
// assigned an id; otherwise one is generated.
const requestIDHeader = "X-Request-ID"

// RequestID stamps every request with an id, echoes it on the response, and
// makes it available through requestcontext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
