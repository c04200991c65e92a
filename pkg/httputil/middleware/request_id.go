package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lehydrosys/hydrobridge/pkg/httputil"
)

const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request a UUID, stored in the context and echoed
// in the response header. A request ID already present in the context is
// preserved.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
