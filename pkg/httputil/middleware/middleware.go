// Package middleware provides the gateway's middleware chain: request IDs,
// access logging, and CORS for the mobile client.
package middleware

import (
	"net/http"

	"github.com/lehydrosys/hydrobridge/pkg/httputil"
)

// Chain applies middlewares to h; the first middleware in the list is the
// outermost wrapper (executed first).
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
