package httpmiddleware

import (
	"errors"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery converts a handler panic into a 500 with the API error body. A
// panic after the response has started only closes the connection.
// http.ErrAbortHandler is passed through to net/http.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				zctx.From(r.Context()).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("response_started", sw.status != 0),
					zap.Stack("stack"),
				)
				w.Header().Set("Connection", "close")
				if sw.status == 0 {
					writeError(w, http.StatusInternalServerError, "Internal", "internal error")
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
