package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/rems-acc/rems/pkg/logger"
	"github.com/rems-acc/rems/pkg/response"
)

// headerGuard records whether the status line has gone out.
type headerGuard struct {
	http.ResponseWriter
	wrote bool
}

func (g *headerGuard) WriteHeader(code int) {
	g.wrote = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *headerGuard) Write(b []byte) (int, error) {
	g.wrote = true
	return g.ResponseWriter.Write(b)
}

// Recovery catches panics in downstream handlers, logs the stack trace and
// answers 500. With verbose set the panic value and stack are also returned
// in the response body; never enable that outside development. A handler
// that panics after writing its status keeps the partial response.
func Recovery(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := &headerGuard{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := string(debug.Stack())
				logger.WithCtx(r.Context()).Error("panic recovered",
					"error", fmt.Sprintf("%v", rec),
					"stack", stack,
					"method", r.Method,
					"path", r.URL.Path,
					"headers_sent", g.wrote,
				)

				if g.wrote {
					return
				}
				if verbose {
					response.ErrorDetail(w, http.StatusInternalServerError, "Internal Server Error", map[string]interface{}{
						"panic": fmt.Sprintf("%v", rec),
						"stack": strings.Split(strings.TrimSpace(stack), "\n"),
					})
					return
				}
				response.Error(w, http.StatusInternalServerError, "Internal Server Error")
			}()
			next.ServeHTTP(g, r)
		})
	}
}
