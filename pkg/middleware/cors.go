package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSOptions configures the CORS middleware.
type CORSOptions struct {
	AllowedOrigins []string // exact origins, or "*" for any
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int // seconds a preflight answer may be cached
}

// DefaultCORSOptions allows any origin and exposes the request ID.
func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}
}

// CORS answers cross-origin requests from the configured origins. Preflight
// requests (OPTIONS carrying Access-Control-Request-Method) are answered
// with 204 and never reach next; a plain OPTIONS request is passed through.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	anyOrigin := false
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		origins[o] = struct{}{}
	}

	preflight := http.Header{}
	preflight.Set("Access-Control-Allow-Methods", strings.Join(opts.AllowedMethods, ", "))
	preflight.Set("Access-Control-Allow-Headers", strings.Join(opts.AllowedHeaders, ", "))
	if opts.MaxAge > 0 {
		preflight.Set("Access-Control-Max-Age", strconv.Itoa(opts.MaxAge))
	}
	exposed := strings.Join(opts.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			isPreflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			_, listed := origins[origin]
			switch {
			case origin == "":
			case listed:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			case anyOrigin:
				h.Set("Access-Control-Allow-Origin", "*")
			default:
				origin = ""
			}

			if origin != "" {
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
				if isPreflight {
					for k, v := range preflight {
						h.Set(k, v[0])
					}
				}
			}

			if isPreflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
