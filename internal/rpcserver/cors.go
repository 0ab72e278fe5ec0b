package rpcserver

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS wraps next in the rs/cors middleware, configured with the
// single static origin from configuration. rs/cors adds
// Access-Control-Allow-Origin only to requests whose Origin header
// matches that origin (any origin when it is "*"); responses to
// requests without an Origin header carry no CORS headers.
func WithCORS(next http.Handler, origin string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"apikey", "Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(next)
}
