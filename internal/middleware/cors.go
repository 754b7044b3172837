package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS admits the portal front-end origins. An empty list disables
// cross-origin access.
func CORS(allowedOrigins []string) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Accept-Language",
			"Content-Type",
			"If-Match",
			"Prefer",
			RequestIDHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
