// Copyright 2025 James Ross
// Package auth implements the single shared-secret header check. The API
// applies it to its whole mux, so read endpoints are guarded as well as
// write endpoints.
package auth

import "net/http"

type Config struct {
	Enabled    bool
	HeaderName string
	Secret     string
}

// Middleware rejects requests whose HeaderName does not match Secret with
// 401, unless auth is disabled by config.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get(cfg.HeaderName) != cfg.Secret || cfg.Secret == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
