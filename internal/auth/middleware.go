/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// Middleware validates admin credentials and injects claims into the
// request context. Keys are accepted in the X-API-Key header or as an
// Authorization Bearer value; the configured bootstrap token (if any)
// authenticates the same way.
func Middleware(db *gorm.DB, bootstrapToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-API-Key")
			if token == "" {
				token = extractBearer(r)
			}
			if token == "" {
				unauthorized(w)
				return
			}

			if strings.HasPrefix(token, APIKeyPrefix) {
				claims, err := ValidateAPIKey(db, token)
				if err != nil {
					unauthorized(w)
					return
				}
				ctx := WithClaims(r.Context(), claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if bootstrapToken != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(bootstrapToken)) == 1 {
				ctx := WithClaims(r.Context(), &Claims{KeyName: "bootstrap", Bootstrap: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
