// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"copilot/platform/shared/identity"
)

// Auth modes
const (
	AuthOff = "off"
	AuthJWT = "jwt"
)

// Headers read when authentication is off
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

// RoleAdmin may read other tenants' audit events
const RoleAdmin = "admin"

// ErrInvalidToken is returned for a missing, malformed or expired token
var ErrInvalidToken = errors.New("invalid token")

// Claims carried by Admin API bearer tokens. Subject is the user id.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a tenant user
func IssueToken(secret, issuer, tenantID, userID string, roles []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: signing secret is empty", ErrInvalidToken)
	}
	if tenantID == "" || userID == "" {
		return "", fmt.Errorf("%w: tenant and user are required", ErrInvalidToken)
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns the caller identity
func ParseToken(secret, issuer, tokenString string) (identity.Identity, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TenantID == "" || claims.Subject == "" {
		return identity.Identity{}, fmt.Errorf("%w: tenant_id and sub claims are required", ErrInvalidToken)
	}
	return identity.Identity{TenantID: claims.TenantID, UserID: claims.Subject, Roles: claims.Roles}, nil
}

// public paths skip authentication and rate limiting
func public(path string) bool {
	return path == "/health" || path == "/prometheus"
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if public(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		var id identity.Identity
		if s.cfg.Auth.Mode == AuthJWT {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				s.writeError(w, "Authorization bearer token required", http.StatusUnauthorized)
				return
			}
			parsed, err := ParseToken(s.cfg.Auth.JWTSecret, s.cfg.Auth.Issuer, tokenString)
			if err != nil {
				s.log.Warn("", requestIDOf(r), "Rejected bearer token", map[string]interface{}{"error": err.Error()})
				s.writeError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			id = parsed
		} else {
			id = identity.Identity{
				TenantID: headerOr(r, HeaderTenantID, "default"),
				UserID:   headerOr(r, HeaderUserID, "anonymous"),
				Roles:    []string{RoleAdmin},
			}
		}

		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
	})
}

func headerOr(r *http.Request, name, def string) string {
	if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
		return v
	}
	return def
}

func tenantOf(r *http.Request) string {
	return identity.TenantID(r.Context())
}

func requestIDOf(r *http.Request) string {
	return identity.RequestID(r.Context())
}
