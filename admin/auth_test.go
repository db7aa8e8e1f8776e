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
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/shared/cache"
	"copilot/platform/shared/config"
)

const testSecret = "test-secret-0123456789"

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "platform-copilot", "tenant-a", "alice", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken(testSecret, "platform-copilot", token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", id.TenantID)
	assert.Equal(t, "alice", id.UserID)
	assert.True(t, id.HasRole("admin"))
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := IssueToken(testSecret, "platform-copilot", "tenant-a", "alice", nil, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "platform-copilot", "tenant-a", "alice", nil, -time.Minute)
	require.NoError(t, err)
	otherIssuer, err := IssueToken(testSecret, "someone-else", "tenant-a", "alice", nil, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "another-secret", valid},
		{"expired", testSecret, expired},
		{"wrong issuer", testSecret, otherIssuer},
		{"garbage", testSecret, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, "platform-copilot", tt.token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestIssueToken_Validation(t *testing.T) {
	_, err := IssueToken("", "i", "t", "u", nil, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = IssueToken(testSecret, "i", "", "u", nil, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func jwtEnv(t *testing.T) *testEnv {
	return newTestEnv(t, func(cfg *config.Config, _ *Services) {
		cfg.Auth.Mode = AuthJWT
		cfg.Auth.JWTSecret = testSecret
	})
}

func TestAuthMiddleware_JWT(t *testing.T) {
	env := jwtEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/infrastructure/generations", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/infrastructure/generations", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "Invalid or expired token", body.Message)

	token, err := IssueToken(testSecret, "platform-copilot", "tenant-a", "alice", nil, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/infrastructure/generations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_HeadersIgnoredInJWTMode(t *testing.T) {
	env := jwtEnv(t)
	// tenant headers alone never authenticate
	rec := env.do(t, http.MethodGet, "/api/v1/compliance/families", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_PublicPaths(t *testing.T) {
	env := jwtEnv(t)
	for _, path := range []string{"/health", "/prometheus"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRateLimit_Memory(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, svc *Services) {
		svc.Limiter = cache.NewRateLimiter(nil, 2, newStdLogger())
	})

	for i := 1; i <= 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/v1/infrastructure/patterns", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/infrastructure/patterns", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// budgets are per tenant
	rec = env.doAs(t, "tenant-b", http.MethodGet, "/api/v1/infrastructure/patterns", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, func(_ *config.Config, svc *Services) {
		svc.Limiter = cache.NewRateLimiter(client, 1, newStdLogger())
	})

	rec := env.do(t, http.MethodGet, "/api/v1/compliance/families", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/compliance/families", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, mr.Exists("ratelimit:tenant-a"))
}
