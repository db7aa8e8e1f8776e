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
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"copilot/platform/audit"
	"copilot/platform/shared/identity"
	"copilot/platform/shared/metrics"
)

// statusRecorder captures the response code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(identity.WithRequestID(r.Context(), id)))
	})
}

// metricsMiddleware counts every routed request, including rejected ones
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, metrics.Status(rec.code())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}

// auditMiddleware records an event for every authenticated mutating request
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Audit == nil || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		id := identity.FromContext(r.Context())
		if err := s.svc.Audit.Record(audit.Event{
			TenantID:   id.TenantID,
			UserID:     id.UserID,
			RequestID:  requestIDOf(r),
			Action:     r.Method + " " + route,
			Resource:   r.URL.Path,
			Method:     r.Method,
			Route:      route,
			Status:     rec.code(),
			DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		}); err != nil {
			s.log.Warn(id.TenantID, requestIDOf(r), "Failed to record audit event", map[string]interface{}{"error": err.Error()})
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// rateLimitMiddleware applies the per-tenant budget
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Limiter == nil || public(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		tenant := tenantOf(r)
		allowed, count := s.svc.Limiter.Allow(r.Context(), tenant)
		limit := s.svc.Limiter.Limit()
		if limit > 0 {
			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			s.log.Warn(tenant, requestIDOf(r), "Rate limit exceeded", map[string]interface{}{
				"count": count,
				"limit": limit,
			})
			w.Header().Set("Retry-After", "60")
			s.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
