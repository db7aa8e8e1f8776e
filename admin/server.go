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

// Package admin serves the copilot Admin API: infrastructure generation,
// compliance assessment, documents, cost management and agent dispatch over
// HTTP.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"copilot/platform/agents"
	"copilot/platform/audit"
	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/infra"
	"copilot/platform/shared/cache"
	"copilot/platform/shared/config"
	"copilot/platform/shared/logger"
	"copilot/platform/shared/metrics"
)

// Version is reported by /health
const Version = "1.0.0"

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) bool

// Services are the domain services the API exposes. Documents, Agents,
// Audit and Limiter may be nil.
type Services struct {
	Generator  *infra.CompositeGenerator
	Compliance *compliance.Service
	Documents  *documents.Service
	Cost       *cost.Service
	Agents     *agents.Router
	Audit      *audit.Logger
	Limiter    *cache.RateLimiter
	Checks     map[string]HealthCheck
}

// Server is the Admin API
type Server struct {
	cfg    *config.Config
	svc    Services
	log    *logger.Logger
	router *mux.Router
}

// NewServer builds the router for svc
func NewServer(cfg *config.Config, svc Services, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New("admin-api")
	}
	s := &Server{cfg: cfg, svc: svc, log: log, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestIDMiddleware, metricsMiddleware, s.authMiddleware, s.rateLimitMiddleware, s.auditMiddleware)

	r.HandleFunc("/health", s.health).Methods("GET")
	r.Handle("/prometheus", metrics.Handler()).Methods("GET")

	// Infrastructure
	r.HandleFunc("/api/v1/infrastructure/patterns", s.listPatterns).Methods("GET")
	r.HandleFunc("/api/v1/infrastructure/resource-types", s.listResourceTypes).Methods("GET")
	r.HandleFunc("/api/v1/infrastructure/generate", s.generate).Methods("POST")
	r.HandleFunc("/api/v1/infrastructure/estimate", s.estimate).Methods("POST")
	r.HandleFunc("/api/v1/infrastructure/generations", s.listGenerations).Methods("GET")
	r.HandleFunc("/api/v1/infrastructure/generations/{id}", s.getGeneration).Methods("GET")
	r.HandleFunc("/api/v1/infrastructure/generations/{id}", s.deleteGeneration).Methods("DELETE")
	r.HandleFunc("/api/v1/infrastructure/generations/{id}/files", s.generationFiles).Methods("GET")
	r.HandleFunc("/api/v1/infrastructure/generations/{id}/archive", s.generationArchive).Methods("GET")

	// Compliance
	r.HandleFunc("/api/v1/compliance/families", s.listFamilies).Methods("GET")
	r.HandleFunc("/api/v1/compliance/controls", s.listControls).Methods("GET")
	r.HandleFunc("/api/v1/compliance/controls/{id}", s.getControl).Methods("GET")
	r.HandleFunc("/api/v1/compliance/assessments", s.runAssessment).Methods("POST")
	r.HandleFunc("/api/v1/compliance/assessments", s.listAssessments).Methods("GET")
	r.HandleFunc("/api/v1/compliance/assessments/latest", s.latestAssessment).Methods("GET")
	r.HandleFunc("/api/v1/compliance/assessments/{id}", s.getAssessment).Methods("GET")
	r.HandleFunc("/api/v1/compliance/assessments/{id}/findings", s.listFindings).Methods("GET")
	r.HandleFunc("/api/v1/compliance/assessments/{id}/remediation", s.remediationPlan).Methods("GET")

	// Documents
	r.HandleFunc("/api/v1/documents", s.generateDocument).Methods("POST")
	r.HandleFunc("/api/v1/documents", s.listDocuments).Methods("GET")
	r.HandleFunc("/api/v1/documents/{id}", s.getDocument).Methods("GET")
	r.HandleFunc("/api/v1/documents/{id}", s.deleteDocument).Methods("DELETE")
	r.HandleFunc("/api/v1/documents/{id}/download", s.downloadDocument).Methods("GET")

	// Agents
	r.HandleFunc("/api/v1/agents", s.listAgents).Methods("GET")
	r.HandleFunc("/api/v1/agents/dispatch", s.dispatch).Methods("POST")

	// Audit
	r.HandleFunc("/api/v1/audit/events", s.searchAudit).Methods("GET")

	// Cost management
	if s.svc.Cost != nil {
		cost.NewHandler(s.svc.Cost).RegisterRoutes(r)
	}
}

// Router returns the routes without CORS, for tests and embedding
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", HeaderTenantID, HeaderUserID, HeaderRequestID},
		ExposedHeaders:   []string{HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// ListenAndServe serves until ctx is cancelled, then drains connections
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("", "", "Admin API listening", map[string]interface{}{"port": s.cfg.Server.Port})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("", "", "Admin API shutting down", nil)
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]bool, len(s.svc.Checks)+1)
	healthy := true
	for name, check := range s.svc.Checks {
		ok := check(r.Context())
		components[name] = ok
		healthy = healthy && ok
	}
	if s.svc.Cost != nil {
		components["cost"] = s.svc.Cost.IsHealthy(r.Context())
		healthy = healthy && components["cost"]
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"service":    "platform-copilot-admin",
		"version":    Version,
		"timestamp":  time.Now().UTC(),
		"components": components,
		"features": map[string]bool{
			"documents": s.svc.Documents != nil,
			"agents":    s.svc.Agents != nil,
			"audit":     s.svc.Audit != nil,
		},
	})
}
