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
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/shared/identity"
)

func (s *Server) documentsEnabled(w http.ResponseWriter) bool {
	if s.svc.Documents == nil {
		s.writeError(w, "document generation is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) generateDocument(w http.ResponseWriter, r *http.Request) {
	if !s.documentsEnabled(w) {
		return
	}
	var req documents.GenerateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := identity.FromContext(r.Context())
	req.TenantID = id.TenantID
	req.RequestedBy = id.UserID

	doc, err := s.svc.Documents.Generate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	if !s.documentsEnabled(w) {
		return
	}
	query := r.URL.Query()
	opts := documents.ListOptions{
		TenantID:     tenantOf(r),
		AssessmentID: query.Get("assessment_id"),
	}
	if v := query.Get("type"); v != "" {
		t, err := documents.ParseType(v)
		if err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.Type = t
	}
	var err error
	if opts.Limit, opts.Offset, err = cost.ParsePage(query, 50); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	docs, total, err := s.svc.Documents.List(r.Context(), opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	if !s.documentsEnabled(w) {
		return
	}
	doc, err := s.svc.Documents.Get(r.Context(), tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	if !s.documentsEnabled(w) {
		return
	}
	doc, data, err := s.svc.Documents.Download(r.Context(), tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-SHA256", doc.SHA256)
	_, _ = w.Write(data)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if !s.documentsEnabled(w) {
		return
	}
	if err := s.svc.Documents.Delete(r.Context(), tenantOf(r), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
