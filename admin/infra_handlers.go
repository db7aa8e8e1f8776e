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
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"copilot/platform/infra"
)

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := infra.Patterns()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

func (s *Server) listResourceTypes(w http.ResponseWriter, r *http.Request) {
	types := s.svc.Generator.Registry().Describe()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource_types": types,
		"count":          len(types),
	})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req infra.GenerationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.TenantID = tenantOf(r)

	result, err := s.svc.Generator.Generate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

// estimate prices the resources a request would generate
func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	if s.svc.Cost == nil {
		s.writeError(w, "cost management is not configured", http.StatusServiceUnavailable)
		return
	}
	var req infra.GenerationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.TenantID = tenantOf(r)
	req.Normalize()

	specs, workspace, warnings, err := s.svc.Generator.Plan(req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	est := s.svc.Cost.EstimateResources(specs, req.IsProduction())
	est.Environment = req.Environment
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"estimate":  est,
		"resources": specs,
		"workspace": workspace,
		"warnings":  warnings,
	})
}

func (s *Server) listGenerations(w http.ResponseWriter, r *http.Request) {
	store := s.svc.Generator.Store()
	if store == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"generations": []infra.Summary{}, "count": 0})
		return
	}
	list := store.List(tenantOf(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"generations": list, "count": len(list)})
}

// generation loads a stored result owned by the caller's tenant
func (s *Server) generation(r *http.Request) (*infra.GenerationResult, error) {
	store := s.svc.Generator.Store()
	if store == nil {
		return nil, infra.ErrGenerationNotFound
	}
	result, err := store.Get(mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if result.TenantID != "" && result.TenantID != tenantOf(r) {
		return nil, infra.ErrGenerationNotFound
	}
	return result, nil
}

func (s *Server) getGeneration(w http.ResponseWriter, r *http.Request) {
	result, err := s.generation(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) deleteGeneration(w http.ResponseWriter, r *http.Request) {
	result, err := s.generation(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Generator.Store().Delete(result.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FileInfo lists one generated file
type FileInfo struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

// generationFiles lists the generated files, or returns one as text when
// ?path= names it
func (s *Server) generationFiles(w http.ResponseWriter, r *http.Request) {
	result, err := s.generation(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if p := r.URL.Query().Get("path"); p != "" {
		content, ok := result.Files[p]
		if !ok {
			s.writeError(w, fmt.Sprintf("file %q not found in generation", p), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		_, _ = w.Write([]byte(content))
		return
	}

	files := make([]FileInfo, 0, len(result.Files))
	for p, content := range result.Files {
		files = append(files, FileInfo{Path: p, Size: len(content)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation_id": result.ID,
		"files":         files,
		"count":         len(files),
	})
}

func (s *Server) generationArchive(w http.ResponseWriter, r *http.Request) {
	result, err := s.generation(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := infra.Archive(&buf, result); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.zip"`, result.Name, result.Format))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
