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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"copilot/platform/agents"
	"copilot/platform/compliance"
	"copilot/platform/documents"
	"copilot/platform/infra"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("", "", "Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var cycle *infra.CycleError
	switch {
	case errors.As(err, &cycle),
		errors.Is(err, infra.ErrInvalidRequest),
		errors.Is(err, infra.ErrUnknownPattern),
		errors.Is(err, infra.ErrMissingDependency),
		errors.Is(err, compliance.ErrInvalidRequest),
		errors.Is(err, compliance.ErrInvalidBaseline),
		errors.Is(err, compliance.ErrInvalidSeverity),
		errors.Is(err, documents.ErrInvalidType),
		errors.Is(err, documents.ErrInvalidRequest),
		errors.Is(err, agents.ErrEmptyQuery),
		errors.Is(err, agents.ErrNoMatchingAgent):
		return http.StatusBadRequest
	case errors.Is(err, infra.ErrGenerationNotFound),
		errors.Is(err, compliance.ErrControlNotFound),
		errors.Is(err, compliance.ErrAssessmentNotFound),
		errors.Is(err, documents.ErrDocumentNotFound),
		errors.Is(err, documents.ErrObjectNotFound),
		errors.Is(err, agents.ErrUnknownAgent):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.ErrorWithCode(tenantOf(r), requestIDOf(r), "Request failed", status, err, map[string]interface{}{
			"path": r.URL.Path,
		})
		s.writeError(w, "internal error", status)
		return
	}
	s.writeError(w, err.Error(), status)
}

// parseTime accepts RFC3339 or YYYY-MM-DD
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", v)
	}
	return t, nil
}
