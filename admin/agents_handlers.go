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

	"copilot/platform/agents"
	"copilot/platform/shared/identity"
)

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	if s.svc.Agents == nil {
		s.writeError(w, "agent routing is not configured", http.StatusServiceUnavailable)
		return
	}
	list := s.svc.Agents.Agents()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": list,
		"count":  len(list),
	})
}

// dispatch routes a natural language request to the matching agents
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if s.svc.Agents == nil {
		s.writeError(w, "agent routing is not configured", http.StatusServiceUnavailable)
		return
	}
	var req agents.DispatchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := identity.FromContext(r.Context())
	task := agents.Task{
		TenantID:  id.TenantID,
		UserID:    id.UserID,
		RequestID: requestIDOf(r),
	}

	resp, err := s.svc.Agents.Dispatch(r.Context(), req, task)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
