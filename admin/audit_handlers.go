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

	"copilot/platform/audit"
	"copilot/platform/cost"
	"copilot/platform/shared/identity"
)

// searchAudit handles GET /api/v1/audit/events. Callers see their own
// tenant; admins may name another with tenant_id.
func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	if s.svc.Audit == nil {
		s.writeError(w, "audit logging is not configured", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	id := identity.FromContext(r.Context())

	filter := audit.Filter{
		TenantID: id.TenantID,
		UserID:   query.Get("user_id"),
		Action:   query.Get("action"),
	}
	if t := query.Get("tenant_id"); t != "" && t != id.TenantID {
		if !id.HasRole(RoleAdmin) {
			s.writeError(w, "admin role required to read another tenant's audit trail", http.StatusForbidden)
			return
		}
		filter.TenantID = t
	}
	if v := query.Get("since"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			s.writeError(w, "since: "+err.Error(), http.StatusBadRequest)
			return
		}
		filter.Since = t
	}
	if v := query.Get("until"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			s.writeError(w, "until: "+err.Error(), http.StatusBadRequest)
			return
		}
		filter.Until = t
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		s.writeError(w, "until must be after since", http.StatusBadRequest)
		return
	}
	limit, _, err := cost.ParsePage(query, 100)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.Limit = limit

	events, err := s.svc.Audit.Search(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}
