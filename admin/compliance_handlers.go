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

	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/shared/identity"
)

func (s *Server) listFamilies(w http.ResponseWriter, r *http.Request) {
	families := s.svc.Compliance.Catalog().Families()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"families": families,
		"count":    len(families),
	})
}

// listControls handles GET /api/v1/compliance/controls?family=&baseline=&automated=
func (s *Server) listControls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	catalog := s.svc.Compliance.Catalog()

	var filter compliance.ControlFilter
	if fam := query.Get("family"); fam != "" {
		if _, ok := catalog.Family(fam); !ok {
			s.writeError(w, fmt.Sprintf("unknown control family %q", fam), http.StatusBadRequest)
			return
		}
		filter.Family = fam
	}
	if b := query.Get("baseline"); b != "" {
		baseline, err := compliance.ParseBaseline(b)
		if err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Baseline = baseline
	}
	if a := query.Get("automated"); a != "" {
		automated, err := strconv.ParseBool(a)
		if err != nil {
			s.writeError(w, "automated must be true or false", http.StatusBadRequest)
			return
		}
		filter.Automated = automated
	}
	limit, offset, err := cost.ParsePage(query, 100)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	controls := catalog.Controls(filter)
	total := len(controls)
	controls = pageOf(controls, limit, offset)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"controls": controls,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// pageOf slices one page out of items
func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (s *Server) getControl(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Compliance.Catalog().Control(mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) runAssessment(w http.ResponseWriter, r *http.Request) {
	var req compliance.AssessmentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SubscriptionID == "" {
		req.SubscriptionID = s.cfg.Azure.SubscriptionID
	}
	if req.SubscriptionID == "" {
		s.writeError(w, "subscription_id is required", http.StatusBadRequest)
		return
	}
	id := identity.FromContext(r.Context())
	req.TenantID = id.TenantID
	req.RequestedBy = id.UserID

	a, err := s.svc.Compliance.RunAssessment(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) listAssessments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := cost.ParsePage(r.URL.Query(), 50)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, total, err := s.svc.Compliance.ListAssessments(r.Context(), compliance.ListOptions{
		TenantID:       tenantOf(r),
		SubscriptionID: r.URL.Query().Get("subscription_id"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": list,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (s *Server) latestAssessment(w http.ResponseWriter, r *http.Request) {
	sub := r.URL.Query().Get("subscription_id")
	if sub == "" {
		sub = s.cfg.Azure.SubscriptionID
	}
	if sub == "" {
		s.writeError(w, "subscription_id is required", http.StatusBadRequest)
		return
	}
	a, err := s.svc.Compliance.LatestAssessment(r.Context(), tenantOf(r), sub)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) getAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Compliance.GetAssessment(r.Context(), tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) listFindings(w http.ResponseWriter, r *http.Request) {
	var severity compliance.Severity
	if v := r.URL.Query().Get("severity"); v != "" {
		sev, err := compliance.ParseSeverity(v)
		if err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		severity = sev
	}
	findings, err := s.svc.Compliance.Findings(r.Context(), tenantOf(r), mux.Vars(r)["id"], severity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"findings": findings,
		"count":    len(findings),
	})
}

func (s *Server) remediationPlan(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Compliance.RemediationPlan(r.Context(), tenantOf(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessment_id": mux.Vars(r)["id"],
		"items":         items,
		"count":         len(items),
	})
}
