// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"copilot/platform/shared/identity"
)

// MaxPageLimit bounds list endpoint page sizes
const MaxPageLimit = 500

// Handler provides HTTP handlers for cost management APIs
type Handler struct {
	service *Service
}

// NewHandler creates a new cost handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers all cost routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Budget endpoints
	r.HandleFunc("/api/v1/budgets", h.CreateBudget).Methods("POST")
	r.HandleFunc("/api/v1/budgets", h.ListBudgets).Methods("GET")
	r.HandleFunc("/api/v1/budgets/check", h.CheckBudget).Methods("POST")
	r.HandleFunc("/api/v1/budgets/{id}", h.GetBudget).Methods("GET")
	r.HandleFunc("/api/v1/budgets/{id}", h.UpdateBudget).Methods("PUT")
	r.HandleFunc("/api/v1/budgets/{id}", h.DeleteBudget).Methods("DELETE")
	r.HandleFunc("/api/v1/budgets/{id}/status", h.GetBudgetStatus).Methods("GET")
	r.HandleFunc("/api/v1/budgets/{id}/alerts", h.GetBudgetAlerts).Methods("GET")
	r.HandleFunc("/api/v1/budgets/{id}/forecast", h.GetBudgetForecast).Methods("GET")
	r.HandleFunc("/api/v1/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods("POST")

	// Cost endpoints
	r.HandleFunc("/api/v1/costs", h.GetCostSummary).Methods("GET")
	r.HandleFunc("/api/v1/costs/breakdown", h.GetCostBreakdown).Methods("GET")
	r.HandleFunc("/api/v1/costs/records", h.ListCostRecords).Methods("GET")
	r.HandleFunc("/api/v1/costs/records", h.RecordCosts).Methods("POST")
	r.HandleFunc("/api/v1/costs/ingest", h.Ingest).Methods("POST")
	r.HandleFunc("/api/v1/costs/aggregates", h.ListAggregates).Methods("GET")
	r.HandleFunc("/api/v1/costs/forecast", h.GetForecast).Methods("GET")
	r.HandleFunc("/api/v1/costs/anomalies", h.GetAnomalies).Methods("GET")

	// Pricing endpoint
	r.HandleFunc("/api/v1/pricing", h.GetPricing).Methods("GET")
}

// CreateBudgetRequest is the request body for creating a budget
type CreateBudgetRequest struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Scope           BudgetScope    `json:"scope"`
	ScopeID         string         `json:"scope_id,omitempty"`
	SubscriptionID  string         `json:"subscription_id,omitempty"`
	LimitUSD        float64        `json:"limit_usd"`
	Period          BudgetPeriod   `json:"period"`
	OnExceed        OnExceedAction `json:"on_exceed,omitempty"`
	AlertThresholds []int          `json:"alert_thresholds,omitempty"`
}

// CreateBudget handles POST /api/v1/budgets
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req CreateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	budget := &Budget{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		Scope:           req.Scope,
		ScopeID:         req.ScopeID,
		SubscriptionID:  req.SubscriptionID,
		LimitUSD:        req.LimitUSD,
		Period:          req.Period,
		OnExceed:        req.OnExceed,
		AlertThresholds: req.AlertThresholds,
		Enabled:         true,
		TenantID:        identity.TenantID(r.Context()),
		CreatedBy:       identity.UserID(r.Context()),
	}

	if err := h.service.CreateBudget(r.Context(), budget); err != nil {
		if errors.Is(err, ErrBudgetExists) {
			h.writeError(w, "Budget already exists", http.StatusConflict)
			return
		}
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusCreated, budget)
}

// ListBudgets handles GET /api/v1/budgets
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := ListBudgetsOptions{
		TenantID:       identity.TenantID(r.Context()),
		SubscriptionID: query.Get("subscription_id"),
		Scope:          BudgetScope(query.Get("scope")),
		ScopeID:        query.Get("scope_id"),
	}
	if opts.Scope != "" && !isValidScope(opts.Scope) {
		h.writeError(w, ErrInvalidBudgetScope.Error(), http.StatusBadRequest)
		return
	}
	var err error
	if opts.Limit, opts.Offset, err = ParsePage(query, 50); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if enabled := query.Get("enabled"); enabled != "" {
		e := enabled == "true"
		opts.Enabled = &e
	}

	budgets, total, err := h.service.ListBudgets(r.Context(), opts)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"budgets": budgets,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetBudget handles GET /api/v1/budgets/{id}
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := h.service.GetBudget(r.Context(), identity.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, budget)
}

// UpdateBudget handles PUT /api/v1/budgets/{id}
// Supports partial updates - only non-zero fields are updated
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	existing, err := h.service.GetBudget(r.Context(), identity.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	var update struct {
		Budget
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Merge non-zero values from update into existing budget
	if update.Name != "" {
		existing.Name = update.Name
	}
	if update.Description != "" {
		existing.Description = update.Description
	}
	if update.LimitUSD > 0 {
		existing.LimitUSD = update.LimitUSD
	}
	if update.Period != "" {
		existing.Period = update.Period
	}
	if update.OnExceed != "" {
		existing.OnExceed = update.OnExceed
	}
	if len(update.AlertThresholds) > 0 {
		existing.AlertThresholds = update.AlertThresholds
	}
	if update.Enabled != nil {
		existing.Enabled = *update.Enabled
	}
	existing.UpdatedBy = identity.UserID(r.Context())

	if err := h.service.UpdateBudget(r.Context(), existing); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, existing)
}

// DeleteBudget handles DELETE /api/v1/budgets/{id}
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBudget(r.Context(), identity.TenantID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBudgetStatus handles GET /api/v1/budgets/{id}/status
func (h *Handler) GetBudgetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetBudgetStatus(r.Context(), identity.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// GetBudgetAlerts handles GET /api/v1/budgets/{id}/alerts
func (h *Handler) GetBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _, err := ParsePage(r.URL.Query(), 20)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	alerts, err := h.service.GetRecentAlerts(r.Context(), identity.TenantID(r.Context()), mux.Vars(r)["id"], limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetBudgetForecast handles GET /api/v1/budgets/{id}/forecast
func (h *Handler) GetBudgetForecast(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.ForecastBudget(r.Context(), identity.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

// AcknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || alertID <= 0 {
		h.writeError(w, "Alert ID must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := h.service.AcknowledgeAlert(r.Context(), alertID, identity.UserID(r.Context())); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckBudget handles POST /api/v1/budgets/check
func (h *Handler) CheckBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.TenantID = identity.TenantID(r.Context())

	decision, err := h.service.CheckBudget(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, decision)
}

// GetCostSummary handles GET /api/v1/costs
func (h *Handler) GetCostSummary(w http.ResponseWriter, r *http.Request) {
	opts, err := parseCostQuery(r, true)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.service.GetCostSummary(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// GetCostBreakdown handles GET /api/v1/costs/breakdown
func (h *Handler) GetCostBreakdown(w http.ResponseWriter, r *http.Request) {
	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = GroupByResourceGroup
	}
	opts, err := parseCostQuery(r, true)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	breakdown, err := h.service.GetCostBreakdown(r.Context(), groupBy, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, breakdown)
}

// ListCostRecords handles GET /api/v1/costs/records
func (h *Handler) ListCostRecords(w http.ResponseWriter, r *http.Request) {
	opts, err := parseCostQuery(r, false)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opts.Limit, opts.Offset, err = ParsePage(r.URL.Query(), 100); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, total, err := h.service.ListCostRecords(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// RecordCosts handles POST /api/v1/costs/records
func (h *Handler) RecordCosts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []CostRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.service.RecordCosts(r.Context(), identity.TenantID(r.Context()), req.Records)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, result)
}

// Ingest handles POST /api/v1/costs/ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.TenantID = identity.TenantID(r.Context())

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, result)
}

// ListAggregates handles GET /api/v1/costs/aggregates
func (h *Handler) ListAggregates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	scope := query.Get("scope")
	if scope == "" {
		scope = GroupBySubscription
	}
	period := AggregatePeriod(query.Get("period"))
	if period == "" {
		period = AggregateDaily
	}
	start, end, err := parseRange(query)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	aggs, err := h.service.ListAggregates(r.Context(), identity.TenantID(r.Context()), scope, query.Get("scope_id"), period, start, end)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregates": aggs,
		"count":      len(aggs),
	})
}

// GetForecast handles GET /api/v1/costs/forecast
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	opts, err := parseCostQuery(r, false)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.service.Forecast(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

// GetAnomalies handles GET /api/v1/costs/anomalies
func (h *Handler) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	opts, err := parseCostQuery(r, false)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	var ao AnomalyOptions
	for key, dst := range map[string]*int{"days": &ao.Days, "trailing_days": &ao.TrailingDays} {
		if v := query.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 90 {
				h.writeError(w, key+" must be an integer between 1 and 90", http.StatusBadRequest)
				return
			}
			*dst = n
		}
	}
	if v := query.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 {
			h.writeError(w, "threshold must be a positive number", http.StatusBadRequest)
			return
		}
		ao.Threshold = t
	}

	anomalies, err := h.service.DetectAnomalies(r.Context(), opts, ao)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// GetPricing handles GET /api/v1/pricing
func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	pricing := h.service.GetPricing()

	query := r.URL.Query()
	resourceType := query.Get("resource_type")
	sku := query.Get("sku")

	// If specific SKU requested, return just that pricing
	if resourceType != "" && sku != "" {
		price, found := pricing.GetSKUPrice(resourceType, sku)
		if !found {
			h.writeError(w, "SKU pricing not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"resource_type": resourceType,
			"sku":           sku,
			"pricing":       price,
		})
		return
	}

	if resourceType != "" {
		skus, ok := pricing.Snapshot()[resourceType]
		if !ok {
			h.writeError(w, "Resource type not found", http.StatusNotFound)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"resource_type": resourceType,
			"skus":          skus,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources": pricing.Snapshot(),
	})
}

// Helper functions

// ParsePage reads limit and offset query parameters. limit must be within
// 1..MaxPageLimit and offset must not be negative.
func ParsePage(query url.Values, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if v := query.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxPageLimit {
			return 0, 0, fmt.Errorf("limit must be an integer between 1 and %d", MaxPageLimit)
		}
	}
	if v := query.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func parseRange(query url.Values) (start, end time.Time, err error) {
	if v := query.Get("start_time"); v != "" {
		if start, err = parseTime(v); err != nil {
			return start, end, fmt.Errorf("start_time: %w", err)
		}
	}
	if v := query.Get("end_time"); v != "" {
		if end, err = parseTime(v); err != nil {
			return start, end, fmt.Errorf("end_time: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, errors.New("end_time is before start_time")
	}
	return start, end, nil
}

// parseTime accepts RFC3339 timestamps and YYYY-MM-DD dates
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errors.New("must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

// parseCostQuery reads the cost filter of a request. defaultMonth selects the
// current month when no range or period is given.
func parseCostQuery(r *http.Request, defaultMonth bool) (CostQueryOptions, error) {
	query := r.URL.Query()
	opts := CostQueryOptions{
		TenantID:       identity.TenantID(r.Context()),
		SubscriptionID: query.Get("subscription_id"),
		ResourceGroup:  query.Get("resource_group"),
		Service:        query.Get("service"),
		Location:       query.Get("location"),
		Tag:            query.Get("tag"),
		Period:         query.Get("period"),
	}
	if opts.Tag != "" {
		if _, _, ok := splitTag(opts.Tag); !ok {
			return opts, errors.New("tag must be key=value")
		}
	}
	if opts.Period != "" && !isValidPeriod(BudgetPeriod(opts.Period)) {
		return opts, ErrInvalidBudgetPeriod
	}
	var err error
	if opts.StartTime, opts.EndTime, err = parseRange(query); err != nil {
		return opts, err
	}

	// Default to current month if no period specified
	if defaultMonth && opts.Period == "" && opts.StartTime.IsZero() {
		opts.Period = string(PeriodMonthly)
	}
	return opts, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBudgetNotFound):
		h.writeError(w, "Budget not found", http.StatusNotFound)
	case errors.Is(err, ErrAlertNotFound):
		h.writeError(w, "Alert not found", http.StatusNotFound)
	case errors.Is(err, ErrBudgetExists):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrIngestionUnavailable):
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidGroupBy),
		errors.Is(err, ErrInvalidBudgetID), errors.Is(err, ErrInvalidBudgetName),
		errors.Is(err, ErrInvalidBudgetLimit), errors.Is(err, ErrInvalidBudgetScope),
		errors.Is(err, ErrInvalidBudgetPeriod), errors.Is(err, ErrInvalidOnExceed):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
