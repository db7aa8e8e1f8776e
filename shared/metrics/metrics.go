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

// Package metrics holds the Prometheus collectors shared by the copilot
// services. Collectors register with the default registry on import.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_http_request_duration_milliseconds",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		},
		[]string{"route"},
	)
	InfraGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_infra_generations_total",
			Help: "Total number of infrastructure generations",
		},
		[]string{"format", "status"},
	)
	InfraModulesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_infra_modules_generated_total",
			Help: "Total number of resource modules emitted",
		},
		[]string{"resource_type"},
	)
	ComplianceAssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_compliance_assessments_total",
			Help: "Total number of compliance assessments run",
		},
		[]string{"status"},
	)
	ComplianceScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copilot_compliance_score",
			Help: "Latest compliance score per subscription and baseline",
		},
		[]string{"subscription", "baseline"},
	)
	DocumentsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_documents_generated_total",
			Help: "Total number of compliance documents generated",
		},
		[]string{"type"},
	)
	CostRecordsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_cost_records_ingested_total",
			Help: "Total number of cost records ingested from Cost Management",
		},
	)
	AgentDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_agent_dispatch_total",
			Help: "Total number of agent dispatches",
		},
		[]string{"agent", "status"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(InfraGenerationsTotal)
	prometheus.MustRegister(InfraModulesGenerated)
	prometheus.MustRegister(ComplianceAssessmentsTotal)
	prometheus.MustRegister(ComplianceScore)
	prometheus.MustRegister(DocumentsGeneratedTotal)
	prometheus.MustRegister(CostRecordsIngested)
	prometheus.MustRegister(AgentDispatchTotal)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status buckets a response code for the status label
func Status(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
