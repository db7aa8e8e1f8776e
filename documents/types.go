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

// Package documents renders compliance documents (SSP, POA&M, SAR and ATO
// packages) from assessment results and keeps them in object storage.
package documents

import (
	"fmt"
	"strings"
	"time"

	"copilot/platform/compliance"
)

// Type identifies a document kind
type Type string

const (
	TypeSSP  Type = "ssp"
	TypePOAM Type = "poam"
	TypeSAR  Type = "sar"
	TypeATO  Type = "ato"
)

// Types lists every document type
var Types = []Type{TypeSSP, TypePOAM, TypeSAR, TypeATO}

// ParseType validates a document type name
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Title returns the human name of the document type
func (t Type) Title() string {
	switch t {
	case TypeSSP:
		return "System Security Plan"
	case TypePOAM:
		return "Plan of Action and Milestones"
	case TypeSAR:
		return "Security Assessment Report"
	case TypeATO:
		return "Authorization Package"
	}
	return string(t)
}

// Format is the rendering of a document
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatZip      Format = "zip"
)

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatZip:
		return "application/zip"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Extension returns the file extension of the format
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatZip:
		return "zip"
	default:
		return "md"
	}
}

// formatFor resolves the requested format for a type. Only POA&M offers a
// choice; the ATO package is always a zip.
func formatFor(t Type, requested Format) (Format, error) {
	switch t {
	case TypeATO:
		if requested != "" && requested != FormatZip {
			return "", fmt.Errorf("%w: %s is only available as zip", ErrInvalidType, t)
		}
		return FormatZip, nil
	case TypePOAM:
		switch requested {
		case "", FormatMarkdown:
			return FormatMarkdown, nil
		case FormatCSV:
			return FormatCSV, nil
		}
	default:
		if requested == "" || requested == FormatMarkdown {
			return FormatMarkdown, nil
		}
	}
	return "", fmt.Errorf("%w: %s does not support format %q", ErrInvalidType, t, requested)
}

// Impact is a FIPS 199 impact level
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactModerate Impact = "moderate"
	ImpactHigh     Impact = "high"
)

func (i Impact) rank() int {
	switch i {
	case ImpactLow:
		return 1
	case ImpactModerate:
		return 2
	case ImpactHigh:
		return 3
	}
	return 0
}

// Categorization is the FIPS 199 security categorization of a system
type Categorization struct {
	Confidentiality Impact `json:"confidentiality"`
	Integrity       Impact `json:"integrity"`
	Availability    Impact `json:"availability"`
}

// Overall returns the high-water mark of the three objectives
func (c Categorization) Overall() Impact {
	overall := ImpactLow
	for _, i := range []Impact{c.Confidentiality, c.Integrity, c.Availability} {
		if i.rank() > overall.rank() {
			overall = i
		}
	}
	return overall
}

func (c Categorization) validate() error {
	for name, i := range map[string]Impact{
		"confidentiality": c.Confidentiality, "integrity": c.Integrity, "availability": c.Availability,
	} {
		if i.rank() == 0 {
			return fmt.Errorf("%w: %s impact %q", ErrInvalidRequest, name, i)
		}
	}
	return nil
}

// categorizationFor derives a uniform categorization from a baseline
func categorizationFor(b compliance.Baseline) Categorization {
	i := Impact(b)
	if i.rank() == 0 {
		i = ImpactModerate
	}
	return Categorization{Confidentiality: i, Integrity: i, Availability: i}
}

// SystemInfo describes the system a document covers
type SystemInfo struct {
	Name           string         `json:"name" yaml:"name"`
	Abbreviation   string         `json:"abbreviation,omitempty" yaml:"abbreviation"`
	Description    string         `json:"description,omitempty" yaml:"description"`
	Owner          string         `json:"owner,omitempty" yaml:"owner"`
	Authorizer     string         `json:"authorizing_official,omitempty" yaml:"authorizing_official"`
	Environment    string         `json:"environment,omitempty" yaml:"environment"`
	Boundary       string         `json:"authorization_boundary,omitempty" yaml:"authorization_boundary"`
	Categorization Categorization `json:"categorization" yaml:"categorization"`
}

// GenerateRequest asks for one document built from an assessment
type GenerateRequest struct {
	Type         Type       `json:"type"`
	AssessmentID string     `json:"assessment_id"`
	Format       Format     `json:"format,omitempty"`
	System       SystemInfo `json:"system"`
	TenantID     string     `json:"-"`
	RequestedBy  string     `json:"-"`
}

// Document is the metadata of a stored document
type Document struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id,omitempty"`
	Type           Type      `json:"type"`
	Title          string    `json:"title"`
	Format         Format    `json:"format"`
	ContentType    string    `json:"content_type"`
	AssessmentID   string    `json:"assessment_id"`
	SubscriptionID string    `json:"subscription_id"`
	SystemName     string    `json:"system_name"`
	Size           int64     `json:"size"`
	SHA256         string    `json:"sha256"`
	StorageKey     string    `json:"storage_key"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filename is the download name of the document
func (d Document) Filename() string {
	name := slug(d.SystemName)
	if name == "" {
		name = "system"
	}
	return fmt.Sprintf("%s-%s-%s.%s", name, d.Type, d.CreatedAt.UTC().Format("20060102"), d.Format.Extension())
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
