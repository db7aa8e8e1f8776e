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

package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"copilot/platform/compliance"
	"copilot/platform/shared/logger"
	"copilot/platform/shared/metrics"
)

// AssessmentSource loads the assessment a document is built from
type AssessmentSource interface {
	GetAssessment(ctx context.Context, tenantID, id string) (*compliance.Assessment, error)
}

// Service generates, stores and serves compliance documents
type Service struct {
	assessments AssessmentSource
	catalog     *compliance.Catalog
	storage     Storage
	repo        Repository
	log         *logger.Logger
	now         func() time.Time
}

// NewService creates a document service. A nil repo keeps metadata in memory.
func NewService(assessments AssessmentSource, catalog *compliance.Catalog, storage Storage, repo Repository, log *logger.Logger) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if catalog == nil {
		catalog = compliance.DefaultCatalog()
	}
	if log == nil {
		log = logger.New("documents")
	}
	return &Service{
		assessments: assessments,
		catalog:     catalog,
		storage:     storage,
		repo:        repo,
		log:         log,
		now:         time.Now,
	}
}

// Rendered is a document built but not yet stored
type Rendered struct {
	Type       Type
	Format     Format
	Data       []byte
	Assessment *compliance.Assessment
	System     SystemInfo
}

// Render builds the document bytes without storing them
func (s *Service) Render(ctx context.Context, req GenerateRequest) (*Rendered, error) {
	t, err := ParseType(string(req.Type))
	if err != nil {
		return nil, err
	}
	format, err := formatFor(t, req.Format)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.AssessmentID) == "" {
		return nil, fmt.Errorf("%w: assessment_id is required", ErrInvalidRequest)
	}

	a, err := s.assessments.GetAssessment(ctx, req.TenantID, req.AssessmentID)
	if err != nil {
		return nil, err
	}
	sys, err := systemDefaults(req.System, a)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var data []byte
	switch t {
	case TypeSSP:
		data, err = RenderSSP(sys, s.catalog, a, now)
	case TypeSAR:
		data, err = RenderSAR(sys, a, now)
	case TypePOAM:
		items := BuildPOAM(a)
		if format == FormatCSV {
			data, err = RenderPOAMCSV(items)
		} else {
			data, err = RenderPOAMMarkdown(sys, a, items, now)
		}
	case TypeATO:
		data, err = BuildATOPackage(sys, s.catalog, a, now)
	}
	if err != nil {
		return nil, err
	}
	return &Rendered{Type: t, Format: format, Data: data, Assessment: a, System: sys}, nil
}

// systemDefaults fills a missing name and categorization from the assessment
func systemDefaults(sys SystemInfo, a *compliance.Assessment) (SystemInfo, error) {
	if strings.TrimSpace(sys.Name) == "" {
		sys.Name = "Azure subscription " + a.SubscriptionID
		if a.ResourceGroup != "" {
			sys.Name += " / " + a.ResourceGroup
		}
	}
	if sys.Categorization == (Categorization{}) {
		sys.Categorization = categorizationFor(a.Baseline)
	}
	if err := sys.Categorization.validate(); err != nil {
		return SystemInfo{}, err
	}
	return sys, nil
}

// Generate renders a document, stores it and records its metadata
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Document, error) {
	start := time.Now()
	r, err := s.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(r.Data)
	id := uuid.New().String()
	tenant := req.TenantID
	if tenant == "" {
		tenant = "default"
	}
	doc := &Document{
		ID:             id,
		TenantID:       req.TenantID,
		Type:           r.Type,
		Format:         r.Format,
		ContentType:    r.Format.ContentType(),
		AssessmentID:   r.Assessment.ID,
		SubscriptionID: r.Assessment.SubscriptionID,
		SystemName:     r.System.Name,
		Size:           int64(len(r.Data)),
		SHA256:         hex.EncodeToString(sum[:]),
		StorageKey:     fmt.Sprintf("%s/%s/%s.%s", tenant, r.Type, id, r.Format.Extension()),
		CreatedBy:      req.RequestedBy,
		CreatedAt:      s.now().UTC(),
	}
	doc.Title = fmt.Sprintf("%s: %s", doc.Type.Title(), r.System.Name)

	if err := s.storage.Put(ctx, doc.StorageKey, r.Data, doc.ContentType); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		if derr := s.storage.Delete(ctx, doc.StorageKey); derr != nil {
			s.log.Warn(req.TenantID, "", "Failed to remove orphaned document", map[string]interface{}{
				"storage_key": doc.StorageKey,
				"error":       derr.Error(),
			})
		}
		return nil, fmt.Errorf("save document metadata: %w", err)
	}

	metrics.DocumentsGeneratedTotal.WithLabelValues(string(doc.Type)).Inc()
	s.log.InfoWithDuration(req.TenantID, "", "Compliance document generated", float64(time.Since(start).Milliseconds()),
		map[string]interface{}{
			"document_id":   doc.ID,
			"type":          string(doc.Type),
			"format":        string(doc.Format),
			"assessment_id": doc.AssessmentID,
			"size":          doc.Size,
			"storage":       s.storage.Name(),
		})
	return doc, nil
}

// Get returns document metadata visible to tenantID
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && d.TenantID != tenantID {
		return nil, ErrDocumentNotFound
	}
	return d, nil
}

// List returns document metadata newest first
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Document, int, error) {
	return s.repo.List(ctx, opts)
}

// Download returns the metadata and bytes of a document. The stored bytes
// are checked against the recorded digest.
func (s *Service) Download(ctx context.Context, tenantID, id string) (*Document, []byte, error) {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.storage.Get(ctx, d.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != d.SHA256 {
		return nil, nil, fmt.Errorf("document %s failed integrity check", id)
	}
	return d, data, nil
}

// Delete removes a document and its stored bytes
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, d.StorageKey); err != nil {
		return fmt.Errorf("delete stored document: %w", err)
	}
	return s.repo.Delete(ctx, id)
}
