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

package agents

import (
	"context"
	"fmt"
	"regexp"

	"copilot/platform/documents"
)

// DocumentGenerator produces stored documents
type DocumentGenerator interface {
	Generate(ctx context.Context, req documents.GenerateRequest) (*documents.Document, error)
}

var documentWords = []struct {
	re  *regexp.Regexp
	typ documents.Type
}{
	{regexp.MustCompile(`(?i)\b(ato|authori[sz]ation package)\b`), documents.TypeATO},
	{regexp.MustCompile(`(?i)\b(poa&?m|plan of action)\b`), documents.TypePOAM},
	{regexp.MustCompile(`(?i)\b(sar|assessment report)\b`), documents.TypeSAR},
	{regexp.MustCompile(`(?i)\b(ssp|system security plan)\b`), documents.TypeSSP},
}

// DocumentsAgent generates compliance documents from an assessment
type DocumentsAgent struct {
	svc DocumentGenerator
}

// NewDocumentsAgent creates the agent
func NewDocumentsAgent(svc DocumentGenerator) *DocumentsAgent {
	return &DocumentsAgent{svc: svc}
}

func (a *DocumentsAgent) Name() string { return "documents" }

func (a *DocumentsAgent) Description() string {
	return "Produces SSP, POA&M, SAR and ATO package documents"
}

func documentTypeFrom(task Task) (documents.Type, error) {
	if t := task.Param("type", ""); t != "" {
		return documents.ParseType(t)
	}
	for _, w := range documentWords {
		if w.re.MatchString(task.Query) {
			return w.typ, nil
		}
	}
	return "", fmt.Errorf("%w: type (ssp, poam, sar or ato)", ErrMissingParameter)
}

func (a *DocumentsAgent) Handle(ctx context.Context, task Task) (*Output, error) {
	typ, err := documentTypeFrom(task)
	if err != nil {
		return nil, err
	}
	assessmentID := task.Param("assessment_id", "")
	if assessmentID == "" {
		return nil, fmt.Errorf("%w: assessment_id", ErrMissingParameter)
	}

	doc, err := a.svc.Generate(ctx, documents.GenerateRequest{
		Type:         typ,
		AssessmentID: assessmentID,
		Format:       documents.Format(task.Param("format", "")),
		System:       documents.SystemInfo{Name: task.Param("system_name", "")},
		TenantID:     task.TenantID,
		RequestedBy:  task.UserID,
	})
	if err != nil {
		return nil, err
	}
	return &Output{
		Summary: fmt.Sprintf("Generated %s %s (%d bytes)", doc.Title, doc.ID, doc.Size),
		Data:    doc,
	}, nil
}
