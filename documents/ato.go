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
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"copilot/platform/compliance"
)

// ManifestName is the digest manifest inside an authorization package
const ManifestName = "manifest.json"

// ManifestEntry describes one file of an authorization package
type ManifestEntry struct {
	Name   string `json:"name"`
	Type   Type   `json:"type"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest lists the package contents with their digests
type Manifest struct {
	System         string              `json:"system"`
	AssessmentID   string              `json:"assessment_id"`
	SubscriptionID string              `json:"subscription_id"`
	Baseline       compliance.Baseline `json:"baseline"`
	Score          float64             `json:"score"`
	GeneratedAt    time.Time           `json:"generated_at"`
	Files          []ManifestEntry     `json:"files"`
}

type packageFile struct {
	name string
	typ  Type
	data []byte
}

// BuildATOPackage zips the SSP, SAR and POA&M (Markdown and CSV) with a
// manifest of SHA-256 digests
func BuildATOPackage(sys SystemInfo, catalog *compliance.Catalog, a *compliance.Assessment, now time.Time) ([]byte, error) {
	ssp, err := RenderSSP(sys, catalog, a, now)
	if err != nil {
		return nil, err
	}
	sar, err := RenderSAR(sys, a, now)
	if err != nil {
		return nil, err
	}
	items := BuildPOAM(a)
	poamMD, err := RenderPOAMMarkdown(sys, a, items, now)
	if err != nil {
		return nil, err
	}
	poamCSV, err := RenderPOAMCSV(items)
	if err != nil {
		return nil, err
	}

	files := []packageFile{
		{"ssp.md", TypeSSP, ssp},
		{"sar.md", TypeSAR, sar},
		{"poam.md", TypePOAM, poamMD},
		{"poam.csv", TypePOAM, poamCSV},
	}

	manifest := Manifest{
		System:         sys.Name,
		AssessmentID:   a.ID,
		SubscriptionID: a.SubscriptionID,
		Baseline:       a.Baseline,
		Score:          a.Score,
		GeneratedAt:    now.UTC(),
	}
	for _, f := range files {
		sum := sha256.Sum256(f.data)
		manifest.Files = append(manifest.Files, ManifestEntry{
			Name: f.name, Type: f.typ, Size: len(f.data), SHA256: hex.EncodeToString(sum[:]),
		})
	}
	mdata, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	files = append(files, packageFile{name: ManifestName, data: mdata})

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: now.UTC()})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close package: %w", err)
	}
	return buf.Bytes(), nil
}
