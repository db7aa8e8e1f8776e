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

package compliance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Len(t, c.Families(), 20)
	assert.Greater(t, c.Len(), 40)

	ctl, err := c.Control("ac-2")
	require.NoError(t, err)
	assert.Equal(t, "AC", ctl.Family)
	assert.Equal(t, "Account Management", ctl.Title)

	_, err = c.Control("XX-1")
	assert.True(t, errors.Is(err, ErrControlNotFound))

	fam, ok := c.Family("ca")
	require.True(t, ok)
	assert.Equal(t, "Assessment, Authorization, and Monitoring", fam.Name)
}

func TestCatalog_Controls(t *testing.T) {
	c := DefaultCatalog()

	var ids []string
	for _, ctl := range c.Controls(ControlFilter{Family: "ac"}) {
		ids = append(ids, ctl.ID)
	}
	assert.Equal(t, []string{"AC-2", "AC-3", "AC-6", "AC-7", "AC-17"}, ids)

	low := c.Controls(ControlFilter{Baseline: BaselineLow})
	moderate := c.Controls(ControlFilter{Baseline: BaselineModerate})
	high := c.Controls(ControlFilter{Baseline: BaselineHigh})
	assert.Less(t, len(low), len(moderate))
	assert.Equal(t, len(moderate), len(high))

	for _, ctl := range low {
		assert.NotEqual(t, "SC-8", ctl.ID)
		assert.NotEqual(t, "PM-9", ctl.ID)
	}
	for _, ctl := range high {
		assert.NotEqual(t, "PM-9", ctl.ID, "unallocated controls are in no baseline")
	}

	for _, ctl := range c.Controls(ControlFilter{Automated: true}) {
		assert.True(t, ctl.Automated)
	}
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"wrong kind", "kind: Something\n"},
		{"not yaml", "kind: [\n"},
		{"unknown family", `
kind: ControlCatalog
spec:
  families: [{id: AC, name: Access Control}]
  controls: [{id: ZZ-1, title: x}]
`},
		{"duplicate control", `
kind: ControlCatalog
spec:
  families: [{id: AC, name: Access Control}]
  controls: [{id: AC-1, title: x}, {id: ac-1, title: y}]
`},
		{"bad baseline", `
kind: ControlCatalog
spec:
  families: [{id: AC, name: Access Control}]
  controls: [{id: AC-1, title: x, baseline: extreme}]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.True(t, errors.Is(err, ErrInvalidCatalog), "got %v", err)
		})
	}
}

func TestBaselineAndSeverity(t *testing.T) {
	b, err := ParseBaseline("")
	require.NoError(t, err)
	assert.Equal(t, BaselineModerate, b)

	b, err = ParseBaseline("HIGH")
	require.NoError(t, err)
	assert.True(t, b.Includes(BaselineLow))
	assert.False(t, BaselineLow.Includes(BaselineModerate))
	assert.False(t, BaselineHigh.Includes(""))

	_, err = ParseBaseline("extreme")
	assert.True(t, errors.Is(err, ErrInvalidBaseline))

	_, err = ParseSeverity("urgent")
	assert.True(t, errors.Is(err, ErrInvalidSeverity))

	assert.Equal(t, 15, SeverityCritical.RemediationDays())
	assert.Equal(t, 30, SeverityHigh.RemediationDays())
	assert.Equal(t, 90, SeverityMedium.RemediationDays())
	assert.Equal(t, 180, SeverityLow.RemediationDays())
}
