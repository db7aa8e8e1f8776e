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

package infra

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStore_Expiry(t *testing.T) {
	s := NewResultStore(time.Hour, 0, quietLogger())
	defer s.Stop()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Put(&GenerationResult{ID: "old", TenantID: "t1", GeneratedAt: now.Add(-30 * time.Minute)})
	s.Put(&GenerationResult{ID: "new", TenantID: "t1", GeneratedAt: now})
	s.Put(&GenerationResult{ID: "other", TenantID: "t2", GeneratedAt: now})

	got, err := s.Get("old")
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), got.ExpiresAt)

	list := s.List("t1")
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Len(t, s.List(""), 3)

	now = now.Add(45 * time.Minute)
	_, err = s.Get("old")
	assert.True(t, errors.Is(err, ErrGenerationNotFound))
	assert.Equal(t, 3, s.Len(), "expired results stay until purged")

	assert.Equal(t, 1, s.Purge())
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Delete("new"))
	assert.True(t, errors.Is(s.Delete("new"), ErrGenerationNotFound))
}

func TestResultStore_JanitorPurges(t *testing.T) {
	s := NewResultStore(20*time.Millisecond, 5*time.Millisecond, quietLogger())
	s.Put(&GenerationResult{ID: "a"})
	assert.Equal(t, 1, s.Len())

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestArchive(t *testing.T) {
	r := &GenerationResult{
		Name:        "app",
		GeneratedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Files: map[string]string{
			"main.bicep":           "targetScope = 'resourceGroup'\n",
			"modules/app-kv.bicep": "param name string\n",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Archive(&buf, r))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "app/main.bicep", zr.File[0].Name)
	assert.Equal(t, "app/modules/app-kv.bicep", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "param name string\n", string(body))
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Len(t, reg.Types(), 16)

	gen, ok := reg.Lookup(TypeSubnet)
	require.True(t, ok)
	assert.False(t, gen.UsesWorkspace())

	gen, ok = reg.Lookup(TypeAppInsights)
	require.True(t, ok)
	assert.True(t, gen.UsesWorkspace())
	assert.False(t, gen.DiagnosticsSupported())

	reg.Unregister(TypeSubnet)
	_, ok = reg.Lookup(TypeSubnet)
	assert.False(t, ok)
	assert.Len(t, reg.Types(), 15)
	assert.Len(t, reg.Describe(), 15)
}
