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

package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/admin"
	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/infra"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPatterns(t *testing.T) {
	out, err := run(t, "patterns", "--json")
	require.NoError(t, err)

	var patterns []infra.Pattern
	require.NoError(t, json.Unmarshal([]byte(out), &patterns))
	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "three-tier-web")

	out, err = run(t, "patterns")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "NAME"))
}

func TestGenerate_OutDir(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "generate", "--name", "shop", "--pattern", "three-tier-web", "--format", "terraform", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "shop"))

	main, err := os.ReadFile(filepath.Join(dir, "shop", "main.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "module")
}

func TestGenerate_ZipFromFile(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(reqPath, []byte(`name: vault
format: bicep
environment: prod
resources:
  - name: kv
    type: key_vault
  - name: st
    type: storage_account
`), 0o644))
	zipPath := filepath.Join(dir, "vault.zip")

	_, err := run(t, "generate", "-f", reqPath, "--zip", zipPath)
	require.NoError(t, err)

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.NotEmpty(t, zr.File)
	for _, f := range zr.File {
		assert.True(t, strings.HasPrefix(f.Name, "vault/"), f.Name)
	}
}

func TestGenerate_Errors(t *testing.T) {
	_, err := run(t, "generate", "--name", "shop")
	assert.ErrorIs(t, err, infra.ErrInvalidRequest)

	_, err = run(t, "generate", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEstimate(t *testing.T) {
	out, err := run(t, "estimate", "--name", "api", "--pattern", "serverless-api", "--env", "prod", "--json")
	require.NoError(t, err)

	var est cost.Estimate
	require.NoError(t, json.Unmarshal([]byte(out), &est))
	assert.Equal(t, "USD", est.Currency)
	assert.Equal(t, "prod", est.Environment)
	assert.NotEmpty(t, est.Items)

	out, err = run(t, "estimate", "--name", "api", "--pattern", "serverless-api")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")
}

func TestControls(t *testing.T) {
	out, err := run(t, "controls", "--family", "ac", "--json")
	require.NoError(t, err)
	var controls []compliance.Control
	require.NoError(t, json.Unmarshal([]byte(out), &controls))
	require.NotEmpty(t, controls)
	for _, c := range controls {
		assert.Equal(t, "AC", c.Family)
	}

	out, err = run(t, "controls", "ac-2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "AC-2 "))

	_, err = run(t, "controls", "--family", "ZZ")
	assert.Error(t, err)
	_, err = run(t, "controls", "--baseline", "extreme")
	assert.Error(t, err)
	_, err = run(t, "controls", "ZZ-99")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "--secret", "s3cret", "--tenant", "tenant-a", "--user", "alice", "--role", "admin")
	require.NoError(t, err)

	id, err := admin.ParseToken("s3cret", "platform-copilot", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", id.TenantID)
	assert.Equal(t, "alice", id.UserID)
	assert.Equal(t, []string{"admin"}, id.Roles)

	t.Setenv("JWT_SECRET", "")
	_, err = run(t, "token", "--tenant", "tenant-a", "--user", "alice")
	assert.Error(t, err)
}
