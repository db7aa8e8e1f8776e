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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "copilot.io/v1", cfg.APIVersion)
	assert.Len(t, cfg.Spec.Agents, 4)
	assert.Equal(t, 4, cfg.Spec.Execution.MaxParallel())
	assert.Equal(t, 120*time.Second, cfg.Spec.Execution.Timeout())

	_, ok := cfg.Agent("documents")
	assert.True(t, ok)
	_, ok = cfg.Agent("llm")
	assert.False(t, ok)
}

func TestCompile_OrdersByPriorityThenFileOrder(t *testing.T) {
	rules, err := DefaultConfig().compile()
	require.NoError(t, err)
	require.Len(t, rules, 4)

	var order []string
	for _, r := range rules {
		order = append(order, r.Agent)
	}
	assert.Equal(t, []string{"documents", "compliance", "cost", "infrastructure"}, order)
}

const validConfig = `
apiVersion: copilot.io/v1
kind: AgentConfig
metadata:
  name: custom
spec:
  agents:
    - name: cost
  routing:
    - pattern: '(?i)money'
      agent: cost
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Metadata.Name)
	assert.Equal(t, DefaultMaxParallel, cfg.Spec.Execution.MaxParallel())
	assert.Equal(t, DefaultTimeout, cfg.Spec.Execution.Timeout())
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "apiVersion: [unterminated"},
		{"wrong api version", "apiVersion: axonflow.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: a}]}"},
		{"wrong kind", "apiVersion: copilot.io/v1\nkind: Agent\nmetadata: {name: x}\nspec: {agents: [{name: a}]}"},
		{"no name", "apiVersion: copilot.io/v1\nkind: AgentConfig\nspec: {agents: [{name: a}]}"},
		{"no agents", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {}"},
		{"bad agent name", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: Cost}]}"},
		{"duplicate agent", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: a}, {name: a}]}"},
		{"negative timeout", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {execution: {timeout_seconds: -1}, agents: [{name: a}]}"},
		{"undeclared agent", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: a}], routing: [{pattern: x, agent: b}]}"},
		{"empty pattern", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: a}], routing: [{pattern: '', agent: a}]}"},
		{"bad regex", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: a}], routing: [{pattern: '(', agent: a}]}"},
		{"nested quantifier", "apiVersion: copilot.io/v1\nkind: AgentConfig\nmetadata: {name: x}\nspec: {agents: [{name: a}], routing: [{pattern: '(a+)+', agent: a}]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "platform-copilot", cfg.Metadata.Name)

	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Metadata.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
