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
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_agents.yaml
var defaultConfigYAML []byte

const (
	// APIVersionPrefix is required on every routing file
	APIVersionPrefix = "copilot.io/"

	// MaxPatternLength bounds routing patterns
	MaxPatternLength = 1000

	// DefaultMaxParallel is the fan-out width when the file sets none
	DefaultMaxParallel = 4

	// DefaultTimeout bounds one dispatch when the file sets none
	DefaultTimeout = 2 * time.Minute
)

// nested quantifiers like (a+)+
var dangerousPattern = regexp.MustCompile(`\([^)]*[+*][^)]*\)[+*]`)

var identifier = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config is an agent routing file in the apiVersion/kind layout
type Config struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   Metadata   `yaml:"metadata"`
	Spec       ConfigSpec `yaml:"spec"`
}

// Metadata names the routing file
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ConfigSpec holds the agents and their routing rules
type ConfigSpec struct {
	Execution Execution     `yaml:"execution"`
	Agents    []AgentDef    `yaml:"agents"`
	Routing   []RoutingRule `yaml:"routing"`
}

// Execution tunes dispatch fan-out
type Execution struct {
	MaxParallelTasks int `yaml:"max_parallel_tasks"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
}

// AgentDef declares an agent that rules may route to
type AgentDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// RoutingRule sends queries matching Pattern to Agent. Higher priority
// rules are evaluated first.
type RoutingRule struct {
	Pattern  string `yaml:"pattern"`
	Agent    string `yaml:"agent"`
	Priority int    `yaml:"priority,omitempty"`
}

type compiledRule struct {
	RoutingRule
	re *regexp.Regexp
}

// DefaultConfig returns the built-in routing
func DefaultConfig() *Config {
	cfg, err := ParseConfig(defaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded agent config: %v", err))
	}
	return cfg
}

// LoadConfig reads a routing file. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a routing file
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the file for correctness
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.APIVersion, APIVersionPrefix) {
		return fmt.Errorf("%w: apiVersion must start with %q, got %q", ErrInvalidConfig, APIVersionPrefix, c.APIVersion)
	}
	if c.Kind != "AgentConfig" {
		return fmt.Errorf("%w: kind must be AgentConfig, got %q", ErrInvalidConfig, c.Kind)
	}
	if c.Metadata.Name == "" {
		return fmt.Errorf("%w: metadata.name is required", ErrInvalidConfig)
	}
	if c.Spec.Execution.MaxParallelTasks < 0 || c.Spec.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: execution limits cannot be negative", ErrInvalidConfig)
	}
	if len(c.Spec.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent is required", ErrInvalidConfig)
	}

	names := make(map[string]bool, len(c.Spec.Agents))
	for i, a := range c.Spec.Agents {
		if !identifier.MatchString(a.Name) {
			return fmt.Errorf("%w: agents[%d].name %q must be lowercase alphanumeric with hyphens", ErrInvalidConfig, i, a.Name)
		}
		if names[a.Name] {
			return fmt.Errorf("%w: duplicate agent %q", ErrInvalidConfig, a.Name)
		}
		names[a.Name] = true
	}

	for i, r := range c.Spec.Routing {
		if err := validatePattern(r.Pattern); err != nil {
			return fmt.Errorf("%w: routing[%d]: %v", ErrInvalidConfig, i, err)
		}
		if !names[r.Agent] {
			return fmt.Errorf("%w: routing[%d] targets undeclared agent %q", ErrInvalidConfig, i, r.Agent)
		}
	}
	return nil
}

func validatePattern(p string) error {
	if p == "" {
		return fmt.Errorf("pattern is required")
	}
	if len(p) > MaxPatternLength {
		return fmt.Errorf("pattern too long: max %d characters", MaxPatternLength)
	}
	if dangerousPattern.MatchString(p) {
		return fmt.Errorf("pattern contains nested quantifiers")
	}
	if _, err := regexp.Compile(p); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// Agent returns the declaration of name
func (c *Config) Agent(name string) (AgentDef, bool) {
	for _, a := range c.Spec.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentDef{}, false
}

// compile returns the rules ordered by priority, then file order
func (c *Config) compile() ([]compiledRule, error) {
	rules := make([]compiledRule, 0, len(c.Spec.Routing))
	for i, r := range c.Spec.Routing {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: routing[%d]: %v", ErrInvalidConfig, i, err)
		}
		rules = append(rules, compiledRule{RoutingRule: r, re: re})
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	return rules, nil
}

// Timeout returns the dispatch timeout
func (e Execution) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// MaxParallel returns the fan-out width
func (e Execution) MaxParallel() int {
	if e.MaxParallelTasks <= 0 {
		return DefaultMaxParallel
	}
	return e.MaxParallelTasks
}
