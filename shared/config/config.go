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

// Package config loads copilot service configuration from an optional YAML
// file overlaid by environment variables, then applies defaults and
// validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"copilot/platform/shared/types"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigFileEnv names the environment variable pointing at the YAML overlay
const ConfigFileEnv = "COPILOT_CONFIG_FILE"

// Config is the complete runtime configuration shared by all binaries
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	DatabaseURL string           `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string           `yaml:"redis_url" env:"REDIS_URL"`
	Azure       AzureConfig      `yaml:"azure"`
	Auth        AuthConfig       `yaml:"auth"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Documents   DocumentsConfig  `yaml:"documents"`
	Generation  GenerationConfig `yaml:"generation"`
	Agents      AgentsConfig     `yaml:"agents"`
	MCP         MCPConfig        `yaml:"mcp"`
	Cost        CostConfig       `yaml:"cost"`
	Audit       AuditConfig      `yaml:"audit"`
	LogLevel    string           `yaml:"log_level" env:"LOG_LEVEL"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port        string   `yaml:"port" env:"PORT"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// AzureConfig selects the cloud and identity used for management calls
type AzureConfig struct {
	Cloud          string `yaml:"cloud" env:"AZURE_CLOUD"`
	SubscriptionID string `yaml:"subscription_id" env:"AZURE_SUBSCRIPTION_ID"`
	TenantID       string `yaml:"tenant_id" env:"AZURE_TENANT_ID"`
	ClientID       string `yaml:"client_id" env:"AZURE_CLIENT_ID"`
}

// AuthConfig controls Admin API bearer token validation
type AuthConfig struct {
	Mode      string `yaml:"mode" env:"AUTH_MODE"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
}

// RateLimitConfig sets the per-tenant request budget. PerMinute 0 (unset)
// selects the default of 600; a negative value disables rate limiting.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" env:"RATE_LIMIT_PER_MINUTE"`
}

// DocumentsConfig selects where generated compliance documents are stored
type DocumentsConfig struct {
	Backend          string `yaml:"backend" env:"DOCUMENTS_BACKEND"`
	Container        string `yaml:"container" env:"DOCUMENTS_CONTAINER"`
	AccountName      string `yaml:"account_name" env:"DOCUMENTS_ACCOUNT_NAME"`
	AccountKey       string `yaml:"account_key" env:"DOCUMENTS_ACCOUNT_KEY"`
	ConnectionString string `yaml:"connection_string" env:"DOCUMENTS_CONNECTION_STRING"`
	Region           string `yaml:"region" env:"DOCUMENTS_REGION"`
	CredentialsFile  string `yaml:"credentials_file" env:"DOCUMENTS_CREDENTIALS_FILE"`
	LocalRoot        string `yaml:"local_root" env:"DOCUMENTS_LOCAL_ROOT"`
}

// GenerationConfig controls how long generated infrastructure is retained
type GenerationConfig struct {
	Retention       time.Duration `yaml:"retention" env:"GENERATION_RETENTION"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"GENERATION_CLEANUP_INTERVAL"`
}

// AgentsConfig points at the agent routing file
type AgentsConfig struct {
	ConfigFile string `yaml:"config_file" env:"AGENTS_CONFIG_FILE"`
}

// MCPConfig selects the MCP transport
type MCPConfig struct {
	Transport string `yaml:"transport" env:"MCP_TRANSPORT"`
	Addr      string `yaml:"addr" env:"MCP_ADDR"`
}

// CostConfig holds cost management settings
type CostConfig struct {
	PricingFile string `yaml:"pricing_file" env:"COST_PRICING_FILE"`
}

// AuditConfig tunes the asynchronous audit writer
type AuditConfig struct {
	QueueSize     int           `yaml:"queue_size" env:"AUDIT_QUEUE_SIZE"`
	BatchSize     int           `yaml:"batch_size" env:"AUDIT_BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"AUDIT_FLUSH_INTERVAL"`
}

// Load reads the YAML overlay named by COPILOT_CONFIG_FILE (if any), applies
// environment variables on top, fills defaults and validates.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit overlay path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Azure.Cloud == "" {
		c.Azure.Cloud = string(types.CloudPublic)
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "off"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "platform-copilot"
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 600
	}
	if c.Documents.Backend == "" {
		c.Documents.Backend = "local"
	}
	if c.Documents.Container == "" {
		c.Documents.Container = "compliance-documents"
	}
	if c.Documents.LocalRoot == "" {
		c.Documents.LocalRoot = "./data/documents"
	}
	if c.Generation.Retention == 0 {
		c.Generation.Retention = 24 * time.Hour
	}
	if c.Generation.CleanupInterval == 0 {
		c.Generation.CleanupInterval = 10 * time.Minute
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = "stdio"
	}
	if c.MCP.Addr == "" {
		c.MCP.Addr = ":8090"
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = 5 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
}

// Validate checks enumerations and cross-field requirements
func (c *Config) Validate() error {
	if _, err := types.ParseCloudEnvironment(c.Azure.Cloud); err != nil {
		return fmt.Errorf("%w: azure.cloud: %v", ErrInvalidConfig, err)
	}
	switch c.Auth.Mode {
	case "off":
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("%w: auth.jwt_secret is required when auth.mode is jwt", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: auth.mode must be off or jwt, got %q", ErrInvalidConfig, c.Auth.Mode)
	}
	switch c.Documents.Backend {
	case "local":
	case "azureblob":
		if c.Documents.AccountName == "" && c.Documents.ConnectionString == "" {
			return fmt.Errorf("%w: documents.account_name or documents.connection_string is required for azureblob", ErrInvalidConfig)
		}
	case "s3", "gcs":
		if c.Documents.Container == "" {
			return fmt.Errorf("%w: documents.container is required for %s", ErrInvalidConfig, c.Documents.Backend)
		}
	default:
		return fmt.Errorf("%w: documents.backend must be local, azureblob, s3 or gcs, got %q", ErrInvalidConfig, c.Documents.Backend)
	}
	if c.Generation.Retention < 0 || c.Generation.CleanupInterval < 0 {
		return fmt.Errorf("%w: generation durations must not be negative", ErrInvalidConfig)
	}
	if c.Audit.QueueSize < 0 || c.Audit.BatchSize < 0 || c.Audit.FlushInterval < 0 {
		return fmt.Errorf("%w: audit settings must not be negative", ErrInvalidConfig)
	}
	switch c.MCP.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("%w: mcp.transport must be stdio or http, got %q", ErrInvalidConfig, c.MCP.Transport)
	}
	return nil
}

// CloudEnvironment returns the parsed Azure cloud
func (c *Config) CloudEnvironment() types.CloudEnvironment {
	ce, err := types.ParseCloudEnvironment(c.Azure.Cloud)
	if err != nil {
		return types.CloudPublic
	}
	return ce
}

// envVarRegex matches ${VAR}, ${VAR:-default} and $VAR
var envVarRegex = regexp.MustCompile(`\$\{[^}]+\}|\$[A-Za-z_][A-Za-z0-9_]*`)

func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
