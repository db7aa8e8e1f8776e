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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const (
	awsSecretPrefix = "aws-sm://"
	envSecretPrefix = "env://"
)

// SecretsManager fetches a secret as a map of string fields
type SecretsManager interface {
	GetSecret(ctx context.Context, secretID string) (map[string]string, error)
}

// secretsAPI is the part of the Secrets Manager client we call
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client secretsAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client from the
// default credential chain
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSSecretsManager(client secretsAPI, opts AWSSecretsManagerOptions) *AWSSecretsManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[SECRETS_MANAGER] ", log.LstdFlags)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}
}

// GetSecret retrieves a secret. JSON object secrets are returned field by
// field; any other payload is returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretID string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretID]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskSecretID(secretID))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskSecretID(secretID), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskSecretID(secretID))
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err != nil {
		fields = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[secretID] = &secretCacheEntry{value: fields, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return fields, nil
}

// InvalidateAll clears the secret cache
func (s *AWSSecretsManager) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*secretCacheEntry)
	s.mu.Unlock()
}

// maskSecretID shows only the last 8 characters of a secret id
func maskSecretID(id string) string {
	if len(id) <= 12 {
		return "***"
	}
	return "..." + id[len(id)-8:]
}

// NeedsAWSSecrets reports whether any secret-bearing field references AWS
// Secrets Manager.
func (c *Config) NeedsAWSSecrets() bool {
	for _, f := range c.secretFields() {
		if strings.HasPrefix(*f, awsSecretPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces aws-sm://<id>#<key> and env://NAME references in
// secret-bearing fields. sm may be nil when no aws-sm references are present.
func (c *Config) ResolveSecrets(ctx context.Context, sm SecretsManager) error {
	for _, f := range c.secretFields() {
		v, err := resolveSecret(ctx, *f, sm)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

func (c *Config) secretFields() []*string {
	return []*string{
		&c.DatabaseURL,
		&c.RedisURL,
		&c.Auth.JWTSecret,
		&c.Documents.AccountKey,
		&c.Documents.ConnectionString,
	}
}

func resolveSecret(ctx context.Context, value string, sm SecretsManager) (string, error) {
	switch {
	case strings.HasPrefix(value, envSecretPrefix):
		name := strings.TrimPrefix(value, envSecretPrefix)
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment secret %s is not set", ErrInvalidConfig, name)
		}
		return v, nil

	case strings.HasPrefix(value, awsSecretPrefix):
		if sm == nil {
			return "", fmt.Errorf("%w: no secrets manager for %s", ErrInvalidConfig, maskSecretID(value))
		}
		ref := strings.TrimPrefix(value, awsSecretPrefix)
		id, key := ref, "value"
		if idx := strings.LastIndex(ref, "#"); idx != -1 {
			id, key = ref[:idx], ref[idx+1:]
		}
		fields, err := sm.GetSecret(ctx, id)
		if err != nil {
			return "", err
		}
		v, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("%w: secret %s has no key %q", ErrInvalidConfig, maskSecretID(id), key)
		}
		return v, nil
	}
	return value, nil
}
