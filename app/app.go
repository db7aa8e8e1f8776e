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

// Package app wires configuration, storage and domain services into the
// Admin API and MCP server processes.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"copilot/platform/agents"
	"copilot/platform/audit"
	"copilot/platform/azure"
	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/infra"
	"copilot/platform/shared/cache"
	"copilot/platform/shared/config"
	"copilot/platform/shared/logger"
)

// Runtime holds the services one process needs and the connections behind them
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *sql.DB
	Redis  *redis.Client

	Generator  *infra.CompositeGenerator
	Compliance *compliance.Service
	Documents  *documents.Service
	Cost       *cost.Service
	Agents     *agents.Router
	Audit      *audit.Logger
	Limiter    *cache.RateLimiter

	closers []func(context.Context)
}

// LoadConfig loads configuration and resolves secret references, using AWS
// Secrets Manager only when a field needs it
func LoadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	var sm config.SecretsManager
	if cfg.NeedsAWSSecrets() {
		secrets, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{Logger: newStdLogger("[SECRETS_MANAGER] ")})
		if err != nil {
			return nil, err
		}
		sm = secrets
	}
	if err := cfg.ResolveSecrets(ctx, sm); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

type schemaOwner interface {
	EnsureSchema(ctx context.Context) error
}

// Build connects the configured backends and constructs every service.
// Without DATABASE_URL the in-memory repositories are used; without REDIS_URL
// caching and rate limiting stay in process.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log}
	if err := rt.build(ctx); err != nil {
		rt.Close(context.Background())
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg, log := rt.Config, rt.Log
	stdLog := newStdLogger("[Cost] ")

	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		rt.DB = db
		rt.closers = append(rt.closers, func(context.Context) { _ = db.Close() })
		log.Info("", "", "Connected to PostgreSQL", nil)
	}

	var latest cache.Cache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		rt.Redis = client
		rt.closers = append(rt.closers, func(context.Context) { _ = client.Close() })
		latest = cache.NewRedisCache(client, "copilot")
		log.Info("", "", "Connected to Redis", nil)
	} else {
		mem := cache.NewMemoryCache(time.Minute)
		rt.closers = append(rt.closers, func(context.Context) { mem.Stop() })
		latest = mem
	}
	rt.Limiter = cache.NewRateLimiter(rt.Redis, cfg.RateLimit.PerMinute, newStdLogger("[RateLimit] "))

	// Infrastructure
	store := infra.NewResultStore(cfg.Generation.Retention, cfg.Generation.CleanupInterval, log)
	rt.closers = append(rt.closers, func(context.Context) { store.Stop() })
	rt.Generator = infra.NewCompositeGenerator(nil, store, log)

	// Azure management client
	az, err := azure.NewDefaultClient(cfg.CloudEnvironment(), cfg.Azure.TenantID, log)
	if err != nil {
		return err
	}

	// Compliance
	var compRepo compliance.Repository = compliance.NewMemoryRepository()
	var docRepo documents.Repository = documents.NewMemoryRepository()
	var costRepo cost.Repository = cost.NewMemoryRepository()
	var auditStore audit.Store = audit.NewMemoryStore(0)
	if rt.DB != nil {
		pgComp := compliance.NewPostgresRepository(rt.DB)
		pgDocs := documents.NewPostgresRepository(rt.DB)
		pgCost := cost.NewPostgresRepository(rt.DB)
		pgAudit := audit.NewPostgresStore(rt.DB)
		for _, owner := range []schemaOwner{pgComp, pgDocs, pgCost, pgAudit} {
			if err := owner.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		compRepo, docRepo, costRepo, auditStore = pgComp, pgDocs, pgCost, pgAudit
	}

	assessor := compliance.NewAssessor(nil, []compliance.Collector{
		compliance.NewInventoryCollector(az),
		compliance.NewDefenderCollector(az),
	}, &compliance.AssessorOptions{Logger: log})
	rt.Compliance = compliance.NewService(assessor, compRepo, latest, log)

	// Documents
	storage, err := documents.NewStorage(ctx, cfg.Documents, cfg.CloudEnvironment())
	if err != nil {
		return err
	}
	rt.Documents = documents.NewService(rt.Compliance, rt.Compliance.Catalog(), storage, docRepo, log)

	// Cost
	pricing := cost.NewPricingConfig()
	if cfg.Cost.PricingFile != "" {
		if pricing, err = cost.LoadPricingFromFile(cfg.Cost.PricingFile); err != nil {
			return err
		}
	}
	rt.Cost = cost.NewServiceWithOptions(costRepo, pricing, nil, stdLog)
	rt.Cost.SetCostSource(az)

	// Agents
	agentCfg, err := agents.LoadConfig(cfg.Agents.ConfigFile)
	if err != nil {
		return err
	}
	rt.Agents, err = agents.NewRouter(agentCfg, log,
		agents.NewInfrastructureAgent(rt.Generator, rt.Cost),
		agents.NewComplianceAgent(rt.Compliance, cfg.Azure.SubscriptionID),
		agents.NewCostAgent(rt.Cost),
		agents.NewDocumentsAgent(rt.Documents),
	)
	if err != nil {
		return err
	}

	// Audit
	rt.Audit = audit.NewLogger(auditStore, audit.Options{
		QueueSize:     cfg.Audit.QueueSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		Logger:        log,
	})
	auditLog := rt.Audit
	// closers run in reverse, so the audit queue drains before the database closes
	rt.closers = append(rt.closers, func(ctx context.Context) {
		if err := auditLog.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn("", "", "Audit logger close failed", map[string]interface{}{"error": err.Error()})
		}
	})
	return nil
}

// Checks returns the health checks of the connected backends
func (rt *Runtime) Checks() map[string]func(context.Context) bool {
	checks := map[string]func(context.Context) bool{}
	if rt.DB != nil {
		db := rt.DB
		checks["database"] = func(ctx context.Context) bool {
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return db.PingContext(ctx) == nil
		}
	}
	if rt.Redis != nil {
		client := rt.Redis
		checks["redis"] = func(ctx context.Context) bool {
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return client.Ping(ctx).Err() == nil
		}
	}
	return checks
}

// Close releases resources in reverse order of creation
func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i](ctx)
	}
	rt.closers = nil
}

func newStdLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
