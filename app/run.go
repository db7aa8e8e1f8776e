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

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"copilot/platform/admin"
	"copilot/platform/mcpserver"
	"copilot/platform/shared/config"
	"copilot/platform/shared/logger"
)

func newLogger(component string, cfg *config.Config) *logger.Logger {
	l := logger.New(component)
	l.SetLevel(logger.ParseLevel(cfg.LogLevel))
	return l
}

func shutdown(rt *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt.Close(ctx)
}

// RunAdminAPI serves the Admin API until SIGINT or SIGTERM
func RunAdminAPI() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	log := newLogger("admin-api", cfg)
	log.Info("", "", "Starting platform copilot Admin API", map[string]interface{}{
		"version":   admin.Version,
		"cloud":     cfg.Azure.Cloud,
		"auth_mode": cfg.Auth.Mode,
		"documents": cfg.Documents.Backend,
	})

	rt, err := Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(rt)

	checks := make(map[string]admin.HealthCheck)
	for name, check := range rt.Checks() {
		checks[name] = check
	}
	srv := admin.NewServer(cfg, admin.Services{
		Generator:  rt.Generator,
		Compliance: rt.Compliance,
		Documents:  rt.Documents,
		Cost:       rt.Cost,
		Agents:     rt.Agents,
		Audit:      rt.Audit,
		Limiter:    rt.Limiter,
		Checks:     checks,
	}, log)
	return srv.ListenAndServe(ctx)
}

// RunMCPServer serves MCP over the configured transport until the client
// disconnects or the process is signalled
func RunMCPServer(transport, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.MCP.Transport
	}
	if addr == "" {
		addr = cfg.MCP.Addr
	}
	log := newLogger("mcp-server", cfg)
	// stdout carries the protocol on stdio
	log.SetOutput(os.Stderr)

	rt, err := Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(rt)

	srv, err := mcpserver.New(mcpserver.Services{
		Generator:  rt.Generator,
		Compliance: rt.Compliance,
		Documents:  rt.Documents,
		Cost:       rt.Cost,
		Agents:     rt.Agents,
	}, mcpserver.Options{
		DefaultSubscription: cfg.Azure.SubscriptionID,
		Logger:              log,
	})
	if err != nil {
		return err
	}
	return srv.Serve(ctx, transport, addr)
}
