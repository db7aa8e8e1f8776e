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

// Package mcpserver exposes the copilot services as Model Context Protocol
// tools over stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"copilot/platform/agents"
	"copilot/platform/compliance"
	"copilot/platform/cost"
	"copilot/platform/documents"
	"copilot/platform/infra"
	"copilot/platform/shared/logger"
)

const (
	serverName    = "platform-copilot"
	serverVersion = "1.0.0"
	// Path serves the streamable HTTP transport
	Path = "/mcp"
)

// Transports
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Services backing the tools. Documents, Cost and Agents may be nil; their
// tools are then not registered.
type Services struct {
	Generator  *infra.CompositeGenerator
	Compliance *compliance.Service
	Documents  *documents.Service
	Cost       *cost.Service
	Agents     *agents.Router
}

// Options configure the MCP server
type Options struct {
	// TenantID scopes every tool call. Defaults to "default".
	TenantID string
	// UserID is recorded as the requester. Defaults to "mcp".
	UserID string
	// DefaultSubscription is used when a tool call names none
	DefaultSubscription string
	Logger              *logger.Logger
	// RequestTimeout bounds each tool call. Defaults to 2m.
	RequestTimeout time.Duration
}

// Server wraps the go-sdk server with the copilot tools registered
type Server struct {
	svc   Services
	opts  Options
	log   *logger.Logger
	mcp   *mcp.Server
	tools []string
}

// New builds the MCP server and registers the tools the services allow
func New(svc Services, opts Options) (*Server, error) {
	if svc.Generator == nil || svc.Compliance == nil {
		return nil, errors.New("mcpserver: generator and compliance services are required")
	}
	if opts.TenantID == "" {
		opts.TenantID = "default"
	}
	if opts.UserID == "" {
		opts.UserID = "mcp"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("mcp-server")
	}

	s := &Server{
		svc:  svc,
		opts: opts,
		log:  opts.Logger,
		mcp: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
			Instructions: "Platform engineering copilot: generate Azure infrastructure, assess NIST 800-53 / FedRAMP compliance, produce authorization documents and report cost.",
		}),
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying go-sdk server
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Tools lists the registered tool names in registration order
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves one session over transport until the client disconnects or ctx
// is cancelled
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	err := s.mcp.Run(ctx, transport)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// HTTPHandler serves the streamable HTTP transport
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// Serve runs the named transport. addr is only used for http.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	switch transport {
	case "", TransportStdio:
		s.log.Info(s.opts.TenantID, "", "MCP server serving stdio", map[string]interface{}{"tools": len(s.tools)})
		return s.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("mcp transport %q not supported", transport)
	}
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(Path, s.HTTPHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"healthy","service":%q,"version":%q}`, serverName, serverVersion)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(s.opts.TenantID, "", "MCP server listening", map[string]interface{}{
			"addr":  addr,
			"path":  Path,
			"tools": len(s.tools),
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
