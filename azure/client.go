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

// Package azure is a thin Azure Resource Manager client for the management
// APIs the copilot reads: Resource Graph, Cost Management and Defender for
// Cloud. Requests go through the azcore pipeline so retries, bearer tokens
// and sovereign cloud endpoints behave like the Azure SDK clients.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"copilot/platform/shared/logger"
	"copilot/platform/shared/types"
)

const (
	moduleName    = "copilot/platform/azure"
	moduleVersion = "v1.0.0"

	// maxPages bounds nextLink/$skipToken loops
	maxPages = 200
)

var (
	// ErrInvalidScope is returned for malformed subscription or resource group names
	ErrInvalidScope = errors.New("invalid scope")
	// ErrTooManyPages is returned when a paged query does not terminate
	ErrTooManyPages = errors.New("too many result pages")
)

// Options configures a Client
type Options struct {
	Cloud types.CloudEnvironment
	// Endpoint overrides the Resource Manager endpoint of Cloud
	Endpoint string
	// ClientOptions is passed to the azcore pipeline (transport, retry)
	ClientOptions policy.ClientOptions
	Logger        *logger.Logger
}

// Client issues ARM requests through an azcore pipeline
type Client struct {
	pipeline runtime.Pipeline
	endpoint string
	log      *logger.Logger
}

// NewClient creates a client authenticated with cred
func NewClient(cred azcore.TokenCredential, opts *Options) (*Client, error) {
	if cred == nil {
		return nil, errors.New("azure: credential is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	env := opts.Cloud
	if env == "" {
		env = types.CloudPublic
	}
	if !env.IsValid() {
		return nil, fmt.Errorf("azure: unknown cloud %q", env)
	}

	clientOpts := opts.ClientOptions
	clientOpts.Cloud = env.Configuration()

	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = env.ResourceManagerEndpoint()
	}

	log := opts.Logger
	if log == nil {
		log = logger.New("azure")
	}

	bearer := runtime.NewBearerTokenPolicy(cred, []string{env.ResourceManagerScope()}, nil)
	pl := runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{
		PerRetry: []policy.Policy{bearer},
	}, &clientOpts)

	return &Client{pipeline: pl, endpoint: endpoint, log: log}, nil
}

// NewDefaultClient authenticates with DefaultAzureCredential (environment,
// workload identity, managed identity, Azure CLI) against the given cloud.
func NewDefaultClient(env types.CloudEnvironment, tenantID string, log *logger.Logger) (*Client, error) {
	if env == "" {
		env = types.CloudPublic
	}
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		ClientOptions: azcore.ClientOptions{Cloud: env.Configuration()},
		TenantID:      tenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("azure: create default credential: %w", err)
	}
	return NewClient(cred, &Options{Cloud: env, Logger: log})
}

// Endpoint returns the Resource Manager endpoint requests are sent to
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) url(path string) string {
	return c.endpoint + path
}

// do sends a request and decodes a 200 response into out
func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	req, err := runtime.NewRequest(ctx, method, url)
	if err != nil {
		return fmt.Errorf("azure: build request: %w", err)
	}
	req.Raw().Header.Set("Accept", "application/json")
	if body != nil {
		if err := runtime.MarshalAsJSON(req, body); err != nil {
			return fmt.Errorf("azure: encode request: %w", err)
		}
	}

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return fmt.Errorf("azure: %s %s: %w", method, redactQuery(url), err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return fmt.Errorf("azure: %s %s: %w", method, redactQuery(url), runtime.NewResponseError(resp))
	}
	if err := runtime.UnmarshalAsJSON(resp, out); err != nil {
		return fmt.Errorf("azure: decode response: %w", err)
	}
	return nil
}

func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

// StatusCode returns the HTTP status of an ARM error, or 0 when err did not
// come from a response.
func StatusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}
