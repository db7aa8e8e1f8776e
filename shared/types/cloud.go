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

// Package types provides shared type definitions used across copilot components.
// This file maps the configured Azure cloud to SDK cloud configuration.
package types

import (
	"fmt"
	"strings"

	// arm registers the Resource Manager endpoints in the cloud configurations
	_ "github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
)

// CloudEnvironment names the Azure sovereign cloud the copilot manages
type CloudEnvironment string

const (
	// CloudPublic is Azure commercial
	CloudPublic CloudEnvironment = "public"
	// CloudGovernment is Azure Government (FedRAMP High, IL4/IL5)
	CloudGovernment CloudEnvironment = "government"
	// CloudChina is Azure operated by 21Vianet
	CloudChina CloudEnvironment = "china"
)

// String returns the string representation of the CloudEnvironment
func (c CloudEnvironment) String() string {
	return string(c)
}

// IsValid returns true if the CloudEnvironment is a valid known value
func (c CloudEnvironment) IsValid() bool {
	switch c {
	case CloudPublic, CloudGovernment, CloudChina:
		return true
	default:
		return false
	}
}

// ParseCloudEnvironment accepts the short names plus the ARM environment
// names (AzureCloud, AzureUSGovernment, AzureChinaCloud).
func ParseCloudEnvironment(s string) (CloudEnvironment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "public", "azurecloud", "azurepubliccloud":
		return CloudPublic, nil
	case "government", "gov", "azureusgovernment", "azuregovernment":
		return CloudGovernment, nil
	case "china", "azurechinacloud":
		return CloudChina, nil
	}
	return "", fmt.Errorf("unknown azure cloud %q", s)
}

// Configuration returns the azcore cloud configuration for the environment
func (c CloudEnvironment) Configuration() cloud.Configuration {
	switch c {
	case CloudGovernment:
		return cloud.AzureGovernment
	case CloudChina:
		return cloud.AzureChina
	default:
		return cloud.AzurePublic
	}
}

// ResourceManagerEndpoint returns the ARM endpoint without a trailing slash
func (c CloudEnvironment) ResourceManagerEndpoint() string {
	return strings.TrimSuffix(c.Configuration().Services[cloud.ResourceManager].Endpoint, "/")
}

// ResourceManagerScope returns the OAuth scope for ARM tokens
func (c CloudEnvironment) ResourceManagerScope() string {
	return strings.TrimSuffix(c.Configuration().Services[cloud.ResourceManager].Audience, "/") + "/.default"
}

// BlobEndpointSuffix returns the storage DNS suffix used to build blob URLs
func (c CloudEnvironment) BlobEndpointSuffix() string {
	switch c {
	case CloudGovernment:
		return "blob.core.usgovcloudapi.net"
	case CloudChina:
		return "blob.core.chinacloudapi.cn"
	default:
		return "blob.core.windows.net"
	}
}
