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

package azure

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const resourceGraphAPIVersion = "2021-03-01"

var (
	subscriptionPattern  = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)
	resourceGroupPattern = regexp.MustCompile(`^[-\w.()]{1,90}$`)
)

// Scope selects the resources of a query
type Scope struct {
	SubscriptionID string `json:"subscription_id"`
	ResourceGroup  string `json:"resource_group,omitempty"`
}

// Validate checks the scope can be embedded in a Resource Graph query
func (s Scope) Validate() error {
	if !subscriptionPattern.MatchString(s.SubscriptionID) {
		return fmt.Errorf("%w: subscription id %q", ErrInvalidScope, s.SubscriptionID)
	}
	if s.ResourceGroup != "" && !resourceGroupPattern.MatchString(s.ResourceGroup) {
		return fmt.Errorf("%w: resource group %q", ErrInvalidScope, s.ResourceGroup)
	}
	return nil
}

// ARMScope returns the scope as an ARM path
func (s Scope) ARMScope() string {
	if s.ResourceGroup != "" {
		return "/subscriptions/" + s.SubscriptionID + "/resourceGroups/" + s.ResourceGroup
	}
	return "/subscriptions/" + s.SubscriptionID
}

// SKU is the sku block of an ARM resource
type SKU struct {
	Name     string `json:"name,omitempty"`
	Tier     string `json:"tier,omitempty"`
	Family   string `json:"family,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// Resource is one row of a Resource Graph query
type Resource struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	Location      string                 `json:"location"`
	ResourceGroup string                 `json:"resourceGroup"`
	Kind          string                 `json:"kind,omitempty"`
	SKU           *SKU                   `json:"sku,omitempty"`
	Tags          map[string]string      `json:"tags,omitempty"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
}

// IsType reports whether the resource has the given ARM type, ignoring case
func (r Resource) IsType(armType string) bool {
	return strings.EqualFold(r.Type, armType)
}

// Property walks a dotted path through Properties
func (r Resource) Property(path string) (interface{}, bool) {
	var cur interface{} = r.Properties
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringProperty returns a string property or ""
func (r Resource) StringProperty(path string) string {
	v, _ := r.Property(path)
	s, _ := v.(string)
	return s
}

// BoolProperty returns a boolean property and whether it was present
func (r Resource) BoolProperty(path string) (bool, bool) {
	v, ok := r.Property(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

type resourceGraphRequest struct {
	Subscriptions []string             `json:"subscriptions"`
	Query         string               `json:"query"`
	Options       resourceGraphOptions `json:"options"`
}

type resourceGraphOptions struct {
	SkipToken    string `json:"$skipToken,omitempty"`
	Top          int    `json:"$top,omitempty"`
	ResultFormat string `json:"resultFormat"`
}

type resourceGraphResponse struct {
	TotalRecords int        `json:"totalRecords"`
	Count        int        `json:"count"`
	Data         []Resource `json:"data"`
	SkipToken    string     `json:"$skipToken"`
}

// resourceQuery builds the KQL for a validated scope
func resourceQuery(s Scope) string {
	q := "Resources"
	if s.ResourceGroup != "" {
		q += fmt.Sprintf(" | where resourceGroup =~ '%s'", s.ResourceGroup)
	}
	return q + " | project id, name, type, location, resourceGroup, kind, sku, tags, properties | order by id asc"
}

// QueryResources lists every resource in scope, following $skipToken pages
func (c *Client) QueryResources(ctx context.Context, scope Scope) ([]Resource, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	body := resourceGraphRequest{
		Subscriptions: []string{scope.SubscriptionID},
		Query:         resourceQuery(scope),
		Options:       resourceGraphOptions{Top: 1000, ResultFormat: "objectArray"},
	}
	url := c.url("/providers/Microsoft.ResourceGraph/resources?api-version=" + resourceGraphAPIVersion)

	var out []Resource
	for page := 0; ; page++ {
		if page == maxPages {
			return nil, ErrTooManyPages
		}
		var resp resourceGraphResponse
		if err := c.do(ctx, http.MethodPost, url, body, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Data...)
		if resp.SkipToken == "" {
			break
		}
		body.Options.SkipToken = resp.SkipToken
	}

	c.log.Debug("", "", "Resource Graph query completed", map[string]interface{}{
		"subscription_id": scope.SubscriptionID,
		"resource_group":  scope.ResourceGroup,
		"resources":       len(out),
	})
	return out, nil
}
