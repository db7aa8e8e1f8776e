// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"copilot/platform/infra"
)

// Pricing units
const (
	UnitMonth      = "month"
	UnitNodeMonth  = "node-month"
	UnitGBMonth    = "GB-month"
	UnitGBIngested = "GB-ingested"
)

// SKUPrice is the list price of one unit of a SKU
type SKUPrice struct {
	Unit string  `json:"unit"`
	USD  float64 `json:"usd"`
}

// PricingConfig holds list prices per resource type and SKU. The "*" SKU
// prices any SKU of the type not listed explicitly.
type PricingConfig struct {
	Resources map[string]map[string]SKUPrice `json:"resources"`
	mu        sync.RWMutex
}

// DefaultPricing contains pay-as-you-go list prices in USD for East US
// (730 hours per month). AKS is priced per node by VM size.
var DefaultPricing = &PricingConfig{
	Resources: map[string]map[string]SKUPrice{
		string(infra.TypeLogAnalytics): {
			"PerGB2018": {Unit: UnitGBIngested, USD: 2.30},
			"*":         {Unit: UnitGBIngested, USD: 2.30},
		},
		string(infra.TypeVirtualNetwork): {"*": {Unit: UnitMonth, USD: 0}},
		string(infra.TypeSubnet):         {"*": {Unit: UnitMonth, USD: 0}},
		string(infra.TypeNSG):            {"*": {Unit: UnitMonth, USD: 0}},
		string(infra.TypeStorageAccount): {
			"Standard_LRS":   {Unit: UnitGBMonth, USD: 0.0208},
			"Standard_ZRS":   {Unit: UnitGBMonth, USD: 0.026},
			"Standard_GRS":   {Unit: UnitGBMonth, USD: 0.0458},
			"Standard_RAGRS": {Unit: UnitGBMonth, USD: 0.0572},
			"Premium_LRS":    {Unit: UnitGBMonth, USD: 0.15},
			"*":              {Unit: UnitGBMonth, USD: 0.0208},
		},
		string(infra.TypeKeyVault): {
			"standard": {Unit: UnitMonth, USD: 3},
			"premium":  {Unit: UnitMonth, USD: 5},
		},
		string(infra.TypeAppServicePlan): {
			"F1":   {Unit: UnitMonth, USD: 0},
			"B1":   {Unit: UnitMonth, USD: 13.14},
			"B2":   {Unit: UnitMonth, USD: 25.55},
			"S1":   {Unit: UnitMonth, USD: 69.35},
			"P0v3": {Unit: UnitMonth, USD: 62.05},
			"P1v3": {Unit: UnitMonth, USD: 124.10},
			"P2v3": {Unit: UnitMonth, USD: 248.20},
			"P3v3": {Unit: UnitMonth, USD: 496.40},
		},
		// Sites run on their App Service plan
		string(infra.TypeWebApp):      {"*": {Unit: UnitMonth, USD: 0}},
		string(infra.TypeFunctionApp): {"*": {Unit: UnitMonth, USD: 0}},
		string(infra.TypeSQLServer):   {"*": {Unit: UnitMonth, USD: 0}},
		string(infra.TypeSQLDatabase): {
			"Basic":     {Unit: UnitMonth, USD: 4.90},
			"S0":        {Unit: UnitMonth, USD: 14.72},
			"S1":        {Unit: UnitMonth, USD: 29.43},
			"GP_Gen5_2": {Unit: UnitMonth, USD: 369.65},
			"GP_Gen5_4": {Unit: UnitMonth, USD: 739.30},
			"BC_Gen5_2": {Unit: UnitMonth, USD: 997.93},
		},
		string(infra.TypeAKS): {
			"Standard_B2s":    {Unit: UnitNodeMonth, USD: 30.37},
			"Standard_D2s_v5": {Unit: UnitNodeMonth, USD: 70.08},
			"Standard_D4s_v5": {Unit: UnitNodeMonth, USD: 140.16},
			"Standard_D8s_v5": {Unit: UnitNodeMonth, USD: 280.32},
			"Standard_E4s_v5": {Unit: UnitNodeMonth, USD: 183.96},
		},
		string(infra.TypeContainerRegistry): {
			"Basic":    {Unit: UnitMonth, USD: 5},
			"Standard": {Unit: UnitMonth, USD: 20},
			"Premium":  {Unit: UnitMonth, USD: 50},
		},
		string(infra.TypeCosmosDB): {
			"*": {Unit: UnitMonth, USD: 23.36},
		},
		string(infra.TypeRedisCache): {
			"Basic":    {Unit: UnitMonth, USD: 16.06},
			"Standard": {Unit: UnitMonth, USD: 40.15},
			"Premium":  {Unit: UnitMonth, USD: 404.42},
		},
		string(infra.TypeAppInsights): {
			"*": {Unit: UnitGBIngested, USD: 2.30},
		},
	},
}

// aksTierUSD is the monthly uptime SLA charge of a Standard tier cluster
const aksTierUSD = 73.0

// NewPricingConfig creates a new pricing configuration with defaults
func NewPricingConfig() *PricingConfig {
	return &PricingConfig{
		Resources: copyResources(DefaultPricing.Resources),
	}
}

// LoadPricingFromFile loads pricing from a JSON file and merges it over the defaults
func LoadPricingFromFile(path string) (*PricingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := NewPricingConfig()
	var custom PricingConfig
	if err := json.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}

	for rtype, skus := range custom.Resources {
		for sku, price := range skus {
			config.SetSKUPrice(rtype, sku, price)
		}
	}
	return config, nil
}

// GetSKUPrice returns pricing for a resource type and SKU, falling back to
// the type's wildcard entry
func (p *PricingConfig) GetSKUPrice(resourceType, sku string) (SKUPrice, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	skus, ok := p.Resources[resourceType]
	if !ok {
		return SKUPrice{}, false
	}
	if price, ok := skus[sku]; ok {
		return price, true
	}
	for name, price := range skus {
		if strings.EqualFold(name, sku) {
			return price, true
		}
	}
	price, ok := skus["*"]
	return price, ok
}

// SetSKUPrice sets pricing for a specific SKU
func (p *PricingConfig) SetSKUPrice(resourceType, sku string, price SKUPrice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Resources == nil {
		p.Resources = make(map[string]map[string]SKUPrice)
	}
	if p.Resources[resourceType] == nil {
		p.Resources[resourceType] = make(map[string]SKUPrice)
	}
	p.Resources[resourceType][sku] = price
}

// ListResourceTypes returns all priced resource types, sorted
func (p *PricingConfig) ListResourceTypes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	types := make([]string, 0, len(p.Resources))
	for t := range p.Resources {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ListSKUs returns the explicitly priced SKUs of a resource type, sorted
func (p *PricingConfig) ListSKUs(resourceType string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	skus := make([]string, 0, len(p.Resources[resourceType]))
	for sku := range p.Resources[resourceType] {
		if sku != "*" {
			skus = append(skus, sku)
		}
	}
	sort.Strings(skus)
	return skus
}

// Snapshot returns a copy of the price table safe to serialize
func (p *PricingConfig) Snapshot() map[string]map[string]SKUPrice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyResources(p.Resources)
}

// EstimateItem is the monthly estimate of one resource
type EstimateItem struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	SKU          string  `json:"sku,omitempty"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	UnitPriceUSD float64 `json:"unit_price_usd"`
	MonthlyUSD   float64 `json:"monthly_usd"`
	Priced       bool    `json:"priced"`
}

// Estimate is the monthly list-price estimate of a set of resources
type Estimate struct {
	Currency        string         `json:"currency"`
	Environment     string         `json:"environment,omitempty"`
	Items           []EstimateItem `json:"items"`
	TotalMonthlyUSD float64        `json:"total_monthly_usd"`
	Unpriced        []string       `json:"unpriced,omitempty"`
	Assumptions     []string       `json:"assumptions,omitempty"`
}

// Estimate prices specs at the SKUs the generator would emit for them
func (p *PricingConfig) Estimate(specs []infra.ResourceSpec, production bool) *Estimate {
	est := &Estimate{Currency: "USD", Items: make([]EstimateItem, 0, len(specs))}
	assumed := make(map[string]bool)
	assume := func(s string) {
		if !assumed[s] {
			assumed[s] = true
			est.Assumptions = append(est.Assumptions, s)
		}
	}

	for _, spec := range specs {
		item := EstimateItem{Name: spec.Name, Type: string(spec.Type), SKU: infra.EffectiveSKU(spec, production), Quantity: 1}
		priceKey := item.SKU
		var extra float64

		switch spec.Type {
		case infra.TypeAKS:
			priceKey = spec.Property("vm_size", "Standard_D4s_v5")
			item.SKU = priceKey
			def := 1.0
			if production {
				def = 3
				extra = aksTierUSD
				assume("AKS Standard tier uptime SLA included for production clusters")
			}
			item.Quantity = floatProperty(spec, "node_count", def)
		case infra.TypeStorageAccount:
			item.Quantity = floatProperty(spec, "capacity_gb", 100)
			assume("storage priced for capacity_gb (default 100 GB) of hot tier data")
		case infra.TypeLogAnalytics, infra.TypeAppInsights:
			item.Quantity = floatProperty(spec, "daily_ingestion_gb", 1) * 30
			assume("log ingestion priced at daily_ingestion_gb (default 1 GB) for 30 days")
		}

		price, ok := p.GetSKUPrice(item.Type, priceKey)
		if !ok {
			est.Unpriced = append(est.Unpriced, spec.Name)
			est.Items = append(est.Items, item)
			continue
		}
		item.Priced = true
		item.Unit = price.Unit
		item.UnitPriceUSD = price.USD
		item.MonthlyUSD = roundCents(price.USD*item.Quantity + extra)
		est.TotalMonthlyUSD += item.MonthlyUSD
		est.Items = append(est.Items, item)
	}
	est.TotalMonthlyUSD = roundCents(est.TotalMonthlyUSD)
	return est
}

func floatProperty(spec infra.ResourceSpec, key string, def float64) float64 {
	v, err := strconv.ParseFloat(spec.Property(key, ""), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func copyResources(src map[string]map[string]SKUPrice) map[string]map[string]SKUPrice {
	dst := make(map[string]map[string]SKUPrice, len(src))
	for rtype, skus := range src {
		dst[rtype] = make(map[string]SKUPrice, len(skus))
		for sku, price := range skus {
			dst[rtype][sku] = price
		}
	}
	return dst
}
