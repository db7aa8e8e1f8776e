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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const costManagementAPIVersion = "2023-03-01"

// CostQuery asks for daily actual cost in [From, To]
type CostQuery struct {
	Scope Scope
	From  time.Time
	To    time.Time
}

// CostRow is one day of cost for a resource group, service and location
type CostRow struct {
	Date           time.Time `json:"date"`
	SubscriptionID string    `json:"subscription_id"`
	ResourceGroup  string    `json:"resource_group"`
	Service        string    `json:"service"`
	Location       string    `json:"location"`
	Cost           float64   `json:"cost"`
	Currency       string    `json:"currency"`
}

type costTimePeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type costAggregation struct {
	Name     string `json:"name"`
	Function string `json:"function"`
}

type costGrouping struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type costDataset struct {
	Granularity string                     `json:"granularity"`
	Aggregation map[string]costAggregation `json:"aggregation"`
	Grouping    []costGrouping             `json:"grouping"`
}

type costQueryBody struct {
	Type       string         `json:"type"`
	Timeframe  string         `json:"timeframe"`
	TimePeriod costTimePeriod `json:"timePeriod"`
	Dataset    costDataset    `json:"dataset"`
}

type costColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type costQueryResponse struct {
	Properties struct {
		NextLink string          `json:"nextLink"`
		Columns  []costColumn    `json:"columns"`
		Rows     [][]interface{} `json:"rows"`
	} `json:"properties"`
}

// QueryCosts returns daily cost rows grouped by resource group, service and
// location, following nextLink pages.
func (c *Client) QueryCosts(ctx context.Context, q CostQuery) ([]CostRow, error) {
	if err := q.Scope.Validate(); err != nil {
		return nil, err
	}
	if q.To.Before(q.From) {
		return nil, errors.New("azure: cost query ends before it starts")
	}

	body := costQueryBody{
		Type:      "ActualCost",
		Timeframe: "Custom",
		TimePeriod: costTimePeriod{
			From: q.From.UTC().Format("2006-01-02T00:00:00Z"),
			To:   q.To.UTC().Format("2006-01-02T23:59:59Z"),
		},
		Dataset: costDataset{
			Granularity: "Daily",
			Aggregation: map[string]costAggregation{"totalCost": {Name: "Cost", Function: "Sum"}},
			Grouping: []costGrouping{
				{Type: "Dimension", Name: "ResourceGroupName"},
				{Type: "Dimension", Name: "ServiceName"},
				{Type: "Dimension", Name: "ResourceLocation"},
			},
		},
	}
	url := c.url(q.Scope.ARMScope() + "/providers/Microsoft.CostManagement/query?api-version=" + costManagementAPIVersion)

	var out []CostRow
	for page := 0; url != ""; page++ {
		if page == maxPages {
			return nil, ErrTooManyPages
		}
		var resp costQueryResponse
		if err := c.do(ctx, http.MethodPost, url, body, &resp); err != nil {
			return nil, err
		}
		rows, err := decodeCostRows(resp.Properties.Columns, resp.Properties.Rows, q.Scope.SubscriptionID)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		url = resp.Properties.NextLink
	}
	return out, nil
}

// decodeCostRows maps rows by column name since column order follows the
// request grouping and is not guaranteed.
func decodeCostRows(cols []costColumn, rows [][]interface{}, subscriptionID string) ([]CostRow, error) {
	idx := make(map[string]int, len(cols))
	for i, col := range cols {
		idx[strings.ToLower(col.Name)] = i
	}
	costCol, ok := firstColumn(idx, "cost", "pretaxcost", "costusd")
	if !ok {
		return nil, errors.New("azure: cost query response has no cost column")
	}
	dateCol, ok := firstColumn(idx, "usagedate", "billingmonth")
	if !ok {
		return nil, errors.New("azure: cost query response has no date column")
	}
	rgCol, _ := firstColumn(idx, "resourcegroupname", "resourcegroup")
	svcCol, _ := firstColumn(idx, "servicename")
	locCol, _ := firstColumn(idx, "resourcelocation")
	curCol, _ := firstColumn(idx, "currency")

	out := make([]CostRow, 0, len(rows))
	for i, row := range rows {
		cost, err := numberAt(row, costCol)
		if err != nil {
			return nil, fmt.Errorf("azure: cost row %d: %w", i, err)
		}
		date, err := usageDate(cellAt(row, dateCol))
		if err != nil {
			return nil, fmt.Errorf("azure: cost row %d: %w", i, err)
		}
		out = append(out, CostRow{
			Date:           date,
			SubscriptionID: subscriptionID,
			ResourceGroup:  strings.ToLower(stringAt(row, rgCol)),
			Service:        stringAt(row, svcCol),
			Location:       strings.ToLower(stringAt(row, locCol)),
			Cost:           cost,
			Currency:       stringAt(row, curCol),
		})
	}
	return out, nil
}

func firstColumn(idx map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return -1, false
}

func cellAt(row []interface{}, i int) interface{} {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func stringAt(row []interface{}, i int) string {
	s, _ := cellAt(row, i).(string)
	return s
}

func numberAt(row []interface{}, i int) (float64, error) {
	switch v := cellAt(row, i).(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("column %d is not a number", i)
}

// usageDate parses UsageDate (yyyymmdd number) or BillingMonth (timestamp)
func usageDate(v interface{}) (time.Time, error) {
	switch d := v.(type) {
	case float64:
		return time.Parse("20060102", strconv.FormatInt(int64(d), 10))
	case string:
		if t, err := time.Parse("20060102", d); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(d, "Z"))
	}
	return time.Time{}, fmt.Errorf("unsupported date value %v", v)
}
