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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"copilot/platform/cost"
	"copilot/platform/infra"
)

// requestFlags are shared by generate and estimate
type requestFlags struct {
	file        string
	name        string
	format      string
	environment string
	location    string
	patterns    []string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON generation request")
	cmd.Flags().StringVar(&f.name, "name", "", "resource name prefix")
	cmd.Flags().StringVar(&f.format, "format", "", "bicep or terraform")
	cmd.Flags().StringVar(&f.environment, "env", "", "dev, test, staging or prod")
	cmd.Flags().StringVar(&f.location, "location", "", "Azure region")
	cmd.Flags().StringSliceVar(&f.patterns, "pattern", nil, "reference pattern (repeatable)")
}

// request reads the optional file and applies flag overrides on top
func (f *requestFlags) request() (infra.GenerationRequest, error) {
	var req infra.GenerationRequest
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return req, fmt.Errorf("read request: %w", err)
		}
		// YAML is a superset of JSON
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse request %s: %w", f.file, err)
		}
	}
	if f.name != "" {
		req.Name = f.name
	}
	if f.format != "" {
		req.Format = infra.Format(f.format)
	}
	if f.environment != "" {
		req.Environment = f.environment
	}
	if f.location != "" {
		req.Location = f.location
	}
	if len(f.patterns) > 0 {
		req.Patterns = f.patterns
	}
	return req, nil
}

func newGenerator() *infra.CompositeGenerator {
	return infra.NewCompositeGenerator(infra.DefaultRegistry(), nil, cliLogger())
}

func patternsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List reference architecture patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := infra.Patterns()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), patterns)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tRESOURCES\tDESCRIPTION")
			for _, p := range patterns {
				fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, len(p.Resources), p.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func generateCmd() *cobra.Command {
	var (
		rf      requestFlags
		outDir  string
		zipPath string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Bicep or Terraform for patterns and resources",
		Example: `  copilotctl generate --name shop --pattern three-tier-web --format terraform --out ./iac
  copilotctl generate -f request.yaml --zip shop.zip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := rf.request()
			if err != nil {
				return err
			}
			result, err := newGenerator().Generate(context.Background(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case zipPath != "":
				if err := writeArchive(zipPath, result); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s (%d files)\n", zipPath, len(result.Files))
			case outDir != "":
				if err := writeFiles(outDir, result); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %d files to %s\n", len(result.Files), filepath.Join(outDir, result.Name))
			default:
				for _, name := range sortedFiles(result.Files) {
					fmt.Fprintln(out, name)
				}
			}
			for _, w := range result.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write files under this directory")
	cmd.Flags().StringVar(&zipPath, "zip", "", "write a zip archive to this path")
	return cmd
}

func estimateCmd() *cobra.Command {
	var (
		rf      requestFlags
		pricing string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the monthly cost of a generation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := rf.request()
			if err != nil {
				return err
			}
			prices := cost.NewPricingConfig()
			if pricing != "" {
				if prices, err = cost.LoadPricingFromFile(pricing); err != nil {
					return err
				}
			}
			req.Normalize()
			specs, _, _, err := newGenerator().Plan(req)
			if err != nil {
				return err
			}
			est := prices.Estimate(specs, req.IsProduction())
			est.Environment = req.Environment

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), est)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RESOURCE\tTYPE\tSKU\tMONTHLY (USD)")
			for _, item := range est.Items {
				price := "-"
				if item.Priced {
					price = fmt.Sprintf("%.2f", item.MonthlyUSD)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Name, item.Type, item.SKU, price)
			}
			fmt.Fprintf(w, "TOTAL\t\t\t%.2f\n", est.TotalMonthlyUSD)
			return w.Flush()
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&pricing, "pricing", "", "pricing overrides file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func sortedFiles(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeFiles(dir string, result *infra.GenerationResult) error {
	root := filepath.Join(dir, result.Name)
	for _, name := range sortedFiles(result.Files) {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(result.Files[name]), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func writeArchive(path string, result *infra.GenerationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := infra.Archive(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
