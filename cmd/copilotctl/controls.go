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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"copilot/platform/compliance"
)

func controlsCmd() *cobra.Command {
	var (
		family    string
		baseline  string
		automated bool
		catalog   string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "controls [control-id]",
		Short: "Browse the NIST 800-53 control catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := compliance.DefaultCatalog()
			if catalog != "" {
				var err error
				if cat, err = compliance.LoadCatalog(catalog); err != nil {
					return err
				}
			}

			if len(args) == 1 {
				ctl, err := cat.Control(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), ctl)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", ctl.ID, ctl.Title)
				fmt.Fprintf(out, "baseline: %s  automated: %t\n\n", ctl.Baseline, ctl.Automated)
				fmt.Fprintln(out, ctl.Description)
				if ctl.Guidance != "" {
					fmt.Fprintf(out, "\nguidance: %s\n", ctl.Guidance)
				}
				return nil
			}

			filter := compliance.ControlFilter{Family: family, Automated: automated}
			if family != "" {
				if _, ok := cat.Family(family); !ok {
					return fmt.Errorf("unknown control family %q", family)
				}
			}
			if baseline != "" {
				b, err := compliance.ParseBaseline(baseline)
				if err != nil {
					return err
				}
				filter.Baseline = b
			}
			controls := cat.Controls(filter)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), controls)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBASELINE\tAUTOMATED\tTITLE")
			for _, ctl := range controls {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", ctl.ID, ctl.Baseline, ctl.Automated, ctl.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "control family, e.g. AC")
	cmd.Flags().StringVar(&baseline, "baseline", "", "low, moderate or high")
	cmd.Flags().BoolVar(&automated, "automated", false, "only controls with automated checks")
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog YAML (default: embedded NIST 800-53 rev5)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
