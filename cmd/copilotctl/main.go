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

// Package main implements the copilotctl CLI for offline infrastructure
// generation, cost estimates, catalog lookups and Admin API tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"copilot/platform/shared/logger"
)

var version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "copilotctl",
		Short:         "Platform copilot CLI tool",
		Long:          `copilotctl generates Azure infrastructure, estimates its cost, browses the NIST 800-53 catalog and issues Admin API tokens without a running server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(controlsCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

// cliLogger keeps library logs off stdout so command output stays parseable
func cliLogger() *logger.Logger {
	log := logger.New("copilotctl")
	log.SetOutput(os.Stderr)
	level := logger.WARN
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = logger.ParseLevel(v)
	}
	log.SetLevel(level)
	return log
}
