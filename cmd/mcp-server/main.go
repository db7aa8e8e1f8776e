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

// Command mcp-server exposes the platform copilot as Model Context Protocol
// tools.
//
// Usage:
//
//	./mcp-server [-transport stdio|http] [-addr :8090]
//
// The transport defaults to MCP_TRANSPORT (stdio). Over http the endpoint is
// served at /mcp. Logs go to stderr.
package main

import (
	"flag"
	"fmt"
	"os"

	"copilot/platform/app"
)

func main() {
	transport := flag.String("transport", "", "stdio or http (default from MCP_TRANSPORT)")
	addr := flag.String("addr", "", "listen address for the http transport (default from MCP_ADDR)")
	flag.Parse()

	if err := app.RunMCPServer(*transport, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "mcp-server:", err)
		os.Exit(1)
	}
}
