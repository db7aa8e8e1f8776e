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

// Command admin-api serves the platform copilot Admin API.
//
// Usage:
//
//	./admin-api
//
// Environment Variables:
//
//	COPILOT_CONFIG_FILE - optional YAML overlay
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (optional, in-memory otherwise)
//	REDIS_URL - Redis for the latest-assessment cache and rate limits (optional)
//	AZURE_CLOUD - public, government or china
//	AZURE_SUBSCRIPTION_ID - default subscription for assessments
//	AUTH_MODE - off or jwt; JWT_SECRET is required for jwt
//	DOCUMENTS_BACKEND - local, azureblob, s3 or gcs
package main

import (
	"fmt"
	"os"

	"copilot/platform/app"
)

func main() {
	if err := app.RunAdminAPI(); err != nil {
		fmt.Fprintln(os.Stderr, "admin-api:", err)
		os.Exit(1)
	}
}
