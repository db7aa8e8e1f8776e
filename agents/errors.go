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

package agents

import "errors"

var (
	// ErrInvalidConfig is returned for a malformed agent routing file
	ErrInvalidConfig = errors.New("invalid agent config")
	// ErrUnknownAgent is returned when dispatching to an unregistered agent
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrNoMatchingAgent is returned when no routing rule matches a query
	ErrNoMatchingAgent = errors.New("no agent matches the query")
	// ErrEmptyQuery is returned for a dispatch with neither query nor agent
	ErrEmptyQuery = errors.New("query is required")
	// ErrMissingParameter is returned when an agent cannot act without a parameter
	ErrMissingParameter = errors.New("missing parameter")
)
