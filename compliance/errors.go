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

package compliance

import "errors"

var (
	// ErrControlNotFound is returned when a control id is not in the catalog
	ErrControlNotFound = errors.New("control not found")
	// ErrAssessmentNotFound is returned when an assessment does not exist
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrInvalidBaseline is returned for a baseline other than low, moderate or high
	ErrInvalidBaseline = errors.New("invalid baseline")
	// ErrInvalidSeverity is returned for an unknown severity filter
	ErrInvalidSeverity = errors.New("invalid severity")
	// ErrInvalidRequest is returned when an assessment request is malformed
	ErrInvalidRequest = errors.New("invalid assessment request")
	// ErrInvalidCatalog is returned when a catalog file cannot be used
	ErrInvalidCatalog = errors.New("invalid control catalog")
)
