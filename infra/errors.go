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

package infra

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is returned when a generation request is malformed
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrUnknownPattern is returned for an architecture pattern that is not defined
	ErrUnknownPattern = errors.New("unknown architecture pattern")

	// ErrMissingDependency is returned when a parent or reference names no resource
	ErrMissingDependency = errors.New("missing dependency")

	// ErrGenerationNotFound is returned when a generation result is unknown or expired
	ErrGenerationNotFound = errors.New("generation not found")
)

// CycleError reports resources that could not be ordered
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between resources: %s", strings.Join(e.Nodes, ", "))
}
