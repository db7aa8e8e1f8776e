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

package documents

import "errors"

var (
	// ErrDocumentNotFound is returned when a document id is unknown
	ErrDocumentNotFound = errors.New("document not found")
	// ErrObjectNotFound is returned by storage backends for a missing key
	ErrObjectNotFound = errors.New("stored object not found")
	// ErrInvalidType is returned for an unknown document type or format
	ErrInvalidType = errors.New("invalid document type")
	// ErrInvalidRequest is returned when a generate request is incomplete
	ErrInvalidRequest = errors.New("invalid document request")
	// ErrUnsupportedBackend is returned for an unknown storage backend
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
)
