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
	"archive/zip"
	"fmt"
	"io"
	"path"
	"sort"
)

// Archive writes every file of a result into a zip rooted at the result name
func Archive(w io.Writer, r *GenerationResult) error {
	zw := zip.NewWriter(w)

	names := make([]string, 0, len(r.Files))
	for name := range r.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		hdr := &zip.FileHeader{
			Name:     path.Join(r.Name, name),
			Method:   zip.Deflate,
			Modified: r.GeneratedAt,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("add %s to archive: %w", name, err)
		}
		if _, err := io.WriteString(fw, r.Files[name]); err != nil {
			return fmt.Errorf("write %s to archive: %w", name, err)
		}
	}
	return zw.Close()
}
