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

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGCS serves the Cloud Storage JSON upload/delete calls and both the XML
// and JSON media reads
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeGCS() *fakeGCS {
	return &fakeGCS{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/upload/storage/v1/b/"):
		bucket := strings.TrimSuffix(strings.TrimPrefix(path, "/upload/storage/v1/b/"), "/o")
		f.upload(w, r, bucket)
	case strings.HasPrefix(path, "/storage/v1/b/"):
		rest := strings.TrimPrefix(path, "/storage/v1/b/")
		bucket, object, ok := strings.Cut(rest, "/o/")
		if !ok {
			http.Error(w, "unsupported", http.StatusNotImplemented)
			return
		}
		key := bucket + "/" + object
		data, exists := f.objects[key]
		switch {
		case !exists:
			f.notFound(w)
		case r.Method == http.MethodDelete:
			delete(f.objects, key)
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Query().Get("alt") == "media":
			f.media(w, key, data)
		default:
			f.metadata(w, bucket, object)
		}
	case r.Method == http.MethodGet:
		key := strings.TrimPrefix(path, "/")
		data, exists := f.objects[key]
		if !exists {
			f.notFound(w)
			return
		}
		f.media(w, key, data)
	default:
		http.Error(w, "unsupported", http.StatusNotImplemented)
	}
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request, bucket string) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "multipart upload expected", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dataPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(dataPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if meta.Name == "" {
		meta.Name = r.URL.Query().Get("name")
	}
	if meta.ContentType == "" {
		meta.ContentType = dataPart.Header.Get("Content-Type")
	}
	key := bucket + "/" + meta.Name
	f.objects[key] = data
	f.types[key] = meta.ContentType
	f.metadata(w, bucket, meta.Name)
}

func (f *fakeGCS) metadata(w http.ResponseWriter, bucket, name string) {
	key := bucket + "/" + name
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"kind":           "storage#object",
		"bucket":         bucket,
		"name":           name,
		"size":           strconv.Itoa(len(f.objects[key])),
		"contentType":    f.types[key],
		"generation":     "1",
		"metageneration": "1",
	})
}

func (f *fakeGCS) media(w http.ResponseWriter, key string, data []byte) {
	w.Header().Set("Content-Type", f.types[key])
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Goog-Generation", "1")
	w.Header().Set("X-Goog-Metageneration", "1")
	_, _ = w.Write(data)
}

func (f *fakeGCS) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object","errors":[{"reason":"notFound","message":"No such object"}]}}`)
}

func (f *fakeGCS) object(key string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, f.types[key], ok
}

func TestGCSStorage(t *testing.T) {
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	fake := newFakeGCS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewGCSStorage(ctx, GCSOptions{
		Bucket:        "docs",
		Prefix:        "copilot/",
		Endpoint:      srv.URL + "/storage/v1/",
		ClientOptions: []option.ClientOption{option.WithoutAuthentication()},
	})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "gcs", s.Name())

	require.NoError(t, s.Put(ctx, "tenant/ssp/doc.md", []byte("# SSP"), "text/markdown"))
	data, ct, ok := fake.object("docs/copilot/tenant/ssp/doc.md")
	require.True(t, ok)
	assert.Equal(t, "# SSP", string(data))
	assert.Equal(t, "text/markdown", ct)

	got, err := s.Get(ctx, "tenant/ssp/doc.md")
	require.NoError(t, err)
	assert.Equal(t, "# SSP", string(got))

	require.NoError(t, s.Delete(ctx, "tenant/ssp/doc.md"))
	_, _, ok = fake.object("docs/copilot/tenant/ssp/doc.md")
	assert.False(t, ok)

	_, err = s.Get(ctx, "tenant/ssp/doc.md")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoError(t, s.Delete(ctx, "tenant/ssp/doc.md"), "deleting a missing object is not an error")

	_, err = s.Get(ctx, "../escape")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewGCSStorage_RequiresBucket(t *testing.T) {
	_, err := NewGCSStorage(context.Background(), GCSOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
