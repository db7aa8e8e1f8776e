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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"copilot/platform/shared/config"
	"copilot/platform/shared/types"
)

// Storage keeps rendered document bytes under a key
type Storage interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewStorage builds the backend selected in cfg
func NewStorage(ctx context.Context, cfg config.DocumentsConfig, cloud types.CloudEnvironment) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		root := cfg.LocalRoot
		if root == "" {
			root = "data/documents"
		}
		return NewLocalStorage(root)
	case "azureblob":
		return NewAzureBlobStorage(AzureBlobOptions{
			AccountName:      cfg.AccountName,
			AccountKey:       cfg.AccountKey,
			ConnectionString: cfg.ConnectionString,
			Container:        cfg.Container,
			Cloud:            cloud,
		})
	case "s3":
		return NewS3Storage(ctx, S3Options{Bucket: cfg.Container, Region: cfg.Region})
	case "gcs":
		return NewGCSStorage(ctx, GCSOptions{Bucket: cfg.Container, CredentialsFile: cfg.CredentialsFile})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
}

// validKey rejects keys that could escape a storage root
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: storage key %q", ErrInvalidRequest, key)
	}
	return nil
}

// LocalStorage keeps documents on the local filesystem
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root if needed
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create document root: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) Name() string { return "local" }

func (s *LocalStorage) path(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return data, err
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
