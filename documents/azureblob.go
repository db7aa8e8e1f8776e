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
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"copilot/platform/shared/types"
)

// AzureBlobOptions selects the account and authentication of the blob backend.
// A connection string wins over an account key, which wins over
// DefaultAzureCredential.
type AzureBlobOptions struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	Container        string
	Cloud            types.CloudEnvironment
	// ServiceURL overrides the URL derived from AccountName and Cloud
	ServiceURL    string
	ClientOptions *azblob.ClientOptions
}

// AzureBlobStorage keeps documents in an Azure Storage container
type AzureBlobStorage struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobStorage creates a blob backend
func NewAzureBlobStorage(opts AzureBlobOptions) (*AzureBlobStorage, error) {
	if opts.Container == "" {
		return nil, fmt.Errorf("%w: azureblob container is required", ErrInvalidRequest)
	}
	serviceURL := opts.ServiceURL
	if serviceURL == "" {
		if opts.AccountName == "" && opts.ConnectionString == "" {
			return nil, fmt.Errorf("%w: azureblob account name is required", ErrInvalidRequest)
		}
		serviceURL = fmt.Sprintf("https://%s.%s/", opts.AccountName, opts.Cloud.BlobEndpointSuffix())
	}

	var client *azblob.Client
	var err error
	switch {
	case opts.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, opts.ClientOptions)
	case opts.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts.ClientOptions)
	default:
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, opts.ClientOptions)
	}
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureBlobStorage{client: client, container: opts.Container}, nil
}

func (s *AzureBlobStorage) Name() string { return "azureblob" }

func (s *AzureBlobStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (s *AzureBlobStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *AzureBlobStorage) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}
