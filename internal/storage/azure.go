package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/spboyer/arena/internal/utils"
)

// blobClient is the subset of *azblob.Client the store uses.
type blobClient interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureOptions configures an AzureBlobStore.
type AzureOptions struct {
	// ServiceURL is the account endpoint, ex: https://myaccount.blob.core.windows.net/
	ServiceURL string
	Container  string
	Prefix     string

	// Credential defaults to azidentity.NewDefaultAzureCredential.
	Credential azcore.TokenCredential
}

// AzureBlobStore keeps objects as block blobs in one container.
type AzureBlobStore struct {
	client     blobClient
	serviceURL string
	container  string
	prefix     string
}

// NewAzureBlobStore creates a store that authenticates with opts.Credential.
func NewAzureBlobStore(opts AzureOptions) (*AzureBlobStore, error) {
	if opts.ServiceURL == "" || opts.Container == "" {
		return nil, errors.New("azure blob store needs a service URL and a container")
	}

	cred := opts.Credential
	if cred == nil {
		defaultCred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("creating azure credential: %w", err)
		}
		cred = defaultCred
	}

	client, err := azblob.NewClient(opts.ServiceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}

	return newAzureBlobStore(client, opts), nil
}

func newAzureBlobStore(client blobClient, opts AzureOptions) *AzureBlobStore {
	return &AzureBlobStore{
		client:     client,
		serviceURL: strings.TrimSuffix(opts.ServiceURL, "/"),
		container:  opts.Container,
		prefix:     strings.Trim(opts.Prefix, "/"),
	}
}

func (s *AzureBlobStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := objectKey(s.prefix, name)

	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: utils.Ptr(contentType(name)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to container %s: %w", key, s.container, err)
	}

	return fmt.Sprintf("%s/%s/%s", s.serviceURL, s.container, key), nil
}

func (s *AzureBlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := objectKey(s.prefix, name)

	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, s.container, key)
		}
		return nil, fmt.Errorf("downloading %s from container %s: %w", key, s.container, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	return io.ReadAll(resp.Body)
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
