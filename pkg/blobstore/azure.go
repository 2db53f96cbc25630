package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStore is a BlobStore backed by an Azure Storage blob container.
// Grounded on the original azure_service.py's fetch_blob_content/
// upload_blob_content pair: a ResourceNotFoundError (HTTP 404) maps to
// ErrNotFound, uploads always overwrite.
type AzureStore struct {
	container azblob.ContainerURL
}

// NewAzureStore returns a BlobStore backed by the named container
// reached through a connection string, mirroring
// BlobServiceClient.from_connection_string in the original.
func NewAzureStore(connectionString, containerName string) (*AzureStore, error) {
	credential, endpoint, err := parseAzureConnectionString(connectionString)
	if err != nil {
		return nil, fmt.Errorf("blobstore: parse azure connection string: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	containerURL, err := url.Parse(fmt.Sprintf("%s/%s", endpoint, containerName))
	if err != nil {
		return nil, fmt.Errorf("blobstore: build container url: %w", err)
	}

	return &AzureStore{container: azblob.NewContainerURL(*containerURL, pipeline)}, nil
}

func (s *AzureStore) Get(ctx context.Context, name string) ([]byte, error) {
	blob := s.container.NewBlockBlobURL(name)
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if serr, ok := err.(azblob.StorageError); ok && serr.Response() != nil && serr.Response().StatusCode == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: download %s: %w", name, err)
	}
	defer resp.Response().Body.Close()

	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", name, err)
	}
	return content, nil
}

func (s *AzureStore) Put(ctx context.Context, name string, data []byte) error {
	blob := s.container.NewBlockBlobURL(name)
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blob, azblob.UploadToBlockBlobOptions{})
	if err != nil {
		return fmt.Errorf("blobstore: upload %s: %w", name, err)
	}
	return nil
}

// parseAzureConnectionString extracts the shared-key credential and
// blob endpoint from an Azure Storage connection string.
func parseAzureConnectionString(connectionString string) (azblob.Credential, string, error) {
	values, err := parseConnectionStringPairs(connectionString)
	if err != nil {
		return nil, "", err
	}

	accountName, ok := values["AccountName"]
	if !ok {
		return nil, "", fmt.Errorf("missing AccountName")
	}
	accountKey, ok := values["AccountKey"]
	if !ok {
		return nil, "", fmt.Errorf("missing AccountKey")
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, "", fmt.Errorf("build shared key credential: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	if suffix, ok := values["EndpointSuffix"]; ok {
		endpoint = fmt.Sprintf("https://%s.blob.%s", accountName, suffix)
	}
	return credential, endpoint, nil
}

func parseConnectionStringPairs(connectionString string) (map[string]string, error) {
	values := make(map[string]string)
	for _, part := range bytes.Split([]byte(connectionString), []byte(";")) {
		if len(part) == 0 {
			continue
		}
		kv := bytes.SplitN(part, []byte("="), 2)
		if len(kv) != 2 {
			continue
		}
		values[string(kv[0])] = string(kv[1])
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty connection string")
	}
	return values, nil
}
