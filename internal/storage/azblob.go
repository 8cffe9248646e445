package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBlobstore is a Store backed by a single Azure Blob Storage container.
// Folders are blob name prefixes, so folder and file ids are paths.
type AzureBlobstore struct {
	containerURL azblob.ContainerURL
}

var _ Store = (*AzureBlobstore)(nil)

func NewAzureBlobstore(ctx context.Context, containerName string, accountName, accountKey string) (*AzureBlobstore, error) {
	primaryURLRaw := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	primaryURL, err := url.Parse(primaryURLRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %v: %v", primaryURLRaw, err)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	p := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	serviceURL := azblob.NewServiceURL(*primaryURL, p)

	return &AzureBlobstore{
		containerURL: serviceURL.NewContainerURL(containerName),
	}, nil
}

// EnsureFolder creates the container if needed. Prefixes need no creation.
func (s *AzureBlobstore) EnsureFolder(ctx context.Context, folderPath string) (string, error) {
	_, err := s.containerURL.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone)
	var stgErr azblob.StorageError
	if err != nil && !(errors.As(err, &stgErr) && stgErr.ServiceCode() == azblob.ServiceCodeContainerAlreadyExists) {
		return "", fmt.Errorf("storage.EnsureFolder: %w", err)
	}
	return folderPath, nil
}

func (s *AzureBlobstore) Find(ctx context.Context, folderID, name string) (string, bool, error) {
	blobName := path.Join(folderID, name)
	_, err := s.containerURL.NewBlobURL(blobName).GetProperties(ctx, azblob.BlobAccessConditions{})
	if err != nil {
		var stgErr azblob.StorageError
		if errors.As(err, &stgErr) && stgErr.Response() != nil && stgErr.Response().StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("storage.Find: %w", err)
	}
	return blobName, true, nil
}

func (s *AzureBlobstore) Create(ctx context.Context, folderID, name string, content []byte) (string, error) {
	blobName := path.Join(folderID, name)
	if err := s.put(ctx, blobName, content); err != nil {
		return "", err
	}
	return blobName, nil
}

func (s *AzureBlobstore) Update(ctx context.Context, fileID string, content []byte) error {
	return s.put(ctx, fileID, content)
}

func (s *AzureBlobstore) put(ctx context.Context, blobName string, content []byte) error {
	blobURL := s.containerURL.NewBlockBlobURL(blobName)
	headers := azblob.BlobHTTPHeaders{ContentType: fileMimeType}

	if _, err := azblob.UploadBufferToBlockBlob(ctx, content, blobURL, azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: headers,
	}); err != nil {
		return fmt.Errorf("storage.put: %w", err)
	}
	return nil
}
