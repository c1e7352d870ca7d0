// Package storage keeps optimizer debug documents on local disk or in Azure
// Blob Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

// AzureBlobStore stores documents as blobs of one container using shared keys.
// Plain-HTTP endpoints are accepted so local Azurite instances work.
type AzureBlobStore struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	prefix        string
	logger        *zap.Logger
	containerInit bool
}

// NewAzureBlobStore creates a store from a standard connection string. Blob
// names are placed under prefix.
func NewAzureBlobStore(connectionString, containerName, prefix string, logger *zap.Logger) (*AzureBlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobStore{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		prefix:        strings.Trim(prefix, "/"),
		logger:        logger,
	}, nil
}

// Save uploads data as a JSON blob.
func (a *AzureBlobStore) Save(ctx context.Context, name string, data []byte) error {
	if err := a.ensureContainer(ctx); err != nil {
		return err
	}

	blobPath := a.blobPath(name)
	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(blobPath)
	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("application/json"),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload to blob storage",
			zap.String("blob_path", blobPath),
			zap.Int("size", len(data)),
			zap.Error(err))
		return fmt.Errorf("blob upload failed: %w", err)
	}

	a.logger.Info("Successfully uploaded blob",
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))
	return nil
}

// Load downloads a blob. name may also be a full blob URL.
func (a *AzureBlobStore) Load(ctx context.Context, name string) ([]byte, error) {
	blobPath, err := a.extractBlobPath(name)
	if err != nil {
		return nil, err
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlobClient(blobPath)
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}
	return data, nil
}

// URL returns the address of the blob stored under name.
func (a *AzureBlobStore) URL(name string) string {
	return a.serviceURL + "/" + a.containerName + "/" + a.blobPath(name)
}

func (a *AzureBlobStore) blobPath(name string) string {
	name = strings.TrimPrefix(name, "/")
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

func (a *AzureBlobStore) ensureContainer(ctx context.Context) error {
	if a.containerInit {
		return nil
	}
	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to ensure container %s: %w", a.containerName, err)
	}
	a.containerInit = true
	return nil
}

// parseConnectionString splits "Key=Value;..." pairs. Values may contain '='.
func parseConnectionString(connectionString string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(connectionString, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return params
}

// extractBlobPath turns a name or blob URL into a path inside the container.
// Plain names get the store prefix; URLs are used as they are.
func (a *AzureBlobStore) extractBlobPath(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", fmt.Errorf("blob reference is required")
	}

	isURL := false
	if strings.HasPrefix(strings.ToLower(ref), strings.ToLower(a.serviceURL)) {
		ref = ref[len(a.serviceURL):]
		isURL = true
	} else if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
		isURL = true
	}

	if idx := strings.Index(ref, "?"); idx != -1 {
		ref = ref[:idx]
	}
	if decoded, err := url.PathUnescape(ref); err == nil && decoded != "" {
		ref = decoded
	}

	ref = strings.TrimPrefix(ref, "/")
	if isURL {
		ref = strings.TrimPrefix(ref, a.containerName+"/")
	} else {
		ref = a.blobPath(ref)
	}
	if ref == "" {
		return "", fmt.Errorf("blob path is empty")
	}
	return ref, nil
}
