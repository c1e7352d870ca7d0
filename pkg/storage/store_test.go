package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStore(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	fs := afero.NewMemMapFs()
	store := NewFileStoreWithFs(fs, "/dumps", logger)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "run1/request.json", []byte(`{"network":"net"}`)))
	exists, err := afero.Exists(fs, "/dumps/run1/request.json")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Load(ctx, "run1/request.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"network":"net"}`, string(data))

	require.NoError(t, store.Save(ctx, "/elsewhere/response.json", []byte(`{}`)))
	assert.Equal(t, filepath.Clean("/elsewhere/response.json"), store.Path("/elsewhere/response.json"))

	_, err = store.Load(ctx, "missing.json")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, store.Save(cancelled, "late.json", nil))
}

func TestFileStoreOnDisk(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "a/b.json", []byte("[]")))
	data, err := store.Load(ctx, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestNewAzureBlobStore(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name             string
		connectionString string
		containerName    string
		wantErr          bool
		errContains      string
	}{
		{
			name:             "empty connection string",
			connectionString: "",
			containerName:    "dumps",
			wantErr:          true,
			errContains:      "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "",
			wantErr:          true,
			errContains:      "container name is required",
		},
		{
			name:             "missing account key",
			connectionString: "AccountName=test",
			containerName:    "dumps",
			wantErr:          true,
			errContains:      "account name and key",
		},
		{
			name:             "azurite endpoint",
			connectionString: "AccountName=devstoreaccount1;AccountKey=dGVzdA==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1",
			containerName:    "dumps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewAzureBlobStore(tt.connectionString, tt.containerName, "run1", logger)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, store)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1/dumps/run1/request.json", store.URL("request.json"))
		})
	}
}

func TestExtractBlobPath(t *testing.T) {
	store, err := NewAzureBlobStore("AccountName=acc;AccountKey=dGVzdA==;BlobEndpoint=https://acc.blob.core.windows.net/", "dumps", "run1", nil)
	require.NoError(t, err)

	tests := []struct {
		reference string
		want      string
	}{
		{"response.json", "run1/response.json"},
		{"/nested/response.json", "run1/nested/response.json"},
		{"https://acc.blob.core.windows.net/dumps/run1/response.json", "run1/response.json"},
		{"https://acc.blob.core.windows.net/dumps/run1/edited%20response.json?sv=2020&sig=x", "run1/edited response.json"},
	}
	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			got, err := store.extractBlobPath(tt.reference)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = store.extractBlobPath("  ")
	assert.Error(t, err)
}

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString("DefaultEndpointsProtocol=https; AccountName=acc;AccountKey=a2V5==;;broken;=x")
	assert.Equal(t, map[string]string{
		"DefaultEndpointsProtocol": "https",
		"AccountName":              "acc",
		"AccountKey":               "a2V5==",
	}, params)
}
