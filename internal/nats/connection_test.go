package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig("nats://localhost:4222")
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, 10, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestOptions(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name   string
		config *ConnectionConfig
		want   int
	}{
		{"anonymous", DefaultConnectionConfig("nats://a"), 7},
		{"token", &ConnectionConfig{URL: "nats://a", Token: "secret"}, 8},
		{"user", &ConnectionConfig{URL: "nats://a", Username: "u", Password: "p"}, 8},
		{"user without password", &ConnectionConfig{URL: "nats://a", Username: "u"}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Options(tt.config, logger), tt.want)
		})
	}
}

func TestConnectErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Connect(ctx, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = Connect(ctx, &ConnectionConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL cannot be empty")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	cfg := DefaultConnectionConfig("nats://127.0.0.1:1")
	cfg.Timeout = 50 * time.Millisecond
	_, err = Connect(cancelled, cfg, nil)
	require.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
