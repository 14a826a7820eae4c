package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "bloomwatch", cfg.Name)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	client, err := NewClient(cfg)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestNatsToMessage(t *testing.T) {
	msg := &nats.Msg{
		Subject: "bloomwatch.predictions.failed",
		Data:    []byte(`{"outcome":"no_output"}`),
		Header:  nats.Header{},
	}
	msg.Header.Set("Request-Id", "req-9")

	got := natsToMessage(msg)

	assert.Equal(t, msg.Subject, got.Subject)
	assert.Equal(t, msg.Data, got.Data)
	assert.Equal(t, "req-9", got.Metadata["Request-Id"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestNatsToMessage_NoHeaders(t *testing.T) {
	got := natsToMessage(&nats.Msg{Subject: "s"})
	assert.Nil(t, got.Metadata)
}
