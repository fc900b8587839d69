package redis

import (
	"testing"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWebhookDelivery(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{
			name:   "valid",
			values: map[string]any{"event_id": "e1", "platform": "YAMPI", "payload": `{}`, "timestamp": "1714564800"},
		},
		{
			name:    "unknown platform",
			values:  map[string]any{"platform": "shopify", "payload": `{}`},
			wantErr: true,
		},
		{
			name:    "missing payload",
			values:  map[string]any{"platform": "kiwify"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DecodeWebhookDelivery(redis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedMessage)
				assert.Equal(t, "1-0", d.MessageID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, transaction.PlatformYampi, d.Platform)
			assert.Equal(t, "e1", d.EventID)
			assert.Equal(t, int64(1714564800), d.ReceivedAt.Unix())
		})
	}
}
