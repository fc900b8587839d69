package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlatformID_IsValid(t *testing.T) {
	assert.True(t, PlatformCartPanda.IsValid())
	assert.True(t, PlatformYampi.IsValid())
	assert.True(t, PlatformKiwify.IsValid())
	assert.False(t, PlatformID("shopify").IsValid())
	assert.False(t, PlatformID("").IsValid())
}

func TestParsePlatformID(t *testing.T) {
	p, ok := ParsePlatformID("  CartPanda ")
	assert.True(t, ok)
	assert.Equal(t, PlatformCartPanda, p)

	_, ok = ParsePlatformID("unknown")
	assert.False(t, ok)
}

func TestNewID_SplitID(t *testing.T) {
	id := NewID(PlatformCartPanda, " 42 ")
	assert.Equal(t, "cartpanda:42", id)

	platform, remoteID, ok := SplitID(id)
	assert.True(t, ok)
	assert.Equal(t, PlatformCartPanda, platform)
	assert.Equal(t, "42", remoteID)

	_, _, ok = SplitID("no-separator")
	assert.False(t, ok)
}

func TestTransaction_IsNewerThan(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older := &Transaction{UpdatedAt: base}
	newer := &Transaction{UpdatedAt: base.Add(time.Minute)}
	same := &Transaction{UpdatedAt: base}

	assert.True(t, newer.IsNewerThan(older))
	assert.False(t, older.IsNewerThan(newer))
	assert.False(t, same.IsNewerThan(older))
	assert.True(t, older.IsNewerThan(nil))
}

func TestTransaction_AppliesOver(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stored := &Transaction{UpdatedAt: base}

	tests := []struct {
		name     string
		incoming time.Time
		want     bool
	}{
		{"newer", base.Add(time.Minute), true},
		{"same instant", base, true},
		{"older", base.Add(-time.Minute), false},
		{"undated", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			incoming := &Transaction{UpdatedAt: tt.incoming}
			assert.Equal(t, tt.want, incoming.AppliesOver(stored))
		})
	}
	assert.True(t, stored.AppliesOver(nil))
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Nil(t, StringPtr("   "))
	if p := StringPtr(" ana "); assert.NotNil(t, p) {
		assert.Equal(t, "ana", *p)
	}
}
