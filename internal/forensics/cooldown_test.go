package forensics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCooldownAcquire(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCooldown()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := c.Acquire(ctx, "user-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = c.Acquire(ctx, "user-1", time.Hour)
	assert.False(t, ok, "second acquire inside the window")

	ok, _ = c.Acquire(ctx, "user-2", time.Hour)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Hour)
	ok, _ = c.Acquire(ctx, "user-1", time.Hour)
	assert.True(t, ok, "window expired")
	assert.Len(t, c.until, 2)
}
