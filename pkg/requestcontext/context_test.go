package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))

	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before), "falls back to wall clock")
}

func TestCaller(t *testing.T) {
	_, ok := CallerFrom(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), Caller{Name: "otp-gateway", Categories: []string{"email", "phone"}})
	c, ok := CallerFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "otp-gateway", c.Name)
	assert.True(t, c.Allows("email"))
	assert.False(t, c.Allows("identity"))

	assert.True(t, Caller{Name: "admin"}.Allows("identity"), "unscoped caller may update anything")
}
