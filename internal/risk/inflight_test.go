package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbcore/arbengine/internal/domain"
)

func TestInflightAcquireReleaseCycle(t *testing.T) {
	reg := NewInflight()

	require.NoError(t, reg.TryAcquire("grp-1", 95))
	assert.ErrorIs(t, reg.TryAcquire("grp-1", 10), domain.ErrGroupBusy)
	assert.InDelta(t, 95, reg.Committed(), 1e-9)

	require.NoError(t, reg.TryAcquire("grp-2", 50))
	assert.InDelta(t, 145, reg.Committed(), 1e-9)

	assert.InDelta(t, 95, reg.Release("grp-1"), 1e-9)
	assert.InDelta(t, 50, reg.Committed(), 1e-9)
	require.NoError(t, reg.TryAcquire("grp-1", 20))
}

func TestInflightReleaseUnheldGroup(t *testing.T) {
	reg := NewInflight()
	assert.Zero(t, reg.Release("grp-missing"))
	assert.Zero(t, reg.Committed())
}

func TestInflightHaltAndClear(t *testing.T) {
	reg := NewInflight()

	reg.Halt("grp-b")
	reg.Halt("grp-a")
	assert.True(t, reg.IsHalted("grp-a"))
	assert.ErrorIs(t, reg.TryAcquire("grp-a", 10), domain.ErrGroupHalted)
	assert.Equal(t, []string{"grp-a", "grp-b"}, reg.Halted())

	reg.Clear("grp-a")
	assert.False(t, reg.IsHalted("grp-a"))
	assert.Equal(t, []string{"grp-b"}, reg.Halted())
	assert.NoError(t, reg.TryAcquire("grp-a", 10))
}
