package dispatching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockingDetector_InitialState(t *testing.T) {
	d := NewBlockingDetector()

	assert.Equal(t, DetectorStateInit, d.State())
	assert.False(t, d.IsBlocked())
}

func TestBlockingDetector_FirstPoisonAlwaysStartsProgression(t *testing.T) {
	tests := []struct {
		name     string
		poisonID int
	}{
		{name: "zero", poisonID: 0},
		{name: "mid_range", poisonID: 42},
		{name: "max_id", poisonID: MaxMessageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewBlockingDetector()
			d.NotifyPoisonReceived(tt.poisonID)

			assert.Equal(t, DetectorStateBlockedInter1, d.State())
			assert.False(t, d.IsBlocked())
		})
	}
}

func TestBlockingDetector_ConsecutiveRunReachesBlocked(t *testing.T) {
	d := NewBlockingDetector()

	d.NotifyPoisonReceived(5)
	assert.Equal(t, DetectorStateBlockedInter1, d.State())
	assert.False(t, d.IsBlocked())

	d.NotifyPoisonReceived(6)
	assert.Equal(t, DetectorStateBlockedInter2, d.State())
	assert.False(t, d.IsBlocked())

	d.NotifyPoisonReceived(7)
	assert.Equal(t, DetectorStateBlocked, d.State())
	assert.True(t, d.IsBlocked())
}

func TestBlockingDetector_FourthConsecutiveReachesFinal(t *testing.T) {
	d := NewBlockingDetector()

	for _, id := range []int{5, 6, 7} {
		d.NotifyPoisonReceived(id)
	}
	require.True(t, d.IsBlocked())

	d.NotifyPoisonReceived(8)
	assert.Equal(t, DetectorStateFinal, d.State())
	assert.False(t, d.IsBlocked(), "FINAL reports not blocked; the dispatcher already acted on the BLOCKED edge")
}

func TestBlockingDetector_FinalIsTerminal(t *testing.T) {
	d := NewBlockingDetector()
	for _, id := range []int{5, 6, 7, 8} {
		d.NotifyPoisonReceived(id)
	}
	require.Equal(t, DetectorStateFinal, d.State())

	d.NotifyPoisonReceived(9)
	assert.Equal(t, DetectorStateFinal, d.State())

	d.NotifyPoisonReceived(500)
	assert.Equal(t, DetectorStateFinal, d.State())
}

func TestBlockingDetector_WraparoundIsConsecutive(t *testing.T) {
	d := NewBlockingDetector()

	d.NotifyPoisonReceived(MaxMessageID - 1)
	d.NotifyPoisonReceived(MaxMessageID)
	require.Equal(t, DetectorStateBlockedInter2, d.State())

	// MaxMessageID -> 0 crosses the wrap boundary and must count as an
	// unbroken run.
	d.NotifyPoisonReceived(0)
	assert.Equal(t, DetectorStateBlocked, d.State())
	assert.True(t, d.IsBlocked())

	d.NotifyPoisonReceived(1)
	assert.Equal(t, DetectorStateFinal, d.State())
}

func TestBlockingDetector_BrokenRunResetsProgress(t *testing.T) {
	t.Run("from_blocked_inter_1", func(t *testing.T) {
		d := NewBlockingDetector()
		d.NotifyPoisonReceived(10)
		require.Equal(t, DetectorStateBlockedInter1, d.State())

		d.NotifyPoisonReceived(99)
		assert.Equal(t, DetectorStateBlockedInter1, d.State())
	})

	t.Run("from_blocked_inter_2", func(t *testing.T) {
		d := NewBlockingDetector()
		d.NotifyPoisonReceived(10)
		d.NotifyPoisonReceived(11)
		require.Equal(t, DetectorStateBlockedInter2, d.State())

		d.NotifyPoisonReceived(99)
		assert.Equal(t, DetectorStateBlockedInter1, d.State())
	})

	t.Run("reset_run_can_still_reach_blocked", func(t *testing.T) {
		d := NewBlockingDetector()
		d.NotifyPoisonReceived(10)
		d.NotifyPoisonReceived(99)

		// The broken run updated lastPoisonID, so a fresh run builds on 99.
		d.NotifyPoisonReceived(100)
		d.NotifyPoisonReceived(101)
		assert.Equal(t, DetectorStateBlocked, d.State())
	})
}

func TestBlockingDetector_NonConsecutiveDoesNotResetConfirmed(t *testing.T) {
	d := NewBlockingDetector()
	for _, id := range []int{42, 43, 44} {
		d.NotifyPoisonReceived(id)
	}
	require.True(t, d.IsBlocked())

	d.NotifyPoisonReceived(99)
	assert.Equal(t, DetectorStateBlocked, d.State())
	assert.True(t, d.IsBlocked())
}

func TestBlockingDetector_AllocateProbeID(t *testing.T) {
	d := NewBlockingDetector()

	for want := 0; want <= MaxMessageID; want++ {
		assert.Equal(t, want, d.AllocateProbeID())
	}

	// One full cycle later the counter wraps back to 0 without skipping.
	assert.Equal(t, 0, d.AllocateProbeID())
	assert.Equal(t, 1, d.AllocateProbeID())
}

func TestBlockingDetector_AllocatorIndependentOfStateMachine(t *testing.T) {
	d := NewBlockingDetector()

	assert.Equal(t, 0, d.AllocateProbeID())
	d.NotifyPoisonReceived(7000)
	d.NotifyPoisonReceived(7001)
	assert.Equal(t, 1, d.AllocateProbeID())
	assert.Equal(t, DetectorStateBlockedInter2, d.State())
}

func TestBlockingDetector_EndToEndScenario(t *testing.T) {
	d := NewBlockingDetector()
	require.Equal(t, DetectorStateInit, d.State())

	d.NotifyPoisonReceived(42)
	assert.Equal(t, DetectorStateBlockedInter1, d.State())
	assert.False(t, d.IsBlocked())

	d.NotifyPoisonReceived(43)
	assert.Equal(t, DetectorStateBlockedInter2, d.State())

	d.NotifyPoisonReceived(44)
	assert.Equal(t, DetectorStateBlocked, d.State())
	assert.True(t, d.IsBlocked())

	d.NotifyPoisonReceived(99)
	assert.Equal(t, DetectorStateBlocked, d.State())
	assert.True(t, d.IsBlocked())
}
