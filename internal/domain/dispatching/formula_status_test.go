package dispatching

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/spirals/formula-dispatch/internal/domain/reports"
)

func TestFormulaStatus_RoundTrip(t *testing.T) {
	statuses := []FormulaStatus{
		FormulaStatusPending,
		FormulaStatusRunning,
		FormulaStatusBlocked,
		FormulaStatusEvicted,
	}

	for _, status := range statuses {
		t.Run(status.String(), func(t *testing.T) {
			assert.Equal(t, status, ParseFormulaStatus(status.String()))
		})
	}
}

func TestFormulaStatus_Int32(t *testing.T) {
	tests := []struct {
		status FormulaStatus
		want   int32
	}{
		{status: FormulaStatusUnspecified, want: 0},
		{status: FormulaStatusPending, want: 1},
		{status: FormulaStatusRunning, want: 2},
		{status: FormulaStatusBlocked, want: 3},
		{status: FormulaStatusEvicted, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Int32())
		})
	}
}

func TestParseFormulaStatus_Unknown(t *testing.T) {
	assert.Equal(t, FormulaStatusUnspecified, ParseFormulaStatus("bogus"))
	assert.Equal(t, FormulaStatusUnspecified, ParseFormulaStatus(""))
}

func TestLifecycleEventsCarryStatus(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}

	blocked := NewFormulaBlockedEvent(uuid.New(), key, 12)
	assert.Equal(t, FormulaStatusBlocked, blocked.Status)

	evicted := NewFormulaEvictedEvent(uuid.New(), key, uuid.New())
	assert.Equal(t, FormulaStatusEvicted, evicted.Status)
}
