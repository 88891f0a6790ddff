// Package formula provides concrete formula implementations runnable under
// the dispatcher.
package formula

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/reports"
	"github.com/spirals/formula-dispatch/pkg/common/logger"
)

// Dummy is a trivial formula that emits a constant power estimate for each
// report. It is useful for exercising the full dispatch pipeline end to end
// without a real power model: a malformed report payload makes Process fail,
// which surfaces through the poison notification path like any real formula
// failure would.
type Dummy struct {
	id    uuid.UUID
	key   reports.RouteKey
	delay time.Duration

	logger *logger.Logger
}

// dummyPayload is the minimal payload shape the dummy formula accepts.
type dummyPayload struct {
	Groups map[string]json.RawMessage `json:"groups"`
}

// NewDummy creates a dummy formula for a route key. delay simulates model
// computation time per report.
func NewDummy(key reports.RouteKey, delay time.Duration, log *logger.Logger) *Dummy {
	id := uuid.New()
	return &Dummy{
		id:     id,
		key:    key,
		delay:  delay,
		logger: log.With("component", "dummy_formula", "formula_id", id, "route_key", key.String()),
	}
}

// NewDummyFactory returns a factory producing a fresh dummy formula per
// route key.
func NewDummyFactory(delay time.Duration, log *logger.Logger) dispatching.FormulaFactory {
	return func(key reports.RouteKey) (dispatching.Formula, error) {
		return NewDummy(key, delay, log), nil
	}
}

// ID returns the formula's unique identity.
func (f *Dummy) ID() uuid.UUID { return f.id }

// Process validates the report payload and emits a constant 42 W estimate.
func (f *Dummy) Process(ctx context.Context, r reports.Report) error {
	var payload dummyPayload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode report payload: %w", err)
	}

	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	f.logger.Debug(ctx, "Power estimate computed",
		"report_id", r.DispatcherID,
		"timestamp", r.Timestamp,
		"power_watts", 42.0,
	)
	return nil
}
