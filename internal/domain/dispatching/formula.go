// Package dispatching holds the domain types for routing reports to formulas
// and deciding when a formula has stopped making progress.
package dispatching

import (
	"context"

	"github.com/google/uuid"

	"github.com/spirals/formula-dispatch/internal/domain/reports"
)

// Formula is a message-processing unit whose liveness is monitored by the
// dispatcher. Implementations receive every report routed to their key and
// return an error when processing fails; repeated failures surface as poison
// notifications.
//
// The dispatcher treats formulas as black boxes: what a formula computes is
// none of its business.
type Formula interface {
	// ID uniquely identifies this formula instance. A replacement formula for
	// the same route key gets a new ID.
	ID() uuid.UUID

	// Process handles a single report. A non-nil error marks the report as
	// poisonous for this formula.
	Process(ctx context.Context, report reports.Report) error
}

// FormulaFactory builds a formula instance for a route key. The dispatcher
// invokes it on first sight of a key and again whenever a blocked formula is
// replaced.
type FormulaFactory func(key reports.RouteKey) (Formula, error)
