package dispatching

import (
	"context"

	"github.com/spirals/formula-dispatch/internal/domain/reports"
)

// FormulaMonitor defines the dispatcher-side surface for routing reports and
// reacting to poison notifications.
type FormulaMonitor interface {
	// Start launches the monitor's background loops.
	Start(ctx context.Context)

	// Route dispatches a report to the formula owning its route key.
	Route(ctx context.Context, report reports.Report) error

	// HandlePoisonReport handles a reflected poison notification.
	HandlePoisonReport(ctx context.Context, evt PoisonReportEvent) error

	// Stop stops the monitor.
	Stop()
}

// FormulaEvictor removes a stuck formula and arranges its replacement.
type FormulaEvictor interface {
	// EvictFormula removes the formula for the given route key and creates a
	// replacement through the factory.
	EvictFormula(ctx context.Context, key reports.RouteKey) error
}
