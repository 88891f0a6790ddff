// Package reports defines the wire-level report envelope the dispatcher
// routes. Reports are opaque to the dispatch layer beyond the fields needed
// for routing and poison correlation; decoding the measurement payload is the
// formula's concern.
package reports

import (
	"fmt"
	"time"
)

// Report is the envelope carried over the wire for every measurement delivered
// to a formula. DispatcherID is the correlation field: the dispatcher stamps
// it before handing the report to a formula, and a poison notification
// reflects it back so the blocking detector can test consecutiveness.
type Report struct {
	// DispatcherID correlates this report with a poison notification.
	// It is assigned by the dispatcher from its probe id allocator and always
	// lies in [0, 10000].
	DispatcherID int `json:"dispatcher_id"`

	// Timestamp records when the measurement was taken.
	Timestamp time.Time `json:"timestamp"`

	// Sensor names the sensor that produced the measurement.
	Sensor string `json:"sensor"`

	// Target names the monitored target the measurement applies to.
	Target string `json:"target"`

	// Metadata carries free-form key-value context attached by the sensor.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Payload is the raw measurement body, decoded by the formula.
	Payload []byte `json:"payload,omitempty"`
}

// RouteKey identifies the formula a report is dispatched to. Every distinct
// sensor/target pair is processed by its own formula instance.
type RouteKey struct {
	Sensor string
	Target string
}

// Route derives the routing key for this report.
func (r Report) Route() RouteKey {
	return RouteKey{Sensor: r.Sensor, Target: r.Target}
}

// String returns the key in "sensor/target" form, suitable for use as an
// event partition key.
func (k RouteKey) String() string {
	return fmt.Sprintf("%s/%s", k.Sensor, k.Target)
}
