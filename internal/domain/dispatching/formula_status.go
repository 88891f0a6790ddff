package dispatching

// FormulaStatus represents the lifecycle state of a formula registration in
// the dispatcher.
type FormulaStatus string

const (
	// FormulaStatusPending indicates a formula is registered but has not
	// processed a report yet.
	FormulaStatusPending FormulaStatus = "PENDING"

	// FormulaStatusRunning indicates a formula is actively processing reports.
	FormulaStatusRunning FormulaStatus = "RUNNING"

	// FormulaStatusBlocked indicates the blocking detector confirmed the
	// formula is stuck.
	FormulaStatusBlocked FormulaStatus = "BLOCKED"

	// FormulaStatusEvicted indicates the formula was removed from the registry.
	FormulaStatusEvicted FormulaStatus = "EVICTED"

	// FormulaStatusUnspecified is used when a formula status is unknown.
	FormulaStatusUnspecified FormulaStatus = "UNSPECIFIED"
)

// String returns the string representation of the FormulaStatus.
func (s FormulaStatus) String() string { return string(s) }

// Int32 returns a stable numeric value for wire encodings.
func (s FormulaStatus) Int32() int32 {
	switch s {
	case FormulaStatusPending:
		return 1
	case FormulaStatusRunning:
		return 2
	case FormulaStatusBlocked:
		return 3
	case FormulaStatusEvicted:
		return 4
	default:
		return 0
	}
}

// ParseFormulaStatus converts a string to a FormulaStatus.
func ParseFormulaStatus(s string) FormulaStatus {
	switch s {
	case "PENDING":
		return FormulaStatusPending
	case "RUNNING":
		return FormulaStatusRunning
	case "BLOCKED":
		return FormulaStatusBlocked
	case "EVICTED":
		return FormulaStatusEvicted
	default:
		return FormulaStatusUnspecified
	}
}
