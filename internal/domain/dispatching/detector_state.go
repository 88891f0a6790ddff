package dispatching

// DetectorState represents the classification a blocking detector has reached
// for its formula. It advances only on consecutive poison notifications and
// regresses to BLOCKED_INTER_1 when a run of notifications is broken.
type DetectorState string

const (
	// DetectorStateInit indicates no poison notification has been observed yet.
	DetectorStateInit DetectorState = "INIT"

	// DetectorStateBlockedInter1 indicates a single poison notification has
	// been observed, or a previous run was broken.
	DetectorStateBlockedInter1 DetectorState = "BLOCKED_INTER_1"

	// DetectorStateBlockedInter2 indicates two consecutive poison
	// notifications have been observed.
	DetectorStateBlockedInter2 DetectorState = "BLOCKED_INTER_2"

	// DetectorStateBlocked indicates the formula is confirmed blocked and the
	// dispatcher must act on it.
	DetectorStateBlocked DetectorState = "BLOCKED"

	// DetectorStateFinal indicates a blocked formula kept producing
	// consecutive poison notifications after confirmation. Terminal.
	DetectorStateFinal DetectorState = "FINAL"
)

// String returns the string representation of the DetectorState.
func (s DetectorState) String() string { return string(s) }

// Int32 returns a stable numeric value for the state, suitable for metrics
// and wire encodings.
func (s DetectorState) Int32() int32 {
	switch s {
	case DetectorStateInit:
		return 1
	case DetectorStateBlockedInter1:
		return 2
	case DetectorStateBlockedInter2:
		return 3
	case DetectorStateBlocked:
		return 4
	case DetectorStateFinal:
		return 5
	default:
		return 0
	}
}

// ParseDetectorState converts a string to a DetectorState. Unknown strings
// map to DetectorStateInit so a fresh detector is the safe default.
func ParseDetectorState(s string) DetectorState {
	switch s {
	case "BLOCKED_INTER_1":
		return DetectorStateBlockedInter1
	case "BLOCKED_INTER_2":
		return DetectorStateBlockedInter2
	case "BLOCKED":
		return DetectorStateBlocked
	case "FINAL":
		return DetectorStateFinal
	default:
		return DetectorStateInit
	}
}
