package dispatching

// MaxMessageID is the inclusive upper bound of the message identifier space
// shared by probe ids and reflected poison ids. After MaxMessageID the
// sequence wraps back to 0.
const MaxMessageID = 10000

// BlockingDetector decides whether a formula has stopped making progress,
// based on the pattern of poison notifications it reflects back. A formula is
// considered blocked once a run of three consecutive poison ids has been
// observed.
//
// Each detector is owned exclusively by the dispatcher record for one formula
// and carries no internal synchronization; the owner must serialize calls to
// NotifyPoisonReceived and AllocateProbeID. A detector is never reused across
// formula identities: evicting a formula discards its detector and the
// replacement gets a fresh one.
type BlockingDetector struct {
	state DetectorState

	// lastPoisonID is the id of the most recently observed poison
	// notification. It is only meaningful after the first notification, and
	// holds -1 after observing MaxMessageID so that a following id of 0 is
	// recognized as its successor.
	lastPoisonID int

	// nextProbeID is the counter for outbound message ids, drawn on for both
	// routed reports and diagnostic probes. Independent of the poison state
	// machine.
	nextProbeID int
}

// NewBlockingDetector returns a detector in the INIT state with the probe id
// counter at 0.
func NewBlockingDetector() *BlockingDetector {
	return &BlockingDetector{state: DetectorStateInit}
}

// NotifyPoisonReceived records a reflected poison notification carrying the
// given id and advances the state machine. The first notification ever seen
// always moves the detector to BLOCKED_INTER_1. After that, an id that is the
// successor of the previous one advances the progression one step
// (BLOCKED_INTER_1 -> BLOCKED_INTER_2 -> BLOCKED -> FINAL), while a
// non-consecutive id resets partial progress to BLOCKED_INTER_1 unless the
// formula is already confirmed BLOCKED or FINAL.
func (d *BlockingDetector) NotifyPoisonReceived(poisonID int) {
	switch {
	case d.state == DetectorStateInit:
		d.state = DetectorStateBlockedInter1

	case poisonID == d.lastPoisonID+1:
		switch d.state {
		case DetectorStateBlockedInter1:
			d.state = DetectorStateBlockedInter2
		case DetectorStateBlockedInter2:
			d.state = DetectorStateBlocked
		case DetectorStateBlocked:
			d.state = DetectorStateFinal
		}

	case d.state != DetectorStateBlocked && d.state != DetectorStateFinal:
		d.state = DetectorStateBlockedInter1
	}

	// The -1 sentinel makes the wraparound boundary (MaxMessageID -> 0) pass
	// the successor test above with the same comparison as any other pair.
	if poisonID == MaxMessageID {
		d.lastPoisonID = -1
	} else {
		d.lastPoisonID = poisonID
	}
}

// IsBlocked reports whether the formula is currently classified as blocked.
// It returns true only in the BLOCKED state; once the state advances to FINAL
// the dispatcher has already acted and the query returns false.
func (d *BlockingDetector) IsBlocked() bool {
	return d.state == DetectorStateBlocked
}

// State returns the current classification.
func (d *BlockingDetector) State() DetectorState { return d.state }

// AllocateProbeID returns the next outbound message id and advances the
// counter. Routed reports and probes draw from the same sequence,
// wrapping back to 0 after MaxMessageID. Ids are unique until the space wraps
// (10001 allocations), so callers correlating probes with reflected poison
// notifications must tolerate reuse on long-lived formulas.
func (d *BlockingDetector) AllocateProbeID() int {
	id := d.nextProbeID
	if d.nextProbeID == MaxMessageID {
		d.nextProbeID = 0
	} else {
		d.nextProbeID++
	}
	return id
}
