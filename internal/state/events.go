package state

import "time"

// EventKind names an edge event raised by the tracker.
type EventKind string

const (
	EventOnBattery      EventKind = "ON_BATTERY"
	EventPowerRestored  EventKind = "POWER_RESTORED"
	EventConnectionLost EventKind = "CONNECTION_LOST"
	EventBrownout       EventKind = "BROWNOUT"
	EventSurge          EventKind = "SURGE"
	EventAVRBoost       EventKind = "AVR_BOOST"
	EventAVRTrim        EventKind = "AVR_TRIM"
	EventBypass         EventKind = "BYPASS"
	EventOverload       EventKind = "OVERLOAD"
)

// Event is a single edge event raised by Tracker.Apply.
type Event struct {
	Kind EventKind
	At   time.Time

	// Populated for ON_BATTERY.
	BatteryPercent *float64
	RuntimeSeconds *int64
	LoadPercent    *float64

	// Populated for POWER_RESTORED.
	OutageDuration time.Duration

	// Exiting reports whether a quality event marks regime exit rather than
	// entry (the tracker fires each regime change once on entry, once on
	// exit; see Tracker.applyVoltageRegime, which covers both voltage and
	// status-flag regimes via classifyRegime).
	Exiting bool
}
