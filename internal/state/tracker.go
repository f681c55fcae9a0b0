package state

import (
	"time"

	"github.com/sweeney/ups-guardian/internal/nut"
)

// TrackerConfig holds the subset of configuration the tracker needs.
type TrackerConfig struct {
	MaxStaleTolerance int
	DepletionWindow   time.Duration
}

// Tracker owns a MonitorState and derives events from each new reading.
type Tracker struct {
	State *MonitorState
	Cfg   TrackerConfig

	lastOK *nut.Reading
}

// NewTracker returns a Tracker over a fresh MonitorState.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{State: NewMonitorState(), Cfg: cfg}
}

// Classify returns a copy of r with FetchOutcome downgraded to nut.Stale
// when the reading's numeric fields are missing or identical to the last
// OK reading's — the repeat/placeholder detection the specification
// assigns to the tracker rather than the stateless poller.
func (t *Tracker) Classify(r nut.Reading) nut.Reading {
	if r.FetchOutcome != nut.OK {
		return r
	}
	if t.lastOK == nil {
		return r
	}
	if readingIsStale(r, *t.lastOK) {
		r.FetchOutcome = nut.Stale
	}
	return r
}

func readingIsStale(r, prev nut.Reading) bool {
	if r.BatteryPercent == nil && r.RuntimeSeconds == nil && r.LoadPercent == nil {
		return true
	}
	return floatPtrEqual(r.BatteryPercent, prev.BatteryPercent) &&
		int64PtrEqual(r.RuntimeSeconds, prev.RuntimeSeconds) &&
		floatPtrEqual(r.LoadPercent, prev.LoadPercent)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Apply updates MonitorState from a classified reading and returns the
// edge events raised by the transition.
func (t *Tracker) Apply(r nut.Reading) []Event {
	var events []Event
	now := r.FetchedAt
	if now.IsZero() {
		now = time.Now()
	}

	switch r.FetchOutcome {
	case nut.OK:
		t.State.ConsecutiveStale = 0
		events = append(events, t.applyDerivedTransition(r, now)...)
		events = append(events, t.applyVoltageRegime(r, now)...)
		t.appendHistory(r, now)
		cp := r
		t.lastOK = &cp

	case nut.Stale:
		t.State.ConsecutiveStale++
		if t.State.ConsecutiveStale > t.Cfg.MaxStaleTolerance {
			events = append(events, Event{Kind: EventConnectionLost, At: now})
		}

	case nut.Unreachable:
		t.State.ConsecutiveStale++
		if t.State.ConsecutiveStale > t.Cfg.MaxStaleTolerance {
			events = append(events, Event{Kind: EventConnectionLost, At: now})
		}
	}

	t.State.LastStatusFlags = copyFlags(r.StatusFlags)
	return events
}

func (t *Tracker) applyDerivedTransition(r nut.Reading, now time.Time) []Event {
	var events []Event

	switch t.State.Derived {
	case Unknown:
		if r.HasFlag("OL") && !r.HasFlag("OB") {
			t.State.Derived = Online
		} else {
			t.State.Derived = OnBattery
			t.State.OnBatterySince = now
		}

	case Online:
		if r.HasFlag("OB") {
			t.State.Derived = OnBattery
			t.State.OnBatterySince = now
			t.State.History = nil
			events = append(events, Event{
				Kind:           EventOnBattery,
				At:             now,
				BatteryPercent: r.BatteryPercent,
				RuntimeSeconds: r.RuntimeSeconds,
				LoadPercent:    r.LoadPercent,
			})
		}

	case OnBattery:
		if r.HasFlag("OL") && !r.HasFlag("OB") {
			duration := now.Sub(t.State.OnBatterySince)
			t.State.Derived = Online
			t.State.OnBatterySince = time.Time{}
			t.State.History = nil
			events = append(events, Event{
				Kind:           EventPowerRestored,
				At:             now,
				OutageDuration: duration,
			})
		}

	case ShutdownArmed:
		// No further derived transitions once armed.
	}

	return events
}

// voltage regime thresholds, as fractions of nominal input voltage.
const (
	brownoutFraction = 0.76
	surgeFraction    = 1.20
)

// applyVoltageRegime fires quality events on regime entry and exit only.
func (t *Tracker) applyVoltageRegime(r nut.Reading, now time.Time) []Event {
	regime := t.classifyRegime(r)
	if regime == t.State.LastVoltageRegime {
		return nil
	}

	var events []Event
	if prev := regimeEvent(t.State.LastVoltageRegime); prev != "" {
		events = append(events, Event{Kind: prev, At: now, Exiting: true})
	}
	if next := regimeEvent(regime); next != "" {
		events = append(events, Event{Kind: next, At: now})
	}
	t.State.LastVoltageRegime = regime
	return events
}

func (t *Tracker) classifyRegime(r nut.Reading) VoltageRegime {
	switch {
	case r.HasFlag("BYPASS"):
		return RegimeBypass
	case r.HasFlag("OVER"):
		return RegimeOverload
	case r.HasFlag("BOOST"):
		return RegimeAVRBoost
	case r.HasFlag("TRIM"):
		return RegimeAVRTrim
	}
	if r.InputVoltage != nil && r.NominalVoltage != nil && *r.NominalVoltage != 0 {
		switch {
		case *r.InputVoltage < brownoutFraction*(*r.NominalVoltage):
			return RegimeBrownout
		case *r.InputVoltage > surgeFraction*(*r.NominalVoltage):
			return RegimeSurge
		}
	}
	return RegimeNormal
}

func regimeEvent(regime VoltageRegime) EventKind {
	switch regime {
	case RegimeBrownout:
		return EventBrownout
	case RegimeSurge:
		return EventSurge
	case RegimeAVRBoost:
		return EventAVRBoost
	case RegimeAVRTrim:
		return EventAVRTrim
	case RegimeBypass:
		return EventBypass
	case RegimeOverload:
		return EventOverload
	default:
		return ""
	}
}

// appendHistory records a (timestamp, battery%) sample while on battery and
// evicts samples older than the configured depletion window.
func (t *Tracker) appendHistory(r nut.Reading, now time.Time) {
	if t.State.Derived != OnBattery || r.BatteryPercent == nil {
		return
	}
	t.State.History = append(t.State.History, Sample{At: now, Percent: *r.BatteryPercent})

	if t.Cfg.DepletionWindow <= 0 {
		return
	}
	cutoff := now.Add(-t.Cfg.DepletionWindow)
	i := 0
	for i < len(t.State.History) && t.State.History[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.State.History = append([]Sample(nil), t.State.History[i:]...)
	}
}

// ArmShutdown latches the shutdown-armed state; it never clears in-process.
func (t *Tracker) ArmShutdown() {
	t.State.Derived = ShutdownArmed
	t.State.ShutdownArmed = true
}

func copyFlags(s nut.StatusSet) map[string]struct{} {
	if s == nil {
		return nil
	}
	cp := make(map[string]struct{}, len(s))
	for k := range s {
		cp[k] = struct{}{}
	}
	return cp
}
