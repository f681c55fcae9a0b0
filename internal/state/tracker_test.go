package state

import (
	"testing"
	"time"

	"github.com/sweeney/ups-guardian/internal/nut"
)

func reading(t time.Time, outcome nut.Outcome, flags ...string) nut.Reading {
	return nut.Reading{
		FetchedAt:    t,
		FetchOutcome: outcome,
		StatusFlags:  nut.NewStatusSet(flags...),
	}
}

func f(v float64) *float64 { return &v }
func i64(v int64) *int64   { return &v }

func TestTracker_UnknownToOnline(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	now := time.Now()
	r := reading(now, nut.OK, "OL")
	tr.Apply(r)
	if tr.State.Derived != Online {
		t.Errorf("Derived = %q, want ONLINE", tr.State.Derived)
	}
}

func TestTracker_UnknownToOnBattery(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	now := time.Now()
	r := reading(now, nut.OK, "OB", "DISCHRG")
	tr.Apply(r)
	if tr.State.Derived != OnBattery {
		t.Errorf("Derived = %q, want ON_BATTERY", tr.State.Derived)
	}
	if tr.State.OnBatterySince.IsZero() {
		t.Error("OnBatterySince should be set")
	}
}

// S2 — Short outage, power restored.
func TestTracker_OnBatteryThenRestored_S2(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3, DepletionWindow: 5 * time.Minute})
	t0 := time.Now()

	events := tr.Apply(reading(t0, nut.OK, "OL", "CHRG"))
	if len(events) != 0 {
		t.Fatalf("unexpected events on first online reading: %+v", events)
	}

	onBattery := reading(t0, nut.OK, "OB", "DISCHRG")
	onBattery.BatteryPercent = f(100)
	onBattery.RuntimeSeconds = i64(1800)
	events = tr.Apply(onBattery)
	if len(events) != 1 || events[0].Kind != EventOnBattery {
		t.Fatalf("events = %+v, want [ON_BATTERY]", events)
	}

	t30 := t0.Add(30 * time.Second)
	restored := reading(t30, nut.OK, "OL", "CHRG")
	restored.BatteryPercent = f(95)
	events = tr.Apply(restored)
	if len(events) != 1 || events[0].Kind != EventPowerRestored {
		t.Fatalf("events = %+v, want [POWER_RESTORED]", events)
	}
	if events[0].OutageDuration != 30*time.Second {
		t.Errorf("OutageDuration = %v, want 30s", events[0].OutageDuration)
	}
	if len(tr.State.History) != 0 {
		t.Error("history should be cleared on restore")
	}
}

func TestTracker_HistoryAppendedWhileOnBattery(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3, DepletionWindow: time.Minute})
	t0 := time.Now()
	tr.Apply(reading(t0, nut.OK, "OL"))

	ob := reading(t0, nut.OK, "OB")
	ob.BatteryPercent = f(80)
	tr.Apply(ob)

	next := reading(t0.Add(10*time.Second), nut.OK, "OB")
	next.BatteryPercent = f(78)
	tr.Apply(next)

	if len(tr.State.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(tr.State.History))
	}
}

func TestTracker_HistoryEvictsOutsideWindow(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3, DepletionWindow: 30 * time.Second})
	t0 := time.Now()
	tr.Apply(reading(t0, nut.OK, "OL"))

	ob := reading(t0, nut.OK, "OB")
	ob.BatteryPercent = f(80)
	tr.Apply(ob)

	late := reading(t0.Add(time.Minute), nut.OK, "OB")
	late.BatteryPercent = f(60)
	tr.Apply(late)

	if len(tr.State.History) != 1 {
		t.Fatalf("len(History) = %d, want 1 (old sample evicted)", len(tr.State.History))
	}
	if tr.State.History[0].Percent != 60 {
		t.Errorf("remaining sample = %v, want 60", tr.State.History[0].Percent)
	}
}

// S5 — Failsafe on connection loss.
func TestTracker_ConnectionLost_S5(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	t0 := time.Now()
	tr.Apply(reading(t0, nut.OK, "OB"))

	var gotConnLost bool
	for i := 1; i <= 4; i++ {
		events := tr.Apply(reading(t0.Add(time.Duration(i)*time.Second), nut.Unreachable))
		for _, e := range events {
			if e.Kind == EventConnectionLost {
				gotConnLost = true
				if i != 4 {
					t.Errorf("CONNECTION_LOST fired on poll %d, want on poll 4 (tolerance+1)", i)
				}
			}
		}
	}
	if !gotConnLost {
		t.Fatal("expected CONNECTION_LOST after exceeding max_stale_tolerance")
	}
}

func TestTracker_ConsecutiveStale_ExactTolerance_NoEvent(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	t0 := time.Now()
	tr.Apply(reading(t0, nut.OK, "OB"))

	for i := 1; i <= 3; i++ {
		events := tr.Apply(reading(t0.Add(time.Duration(i)*time.Second), nut.Unreachable))
		for _, e := range events {
			if e.Kind == EventConnectionLost {
				t.Fatalf("CONNECTION_LOST fired at consecutive_stale=%d, want only beyond tolerance", i)
			}
		}
	}
}

func TestTracker_OKResetsConsecutiveStale(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	t0 := time.Now()
	tr.Apply(reading(t0, nut.OK, "OB"))
	tr.Apply(reading(t0.Add(time.Second), nut.Unreachable))
	tr.Apply(reading(t0.Add(2*time.Second), nut.Unreachable))
	if tr.State.ConsecutiveStale != 2 {
		t.Fatalf("ConsecutiveStale = %d, want 2", tr.State.ConsecutiveStale)
	}
	ok := reading(t0.Add(3*time.Second), nut.OK, "OB")
	ok.BatteryPercent = f(50)
	tr.Apply(ok)
	if tr.State.ConsecutiveStale != 0 {
		t.Errorf("ConsecutiveStale = %d after OK, want 0", tr.State.ConsecutiveStale)
	}
}

func TestTracker_Classify_RepeatedNumericFields_MarksStale(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	t0 := time.Now()
	r1 := reading(t0, nut.OK, "OB")
	r1.BatteryPercent = f(50)
	r1.RuntimeSeconds = i64(600)
	tr.Apply(tr.Classify(r1))

	r2 := reading(t0.Add(time.Second), nut.OK, "OB")
	r2.BatteryPercent = f(50)
	r2.RuntimeSeconds = i64(600)
	classified := tr.Classify(r2)
	if classified.FetchOutcome != nut.Stale {
		t.Errorf("FetchOutcome = %q, want STALE for a repeated reading", classified.FetchOutcome)
	}
}

func TestTracker_Classify_MissingFields_MarksStale(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	t0 := time.Now()
	r1 := reading(t0, nut.OK, "OL")
	r1.BatteryPercent = f(90)
	tr.Apply(tr.Classify(r1))

	r2 := reading(t0.Add(time.Second), nut.OK, "OL")
	classified := tr.Classify(r2)
	if classified.FetchOutcome != nut.Stale {
		t.Errorf("FetchOutcome = %q, want STALE for a reading missing numeric fields", classified.FetchOutcome)
	}
}

func TestTracker_VoltageRegime_FiresOnceOnEntryAndExit(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	t0 := time.Now()
	tr.Apply(reading(t0, nut.OK, "OL"))

	brown := reading(t0.Add(time.Second), nut.OK, "OL")
	brown.InputVoltage = f(100)
	brown.NominalVoltage = f(230)
	events := tr.Apply(brown)
	if len(events) != 1 || events[0].Kind != EventBrownout {
		t.Fatalf("events = %+v, want [BROWNOUT]", events)
	}

	// Repeating the same regime must not re-fire.
	brown2 := reading(t0.Add(2*time.Second), nut.OK, "OL")
	brown2.InputVoltage = f(101)
	brown2.NominalVoltage = f(230)
	events = tr.Apply(brown2)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none (regime unchanged)", events)
	}

	normal := reading(t0.Add(3*time.Second), nut.OK, "OL")
	normal.InputVoltage = f(230)
	normal.NominalVoltage = f(230)
	events = tr.Apply(normal)
	if len(events) != 1 || events[0].Kind != EventBrownout || !events[0].Exiting {
		t.Fatalf("events = %+v, want [BROWNOUT exiting]", events)
	}
}

func TestTracker_ArmShutdown_Latches(t *testing.T) {
	tr := NewTracker(TrackerConfig{MaxStaleTolerance: 3})
	tr.Apply(reading(time.Now(), nut.OK, "OB"))
	tr.ArmShutdown()
	if tr.State.Derived != ShutdownArmed {
		t.Errorf("Derived = %q, want SHUTDOWN_ARMED", tr.State.Derived)
	}
	if !tr.State.ShutdownArmed {
		t.Error("ShutdownArmed should be true")
	}
}
