package trigger

import (
	"github.com/sweeney/ups-guardian/internal/nut"
	"github.com/sweeney/ups-guardian/internal/state"
)

// Evaluate is a pure function over (reading, state, config): identical
// inputs always produce an identical Verdict. It performs no I/O and must
// never panic on malformed input (e.g. FSD and OL both set).
//
// Evaluation order is first-match-wins, per the specification's pinned
// tie-break:
//  1. FSD flag on an OK reading.
//  2. Failsafe: was ON_BATTERY, current reading non-OK past the stale
//     tolerance.
//  3. While ON_BATTERY and the reading is OK: low battery, critical
//     runtime, depletion rate, extended time — in that order.
func Evaluate(r nut.Reading, s state.MonitorState, cfg Config) Verdict {
	if r.FetchOutcome == nut.OK && r.HasFlag("FSD") {
		return Verdict{Cause: FSD}
	}

	if s.Derived == state.OnBattery && r.FetchOutcome != nut.OK && s.ConsecutiveStale > cfg.MaxStaleTolerance {
		return Verdict{Cause: FailsafeConnectionLost}
	}

	if r.FetchOutcome != nut.OK || s.Derived != state.OnBattery {
		return Verdict{Cause: NoAction}
	}

	if r.BatteryPercent != nil && *r.BatteryPercent < cfg.LowBatteryPercent {
		return Verdict{Cause: LowBattery, BatteryPercent: r.BatteryPercent}
	}

	if r.RuntimeSeconds != nil && float64(*r.RuntimeSeconds) < cfg.CriticalRuntime.Seconds() {
		return Verdict{Cause: CriticalRuntime, RuntimeSeconds: r.RuntimeSeconds}
	}

	onBatterySeconds := r.FetchedAt.Sub(s.OnBatterySince).Seconds()

	if v, ok := evaluateDepletionRate(s, cfg, onBatterySeconds); ok {
		return v
	}

	if cfg.ExtendedEnabled && onBatterySeconds > cfg.ExtendedThreshold.Seconds() {
		return Verdict{Cause: ExtendedTime, OnBatterySeconds: onBatterySeconds}
	}

	return Verdict{Cause: NoAction}
}

// evaluateDepletionRate computes the rolling depletion rate and reports
// whether it crosses the configured critical threshold once the grace
// period has elapsed.
func evaluateDepletionRate(s state.MonitorState, cfg Config, onBatterySeconds float64) (Verdict, bool) {
	if len(s.History) < cfg.MinSamples {
		return Verdict{}, false
	}

	oldest := s.History[0]
	newest := s.History[len(s.History)-1]
	deltaSeconds := newest.At.Sub(oldest.At).Seconds()
	if deltaSeconds <= 0 {
		return Verdict{}, false
	}

	ratePctPerMin := (oldest.Percent - newest.Percent) / deltaSeconds * 60

	if ratePctPerMin > cfg.CriticalRatePctMin && onBatterySeconds > cfg.GracePeriod.Seconds() {
		return Verdict{
			Cause:            DepletionRate,
			RatePctPerMin:    ratePctPerMin,
			OnBatterySeconds: onBatterySeconds,
		}, true
	}
	return Verdict{}, false
}
