// Package trigger implements the pure shutdown-trigger evaluator: given a
// classified reading, the current monitor state, and configuration, it
// decides whether a shutdown cause has fired. It performs no I/O.
package trigger

// Cause names a fired shutdown trigger. The zero value, NoAction, means
// no trigger fired on this tick.
type Cause string

const (
	NoAction               Cause = ""
	FSD                    Cause = "FSD"
	LowBattery             Cause = "LOW_BATTERY"
	CriticalRuntime        Cause = "CRITICAL_RUNTIME"
	DepletionRate          Cause = "DEPLETION_RATE"
	ExtendedTime           Cause = "EXTENDED_TIME"
	FailsafeConnectionLost Cause = "FAILSAFE_CONNECTION_LOST"
)

// Verdict is the evaluator's result: a Cause plus the numeric values that
// triggered it, for logging and notification bodies.
type Verdict struct {
	Cause Cause

	BatteryPercent   *float64
	RuntimeSeconds   *int64
	RatePctPerMin    float64
	OnBatterySeconds float64
}

// Fired reports whether the verdict represents a real shutdown cause.
func (v Verdict) Fired() bool {
	return v.Cause != NoAction
}
