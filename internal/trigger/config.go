package trigger

import "time"

// Config holds the evaluator's tunables. See the specification's
// Configuration §3 "Triggers" group for defaults.
type Config struct {
	LowBatteryPercent  float64
	CriticalRuntime    time.Duration
	DepletionWindow    time.Duration
	CriticalRatePctMin float64
	GracePeriod        time.Duration
	MinSamples         int
	ExtendedEnabled    bool
	ExtendedThreshold  time.Duration
	MaxStaleTolerance  int
}

// DefaultConfig returns the specification's documented trigger defaults.
func DefaultConfig() Config {
	return Config{
		LowBatteryPercent:  20,
		CriticalRuntime:    600 * time.Second,
		DepletionWindow:    300 * time.Second,
		CriticalRatePctMin: 15.0,
		GracePeriod:        90 * time.Second,
		MinSamples:         30,
		ExtendedEnabled:    true,
		ExtendedThreshold:  900 * time.Second,
		MaxStaleTolerance:  3,
	}
}
