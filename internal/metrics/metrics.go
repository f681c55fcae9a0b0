// Package metrics provides pure computed/derived fields over a nut.Reading.
// There is no I/O and no side effects; every function here is safe to call
// from any goroutine and, given the same Reading, always returns the same
// result.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/ups-guardian/internal/nut"
)

// Metrics holds values derived from a single Reading, used (through
// Summary) to enrich shutdown notification bodies with numbers an operator
// can read at a glance instead of raw NUT variable names. The persisted
// state file does not include them.
type Metrics struct {
	BatteryRuntimeMins       float64 `json:"battery_runtime_mins"`
	BatteryRuntimeHours      float64 `json:"battery_runtime_hours"`
	OnBattery                bool    `json:"on_battery"`
	LowBattery               bool    `json:"low_battery"`
	StatusDisplay            string  `json:"status_display"`
	InputVoltageDeviationPct float64 `json:"input_voltage_deviation_pct"`
}

// statusTokens maps NUT status tokens to human-readable labels.
var statusTokens = map[string]string{
	"OL":      "Online",
	"OB":      "On Battery",
	"LB":      "Low Battery",
	"HB":      "High Battery",
	"RB":      "Replace Battery",
	"CHRG":    "Charging",
	"DISCHRG": "Discharging",
	"BYPASS":  "Bypass",
	"CAL":     "Calibrating",
	"OFF":     "Offline",
	"OVER":    "Overloaded",
	"TRIM":    "Trimming",
	"BOOST":   "Boosting",
	"FSD":     "Forced Shutdown",
}

// Compute derives metrics from r. A non-OK reading produces zero values
// throughout, since its numeric fields are not meaningful.
func Compute(r nut.Reading) Metrics {
	if r.FetchOutcome != nut.OK {
		return Metrics{}
	}
	return Metrics{
		BatteryRuntimeMins:       minutesFromSeconds(r.RuntimeSeconds),
		BatteryRuntimeHours:      hoursFromSeconds(r.RuntimeSeconds),
		OnBattery:                r.HasFlag("OB"),
		LowBattery:               r.HasFlag("LB"),
		StatusDisplay:            statusDisplay(r.StatusFlags),
		InputVoltageDeviationPct: inputVoltageDeviationPct(r.InputVoltage, r.NominalVoltage),
	}
}

// Summary renders a one-line, human-readable description of m suitable for
// a notification body.
func (m Metrics) Summary() string {
	var b strings.Builder
	if m.StatusDisplay != "" {
		b.WriteString(m.StatusDisplay)
	}
	if m.BatteryRuntimeMins > 0 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(m.BatteryRuntimeMins, 'f', 1, 64))
		b.WriteString(" min estimated runtime remaining")
	}
	return b.String()
}

func minutesFromSeconds(secs *int64) float64 {
	if secs == nil {
		return 0
	}
	return math.Round(float64(*secs)/60*100) / 100
}

func hoursFromSeconds(secs *int64) float64 {
	if secs == nil {
		return 0
	}
	return math.Round(float64(*secs)/3600*100) / 100
}

func statusDisplay(flags nut.StatusSet) string {
	if len(flags) == 0 {
		return ""
	}
	decoded := make([]string, 0, len(flags))
	for token := range flags {
		if name, ok := statusTokens[token]; ok {
			decoded = append(decoded, name)
		} else {
			decoded = append(decoded, token)
		}
	}
	sort.Strings(decoded)
	return strings.Join(decoded, ", ")
}

func inputVoltageDeviationPct(voltage, nominal *float64) float64 {
	if voltage == nil || nominal == nil || *nominal == 0 {
		return 0
	}
	return math.Round((*voltage-*nominal)/(*nominal)*100*100) / 100
}
