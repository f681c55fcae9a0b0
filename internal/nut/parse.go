package nut

import (
	"strconv"
	"strings"
	"time"
)

// recognized upsc keys, per the external-interface contract: unknown keys
// are ignored.
const (
	keyStatus         = "ups.status"
	keyBatteryCharge  = "battery.charge"
	keyBatteryRuntime = "battery.runtime"
	keyLoad           = "ups.load"
	keyInputVoltage   = "input.voltage"
	keyInputNominal   = "input.voltage.nominal"
	keyInputFreq      = "input.frequency"
	keyOutputVoltage  = "output.voltage"
)

// parseLines turns raw "key=value" lines (as emitted by upsc) into a
// name→value map. Lines without '=' are ignored; keys and values are
// whitespace-trimmed.
func parseLines(output string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return vars
}

// buildReading converts a parsed variable map into a Reading. It returns
// (Reading{}, false) when both ups.status and battery.charge are absent,
// which the caller treats as Unreachable.
func buildReading(vars map[string]string, at time.Time) (Reading, bool) {
	status, hasStatus := vars[keyStatus]
	_, hasCharge := vars[keyBatteryCharge]
	if !hasStatus && !hasCharge {
		return Reading{}, false
	}

	r := Reading{
		FetchedAt:    at,
		FetchOutcome: OK,
		StatusFlags:  NewStatusSet(strings.Fields(status)...),
	}
	r.BatteryPercent = parseFloatPtr(vars[keyBatteryCharge])
	r.RuntimeSeconds = parseIntPtr(vars[keyBatteryRuntime])
	r.LoadPercent = parseFloatPtr(vars[keyLoad])
	r.InputVoltage = parseFloatPtr(vars[keyInputVoltage])
	r.OutputVoltage = parseFloatPtr(vars[keyOutputVoltage])
	r.InputFrequency = parseFloatPtr(vars[keyInputFreq])
	r.NominalVoltage = parseFloatPtr(vars[keyInputNominal])
	return r, true
}

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntPtr(s string) *int64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v := int64(f)
	if v < 0 {
		return nil
	}
	return &v
}
