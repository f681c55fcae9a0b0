package nut

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseLines_KeyValue(t *testing.T) {
	out := "ups.status=OL CHRG\nbattery.charge=100\n\nbattery.runtime=1800\n"
	vars := parseLines(out)
	if vars["ups.status"] != "OL CHRG" {
		t.Errorf("ups.status = %q, want %q", vars["ups.status"], "OL CHRG")
	}
	if vars["battery.charge"] != "100" {
		t.Errorf("battery.charge = %q, want %q", vars["battery.charge"], "100")
	}
}

func TestParseLines_IgnoresMalformedLines(t *testing.T) {
	out := "not a kv line\nups.status=OL\n"
	vars := parseLines(out)
	if len(vars) != 1 {
		t.Fatalf("len(vars) = %d, want 1", len(vars))
	}
}

func TestBuildReading_MissingStatusAndCharge_Unreachable(t *testing.T) {
	vars := parseLines("ups.load=8\n")
	_, ok := buildReading(vars, time.Now())
	if ok {
		t.Fatal("expected buildReading to report unreachable when ups.status and battery.charge are both absent")
	}
}

func TestBuildReading_StatusPresentNumericAbsent_OK(t *testing.T) {
	vars := parseLines("ups.status=OL\n")
	r, ok := buildReading(vars, time.Now())
	if !ok {
		t.Fatal("expected buildReading to succeed when ups.status is present")
	}
	if r.FetchOutcome != OK {
		t.Errorf("FetchOutcome = %q, want OK", r.FetchOutcome)
	}
	if r.BatteryPercent != nil {
		t.Errorf("BatteryPercent = %v, want nil", *r.BatteryPercent)
	}
	if !r.HasFlag("OL") {
		t.Error("expected OL flag set")
	}
}

func TestBuildReading_AllFields(t *testing.T) {
	out := "ups.status=OB DISCHRG\n" +
		"battery.charge=42.5\n" +
		"battery.runtime=600\n" +
		"ups.load=33\n" +
		"input.voltage=242.0\n" +
		"input.voltage.nominal=230\n" +
		"input.frequency=50.0\n" +
		"output.voltage=242.0\n"
	vars := parseLines(out)
	r, ok := buildReading(vars, time.Now())
	if !ok {
		t.Fatal("expected ok")
	}
	if *r.BatteryPercent != 42.5 {
		t.Errorf("BatteryPercent = %v, want 42.5", *r.BatteryPercent)
	}
	if *r.RuntimeSeconds != 600 {
		t.Errorf("RuntimeSeconds = %v, want 600", *r.RuntimeSeconds)
	}
	if *r.LoadPercent != 33 {
		t.Errorf("LoadPercent = %v, want 33", *r.LoadPercent)
	}
	if !r.HasFlag("OB") || !r.HasFlag("DISCHRG") {
		t.Error("expected OB and DISCHRG flags")
	}
}

func TestUpscPoller_Poll_CommandFails_Unreachable(t *testing.T) {
	p := &UpscPoller{
		Target: "cyberpower@localhost",
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		},
	}
	r := p.Poll(context.Background())
	if r.FetchOutcome != Unreachable {
		t.Errorf("FetchOutcome = %q, want UNREACHABLE", r.FetchOutcome)
	}
}

func TestUpscPoller_Poll_EmptyOutput_Unreachable(t *testing.T) {
	p := &UpscPoller{
		Target: "cyberpower@localhost",
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, nil
		},
	}
	r := p.Poll(context.Background())
	if r.FetchOutcome != Unreachable {
		t.Errorf("FetchOutcome = %q, want UNREACHABLE", r.FetchOutcome)
	}
}

func TestUpscPoller_Poll_Success(t *testing.T) {
	p := &UpscPoller{
		Target:        "cyberpower@localhost",
		CheckInterval: time.Second,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if args[0] != "cyberpower@localhost" {
				t.Errorf("arg = %q, want target", args[0])
			}
			return []byte("ups.status=OL\nbattery.charge=100\n"), nil
		},
	}
	r := p.Poll(context.Background())
	if r.FetchOutcome != OK {
		t.Fatalf("FetchOutcome = %q, want OK", r.FetchOutcome)
	}
	if *r.BatteryPercent != 100 {
		t.Errorf("BatteryPercent = %v, want 100", *r.BatteryPercent)
	}
}

func TestUpscPoller_Poll_DeadlineDerivedFromCheckInterval(t *testing.T) {
	p := &UpscPoller{
		Target:        "x@localhost",
		CheckInterval: 50 * time.Millisecond,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatal("expected a deadline on the runner context")
			}
			if time.Until(deadline) > 50*time.Millisecond+marginOverInterval+time.Second {
				t.Errorf("deadline too far in the future")
			}
			return []byte("ups.status=OL\n"), nil
		},
	}
	p.Poll(context.Background())
}
