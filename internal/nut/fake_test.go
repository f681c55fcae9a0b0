package nut

import (
	"context"
	"testing"
)

func TestFakePoller_Poll_ReturnsReading(t *testing.T) {
	fp := &FakePoller{Reading: Reading{FetchOutcome: OK, StatusFlags: NewStatusSet("OL")}}
	r := fp.Poll(context.Background())
	if r.FetchOutcome != OK || !r.HasFlag("OL") {
		t.Errorf("Poll() = %+v, want OK/OL", r)
	}
}

func TestFakePoller_CallCount(t *testing.T) {
	fp := &FakePoller{}
	for i := 1; i <= 3; i++ {
		fp.Poll(context.Background())
		if fp.CallCount != i {
			t.Errorf("CallCount = %d after %d calls, want %d", fp.CallCount, i, i)
		}
	}
}

func TestFakePoller_Close(t *testing.T) {
	fp := &FakePoller{}
	if fp.Closed {
		t.Fatal("Closed should be false initially")
	}
	if err := fp.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !fp.Closed {
		t.Error("Closed should be true after Close()")
	}
}

func TestFakePoller_Sequence_StepsThrough(t *testing.T) {
	seq := []Reading{
		{FetchOutcome: OK, StatusFlags: NewStatusSet("OL")},
		{FetchOutcome: OK, StatusFlags: NewStatusSet("OB", "DISCHRG")},
		{FetchOutcome: OK, StatusFlags: NewStatusSet("OL", "CHRG")},
	}
	fp := &FakePoller{Sequence: seq}

	for i, want := range []string{"OL", "OB", "OL"} {
		r := fp.Poll(context.Background())
		if !r.HasFlag(want) {
			t.Errorf("call %d: missing flag %q in %+v", i+1, want, r.StatusFlags)
		}
	}
}

func TestFakePoller_Sequence_RepeatsLastElement(t *testing.T) {
	fp := &FakePoller{
		Sequence: []Reading{{FetchOutcome: OK, StatusFlags: NewStatusSet("OB")}},
	}
	for i := 0; i < 3; i++ {
		r := fp.Poll(context.Background())
		if !r.HasFlag("OB") {
			t.Errorf("call %d: expected OB flag", i+1)
		}
	}
}

func TestFakePoller_Reset(t *testing.T) {
	fp := &FakePoller{
		Reading:   Reading{FetchOutcome: OK},
		Sequence:  []Reading{{FetchOutcome: OK}},
		CallCount: 5,
		Closed:    true,
	}
	fp.Reset()

	if fp.Sequence != nil {
		t.Error("Reset should clear Sequence")
	}
	if fp.CallCount != 0 {
		t.Errorf("Reset should set CallCount=0, got %d", fp.CallCount)
	}
	if fp.Closed {
		t.Error("Reset should set Closed=false")
	}
}
