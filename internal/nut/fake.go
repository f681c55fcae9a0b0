package nut

import "context"

// FakePoller is a test double for Poller.
//
// Single-snapshot mode: pre-seed Reading; every Poll() returns it
// unchanged, FetchedAt included. Sequence mode: pre-seed
// Sequence; each Poll() advances through the list. When the sequence is
// exhausted the last element is repeated, simulating a steady post-event
// state.
type FakePoller struct {
	Reading  Reading   // returned when Sequence is nil/empty
	Sequence []Reading // each Poll() advances through this list

	CallCount int
	Closed    bool

	// Now, when set, is called on every Poll() and its Reading is returned
	// as-is, taking precedence over Reading and Sequence; tests use this to
	// control FetchedAt and drive deterministic elapsed-time behavior in
	// the tracker and evaluator.
	Now func() Reading
}

// Poll returns the pre-seeded reading for the current call index.
func (f *FakePoller) Poll(ctx context.Context) Reading {
	f.CallCount++

	if f.Now != nil {
		return f.Now()
	}

	if len(f.Sequence) > 0 {
		idx := f.CallCount - 1
		if idx >= len(f.Sequence) {
			idx = len(f.Sequence) - 1 // repeat last element
		}
		return f.Sequence[idx]
	}
	return f.Reading
}

// Close records that the poller was closed.
func (f *FakePoller) Close() error {
	f.Closed = true
	return nil
}

// Reset clears all state so the fake can be reused between sub-tests.
func (f *FakePoller) Reset() {
	f.Reading = Reading{}
	f.Sequence = nil
	f.CallCount = 0
	f.Closed = false
	f.Now = nil
}
