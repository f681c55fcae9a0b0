package nut

import (
	"context"
	"os/exec"
	"time"
)

// Poller abstracts the NUT data source so tests can inject a fake.
// Implementations must never return an error to the caller: a failed,
// hung, or empty poll is reported as an Unreachable Reading instead, per
// the external-interface contract (§6 of the specification this daemon
// implements).
type Poller interface {
	Poll(ctx context.Context) Reading
	Close() error
}

// marginOverInterval is added to the configured check interval to form the
// per-call deadline passed to upsc, so a slow-but-completing poll isn't
// killed right at the edge of its own cadence.
const marginOverInterval = 2 * time.Second

// UpscPoller invokes the external `upsc` binary once per Poll call.
// It is stateless: cadence is enforced by the caller's ticker loop.
type UpscPoller struct {
	// BinaryPath is the upsc executable; defaults to "upsc" (resolved via
	// PATH) when empty.
	BinaryPath string
	// Target is "name@host" as passed to upsc.
	Target string
	// CheckInterval is the configured polling cadence; the per-call
	// deadline is CheckInterval + marginOverInterval.
	CheckInterval time.Duration

	runner commandRunner
}

// commandRunner is the seam unit tests replace to avoid spawning a real
// upsc binary while still exercising the full parse/classify path.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// NewUpscPoller returns a Poller that shells out to upsc for the given
// "name@host" target on the given cadence.
func NewUpscPoller(binaryPath, target string, checkInterval time.Duration) *UpscPoller {
	return &UpscPoller{
		BinaryPath:    binaryPath,
		Target:        target,
		CheckInterval: checkInterval,
		runner:        runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// Poll runs upsc under a deadline and returns a classified Reading. It
// never returns an error: launch failure, timeout, empty output, or output
// missing both ups.status and battery.charge all collapse to Unreachable.
func (p *UpscPoller) Poll(ctx context.Context) Reading {
	now := time.Now()

	binary := p.BinaryPath
	if binary == "" {
		binary = "upsc"
	}
	deadline := p.CheckInterval + marginOverInterval
	if deadline <= 0 {
		deadline = marginOverInterval
	}

	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	runner := p.runner
	if runner == nil {
		runner = runCommand
	}

	out, err := runner(cctx, binary, p.Target)
	if err != nil || len(out) == 0 {
		return UnreachableReading(now)
	}

	vars := parseLines(string(out))
	reading, ok := buildReading(vars, now)
	if !ok {
		return UnreachableReading(now)
	}
	return reading
}

// Close is a no-op; UpscPoller holds no resources between polls.
func (p *UpscPoller) Close() error { return nil }
