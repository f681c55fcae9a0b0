// Package orchestrator drives the six-stage shutdown sequence: virtual
// machines, containers, filesystems, remote servers, a final grace period,
// then local shutdown. Stages run strictly in this order even when some
// are disabled, and the sentinel marker is written before any stage's
// first side effect.
package orchestrator

import (
	"context"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/ups-guardian/internal/config"
	"github.com/sweeney/ups-guardian/internal/logging"
	"github.com/sweeney/ups-guardian/internal/notify"
	"github.com/sweeney/ups-guardian/internal/state"
	"github.com/sweeney/ups-guardian/internal/trigger"
)

// Notifier is the subset of notify.Worker the orchestrator depends on.
type Notifier interface {
	Enqueue(body string, priority notify.Priority) uuid.UUID
}

// StageName identifies one of the six fixed stages.
type StageName string

const (
	StageVirtualMachines StageName = "virtual_machines"
	StageContainers      StageName = "containers"
	StageFilesystems     StageName = "filesystems"
	StageRemoteServers   StageName = "remote_servers"
	StageFinalGrace      StageName = "final_grace"
	StageLocalShutdown   StageName = "local_shutdown"
)

// StageResult reports the outcome of one stage.
type StageResult struct {
	Name    StageName
	Skipped bool
	Err     error
	Detail  string
}

// commandRunner is the seam unit tests replace to avoid spawning real
// subprocesses while still exercising the orchestration control flow.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Orchestrator runs the fixed shutdown sequence against cfg.
type Orchestrator struct {
	cfg      config.StagesConfig
	dryRun   bool
	log      zerolog.Logger
	notifier Notifier
	sentinel *state.SentinelMarker
	runner   commandRunner
}

// New returns an Orchestrator. sentinel must be written before any stage
// runs; notifier may be nil, in which case stage-boundary notifications
// are skipped.
func New(cfg config.StagesConfig, dryRun bool, log zerolog.Logger, notifier Notifier, sentinel *state.SentinelMarker) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		dryRun:   dryRun,
		log:      logging.Component(log, "orchestrator"),
		notifier: notifier,
		sentinel: sentinel,
		runner:   runCommand,
	}
}

// Run executes all six stages in order and returns one StageResult per
// stage. A stage that errors does not prevent the remaining stages from
// running: the goal is to get as much of the host shut down cleanly as
// possible, not to halt on the first failure.
func (o *Orchestrator) Run(ctx context.Context, cause trigger.Cause) []StageResult {
	if o.sentinel != nil {
		if err := o.sentinel.Write(string(cause)); err != nil {
			o.log.Error().Err(err).Msg("failed to write sentinel marker before shutdown orchestration")
		}
	}
	o.notify("shutdown orchestration starting (cause=" + string(cause) + ")")

	results := make([]StageResult, 0, 6)

	results = append(results, o.runStage(ctx, o.runVirtualMachines))
	results = append(results, o.runStage(ctx, o.runContainers))
	results = append(results, o.runStage(ctx, o.runFilesystems))
	results = append(results, o.runStage(ctx, o.runRemoteServers))
	results = append(results, o.runStage(ctx, o.runFinalGrace))
	results = append(results, o.runStage(ctx, o.runLocalShutdown))

	o.notify("shutdown orchestration complete")
	return results
}

// runStage invokes one stage and enqueues a crisis-level notification
// reporting its outcome, so an operator watching the notification channel
// can see how far the sequence advanced even if the host goes dark before
// the next stage boundary.
func (o *Orchestrator) runStage(ctx context.Context, stage func(context.Context) StageResult) StageResult {
	result := stage(ctx)
	o.notify(stageBoundaryMessage(result))
	return result
}

func stageBoundaryMessage(result StageResult) string {
	switch {
	case result.Skipped:
		return "stage " + string(result.Name) + " skipped (disabled)"
	case result.Err != nil:
		return "stage " + string(result.Name) + " completed with errors: " + result.Err.Error()
	case result.Detail != "":
		return "stage " + string(result.Name) + " complete: " + result.Detail
	default:
		return "stage " + string(result.Name) + " complete"
	}
}

func (o *Orchestrator) notify(body string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Enqueue(body, notify.PriorityCrisis)
}

// skip builds the StageResult for a disabled stage, logging at debug so
// operators can see the full sequence ran even when most of it no-ops.
func (o *Orchestrator) skip(name StageName) StageResult {
	o.log.Debug().Str("stage", string(name)).Msg("stage disabled, skipping")
	return StageResult{Name: name, Skipped: true}
}

func (o *Orchestrator) runCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
