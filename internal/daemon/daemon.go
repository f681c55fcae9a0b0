// Package daemon wires the poller, state tracker, trigger evaluator,
// notification worker, and shutdown orchestrator into the single run loop
// the command-line entrypoint drives.
package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/ups-guardian/internal/config"
	"github.com/sweeney/ups-guardian/internal/logging"
	"github.com/sweeney/ups-guardian/internal/metrics"
	"github.com/sweeney/ups-guardian/internal/notify"
	"github.com/sweeney/ups-guardian/internal/nut"
	"github.com/sweeney/ups-guardian/internal/orchestrator"
	"github.com/sweeney/ups-guardian/internal/state"
	"github.com/sweeney/ups-guardian/internal/trigger"
)

// Daemon is the top-level lifecycle object: one poll tick reads the UPS,
// classifies and applies it to the tracker, logs any edge events, persists
// state, evaluates triggers, and — once a cause fires — enqueues a
// shutdown notification and hands off to the orchestrator exactly once.
// Edge events are logged only; they are not sent as notifications.
type Daemon struct {
	cfg *config.Config
	log zerolog.Logger

	poller     nut.Poller
	triggerCfg *trigger.Config
	state      *state.Tracker
	worker     *notify.Worker
	orch       *orchestrator.Orchestrator

	statePath string

	// ExitAfterShutdown controls what Run does once the orchestrator has
	// completed: by default it blocks until ctx is cancelled (the process
	// is expected to die with the host once Stage F's local shutdown
	// command takes effect); set true to return immediately instead,
	// which scripted dry runs rely on.
	ExitAfterShutdown bool
}

// New assembles a Daemon from cfg. sender is the notification transport
// (normally notify.ShoutrrrSender{}); poller is normally a
// *nut.UpscPoller built from cfg.UPS.
func New(cfg *config.Config, log zerolog.Logger, poller nut.Poller, sender notify.Sender) *Daemon {
	workerCfg := notify.Config{
		Title:         cfg.Notifications.Title,
		AvatarURL:     cfg.Notifications.AvatarURL,
		URLs:          cfg.Notifications.URLs,
		SendTimeout:   cfg.Notifications.SendTimeout.Duration,
		RetryInterval: cfg.Notifications.RetryInterval.Duration,
	}
	worker := notify.NewWorker(workerCfg, sender, log)

	sentinel := state.NewSentinelMarker(cfg.Paths.ShutdownScheduledFile)
	orch := orchestrator.New(cfg.Stages, cfg.Behavior.DryRun, log, worker, sentinel)

	tracker := state.NewTracker(state.TrackerConfig{
		MaxStaleTolerance: cfg.UPS.MaxStaleTolerance,
		DepletionWindow:   cfg.Triggers.Depletion.Window.Duration,
	})

	triggerCfg := trigger.Config{
		LowBatteryPercent:  cfg.Triggers.LowBatteryPercent,
		CriticalRuntime:    cfg.Triggers.CriticalRuntime.Duration,
		DepletionWindow:    cfg.Triggers.Depletion.Window.Duration,
		CriticalRatePctMin: cfg.Triggers.Depletion.CriticalRatePctMin,
		GracePeriod:        cfg.Triggers.Depletion.Grace.Duration,
		MinSamples:         cfg.Triggers.Depletion.MinSamples,
		ExtendedEnabled:    cfg.Triggers.ExtendedTime.Enabled,
		ExtendedThreshold:  cfg.Triggers.ExtendedTime.Threshold.Duration,
		MaxStaleTolerance:  cfg.UPS.MaxStaleTolerance,
	}

	return &Daemon{
		cfg:        cfg,
		log:        logging.Component(log, "daemon"),
		poller:     poller,
		triggerCfg: &triggerCfg,
		state:      tracker,
		worker:     worker,
		orch:       orch,
		statePath:  cfg.Paths.StateFile,
	}
}

// Run drives the poll loop until ctx is cancelled (typically by a signal
// handler installed by the caller). It returns once the notification
// worker has drained or its drain timeout has elapsed. The orchestrator
// ignores ctx cancellation once it has started, per the specification:
// a shutdown in progress must run to completion even if the operator
// sends a second interrupt.
func (d *Daemon) Run(ctx context.Context) error {
	d.worker.Start(ctx)
	defer d.worker.Stop(d.cfg.Notifications.SendTimeout.Duration + d.cfg.Notifications.RetryInterval.Duration)

	if d.state.State.Derived == state.Unknown {
		sentinel := state.NewSentinelMarker(d.cfg.Paths.ShutdownScheduledFile)
		if sentinel.Exists() {
			d.log.Warn().Msg("sentinel marker present at startup: a previous run may not have completed its shutdown sequence")
		}
	}

	interval := d.cfg.UPS.CheckInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.tick(ctx)

		if d.state.State.ShutdownArmed {
			if d.ExitAfterShutdown {
				return nil
			}
			<-ctx.Done()
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// tick performs one poll-classify-apply-evaluate-persist cycle. It is
// split out from Run so tests can drive individual ticks deterministically.
func (d *Daemon) tick(ctx context.Context) {
	reading := d.poller.Poll(ctx)
	reading = d.state.Classify(reading)

	events := d.state.Apply(reading)
	for _, ev := range events {
		d.logEvent(ev)
	}

	if err := state.WriteStateFile(d.statePath, d.state.State.Derived, reading); err != nil {
		d.log.Error().Err(err).Msg("failed to persist state file")
	}

	if d.state.State.ShutdownArmed {
		return
	}

	verdict := trigger.Evaluate(reading, d.state.State.Snapshot(), *d.triggerCfg)
	if !verdict.Fired() {
		return
	}

	d.log.Warn().Str("cause", string(verdict.Cause)).Msg("shutdown trigger fired")
	body := shutdownMessage(verdict)
	if summary := metrics.Compute(reading).Summary(); summary != "" {
		body += " (" + summary + ")"
	}
	d.worker.Enqueue(body, notify.PriorityCrisis)
	d.state.ArmShutdown()

	d.orch.Run(context.Background(), verdict.Cause)
}

func (d *Daemon) logEvent(ev state.Event) {
	e := d.log.Info().Str("event", string(ev.Kind))
	if ev.Exiting {
		e = e.Bool("exiting", true)
	}
	e.Msg("power state event")
}

func shutdownMessage(v trigger.Verdict) string {
	switch v.Cause {
	case trigger.FSD:
		return "UPS reports forced shutdown (FSD); initiating shutdown sequence"
	case trigger.LowBattery:
		return "battery below configured threshold; initiating shutdown sequence"
	case trigger.CriticalRuntime:
		return "estimated runtime below configured threshold; initiating shutdown sequence"
	case trigger.DepletionRate:
		return "battery depleting faster than the configured critical rate; initiating shutdown sequence"
	case trigger.ExtendedTime:
		return "on battery power longer than the configured extended-time threshold; initiating shutdown sequence"
	case trigger.FailsafeConnectionLost:
		return "UPS connection lost while on battery past the stale tolerance; initiating failsafe shutdown"
	default:
		return "shutdown sequence initiating"
	}
}
