package orchestrator

import (
	"context"
	"time"
)

// finalGraceDuration is the fixed pause between the last remote-host
// action and local shutdown, giving slower stages' background writes a
// last moment to finish landing on disk.
const finalGraceDuration = 5 * time.Second

// runFinalGrace implements Stage E: an unconditional 5 second pause.
func (o *Orchestrator) runFinalGrace(ctx context.Context) StageResult {
	if o.dryRun {
		o.log.Info().Dur("duration", finalGraceDuration).Msg("dry-run: would pause before local shutdown")
		return StageResult{Name: StageFinalGrace, Detail: "dry-run"}
	}
	select {
	case <-time.After(finalGraceDuration):
	case <-ctx.Done():
	}
	return StageResult{Name: StageFinalGrace}
}

// runLocalShutdown implements Stage F: run the configured local shutdown
// command. This is always the last stage.
func (o *Orchestrator) runLocalShutdown(ctx context.Context) StageResult {
	cfg := o.cfg.LocalShutdown
	if !cfg.Enabled {
		return o.skip(StageLocalShutdown)
	}
	if cfg.Command == "" {
		return StageResult{Name: StageLocalShutdown, Detail: "no command configured"}
	}
	if o.dryRun {
		o.log.Info().Str("command", cfg.Command).Msg("dry-run: would run local shutdown command")
		return StageResult{Name: StageLocalShutdown, Detail: "dry-run"}
	}

	if cfg.Message != "" {
		o.notify(cfg.Message)
	}

	cctx, cancel := o.runCtx(ctx, 30*time.Second)
	defer cancel()
	if _, err := o.runner(cctx, "sh", "-c", cfg.Command); err != nil {
		return StageResult{Name: StageLocalShutdown, Err: err}
	}
	return StageResult{Name: StageLocalShutdown}
}
