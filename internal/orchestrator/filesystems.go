package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// postSyncSettle gives in-flight writes issued just before sync returns a
// moment to actually land on the block device before unmount is attempted.
const postSyncSettle = 2 * time.Second

// runFilesystems implements Stage C: flush buffers with sync, wait briefly
// for the flush to settle, then unmount each configured mount point.
func (o *Orchestrator) runFilesystems(ctx context.Context) StageResult {
	cfg := o.cfg.Filesystems
	if !cfg.Enabled {
		return o.skip(StageFilesystems)
	}

	if cfg.SyncEnabled {
		if o.dryRun {
			o.log.Info().Msg("dry-run: would run sync")
		} else {
			cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_, err := o.runner(cctx, "sync")
			cancel()
			if err != nil {
				o.log.Warn().Err(err).Msg("sync failed")
			}
			select {
			case <-time.After(postSyncSettle):
			case <-ctx.Done():
			}
		}
	}

	var unmounted, failed int
	for _, mount := range cfg.Unmount.Mounts {
		if o.dryRun {
			o.log.Info().Str("path", mount.Path).Msg("dry-run: would unmount")
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.Unmount.Timeout.Duration+5*time.Second)
		args := append(append([]string{}, mount.Flags...), mount.Path)
		_, err := o.runner(cctx, "umount", args...)
		cancel()
		if err != nil {
			o.log.Warn().Err(err).Str("path", mount.Path).Msg("umount failed")
			failed++
			continue
		}
		unmounted++
	}

	return StageResult{
		Name:   StageFilesystems,
		Detail: fmt.Sprintf("unmounted=%d failed=%d", unmounted, failed),
	}
}
