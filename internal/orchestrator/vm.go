package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// runVirtualMachines implements Stage A: ask virsh for every running
// domain, request a graceful shutdown of each, then poll until all are
// stopped or max_wait_s elapses, at which point any survivor is destroyed.
func (o *Orchestrator) runVirtualMachines(ctx context.Context) StageResult {
	cfg := o.cfg.VirtualMachines
	if !cfg.Enabled {
		return o.skip(StageVirtualMachines)
	}

	cctx, cancel := o.runCtx(ctx, cfg.MaxWait.Duration+10*time.Second)
	defer cancel()

	names, err := o.listRunningDomains(cctx)
	if err != nil {
		return StageResult{Name: StageVirtualMachines, Err: fmt.Errorf("listing domains: %w", err)}
	}
	if len(names) == 0 {
		return StageResult{Name: StageVirtualMachines, Detail: "no running domains"}
	}

	o.log.Info().Strs("domains", names).Msg("requesting graceful VM shutdown")
	for _, name := range names {
		if o.dryRun {
			o.log.Info().Str("domain", name).Msg("dry-run: would run virsh shutdown")
			continue
		}
		if _, err := o.runner(cctx, "virsh", "shutdown", name); err != nil {
			o.log.Warn().Err(err).Str("domain", name).Msg("virsh shutdown failed")
		}
	}
	if o.dryRun {
		return StageResult{Name: StageVirtualMachines, Detail: "dry-run"}
	}

	remaining := o.waitForDomainsToStop(cctx, names, cfg.MaxWait.Duration)
	for _, name := range remaining {
		o.log.Warn().Str("domain", name).Msg("VM did not stop within max_wait_s, destroying")
		if _, err := o.runner(cctx, "virsh", "destroy", name); err != nil {
			o.log.Error().Err(err).Str("domain", name).Msg("virsh destroy failed")
		}
	}

	return StageResult{Name: StageVirtualMachines, Detail: fmt.Sprintf("%d domains, %d force-destroyed", len(names), len(remaining))}
}

func (o *Orchestrator) listRunningDomains(ctx context.Context) ([]string, error) {
	out, err := o.runner(ctx, "virsh", "list", "--state-running", "--name")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// waitForDomainsToStop polls every 2 seconds until maxWait elapses,
// returning the names still running when it gives up.
func (o *Orchestrator) waitForDomainsToStop(ctx context.Context, names []string, maxWait time.Duration) []string {
	deadline := time.Now().Add(maxWait)
	remaining := append([]string(nil), names...)

	for len(remaining) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return remaining
		case <-time.After(2 * time.Second):
		}

		running, err := o.listRunningDomains(ctx)
		if err != nil {
			continue
		}
		runningSet := make(map[string]struct{}, len(running))
		for _, n := range running {
			runningSet[n] = struct{}{}
		}
		var still []string
		for _, n := range remaining {
			if _, ok := runningSet[n]; ok {
				still = append(still, n)
			}
		}
		remaining = still
	}
	return remaining
}
