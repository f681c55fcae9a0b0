package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/ups-guardian/internal/config"
)

// runContainers implements Stage B: stop each configured compose project
// with its own (or the global) timeout, then optionally stop whatever
// containers remain under the detected runtime.
func (o *Orchestrator) runContainers(ctx context.Context) StageResult {
	cfg := o.cfg.Containers
	if !cfg.Enabled {
		return o.skip(StageContainers)
	}

	runtime := o.detectRuntime(ctx, cfg)
	if runtime == "" {
		return StageResult{Name: StageContainers, Err: fmt.Errorf("no container runtime detected (tried podman, docker)")}
	}

	var stopped, failed int
	for _, cf := range cfg.ComposeFiles {
		timeout := cfg.StopTimeout.Duration
		if cf.StopTimeout != nil {
			timeout = cf.StopTimeout.Duration
		}
		cctx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
		if o.dryRun {
			o.log.Info().Str("compose_file", cf.Path).Msg("dry-run: would run compose down")
			cancel()
			continue
		}
		args := []string{"compose", "-f", cf.Path, "down", "--timeout", fmt.Sprintf("%d", int(timeout.Seconds()))}
		if _, err := o.runner(cctx, runtime, args...); err != nil {
			o.log.Warn().Err(err).Str("compose_file", cf.Path).Msg("compose down failed")
			failed++
		} else {
			stopped++
		}
		cancel()
	}

	if cfg.ShutdownAllRemaining && !o.dryRun {
		if err := o.stopRemainingContainers(ctx, runtime, cfg); err != nil {
			o.log.Warn().Err(err).Msg("stopping remaining containers failed")
		}
	}

	return StageResult{
		Name:   StageContainers,
		Detail: fmt.Sprintf("runtime=%s compose_stopped=%d compose_failed=%d", runtime, stopped, failed),
	}
}

// detectRuntime honors an explicit runtime setting and otherwise probes
// for podman then docker, the order the specification documents as the
// expected host profile on small home-lab servers.
func (o *Orchestrator) detectRuntime(ctx context.Context, cfg config.ContainersConfig) string {
	if cfg.Runtime != "" && cfg.Runtime != "auto" {
		return cfg.Runtime
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := o.runner(cctx, "podman", "--version"); err == nil {
		return "podman"
	}
	if _, err := o.runner(cctx, "docker", "--version"); err == nil {
		return "docker"
	}
	return ""
}

func (o *Orchestrator) stopRemainingContainers(ctx context.Context, runtime string, cfg config.ContainersConfig) error {
	cctx, cancel := context.WithTimeout(ctx, cfg.StopTimeout.Duration+5*time.Second)
	defer cancel()

	out, err := o.runner(cctx, runtime, "ps", "-q")
	if err != nil {
		return fmt.Errorf("listing running containers: %w", err)
	}
	ids := splitNonEmptyLines(string(out))
	if len(ids) == 0 {
		return nil
	}
	args := append([]string{"stop", "-t", fmt.Sprintf("%d", int(cfg.StopTimeout.Duration.Seconds()))}, ids...)
	if _, err := o.runner(cctx, runtime, args...); err != nil {
		return fmt.Errorf("stopping remaining containers: %w", err)
	}

	if cfg.IncludeUserContainers && runtime == "podman" {
		if err := o.stopRootlessPodmanContainers(ctx, cfg); err != nil {
			o.log.Warn().Err(err).Msg("stopping rootless podman containers failed")
		}
	}
	return nil
}

// stopRootlessPodmanContainers reaches into every logged-in user's rootless
// podman socket, since those containers are invisible to the system-level
// `podman ps` call above.
func (o *Orchestrator) stopRootlessPodmanContainers(ctx context.Context, cfg config.ContainersConfig) error {
	cctx, cancel := context.WithTimeout(ctx, cfg.StopTimeout.Duration+5*time.Second)
	defer cancel()

	out, err := o.runner(cctx, "loginctl", "list-users", "--no-legend")
	if err != nil {
		return fmt.Errorf("listing logged-in users: %w", err)
	}

	for _, line := range splitNonEmptyLines(string(out)) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		uid := fields[0]
		sock := fmt.Sprintf("unix:///run/user/%s/podman/podman.sock", uid)

		idsOut, err := o.runner(cctx, "podman", "--url", sock, "ps", "-q")
		if err != nil {
			continue // no rootless podman socket for this user
		}
		ids := splitNonEmptyLines(string(idsOut))
		if len(ids) == 0 {
			continue
		}
		args := append([]string{"--url", sock, "stop", "-t", fmt.Sprintf("%d", int(cfg.StopTimeout.Duration.Seconds()))}, ids...)
		if _, err := o.runner(cctx, "podman", args...); err != nil {
			o.log.Warn().Err(err).Str("uid", uid).Msg("stopping rootless containers for user failed")
		}
	}
	return nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
