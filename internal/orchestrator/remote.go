package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/ups-guardian/internal/config"
)

// predefinedActionCommands maps a PredefinedAction to the shell command run
// on the remote host. stop_compose is handled separately since it needs
// the configured path substituted in.
var predefinedActionCommands = map[config.PredefinedAction]string{
	config.ActionStopContainers: "docker stop $(docker ps -q) 2>/dev/null || podman stop $(podman ps -q)",
	config.ActionStopVMs:        "virsh list --state-running --name | xargs -r -n1 virsh shutdown",
	config.ActionStopProxmoxVMs: "qm list | awk 'NR>1 && $3==\"running\"{print $1}' | xargs -r -n1 qm shutdown",
	config.ActionStopProxmoxCTs: "pct list | awk 'NR>1 && $2==\"running\"{print $1}' | xargs -r -n1 pct shutdown",
	config.ActionStopXCPngVMs:   "xe vm-shutdown-all --multiple 2>/dev/null || true",
	config.ActionStopESXiVMs:    "for id in $(vim-cmd vmsvc/getallvms | awk 'NR>1{print $1}'); do vim-cmd vmsvc/power.shutdown \"$id\"; done",
	config.ActionSync:          "sync",
}

// resolveCommand turns a normalized PreShutdownCommand into the literal
// shell command to run on the remote host.
func resolveCommand(cmd config.PreShutdownCommand) (string, error) {
	if !cmd.IsPredefined() {
		return cmd.Command, nil
	}
	if cmd.Action == config.ActionStopCompose {
		return fmt.Sprintf("docker compose -f %s down || podman-compose -f %s down", cmd.Path, cmd.Path), nil
	}
	resolved, ok := predefinedActionCommands[cmd.Action]
	if !ok {
		return "", fmt.Errorf("no command template for action %q", cmd.Action)
	}
	return resolved, nil
}

// runRemoteServers implements Stage D: every non-parallel server runs its
// pre-shutdown commands and shutdown command sequentially, in config
// order; every parallel server then runs concurrently via errgroup. This
// two-phase split lets an operator order dependent hosts (e.g. a NAS that
// must outlive the hosts reading from it) ahead of the independent ones.
func (o *Orchestrator) runRemoteServers(ctx context.Context) StageResult {
	servers := o.cfg.RemoteServers
	if len(servers) == 0 {
		return o.skip(StageRemoteServers)
	}

	var sequential, parallel []config.RemoteServer
	for _, s := range servers {
		if !s.Enabled {
			continue
		}
		if s.Parallel {
			parallel = append(parallel, s)
		} else {
			sequential = append(sequential, s)
		}
	}

	var failed int
	for _, s := range sequential {
		if err := o.runOneRemoteServer(ctx, s); err != nil {
			o.log.Warn().Err(err).Str("server", s.Name).Msg("remote shutdown sequence failed")
			failed++
		}
	}

	if len(parallel) > 0 {
		var g errgroup.Group
		for _, s := range parallel {
			s := s
			g.Go(func() error {
				return o.runOneRemoteServer(ctx, s)
			})
		}
		if err := g.Wait(); err != nil {
			o.log.Warn().Err(err).Msg("one or more parallel remote shutdowns failed")
			failed++
		}
	}

	return StageResult{
		Name:   StageRemoteServers,
		Detail: fmt.Sprintf("sequential=%d parallel=%d failed=%d", len(sequential), len(parallel), failed),
	}
}

func (o *Orchestrator) runOneRemoteServer(ctx context.Context, s config.RemoteServer) error {
	log := o.log.With().Str("server", s.Name).Str("host", s.Host).Logger()

	for _, cmd := range s.PreShutdownCommands {
		resolved, err := resolveCommand(cmd)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unresolvable pre-shutdown command")
			continue
		}
		timeout := s.CommandTimeout.Duration
		if cmd.Timeout != nil {
			timeout = cmd.Timeout.Duration
		}
		if o.dryRun {
			log.Info().Str("command", resolved).Msg("dry-run: would run remote pre-shutdown command")
			continue
		}
		if err := o.runRemoteCommand(ctx, s, resolved, timeout); err != nil {
			log.Warn().Err(err).Str("command", resolved).Msg("pre-shutdown command failed")
		}
	}

	if s.ShutdownCommand == "" {
		return nil
	}
	if o.dryRun {
		log.Info().Str("command", s.ShutdownCommand).Msg("dry-run: would run remote shutdown command")
		return nil
	}
	return o.runRemoteCommand(ctx, s, s.ShutdownCommand, s.CommandTimeout.Duration)
}

// runRemoteCommand dispatches through the native SSH client when no custom
// ssh_options are configured, and through the external ssh binary when
// they are — ssh_options (ProxyJump, IdentityFile, StrictHostKeyChecking,
// and the like) are an open-ended CLI surface the stdlib SSH client has no
// equivalent of, so passthrough has to mean an actual subprocess.
func (o *Orchestrator) runRemoteCommand(ctx context.Context, s config.RemoteServer, command string, timeout time.Duration) error {
	cctx, cancel := o.runCtx(ctx, timeout)
	defer cancel()

	if len(s.SSHOptions) > 0 {
		return o.runRemoteCommandViaBinary(cctx, s, command)
	}
	return runRemoteCommandNative(cctx, s, command)
}

func (o *Orchestrator) runRemoteCommandViaBinary(ctx context.Context, s config.RemoteServer, command string) error {
	args := append([]string{}, s.SSHOptions...)
	target := s.Host
	if s.User != "" {
		target = s.User + "@" + s.Host
	}
	args = append(args, target, command)
	_, err := o.runner(ctx, "ssh", args...)
	return err
}

// runRemoteCommandNative dials and runs command over x/crypto/ssh, using
// the invoking user's SSH agent for authentication — the common case for
// a host already trusted to reach its siblings.
func runRemoteCommandNative(ctx context.Context, s config.RemoteServer, command string) error {
	auth, err := agentAuthMethod()
	if err != nil {
		return fmt.Errorf("connecting to ssh-agent: %w", err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            s.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // trusted lab network, no known_hosts distribution
		Timeout:         s.ConnectTimeout.Duration,
	}

	addr := net.JoinHostPort(s.Host, "22")
	dialer := net.Dialer{Timeout: s.ConnectTimeout.Duration}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close() //nolint:errcheck
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close() //nolint:errcheck

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("opening ssh session to %s: %w", addr, err)
	}
	defer session.Close() //nolint:errcheck

	var stderr bytes.Buffer
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("running %q on %s: %w (stderr: %s)", command, s.Host, err, stderr.String())
		}
		return nil
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL) //nolint:errcheck
		return fmt.Errorf("command %q on %s: %w", command, s.Host, ctx.Err())
	}
}

func agentAuthMethod() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set, no ssh-agent available")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("dialing ssh-agent socket: %w", err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}
