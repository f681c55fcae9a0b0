// Package config loads and validates the daemon's TOML configuration,
// normalizing the specification's "string or table" shapes (compose
// files, mounts, pre-shutdown commands) into canonical structs so core
// code never has to type-switch on raw config values.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so BurntSushi/toml can decode "30s"-style
// strings via encoding.TextUnmarshaler.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// UPSConfig configures the UPS target and polling cadence.
type UPSConfig struct {
	Name              string   `toml:"name"`
	CheckInterval     Duration `toml:"check_interval_s"`
	MaxStaleTolerance int      `toml:"max_stale_tolerance"`
}

// DepletionConfig configures the rolling depletion-rate estimator.
type DepletionConfig struct {
	Window            Duration `toml:"window_s"`
	CriticalRatePctMin float64 `toml:"critical_rate_pct_per_min"`
	Grace             Duration `toml:"grace_s"`
	MinSamples        int      `toml:"min_samples"`
}

// ExtendedTimeConfig configures the extended-outage trigger.
type ExtendedTimeConfig struct {
	Enabled   bool     `toml:"enabled"`
	Threshold Duration `toml:"threshold_s"`
}

// TriggersConfig groups all shutdown-trigger tunables.
type TriggersConfig struct {
	LowBatteryPercent float64            `toml:"low_battery_percent"`
	CriticalRuntime   Duration           `toml:"critical_runtime_s"`
	Depletion         DepletionConfig    `toml:"depletion"`
	ExtendedTime      ExtendedTimeConfig `toml:"extended_time"`
}

// BehaviorConfig holds global behavior switches.
type BehaviorConfig struct {
	DryRun bool `toml:"dry_run"`
}

// NotificationsConfig configures the notification worker and sinks.
type NotificationsConfig struct {
	URLs          []string `toml:"urls"`
	Title         string   `toml:"title"`
	AvatarURL     string   `toml:"avatar_url"`
	SendTimeout   Duration `toml:"send_timeout_s"`
	RetryInterval Duration `toml:"retry_interval_s"`

	// DiscordWebhookURL is the legacy single-URL key; see
	// normalizeLegacyWebhook, which translates it into URLs at load time.
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// VirtualMachinesConfig configures Stage A.
type VirtualMachinesConfig struct {
	Enabled  bool     `toml:"enabled"`
	MaxWait  Duration `toml:"max_wait_s"`
}

// ComposeFile is the canonical shape of a compose-file entry; it may be
// written in TOML as a bare path string or as a {path, stop_timeout_s}
// table. See normalizeComposeFiles.
type ComposeFile struct {
	Path         string
	StopTimeout  *Duration
}

// ContainersConfig configures Stage B.
type ContainersConfig struct {
	Enabled               bool          `toml:"enabled"`
	Runtime               string        `toml:"runtime"` // auto|docker|podman
	StopTimeout           Duration      `toml:"stop_timeout_s"`
	ComposeFilesRaw       []interface{} `toml:"compose_files"`
	ShutdownAllRemaining  bool          `toml:"shutdown_all_remaining"`
	IncludeUserContainers bool          `toml:"include_user_containers"`

	ComposeFiles []ComposeFile `toml:"-"`
}

// MountEntry is the canonical shape of a mount entry; it may be written in
// TOML as a bare path string or as a {path, flags} table.
type MountEntry struct {
	Path  string
	Flags []string
}

// UnmountConfig configures the unmount step of Stage C.
type UnmountConfig struct {
	Timeout   Duration      `toml:"timeout_s"`
	MountsRaw []interface{} `toml:"mounts"`

	Mounts []MountEntry `toml:"-"`
}

// FilesystemsConfig configures Stage C.
type FilesystemsConfig struct {
	Enabled      bool          `toml:"enabled"`
	SyncEnabled  bool          `toml:"sync_enabled"`
	Unmount      UnmountConfig `toml:"unmount"`
}

// PredefinedAction names one of the recognized remote pre-shutdown
// script templates.
type PredefinedAction string

const (
	ActionStopContainers  PredefinedAction = "stop_containers"
	ActionStopVMs         PredefinedAction = "stop_vms"
	ActionStopProxmoxVMs  PredefinedAction = "stop_proxmox_vms"
	ActionStopProxmoxCTs  PredefinedAction = "stop_proxmox_cts"
	ActionStopXCPngVMs    PredefinedAction = "stop_xcpng_vms"
	ActionStopESXiVMs     PredefinedAction = "stop_esxi_vms"
	ActionStopCompose     PredefinedAction = "stop_compose"
	ActionSync            PredefinedAction = "sync"
)

// PreShutdownCommand is the canonical shape of a remote pre-shutdown
// command: either a named predefined action (optionally with a compose
// path) or a raw command string, each with an optional per-command
// timeout. See normalizePreShutdownCommands.
type PreShutdownCommand struct {
	Action  PredefinedAction // set when this is a predefined action
	Command string           // set when this is a raw command
	Path    string           // set for ActionStopCompose
	Timeout *Duration
}

// IsPredefined reports whether this command is a named predefined action
// rather than a raw shell command.
func (c PreShutdownCommand) IsPredefined() bool {
	return c.Action != ""
}

// RemoteServer configures one Stage D target.
type RemoteServer struct {
	Name                 string        `toml:"name"`
	Enabled              bool          `toml:"enabled"`
	Host                 string        `toml:"host"`
	User                 string        `toml:"user"`
	ConnectTimeout       Duration      `toml:"connect_timeout_s"`
	CommandTimeout       Duration      `toml:"command_timeout_s"`
	ShutdownCommand      string        `toml:"shutdown_command"`
	SSHOptions           []string      `toml:"ssh_options"`
	Parallel             bool          `toml:"parallel"`
	PreShutdownRaw       []interface{} `toml:"pre_shutdown_commands"`

	PreShutdownCommands []PreShutdownCommand `toml:"-"`
}

// LocalShutdownConfig configures Stage F.
type LocalShutdownConfig struct {
	Enabled bool   `toml:"enabled"`
	Command string `toml:"command"`
	Message string `toml:"message"`
}

// StagesConfig groups all shutdown-stage configuration.
type StagesConfig struct {
	VirtualMachines VirtualMachinesConfig `toml:"virtual_machines"`
	Containers      ContainersConfig      `toml:"containers"`
	Filesystems     FilesystemsConfig     `toml:"filesystems"`
	RemoteServers   []RemoteServer        `toml:"remote_servers"`
	LocalShutdown   LocalShutdownConfig   `toml:"local_shutdown"`
}

// PathsConfig names the on-disk locations the daemon reads/writes.
type PathsConfig struct {
	StateFile             string `toml:"state_file"`
	BatteryHistoryFile     string `toml:"battery_history_file"`
	ShutdownScheduledFile string `toml:"shutdown_scheduled_file"`
}

// Config is the top-level configuration tree.
type Config struct {
	UPS           UPSConfig           `toml:"ups"`
	Triggers      TriggersConfig      `toml:"triggers"`
	Behavior      BehaviorConfig      `toml:"behavior"`
	Notifications NotificationsConfig `toml:"notifications"`
	Stages        StagesConfig        `toml:"stages"`
	Paths         PathsConfig         `toml:"paths"`
}

// Load reads config from the first existing path in paths, then applies
// environment variable overrides and tagged-variant normalization.
// Missing files are skipped silently; a malformed file returns an error.
// Calling Load() with no arguments returns pure defaults plus env overrides.
func Load(paths ...string) (*Config, error) {
	cfg := defaults()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %q: %w", path, err)
			}
			break // first found file wins
		} else if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("checking config path %q: %w", path, statErr)
		}
	}

	applyEnvOverrides(cfg)
	normalizeLegacyWebhook(cfg)

	if err := normalizeTaggedVariants(cfg); err != nil {
		return nil, fmt.Errorf("normalizing config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		UPS: UPSConfig{
			CheckInterval:     Duration{1 * time.Second},
			MaxStaleTolerance: 3,
		},
		Triggers: TriggersConfig{
			LowBatteryPercent: 20,
			CriticalRuntime:   Duration{600 * time.Second},
			Depletion: DepletionConfig{
				Window:             Duration{300 * time.Second},
				CriticalRatePctMin: 15.0,
				Grace:              Duration{90 * time.Second},
				MinSamples:         30,
			},
			ExtendedTime: ExtendedTimeConfig{
				Enabled:   true,
				Threshold: Duration{900 * time.Second},
			},
		},
		Notifications: NotificationsConfig{
			SendTimeout:   Duration{10 * time.Second},
			RetryInterval: Duration{5 * time.Second},
		},
		Stages: StagesConfig{
			VirtualMachines: VirtualMachinesConfig{MaxWait: Duration{30 * time.Second}},
			Containers: ContainersConfig{
				Runtime:              "auto",
				StopTimeout:          Duration{60 * time.Second},
				ShutdownAllRemaining: true,
			},
			Filesystems: FilesystemsConfig{
				SyncEnabled: true,
				Unmount:     UnmountConfig{Timeout: Duration{15 * time.Second}},
			},
		},
		Paths: PathsConfig{
			StateFile:             "/var/run/ups-guardian.state",
			BatteryHistoryFile:    "/var/run/ups-guardian-battery-history",
			ShutdownScheduledFile: "/var/run/ups-guardian-shutdown-scheduled",
		},
	}
}

// normalizeLegacyWebhook translates the legacy single-Discord-webhook key
// into the general URL list at load time, per the specification's
// "legacy compatibility" clause. Core types never see the legacy key.
func normalizeLegacyWebhook(cfg *Config) {
	if cfg.Notifications.DiscordWebhookURL == "" {
		return
	}
	if len(cfg.Notifications.URLs) == 0 {
		cfg.Notifications.URLs = []string{"discord://" + cfg.Notifications.DiscordWebhookURL}
	}
}

// applyEnvOverrides copies any set UPS_GUARDIAN_* environment variables
// into cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UPS_GUARDIAN_UPS_NAME"); v != "" {
		cfg.UPS.Name = v
	}
	if v := os.Getenv("UPS_GUARDIAN_UPS_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.UPS.CheckInterval = Duration{d}
		} else {
			log.Printf("config: ignoring invalid UPS_GUARDIAN_UPS_CHECK_INTERVAL=%q: %v", v, err)
		}
	}
	if v := os.Getenv("UPS_GUARDIAN_DRY_RUN"); v != "" {
		cfg.Behavior.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("UPS_GUARDIAN_LOW_BATTERY_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Triggers.LowBatteryPercent = f
		} else {
			log.Printf("config: ignoring invalid UPS_GUARDIAN_LOW_BATTERY_PERCENT=%q: %v", v, err)
		}
	}
}
