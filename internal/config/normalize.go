package config

import "fmt"

// normalizeTaggedVariants walks every "string or table" field in cfg and
// fills in its canonical typed counterpart. TOML lets an author write
// compose_files = ["a.yml", "b.yml"] for the common case or
// compose_files = [{path = "a.yml", stop_timeout_s = "5s"}] for the rare
// one; BurntSushi/toml decodes both into []interface{}, so this is the one
// place in the codebase that type-switches on that ambiguity. Everything
// downstream of Load sees only ComposeFile/MountEntry/PreShutdownCommand.
func normalizeTaggedVariants(cfg *Config) error {
	composeFiles, err := normalizeComposeFiles(cfg.Stages.Containers.ComposeFilesRaw)
	if err != nil {
		return fmt.Errorf("stages.containers.compose_files: %w", err)
	}
	cfg.Stages.Containers.ComposeFiles = composeFiles

	mounts, err := normalizeMounts(cfg.Stages.Filesystems.Unmount.MountsRaw)
	if err != nil {
		return fmt.Errorf("stages.filesystems.unmount.mounts: %w", err)
	}
	cfg.Stages.Filesystems.Unmount.Mounts = mounts

	for i := range cfg.Stages.RemoteServers {
		cmds, err := normalizePreShutdownCommands(cfg.Stages.RemoteServers[i].PreShutdownRaw)
		if err != nil {
			return fmt.Errorf("stages.remote_servers[%d].pre_shutdown_commands: %w", i, err)
		}
		cfg.Stages.RemoteServers[i].PreShutdownCommands = cmds
	}

	return nil
}

func normalizeComposeFiles(raw []interface{}) ([]ComposeFile, error) {
	out := make([]ComposeFile, 0, len(raw))
	for i, elem := range raw {
		switch v := elem.(type) {
		case string:
			out = append(out, ComposeFile{Path: v})
		case map[string]interface{}:
			path, _ := v["path"].(string)
			if path == "" {
				return nil, fmt.Errorf("entry %d: table form requires a non-empty \"path\"", i)
			}
			cf := ComposeFile{Path: path}
			if raw, ok := v["stop_timeout_s"].(string); ok {
				d, err := parseDurationField(raw)
				if err != nil {
					return nil, fmt.Errorf("entry %d: stop_timeout_s: %w", i, err)
				}
				cf.StopTimeout = &d
			}
			out = append(out, cf)
		default:
			return nil, fmt.Errorf("entry %d: expected string or table, got %T", i, elem)
		}
	}
	return out, nil
}

func normalizeMounts(raw []interface{}) ([]MountEntry, error) {
	out := make([]MountEntry, 0, len(raw))
	for i, elem := range raw {
		switch v := elem.(type) {
		case string:
			out = append(out, MountEntry{Path: v})
		case map[string]interface{}:
			path, _ := v["path"].(string)
			if path == "" {
				return nil, fmt.Errorf("entry %d: table form requires a non-empty \"path\"", i)
			}
			me := MountEntry{Path: path}
			if flagsRaw, ok := v["flags"].([]interface{}); ok {
				for _, f := range flagsRaw {
					if s, ok := f.(string); ok {
						me.Flags = append(me.Flags, s)
					}
				}
			}
			out = append(out, me)
		default:
			return nil, fmt.Errorf("entry %d: expected string or table, got %T", i, elem)
		}
	}
	return out, nil
}

var predefinedActions = map[string]PredefinedAction{
	string(ActionStopContainers): ActionStopContainers,
	string(ActionStopVMs):        ActionStopVMs,
	string(ActionStopProxmoxVMs): ActionStopProxmoxVMs,
	string(ActionStopProxmoxCTs): ActionStopProxmoxCTs,
	string(ActionStopXCPngVMs):   ActionStopXCPngVMs,
	string(ActionStopESXiVMs):    ActionStopESXiVMs,
	string(ActionStopCompose):    ActionStopCompose,
	string(ActionSync):           ActionSync,
}

func normalizePreShutdownCommands(raw []interface{}) ([]PreShutdownCommand, error) {
	out := make([]PreShutdownCommand, 0, len(raw))
	for i, elem := range raw {
		switch v := elem.(type) {
		case string:
			out = append(out, PreShutdownCommand{Command: v})
		case map[string]interface{}:
			cmd, err := normalizePreShutdownTable(v)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			out = append(out, cmd)
		default:
			return nil, fmt.Errorf("entry %d: expected string or table, got %T", i, elem)
		}
	}
	return out, nil
}

func normalizePreShutdownTable(v map[string]interface{}) (PreShutdownCommand, error) {
	var cmd PreShutdownCommand

	if rawTimeout, ok := v["timeout_s"].(string); ok {
		d, err := parseDurationField(rawTimeout)
		if err != nil {
			return cmd, fmt.Errorf("timeout_s: %w", err)
		}
		cmd.Timeout = &d
	}

	if action, ok := v["action"].(string); ok {
		known, ok := predefinedActions[action]
		if !ok {
			return cmd, fmt.Errorf("unrecognized action %q", action)
		}
		cmd.Action = known
		if path, ok := v["path"].(string); ok {
			cmd.Path = path
		}
		if known == ActionStopCompose && cmd.Path == "" {
			return cmd, fmt.Errorf("action %q requires \"path\"", action)
		}
		return cmd, nil
	}

	if raw, ok := v["command"].(string); ok {
		cmd.Command = raw
		return cmd, nil
	}

	return cmd, fmt.Errorf("table form requires either \"action\" or \"command\"")
}

func parseDurationField(raw string) (Duration, error) {
	var d Duration
	if err := d.UnmarshalText([]byte(raw)); err != nil {
		return d, err
	}
	return d, nil
}
