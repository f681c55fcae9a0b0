package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sweeney/ups-guardian/internal/nut"
)

// PersistedStatus is the JSON shape written atomically to the state file on
// every tick, per the external-interface contract.
type PersistedStatus struct {
	Status        string   `json:"status"`
	BatteryPct    *float64 `json:"battery_percent,omitempty"`
	RuntimeSecs   *int64   `json:"runtime_seconds,omitempty"`
	LoadPct       *float64 `json:"load_percent,omitempty"`
	InputVoltage  *float64 `json:"input_voltage,omitempty"`
	OutputVoltage *float64 `json:"output_voltage,omitempty"`
	UpdatedAt     string   `json:"updated_at"`
}

// WriteStateFile atomically replaces path's contents with a JSON-encoded
// PersistedStatus built from derived and r. Atomicity is achieved by
// writing to a sibling temp file and renaming over the target, so readers
// never observe a partial write.
func WriteStateFile(path string, derived Derived, r nut.Reading) error {
	if path == "" {
		return nil
	}
	status := PersistedStatus{
		Status:        string(derived),
		BatteryPct:    r.BatteryPercent,
		RuntimeSecs:   r.RuntimeSeconds,
		LoadPct:       r.LoadPercent,
		InputVoltage:  r.InputVoltage,
		OutputVoltage: r.OutputVoltage,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming state file into place: %w", err)
	}
	return nil
}

// SentinelMarker guards the shutdown-scheduled file: its presence signals
// that an orchestration has begun (or, on startup, that a previous run
// armed but did not complete — see the specification's open question on
// this point, resolved as informational only in DESIGN.md).
type SentinelMarker struct {
	path string
	lock *flock.Flock
}

// NewSentinelMarker returns a marker bound to path. It does not touch disk.
func NewSentinelMarker(path string) *SentinelMarker {
	return &SentinelMarker{path: path, lock: flock.New(path + ".lock")}
}

// Exists reports whether the sentinel file is present, e.g. on daemon
// startup to log (informationally) that a previous run may not have
// completed.
func (m *SentinelMarker) Exists() bool {
	if m.path == "" {
		return false
	}
	_, err := os.Stat(m.path)
	return err == nil
}

// Write creates the sentinel file under an exclusive file lock, so two
// daemon instances never race on writing it. Write must be called before any
// shutdown side effect, per the specification's ordering guarantee.
func (m *SentinelMarker) Write(reason string) error {
	if m.path == "" {
		return nil
	}
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("locking sentinel: %w", err)
	}
	defer m.lock.Unlock() //nolint:errcheck

	body := fmt.Sprintf("reason=%s\nstarted_at=%s\n", reason, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(m.path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing sentinel file: %w", err)
	}
	return nil
}

// Clear removes the sentinel file; operators use this to manually clear a
// stale marker from an incomplete prior run.
func (m *SentinelMarker) Clear() error {
	if m.path == "" {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing sentinel file: %w", err)
	}
	return nil
}
