package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/ups-guardian/internal/config"
	"github.com/sweeney/ups-guardian/internal/notify"
	"github.com/sweeney/ups-guardian/internal/nut"
)

func testConfig() *config.Config {
	cfg, _ := config.Load()
	cfg.UPS.CheckInterval = config.Duration{Duration: time.Millisecond}
	cfg.Notifications.SendTimeout = config.Duration{Duration: 10 * time.Millisecond}
	cfg.Notifications.RetryInterval = config.Duration{Duration: time.Millisecond}
	cfg.Paths.StateFile = ""
	cfg.Paths.ShutdownScheduledFile = ""
	return cfg
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

// TestDaemon_Tick_FiresShutdownAndArms drives one tick with a reading that
// should immediately fire the low-battery trigger and verifies the daemon
// arms shutdown and enqueues a crisis notification.
func TestDaemon_Tick_FiresShutdownAndArms(t *testing.T) {
	cfg := testConfig()
	poller := &nut.FakePoller{Reading: nut.Reading{
		FetchOutcome:   nut.OK,
		BatteryPercent: f64(15),
		RuntimeSeconds: i64(500),
		FetchedAt:      time.Now(),
		StatusFlags:    nut.NewStatusSet("OB"),
	}}
	sender := &notify.FakeSender{}
	d := New(cfg, zerolog.Nop(), poller, sender)

	// The first OK reading moves the tracker from UNKNOWN to ON_BATTERY
	// before the evaluator runs, so the low-battery trigger fires on this
	// very tick.
	d.tick(context.Background())
	if !d.state.State.ShutdownArmed {
		t.Fatal("expected shutdown to be armed on the first tick (tracker enters ON_BATTERY before evaluation)")
	}

	d.tick(context.Background())
	if !d.state.State.ShutdownArmed {
		t.Fatal("expected shutdown to stay armed after the low-battery reading")
	}
	// The worker is not started by tick, so enqueued messages stay queued.
	if d.worker.Depth() == 0 {
		t.Error("expected at least one notification to have been enqueued")
	}
}

// TestDaemon_Run_StopsOnContextCancel verifies the run loop exits promptly
// when ctx is cancelled and no trigger has fired.
func TestDaemon_Run_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	poller := &nut.FakePoller{Reading: nut.Reading{
		FetchOutcome:   nut.OK,
		BatteryPercent: f64(100),
		RuntimeSeconds: i64(5000),
		FetchedAt:      time.Now(),
	}}
	sender := &notify.FakeSender{}
	d := New(cfg, zerolog.Nop(), poller, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
