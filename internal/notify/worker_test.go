package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestWorker(sender Sender, retryInterval time.Duration) *Worker {
	cfg := Config{
		Title:         "ups-guardian",
		URLs:          []string{"generic+https://example.com/webhook"},
		SendTimeout:   time.Second,
		RetryInterval: retryInterval,
	}
	return NewWorker(cfg, sender, zerolog.Nop())
}

// S7 — Notification FIFO under outage.
func TestWorker_FIFO_UnderOutage_S7(t *testing.T) {
	sender := &FakeSender{FailFirstN: 3}
	w := newTestWorker(sender, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Enqueue("m1", PriorityNormal)
	w.Enqueue("m2", PriorityNormal)
	w.Enqueue("m3", PriorityNormal)

	deadline := time.After(2 * time.Second)
	for {
		if len(sender.Bodies()) >= 3 && bodiesDelivered(sender, "m1", "m2", "m3") {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("messages not all delivered in time, calls so far: %v", sender.Bodies())
		case <-time.After(5 * time.Millisecond):
		}
	}

	delivered := successfulBodiesInOrder(sender)
	if len(delivered) != 3 {
		t.Fatalf("delivered = %v, want 3 successful deliveries", delivered)
	}
	if delivered[0] != "m1" || delivered[1] != "m2" || delivered[2] != "m3" {
		t.Errorf("delivery order = %v, want [m1 m2 m3]", delivered)
	}
}

// successfulBodiesInOrder re-derives which calls were the final (successful)
// attempt for each message, using FailFirstN semantics: first FailFirstN
// calls overall fail, so the 4th, 5th, 6th... calls (bodies m1, m2, m3)
// succeed in enqueue order given FIFO head-of-line blocking.
func successfulBodiesInOrder(sender *FakeSender) []string {
	bodies := sender.Bodies()
	if len(bodies) < 3 {
		return nil
	}
	return bodies[len(bodies)-3:]
}

func bodiesDelivered(sender *FakeSender, want ...string) bool {
	got := successfulBodiesInOrder(sender)
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestWorker_Enqueue_NeverBlocks(t *testing.T) {
	sender := &FakeSender{Err: ErrFakeSendFailed}
	w := newTestWorker(sender, time.Hour) // retries would hang for an hour if this blocked

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			w.Enqueue("msg", PriorityNormal)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked")
	}
}

func TestWorker_EnqueueTwice_DeliversBothOnce(t *testing.T) {
	sender := &FakeSender{}
	w := newTestWorker(sender, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Enqueue("same", PriorityNormal)
	w.Enqueue("same", PriorityNormal)

	deadline := time.After(time.Second)
	for {
		if sender.CallCount() >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("both messages were not delivered in time")
		case <-time.After(2 * time.Millisecond):
		}
	}

	if sender.CallCount() != 2 {
		t.Errorf("CallCount = %d, want exactly 2 (no duplicate delivery)", sender.CallCount())
	}
}

func TestWorker_Stop_ReturnsWhileRetrying(t *testing.T) {
	sender := &FakeSender{Err: ErrFakeSendFailed}
	w := newTestWorker(sender, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Enqueue("stuck", PriorityNormal)
	time.Sleep(20 * time.Millisecond) // let the worker pick it up and start retrying

	w.Stop(10 * time.Millisecond)
	// Stop must return promptly even though the message is still retrying.
}

func TestWorker_Depth(t *testing.T) {
	sender := &FakeSender{Err: ErrFakeSendFailed}
	w := newTestWorker(sender, time.Hour)
	w.Enqueue("a", PriorityNormal)
	w.Enqueue("b", PriorityNormal)
	if d := w.Depth(); d != 2 {
		t.Errorf("Depth() = %d, want 2 before Start", d)
	}
}
