package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/ups-guardian/internal/logging"
)

// Config holds the worker's tunables.
type Config struct {
	Title         string
	AvatarURL     string
	URLs          []string
	SendTimeout   time.Duration
	RetryInterval time.Duration
}

// Worker is the single consumer of the notification queue. Producers call
// Enqueue, which never blocks beyond a bounded memory write; a dedicated
// goroutine started by Start drains the queue in strict FIFO order,
// retrying a failed message forever (at RetryInterval) before attempting
// the next one. This guarantees in-order delivery at the cost of
// head-of-line blocking during a prolonged sink outage — an intentional
// trade so that event narratives arrive in causal order.
type Worker struct {
	cfg    Config
	sender Sender
	log    zerolog.Logger

	mu    sync.Mutex
	queue []Message
	seq   uint64
	wake  chan struct{}

	stopped chan struct{}
	done    chan struct{}
}

// NewWorker returns a Worker that has not yet been started.
func NewWorker(cfg Config, sender Sender, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:     cfg,
		sender:  sender,
		log:     logging.Component(log, "notify_worker"),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Enqueue appends a message to the queue without blocking and returns its
// assigned id. It is safe to call from any goroutine.
func (w *Worker) Enqueue(body string, priority Priority) uuid.UUID {
	id := uuid.New()
	w.mu.Lock()
	w.seq++
	msg := Message{
		ID:         id,
		Title:      w.cfg.Title,
		Body:       body,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Seq:        w.seq,
	}
	w.queue = append(w.queue, msg)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return id
}

// Depth returns the current queue length, for diagnostics/tests.
func (w *Worker) Depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Worker) pop() (Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Message{}, false
	}
	msg := w.queue[0]
	w.queue = w.queue[1:]
	return msg, true
}

// Start launches the drain goroutine. Call Stop to request a bounded
// graceful shutdown.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		msg, ok := w.pop()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-w.stopped:
				return
			case <-ctx.Done():
				return
			}
		}

		w.deliverWithRetry(ctx, msg)
	}
}

// deliverWithRetry attempts delivery until it succeeds, the worker is
// asked to stop, or ctx is cancelled. The next message is never attempted
// until this one is acknowledged as sent, which is what gives the queue
// its FIFO guarantee.
func (w *Worker) deliverWithRetry(ctx context.Context, msg Message) {
	for attempt := 1; ; attempt++ {
		if w.send(ctx, msg) {
			return
		}
		w.log.Warn().
			Str("message_id", msg.ID.String()).
			Int("attempt", attempt).
			Dur("retry_in", w.cfg.RetryInterval).
			Msg("notification delivery failed, retrying")

		select {
		case <-time.After(w.cfg.RetryInterval):
		case <-w.stopped:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) send(ctx context.Context, msg Message) bool {
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- w.sender.Send(sendCtx, msg.Title, msg.Body, w.cfg.AvatarURL, w.cfg.URLs)
	}()

	select {
	case err := <-result:
		if err != nil {
			w.log.Debug().Err(err).Str("message_id", msg.ID.String()).Msg("sink returned an error")
			return false
		}
		return true
	case <-sendCtx.Done():
		return false
	}
}

// Stop signals the worker to drain for up to drainTimeout and then exit.
// It blocks until the worker goroutine has exited or the timeout elapses.
// Messages still queued when it returns are logged and dropped — acceptable
// per the specification since the host is shutting down.
func (w *Worker) Stop(drainTimeout time.Duration) {
	close(w.stopped)

	select {
	case <-w.done:
	case <-time.After(drainTimeout):
	}

	if depth := w.Depth(); depth > 0 {
		w.log.Warn().Int("remaining", depth).Msg("notification worker stopped with undelivered messages")
	}
}
