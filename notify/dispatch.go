package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single dispatch made through Send.
const DefaultTimeout = 5 * time.Second

// Dispatcher delivers events to the notification collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, e Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, e Event) error { return f(ctx, e) }

// Send dispatches best-effort. The dispatch is detached from the caller's
// cancellation, bounded by DefaultTimeout, and any error is logged and dropped.
func Send(ctx context.Context, d Dispatcher, logger *slog.Logger, e Event) {
	if d == nil || e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
	defer cancel()

	if err := d.Dispatch(dctx, e); err != nil {
		logger.WarnContext(ctx, "notification dispatch failed",
			slog.String("event", string(e.Kind())),
			slog.String("recipient", string(e.Recipient())),
			slog.Any("error", err))
	}
}

// =============================================================================
// LOG DISPATCHER
// =============================================================================

// LogDispatcher writes each event as a structured log line.
type LogDispatcher struct {
	Logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{Logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, e Event) error {
	d.Logger.InfoContext(ctx, "notification",
		slog.String("event", string(e.Kind())),
		slog.String("recipient", string(e.Recipient())),
		slog.Any("payload", e))
	return nil
}

// =============================================================================
// MULTI
// =============================================================================

// Multi dispatches to every dispatcher and joins their errors.
func Multi(ds ...Dispatcher) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, e Event) error {
		var errs []error
		for _, d := range ds {
			if err := d.Dispatch(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// =============================================================================
// RECORDER - In-memory capture for tests
// =============================================================================

type Recorder struct {
	mu     sync.Mutex
	events []Event

	// Err, when set, is returned from every Dispatch after recording.
	Err error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Dispatch(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Events returns a copy of everything dispatched so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
