package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AsyncConfig sizes the background delivery pool.
type AsyncConfig struct {
	WorkerCount int           // default: 2
	QueueSize   int           // default: 1000
	Timeout     time.Duration // per delivery, default: DefaultTimeout
}

// AsyncDispatcher queues events and delivers them to an inner dispatcher from
// background workers, so request handlers never wait on the channel.
type AsyncDispatcher struct {
	inner  Dispatcher
	logger *slog.Logger
	config AsyncConfig

	queue    chan Event
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// mu orders enqueues before Close; closed is set under the write lock.
	mu     sync.RWMutex
	closed bool
}

// NewAsyncDispatcher starts the workers. Call Close to drain and stop them.
func NewAsyncDispatcher(inner Dispatcher, logger *slog.Logger, cfg AsyncConfig) *AsyncDispatcher {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &AsyncDispatcher{
		inner:  inner,
		logger: logger,
		config: cfg,
		queue:  make(chan Event, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Info("notification workers started",
		slog.Int("workers", cfg.WorkerCount), slog.Int("queue_size", cfg.QueueSize))
	return d
}

// Dispatch enqueues the event. When the queue is full the event is delivered
// inline instead of being dropped.
// After Close every event is delivered inline.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, e Event) error {
	if d.enqueue(ctx, e) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.deliver(ctx, e)
}

func (d *AsyncDispatcher) enqueue(ctx context.Context, e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- e:
		return true
	case <-ctx.Done():
		return false
	default:
		return false
	}
}

func (d *AsyncDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.queue:
			d.deliverLogged(id, e)
		case <-d.stopCh:
			for {
				select {
				case e := <-d.queue:
					d.deliverLogged(id, e)
				default:
					return
				}
			}
		}
	}
}

func (d *AsyncDispatcher) deliverLogged(worker int, e Event) {
	if err := d.deliver(context.Background(), e); err != nil {
		d.logger.Warn("notification delivery failed",
			slog.Int("worker", worker),
			slog.String("event", string(e.Kind())),
			slog.Any("error", err))
	}
}

func (d *AsyncDispatcher) deliver(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()
	return d.inner.Dispatch(ctx, e)
}

// Close stops accepting queued work, drains the queue and waits for workers.
func (d *AsyncDispatcher) Close() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.stopCh)
		d.mu.Unlock()
	})
	d.wg.Wait()
}
