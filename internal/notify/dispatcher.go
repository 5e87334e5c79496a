package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/logger"
)

const (
	defaultQueueSize       = 256
	defaultWorkers         = 2
	defaultDeliveryTimeout = 10 * time.Second
)

type Option func(*AsyncDispatcher)

func WithQueueSize(n int) Option {
	return func(d *AsyncDispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(d *AsyncDispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *AsyncDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// AsyncDispatcher queues notifications in memory and delivers them from a
// fixed pool of workers. A full queue drops the notification.
type AsyncDispatcher struct {
	sink Sink
	log  *logger.Logger

	queueSize int
	workers   int
	timeout   time.Duration

	queue  chan Notification
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewAsyncDispatcher(sink Sink, log *logger.Logger, opts ...Option) *AsyncDispatcher {
	d := &AsyncDispatcher{
		sink:      sink,
		log:       log,
		queueSize: defaultQueueSize,
		workers:   defaultWorkers,
		timeout:   defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.queue = make(chan Notification, d.queueSize)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *AsyncDispatcher) Dispatch(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("NOTIFY", fmt.Sprintf("Dispatcher closed, dropping %s for booking %s", n.Kind, n.BookingID))
		return
	}

	select {
	case d.queue <- n:
	default:
		d.log.Warn("NOTIFY", fmt.Sprintf("Queue full, dropping %s for booking %s", n.Kind, n.BookingID))
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *AsyncDispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, n); err != nil {
		d.log.Error("NOTIFY", fmt.Sprintf("Failed to deliver %s for booking %s: %v", n.Kind, n.BookingID, err))
		return
	}
	d.log.Debug("NOTIFY", fmt.Sprintf("Delivered %s for booking %s", n.Kind, n.BookingID))
}

// Close stops accepting notifications and waits for the queue to drain or
// for ctx to expire.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification queue not drained: %w", ctx.Err())
	}
}
