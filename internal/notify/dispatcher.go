package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"foodbridge.org/internal/market"
	"foodbridge.org/internal/obs"
)

// ErrQueueFull is returned when the dispatcher cannot accept more work.
var ErrQueueFull = errors.New("notify: queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("notify: dispatcher closed")

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 10 * time.Second
)

// Dispatcher renders notifications and sends them from background workers so
// lifecycle operations never wait on email delivery.
type Dispatcher struct {
	mailer  Mailer
	queue   chan market.Notification
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ market.Notifier = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize bounds the number of pending notifications.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan market.Notification, n)
		}
	}
}

// WithWorkers sets the number of sending goroutines.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSendTimeout bounds a single delivery.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDispatcher starts the workers.
func NewDispatcher(m Mailer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mailer:  m,
		queue:   make(chan market.Notification, defaultQueueSize),
		workers: defaultWorkers,
		timeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Notify enqueues n without blocking. Notifications without recipients are
// dropped silently.
func (d *Dispatcher) Notify(_ context.Context, n market.Notification) error {
	if len(n.To) == 0 {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		obs.NotificationSent(string(n.Kind), ErrQueueFull)
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued notifications to drain or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
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
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n market.Notification) {
	subject, body, err := Render(n)
	if err != nil {
		obs.NotificationSent(string(n.Kind), err)
		obs.Error("render notification", err, map[string]any{"kind": string(n.Kind)})
		return
	}
	for _, to := range n.To {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.mailer.Send(ctx, to, subject, body)
		cancel()
		obs.NotificationSent(string(n.Kind), err)
		if err != nil {
			obs.Error("send notification", err, map[string]any{"kind": string(n.Kind), "to": to})
		}
	}
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []market.Notifier

func (f Fanout) Notify(ctx context.Context, n market.Notification) error {
	var errs []error
	for _, nf := range f {
		if nf == nil {
			continue
		}
		if err := nf.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
