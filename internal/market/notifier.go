package market

import (
	"context"
	"time"

	"foodbridge.org/internal/obs"
)

// NotificationKind names a lifecycle event that the notification collaborator is told about.
type NotificationKind string

const (
	NotifyUserRegistered   NotificationKind = "user_registered"
	NotifyDonationPosted   NotificationKind = "donation_posted"
	NotifyRequestCreated   NotificationKind = "request_created"
	NotifyRequestAccepted  NotificationKind = "request_accepted"
	NotifyRequestCompleted NotificationKind = "request_completed"
	NotifyNGOVerified      NotificationKind = "ngo_verified"
	NotifyNGORejected      NotificationKind = "ngo_rejected"
)

// Notification carries plain data for a templated message. To may be empty
// when nobody needs to be emailed.
type Notification struct {
	Kind   NotificationKind
	To     []string
	Fields map[string]string
}

// Notifier delivers notifications. Errors are logged by the caller and never
// change the outcome of the operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

const defaultNotifyRadiusKm = 20

type options struct {
	now            func() time.Time
	notifier       Notifier
	notifyRadiusKm float64
}

// Option configures the marketplace services.
type Option func(*options)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithNotifyRadius sets how far from a new donation NGOs are alerted.
func WithNotifyRadius(km float64) Option {
	return func(o *options) {
		if km > 0 {
			o.notifyRadiusKm = km
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:            time.Now,
		notifier:       nopNotifier{},
		notifyRadiusKm: defaultNotifyRadiusKm,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// notify hands n to the collaborator even without recipients so that
// public feeds still see the event.
func (o options) notify(ctx context.Context, n Notification) {
	if err := o.notifier.Notify(ctx, n); err != nil {
		obs.Error("notification failed", err, map[string]any{
			"kind":       string(n.Kind),
			"recipients": len(n.To),
		})
	}
}
