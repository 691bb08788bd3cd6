// Package notify delivers customer notifications over a primary channel with
// fallback to a secondary channel.
package notify

import (
	"context"
	"errors"
	"expvar"
	"io"
	"log"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	sentTotal     = expvar.NewInt("notifications_sent_total")
	fallbackTotal = expvar.NewInt("notifications_fallback_total")
	failedTotal   = expvar.NewInt("notifications_failed_total")
)

const (
	recordTimeout = 2 * time.Second
	// MaxAttemptsLimit caps attempts per channel.
	MaxAttemptsLimit = 10
	// backoffCapShift bounds the longest wait at BackoffBase << backoffCapShift.
	backoffCapShift = 5
)

type Channel struct {
	Name     string
	Provider Provider
}

type Config struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	AttemptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BackoffBase: 500 * time.Millisecond, AttemptTimeout: time.Second}
}

// Recorder persists the outcome of a dispatch.
type Recorder interface {
	RecordNotification(ctx context.Context, record store.NotificationRecord) error
}

type Dispatcher struct {
	channels []Channel
	cfg      Config
	logger   *log.Logger
	recorder Recorder
	tracer   trace.Tracer
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(primary, secondary Channel, cfg Config, logger *log.Logger) *Dispatcher {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.MaxAttempts > MaxAttemptsLimit {
		cfg.MaxAttempts = MaxAttemptsLimit
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaults.AttemptTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		channels: []Channel{primary, secondary},
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("reservation-service/notify"),
		sleep:    sleepContext,
	}
}

func (d *Dispatcher) WithRecorder(recorder Recorder) *Dispatcher {
	d.recorder = recorder
	return d
}

// Backoffs returns the waits between consecutive attempts on one channel.
func (d *Dispatcher) Backoffs() []time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     d.cfg.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         d.cfg.BackoffBase << backoffCapShift,
	}
	b.Reset()
	waits := make([]time.Duration, 0, d.cfg.MaxAttempts-1)
	for i := 1; i < d.cfg.MaxAttempts; i++ {
		waits = append(waits, b.NextBackOff())
	}
	return waits
}

// OverallTimeout bounds a whole dispatch across every channel.
func (d *Dispatcher) OverallTimeout() time.Duration {
	perChannel := time.Duration(d.cfg.MaxAttempts) * d.cfg.AttemptTimeout
	for _, wait := range d.Backoffs() {
		perChannel += wait
	}
	return time.Duration(len(d.channels)) * perChannel
}

// Notify tries each channel in order until one accepts the message. Failures
// are logged, counted and recorded, never returned.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if msg.Recipient == "" {
		d.logger.Printf("notify skipped reservation_id=%s kind=%s reason=no_recipient", msg.ReservationID, msg.Kind)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.OverallTimeout())
	defer cancel()

	waits := d.Backoffs()
	errs := make([]error, 0, len(d.channels))
	total := 0
	for i, ch := range d.channels {
		attempts, err := d.deliver(ctx, ch, msg, waits)
		total += attempts
		if err == nil {
			sentTotal.Add(1)
			if i > 0 {
				fallbackTotal.Add(1)
			}
			d.logger.Printf("notify sent reservation_id=%s kind=%s channel=%s attempts=%d", msg.ReservationID, msg.Kind, ch.Name, total)
			d.record(ctx, msg, ch.Name, store.NotificationSent, total, nil)
			return
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			d.logger.Printf("notify cancelled reservation_id=%s kind=%s channel=%s attempts=%d error=%v", msg.ReservationID, msg.Kind, ch.Name, total, ctx.Err())
			d.record(ctx, msg, ch.Name, store.NotificationCancelled, total, errors.Join(errs...))
			return
		}
	}

	failedTotal.Add(1)
	d.logger.Printf("notify failed reservation_id=%s kind=%s recipient=%s attempts=%d primary_error=%q secondary_error=%q",
		msg.ReservationID, msg.Kind, maskRecipient(msg.Recipient), total, errText(errs, 0), errText(errs, 1))
	d.record(ctx, msg, d.channels[len(d.channels)-1].Name, store.NotificationFailed, total, errors.Join(errs...))
}

// deliver runs the attempts for one channel and reports how many were made.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message, waits []time.Duration) (int, error) {
	ctx, span := d.tracer.Start(ctx, "notify."+ch.Name, trace.WithAttributes(
		attribute.String("notify.channel", ch.Name),
		attribute.String("notify.kind", msg.Kind),
	))
	defer span.End()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.sleep(ctx, waits[attempt-2]); err != nil {
				lastErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		lastErr = ch.Provider.Send(attemptCtx, msg.Body, msg.Recipient)
		cancel()
		if lastErr == nil {
			span.SetAttributes(attribute.Int("notify.attempts", attempts))
			return attempts, nil
		}
		d.logger.Printf("notify attempt failed reservation_id=%s channel=%s attempt=%d/%d error=%v", msg.ReservationID, ch.Name, attempt, d.cfg.MaxAttempts, lastErr)
	}
	span.SetAttributes(attribute.Int("notify.attempts", attempts))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return attempts, lastErr
}

func (d *Dispatcher) record(ctx context.Context, msg Message, channel, status string, attempts int, err error) {
	if d.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	rec := store.NotificationRecord{
		ReservationID: msg.ReservationID,
		Kind:          msg.Kind,
		Channel:       channel,
		Recipient:     msg.Recipient,
		Status:        status,
		Attempts:      attempts,
		CreatedAt:     time.Now().UTC(),
	}
	if err != nil {
		rec.LastError = err.Error()
	}
	if recErr := d.recorder.RecordNotification(ctx, rec); recErr != nil {
		d.logger.Printf("notify record failed reservation_id=%s status=%s error=%v", msg.ReservationID, status, recErr)
	}
}

func errText(errs []error, i int) string {
	if i >= len(errs) || errs[i] == nil {
		return ""
	}
	return errs[i].Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
