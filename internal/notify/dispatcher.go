package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alertengine/internal/domain"
	"alertengine/internal/metrics"
	"alertengine/internal/permanent"
	"alertengine/internal/schedule"
)

// Default retry backoff: first retry after 30s, every subsequent after 60s.
const (
	DefaultFirstRetry = 30 * time.Second
	DefaultNextRetry  = 60 * time.Second
)

// Delivery carries one outbound send unit to a channel sender.
// Params: notification snapshot and the action being executed.
// Returns: sender input payload.
type Delivery struct {
	Notification domain.NotificationEvent
	Action       domain.NotificationAction
}

// Sender sends one delivery to one channel transport.
// Params: context and delivery payload.
// Returns: transport error; permanent-marked errors suppress retries.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, delivery Delivery) error
}

// DeliveryRecorder records successful channel delivery against the ledger.
// Params: notification id.
// Returns: true when the notification transitioned to delivered.
type DeliveryRecorder interface {
	MarkDelivered(id string) bool
}

// Dispatcher fans a notification out across channel senders with
// per-action delay and scheduled retry backoff.
// Params: sender registry, scheduler, delivery recorder, and retry policy.
// Returns: asynchronous delivery layer for the processing pipeline.
type Dispatcher struct {
	senders    map[domain.Channel]Sender
	sched      *schedule.Scheduler
	recorder   DeliveryRecorder
	firstRetry time.Duration
	nextRetry  time.Duration
	logger     *slog.Logger
	collector  *metrics.Collector
}

// NewDispatcher creates a dispatcher with default retry backoff.
// Params: scheduler, delivery recorder, logger, and metrics collector.
// Returns: dispatcher with no senders registered yet.
func NewDispatcher(sched *schedule.Scheduler, recorder DeliveryRecorder, logger *slog.Logger, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		senders:    make(map[domain.Channel]Sender),
		sched:      sched,
		recorder:   recorder,
		firstRetry: DefaultFirstRetry,
		nextRetry:  DefaultNextRetry,
		logger:     logger,
		collector:  collector,
	}
}

// SetRetryBackoff overrides the retry backoff policy.
// Params: delay before the first retry and before each subsequent retry.
// Returns: nothing; non-positive values keep the defaults.
func (d *Dispatcher) SetRetryBackoff(first, next time.Duration) {
	if first > 0 {
		d.firstRetry = first
	}
	if next > 0 {
		d.nextRetry = next
	}
}

// Register installs one channel sender, replacing any sender for the channel.
// Params: sender implementation.
// Returns: nothing.
func (d *Dispatcher) Register(sender Sender) {
	d.senders[sender.Channel()] = sender
}

// HasSender reports whether a channel has a registered sender.
// Params: channel kind.
// Returns: registration flag.
func (d *Dispatcher) HasSender(channel domain.Channel) bool {
	_, ok := d.senders[channel]
	return ok
}

// Dispatch arms every action of a notification on the scheduler.
// Params: notification snapshot, actions to execute, and the base time
// that per-action delays are measured from.
// Returns: number of actions armed; never blocks on transport.
func (d *Dispatcher) Dispatch(notification domain.NotificationEvent, actions []domain.NotificationAction, baseAt time.Time) int {
	armed := 0
	for _, action := range actions {
		delivery := Delivery{Notification: notification, Action: action}
		fireAt := baseAt.Add(time.Duration(action.DelayMin) * time.Minute)
		name := fmt.Sprintf("send %s %s", action.Channel, notification.ID)
		ok := d.sched.At(fireAt, name, func(ctx context.Context) {
			d.attempt(ctx, delivery, 1)
		})
		if ok {
			armed++
		}
	}
	return armed
}

// attempt performs one send attempt and schedules the next retry on failure.
// Params: context, delivery payload, and 1-based attempt number.
// Returns: nothing; exhaustion and permanent failures are logged, not propagated.
func (d *Dispatcher) attempt(ctx context.Context, delivery Delivery, attempt int) {
	action := delivery.Action
	sender, ok := d.senders[action.Channel]
	if !ok {
		d.collector.SendAttempt(action.Channel, "permanent")
		d.logger.Error("no sender registered for channel",
			"channel", string(action.Channel), "notification_id", delivery.Notification.ID)
		return
	}

	err := sender.Send(ctx, delivery)
	if err == nil {
		d.collector.SendAttempt(action.Channel, "ok")
		if attempt > 1 {
			d.logger.Info("delivery recovered after retries",
				"channel", string(action.Channel), "notification_id", delivery.Notification.ID, "attempt", attempt)
		}
		if d.recorder != nil {
			d.recorder.MarkDelivered(delivery.Notification.ID)
		}
		return
	}

	if permanent.Is(err) {
		d.collector.SendAttempt(action.Channel, "permanent")
		d.logger.Error("delivery failed permanently",
			"channel", string(action.Channel), "notification_id", delivery.Notification.ID,
			"attempt", attempt, "error", err.Error())
		return
	}

	// attempt budget: 1 initial send plus action.RetryAttempts retries.
	if attempt > action.RetryAttempts {
		d.collector.SendAttempt(action.Channel, "exhausted")
		d.logger.Error("delivery retries exhausted",
			"channel", string(action.Channel), "notification_id", delivery.Notification.ID,
			"attempts", attempt, "error", err.Error())
		return
	}

	d.collector.SendAttempt(action.Channel, "error")
	d.collector.RetryScheduled()
	backoff := d.nextRetry
	if attempt == 1 {
		backoff = d.firstRetry
	}
	d.logger.Warn("delivery attempt failed, retry scheduled",
		"channel", string(action.Channel), "notification_id", delivery.Notification.ID,
		"attempt", attempt, "backoff", backoff.String(), "error", err.Error())

	next := attempt + 1
	name := fmt.Sprintf("retry %s %s #%d", action.Channel, delivery.Notification.ID, next)
	d.sched.After(backoff, name, func(ctx context.Context) {
		d.attempt(ctx, delivery, next)
	})
}
