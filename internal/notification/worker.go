package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"laundromat-backend/internal/event"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/obs"
	"laundromat-backend/internal/store"
)

// ErrRecipientGone is returned by a Sender when the destination no longer
// exists and the recipient should be forgotten.
var ErrRecipientGone = errors.New("recipient gone")

// Sender delivers a message to one recipient on one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, r model.Recipient, msg Message) error
}

// Broadcaster delivers a message to a fixed destination that is not a
// registered recipient, e.g. an outbound webhook.
type Broadcaster interface {
	Name() string
	Broadcast(ctx context.Context, msg Message) error
}

// Result counts the outcome of one delivery round.
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

// Dispatcher manages a pool of workers that deliver machine events to every
// registered recipient. A failed delivery is logged and counted; it never
// blocks the other recipients or the caller.
type Dispatcher struct {
	size         int
	jobs         chan event.Event
	recipients   store.RecipientStore
	senders      map[string]Sender
	broadcasters []Broadcaster
	log          *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher with size workers and a queue of
// queueSize pending events.
func NewDispatcher(size, queueSize int, recipients store.RecipientStore, log *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		size:       size,
		jobs:       make(chan event.Event, queueSize),
		recipients: recipients,
		senders:    map[string]Sender{},
		log:        log.With(zap.String("component", "notification")),
	}
}

// Register adds a sender for its channel, replacing any previous one.
func (d *Dispatcher) Register(s Sender) {
	d.senders[s.Channel()] = s
}

// AddBroadcaster adds a destination that receives every notification.
func (d *Dispatcher) AddBroadcaster(b Broadcaster) {
	d.broadcasters = append(d.broadcasters, b)
}

// Start launches the worker goroutines. Register senders before calling it.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned after ctx was cancelled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case e := <-d.jobs:
			res := d.Notify(ctx, e)
			d.log.Debug("event delivered",
				zap.Int("worker", id),
				zap.String("kind", string(e.Kind)),
				zap.String("machine_id", e.MachineID),
				zap.Int("sent", res.Sent),
				zap.Int("failed", res.Failed))
		case <-ctx.Done():
			d.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues e for delivery. Events that are not notifiable are ignored.
// It never blocks; it reports false when the queue is full and e was dropped.
func (d *Dispatcher) Dispatch(e event.Event) bool {
	if !e.Kind.Notifiable() {
		return true
	}
	select {
	case d.jobs <- e:
		return true
	default:
		obs.Deliveries.WithLabelValues("queue", "dropped").Inc()
		d.log.Warn("notification queue full, event dropped",
			zap.String("kind", string(e.Kind)),
			zap.String("machine_id", e.MachineID))
		return false
	}
}

// Consume dispatches events from a bus subscription until it is closed or
// ctx is done.
func (d *Dispatcher) Consume(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(e)
		case <-ctx.Done():
			return
		}
	}
}

// Notify delivers the notification for e synchronously.
func (d *Dispatcher) Notify(ctx context.Context, e event.Event) Result {
	return d.deliver(ctx, FromEvent(e))
}

// PushAll sends a free-form text to every recipient.
func (d *Dispatcher) PushAll(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{}, fmt.Errorf("message is required: %w", model.ErrInvalidInput)
	}
	recipients, err := d.recipients.List(ctx)
	if err != nil {
		return Result{}, err
	}
	return d.sendAll(ctx, recipients, Text(text)), nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) Result {
	var res Result
	for _, b := range d.broadcasters {
		if err := b.Broadcast(ctx, msg); err != nil {
			res.Failed++
			obs.Deliveries.WithLabelValues(b.Name(), "error").Inc()
			d.log.Warn("broadcast failed", zap.String("broadcaster", b.Name()), zap.Error(err))
			continue
		}
		res.Sent++
		obs.Deliveries.WithLabelValues(b.Name(), "ok").Inc()
	}

	recipients, err := d.recipients.List(ctx)
	if err != nil {
		d.log.Error("error fetching recipients", zap.Error(err))
		return res
	}
	r := d.sendAll(ctx, recipients, msg)
	res.Sent += r.Sent
	res.Failed += r.Failed
	res.Removed += r.Removed
	return res
}

func (d *Dispatcher) sendAll(ctx context.Context, recipients []model.Recipient, msg Message) Result {
	var res Result
	for _, r := range recipients {
		switch err := d.send(ctx, r, msg); {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrRecipientGone):
			res.Failed++
			d.log.Info("recipient is gone, deleting", zap.String("target_id", r.TargetID), zap.String("channel", r.Channel))
			if err := d.recipients.Delete(ctx, r.TargetID); err != nil {
				d.log.Error("failed to delete recipient", zap.String("target_id", r.TargetID), zap.Error(err))
				continue
			}
			res.Removed++
		default:
			res.Failed++
		}
	}
	return res
}

// send delivers to a single recipient and records the outcome. Panics in a
// sender are contained to that recipient.
func (d *Dispatcher) send(ctx context.Context, r model.Recipient, msg Message) (err error) {
	sender, ok := d.senders[r.Channel]
	if !ok {
		obs.Deliveries.WithLabelValues(r.Channel, "no_sender").Inc()
		d.log.Debug("no sender for channel", zap.String("channel", r.Channel), zap.String("target_id", r.TargetID))
		return fmt.Errorf("channel %q: %w", r.Channel, model.ErrDeliveryFailure)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sender panic: %v: %w", p, model.ErrDeliveryFailure)
		}
		result := "ok"
		switch {
		case errors.Is(err, ErrRecipientGone):
			result = "gone"
		case err != nil:
			result = "error"
			d.log.Warn("error sending notification",
				zap.String("channel", r.Channel),
				zap.String("target_id", r.TargetID),
				zap.Error(err))
		}
		obs.Deliveries.WithLabelValues(r.Channel, result).Inc()
	}()

	return sender.Send(ctx, r, msg)
}
