// Package eventbus provides the publish/subscribe core of the runtime. It
// fans item commands, state updates, system events and configuration events
// out to three independent subscriber channels and delivers them on a shared
// worker pool.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/homebus/homebus/internal/events"
	"github.com/homebus/homebus/internal/metrics"
	"github.com/homebus/homebus/internal/threadpool"
	"github.com/homebus/homebus/internal/types"
)

// Channel names a subscriber channel of the bus.
type Channel string

const (
	ChannelItems         Channel = "items"
	ChannelSystem        Channel = "system"
	ChannelConfiguration Channel = "configuration"
)

var (
	// ErrNilCommand is returned when a nil command is posted or sent.
	ErrNilCommand = errors.New("eventbus: nil command")
	// ErrNilState is returned when a nil state is posted.
	ErrNilState = errors.New("eventbus: nil state")
	// ErrNilEvent is returned when a nil system or configuration event is posted.
	ErrNilEvent = errors.New("eventbus: nil event")
)

// DeliveryError describes a subscriber callback that panicked during
// fan-out. It is logged, never returned to publishers.
type DeliveryError struct {
	Channel    Channel
	Subscriber string
	Recovered  any
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s subscriber %s failed: %v", e.Channel, e.Subscriber, e.Recovered)
}

// Executor runs delivery tasks. *threadpool.Pool satisfies it.
type Executor interface {
	Submit(task threadpool.Task) error
}

// Bus is a thread-safe publish/subscribe event bus.
//
// Asynchronous posts take a snapshot of the matching subscriber list at the
// moment of the call and submit exactly one delivery task to the executor.
// Posts from one goroutine are therefore queued in call order; delivery
// across goroutines carries no ordering guarantee.
//
// A subscriber that panics is logged and skipped; the remaining subscribers
// of the same task still receive the event.
type Bus struct {
	exec    Executor
	logger  *slog.Logger
	metrics *metrics.Metrics

	items  cowList[EventSubscriber]
	system cowList[SystemEventSubscriber]
	config cowList[ConfigurationEventSubscriber]
}

// New creates a Bus that delivers asynchronous events on exec.
//
// Parameters:
//   - exec: the delivery pool, usually the registry's Events pool
//   - logger: parent logger; nil uses slog.Default()
//   - m: optional collectors; nil disables instrumentation
//
// Example:
//
//	pool, _ := registry.Pool(threadpool.Events)
//	bus := eventbus.New(pool, logger, m)
//	bus.Subscribe(manager)
//	bus.PostCommand("Light_Kitchen", types.On)
func New(exec Executor, logger *slog.Logger, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		exec:    exec,
		logger:  logger.With("component", "EventBus"),
		metrics: m,
	}
}

// Subscribe adds s to the item channel. Adding the same subscriber twice is
// a no-op.
func (b *Bus) Subscribe(s EventSubscriber) {
	if s == nil {
		return
	}
	if b.items.add(s) {
		b.logger.Debug("Subscriber added", "channel", ChannelItems, "subscriber", subscriberName(s))
	}
}

// Unsubscribe removes s from the item channel. Events already scheduled
// for delivery may still reach it.
func (b *Bus) Unsubscribe(s EventSubscriber) {
	if s == nil {
		return
	}
	if b.items.remove(s) {
		b.logger.Debug("Subscriber removed", "channel", ChannelItems, "subscriber", subscriberName(s))
	}
}

// SubscribeSystem adds s to the system event channel.
func (b *Bus) SubscribeSystem(s SystemEventSubscriber) {
	if s == nil {
		return
	}
	if b.system.add(s) {
		b.logger.Debug("Subscriber added", "channel", ChannelSystem, "subscriber", subscriberName(s))
	}
}

// UnsubscribeSystem removes s from the system event channel.
func (b *Bus) UnsubscribeSystem(s SystemEventSubscriber) {
	if s == nil {
		return
	}
	if b.system.remove(s) {
		b.logger.Debug("Subscriber removed", "channel", ChannelSystem, "subscriber", subscriberName(s))
	}
}

// SubscribeConfiguration adds s to the configuration event channel.
func (b *Bus) SubscribeConfiguration(s ConfigurationEventSubscriber) {
	if s == nil {
		return
	}
	if b.config.add(s) {
		b.logger.Debug("Subscriber added", "channel", ChannelConfiguration, "subscriber", subscriberName(s))
	}
}

// UnsubscribeConfiguration removes s from the configuration event channel.
func (b *Bus) UnsubscribeConfiguration(s ConfigurationEventSubscriber) {
	if s == nil {
		return
	}
	if b.config.remove(s) {
		b.logger.Debug("Subscriber removed", "channel", ChannelConfiguration, "subscriber", subscriberName(s))
	}
}

// PostUpdate notifies item subscribers of a new state. It returns as soon as
// the delivery task is queued.
//
// Returns:
//   - ErrNilState if state is nil; nothing is delivered
//   - the executor's error (threadpool.ErrRegistryClosed after shutdown)
func (b *Bus) PostUpdate(item string, state types.State) error {
	if state == nil {
		return b.reject("update", item, ErrNilState)
	}
	subs := b.items.snapshot()
	return b.submit("update", func() {
		for _, s := range subs {
			b.deliver(ChannelItems, s, func() { s.ReceiveUpdate(item, state) })
		}
	})
}

// PostCommand notifies item subscribers of a command. It returns as soon as
// the delivery task is queued.
//
// Returns:
//   - ErrNilCommand if cmd is nil; nothing is delivered
//   - the executor's error (threadpool.ErrRegistryClosed after shutdown)
func (b *Bus) PostCommand(item string, cmd types.Command) error {
	if cmd == nil {
		return b.reject("command", item, ErrNilCommand)
	}
	subs := b.items.snapshot()
	return b.submit("command", func() {
		for _, s := range subs {
			b.deliver(ChannelItems, s, func() { s.ReceiveCommand(item, cmd) })
		}
	})
}

// SendCommand delivers cmd to every item subscriber in the calling
// goroutine, in subscription order, and returns once all of them have
// returned or panicked.
func (b *Bus) SendCommand(item string, cmd types.Command) error {
	if cmd == nil {
		return b.reject("command", item, ErrNilCommand)
	}
	b.metrics.EventPosted("command_sync")
	for _, s := range b.items.snapshot() {
		b.deliver(ChannelItems, s, func() { s.ReceiveCommand(item, cmd) })
	}
	return nil
}

// PostSystemEvent fans e out to system event subscribers asynchronously.
func (b *Bus) PostSystemEvent(e *events.SystemEvent) error {
	if e == nil {
		return b.reject("system", "", ErrNilEvent)
	}
	subs := b.system.snapshot()
	return b.submit("system", func() {
		for _, s := range subs {
			b.deliver(ChannelSystem, s, func() { s.ReceiveSystemEvent(e) })
		}
	})
}

// PostConfigurationEvent fans e out to configuration subscribers
// asynchronously.
func (b *Bus) PostConfigurationEvent(e *events.ConfigurationEvent) error {
	if e == nil {
		return b.reject("configuration", "", ErrNilEvent)
	}
	subs := b.config.snapshot()
	return b.submit("configuration", func() {
		for _, s := range subs {
			b.deliver(ChannelConfiguration, s, func() { s.ReceiveConfigurationEvent(e) })
		}
	})
}

// SubscriberCounts reports the size of each channel.
func (b *Bus) SubscriberCounts() map[Channel]int {
	return map[Channel]int{
		ChannelItems:         b.items.len(),
		ChannelSystem:        b.system.len(),
		ChannelConfiguration: b.config.len(),
	}
}

func (b *Bus) submit(kind string, fanout func()) error {
	err := b.exec.Submit(func(context.Context) { fanout() })
	if err != nil {
		b.metrics.EventRejected(kind)
		b.logger.Warn("Event not queued", "kind", kind, "error", err)
		return fmt.Errorf("post %s: %w", kind, err)
	}
	b.metrics.EventPosted(kind)
	return nil
}

func (b *Bus) reject(kind, item string, err error) error {
	b.metrics.EventRejected(kind)
	b.logger.Warn("Rejected event", "kind", kind, "item", item, "error", err)
	return err
}

func (b *Bus) deliver(ch Channel, subscriber any, call func()) {
	defer func() {
		if r := recover(); r != nil {
			derr := &DeliveryError{
				Channel:    ch,
				Subscriber: subscriberName(subscriber),
				Recovered:  r,
			}
			b.metrics.DeliveryFailed(string(ch))
			b.logger.Error("Subscriber failed",
				"error", derr,
				"stack", string(debug.Stack()),
			)
		}
	}()
	call()
}

func subscriberName(s any) string {
	if n, ok := s.(fmt.Stringer); ok {
		return n.String()
	}
	return fmt.Sprintf("%T", s)
}
