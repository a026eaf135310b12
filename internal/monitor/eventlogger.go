// Package monitor logs bus traffic for operators.
package monitor

import (
	"log/slog"

	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/events"
	"github.com/homebus/homebus/internal/types"
)

// LoggerName is the logger attribute carried by every bus event record.
const LoggerName = "runtime.busevents"

// EventLogger writes one log record per bus event. Commands and updates are
// logged at info, lifecycle and configuration events at debug.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger returns an EventLogger writing to logger.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger.With("logger", LoggerName)}
}

// Attach subscribes l to every channel of b.
func (l *EventLogger) Attach(b *eventbus.Bus) {
	b.Subscribe(l)
	b.SubscribeSystem(l)
	b.SubscribeConfiguration(l)
}

// Detach removes l from every channel of b.
func (l *EventLogger) Detach(b *eventbus.Bus) {
	b.Unsubscribe(l)
	b.UnsubscribeSystem(l)
	b.UnsubscribeConfiguration(l)
}

func (l *EventLogger) String() string { return "EventLogger" }

func (l *EventLogger) ReceiveCommand(item string, cmd types.Command) {
	l.logger.Info("Command received", "item", item, "command", cmd.String())
}

func (l *EventLogger) ReceiveUpdate(item string, state types.State) {
	l.logger.Info("State updated", "item", item, "state", state.String())
}

func (l *EventLogger) ReceiveSystemEvent(e *events.SystemEvent) {
	attrs := []any{
		"type", e.Type.String(),
		"node", e.Node,
		"event_id", e.ID,
	}
	if e.Service != "" {
		attrs = append(attrs, "service", e.Service)
	}
	if e.Item != "" {
		attrs = append(attrs, "item", e.Item)
	}
	if s, ok := e.Status(); ok {
		attrs = append(attrs, "status", string(s))
	}
	l.logger.Debug("System event", attrs...)
}

func (l *EventLogger) ReceiveConfigurationEvent(e *events.ConfigurationEvent) {
	_, present := e.Value()
	l.logger.Debug("Configuration event",
		"type", e.Type.String(),
		"node", e.Node,
		"service", e.Service,
		"item", e.Item,
		"removed", !present,
		"event_id", e.ID,
	)
}
