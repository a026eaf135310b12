// Package binding connects protocol adapters ("bindings") to the event bus.
//
// The Manager keeps one registration per binding type, routes item commands
// and updates to the bindings that own the item, feeds bindings their
// properties and item configurations from system and configuration events,
// and drives ActiveBinding executions on the scheduled pool.
package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/types"
)

// ErrInvalidConfig is the conventional cause for a rejected configuration.
var ErrInvalidConfig = errors.New("binding: invalid configuration")

// Binding is a protocol adapter addressed by its type string.
type Binding interface {
	// BindingType identifies the binding. At most one binding per type is
	// registered at a time.
	BindingType() string
	ReceiveCommand(item string, cmd types.Command)
	ReceiveUpdate(item string, state types.State)
	// ProcessProperties applies service-wide properties.
	ProcessProperties(props map[string]string) error
	// ProcessItemConfig binds item with config. An empty config unbinds it.
	ProcessItemConfig(item, config string) error
}

// ActiveBinding is a Binding that also does periodic work.
type ActiveBinding interface {
	Binding
	// Execute runs one cycle. ctx is cancelled when the binding is
	// unregistered or the runtime shuts down.
	Execute(ctx context.Context)
	// ScheduleInterval is the period between executions. It is read after
	// properties are applied; a non-positive value disables scheduling.
	ScheduleInterval() time.Duration
	// IsEnabled is checked before every execution.
	IsEnabled() bool
}

// PublisherAware bindings receive the bus publisher on registration.
type PublisherAware interface {
	SetEventPublisher(p eventbus.EventPublisher)
}

// ConfigError reports a configuration a binding refused.
type ConfigError struct {
	BindingType string
	// Item is empty for service properties.
	Item string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("binding %s: properties rejected: %v", e.BindingType, e.Err)
	}
	return fmt.Sprintf("binding %s: item %s config rejected: %v", e.BindingType, e.Item, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
