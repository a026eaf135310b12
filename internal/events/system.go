// Package events defines the system and configuration events carried on the
// bus next to item commands and updates.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homebus/homebus/internal/node"
)

// ErrMissingType is returned when an event is built without a type.
var ErrMissingType = errors.New("events: missing type")

// SystemEventType tags a bus-level lifecycle notification.
type SystemEventType int

const (
	_ SystemEventType = iota
	BindingAdded
	BindingRemoved
	BindingPropertiesLoaded
	BindingItemsLoaded
	BindingPropertiesChanged
	BindingItemConfig
	RemoteNodeStarting
	RemoteNodeStarted
	RemoteNodeStopped
	MasterNodeStarting
	MasterNodeStarted
	SystemStarted
	SystemShutdownInitiated
)

var systemEventTypeNames = map[SystemEventType]string{
	BindingAdded:             "BINDING_ADDED",
	BindingRemoved:           "BINDING_REMOVED",
	BindingPropertiesLoaded:  "BINDING_PROPERTIES_LOADED",
	BindingItemsLoaded:       "BINDING_ITEMS_LOADED",
	BindingPropertiesChanged: "BINDING_PROPERTIES_CHANGED",
	BindingItemConfig:        "BINDING_ITEM_CONFIG",
	RemoteNodeStarting:       "REMOTE_NODE_STARTING",
	RemoteNodeStarted:        "REMOTE_NODE_STARTED",
	RemoteNodeStopped:        "REMOTE_NODE_STOPPED",
	MasterNodeStarting:       "MASTER_NODE_STARTING",
	MasterNodeStarted:        "MASTER_NODE_STARTED",
	SystemStarted:            "SYSTEM_STARTED",
	SystemShutdownInitiated:  "SYSTEM_SHUTDOWN_INITIATED",
}

func (t SystemEventType) String() string {
	if name, ok := systemEventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SystemEventType(%d)", int(t))
}

// Valid reports whether t is one of the declared types.
func (t SystemEventType) Valid() bool {
	_, ok := systemEventTypeNames[t]
	return ok
}

// BindingStatus is the lifecycle status a binding manager reports for a
// binding. Each status travels as a system event of the matching type.
type BindingStatus string

const (
	StatusNew              BindingStatus = "NEW"
	StatusPropertiesLoaded BindingStatus = "PROPERTIES_LOADED"
	StatusItemsLoaded      BindingStatus = "ITEMS_LOADED"
	StatusRemoved          BindingStatus = "REMOVED"
)

// EventType maps the status to its system event type.
func (s BindingStatus) EventType() SystemEventType {
	switch s {
	case StatusNew:
		return BindingAdded
	case StatusPropertiesLoaded:
		return BindingPropertiesLoaded
	case StatusItemsLoaded:
		return BindingItemsLoaded
	case StatusRemoved:
		return BindingRemoved
	}
	return 0
}

// SystemEvent is a bus-level notification about component lifecycle.
// Service holds the binding type for binding events, Item the item name for
// item-config events.
type SystemEvent struct {
	ID        uuid.UUID
	Type      SystemEventType
	Node      string
	Service   string
	Item      string
	Value     string
	Timestamp time.Time
}

// NewSystemEvent builds a system event originating from n.
func NewSystemEvent(n node.Identity, typ SystemEventType, service string) (*SystemEvent, error) {
	if !typ.Valid() {
		return nil, ErrMissingType
	}
	name := n.String()
	if name == "" {
		name = node.Missing
	}
	return &SystemEvent{
		ID:        uuid.New(),
		Type:      typ,
		Node:      name,
		Service:   service,
		Timestamp: time.Now(),
	}, nil
}

// NewBindingStatusEvent reports a binding lifecycle status.
func NewBindingStatusEvent(n node.Identity, bindingType string, status BindingStatus) (*SystemEvent, error) {
	e, err := NewSystemEvent(n, status.EventType(), bindingType)
	if err != nil {
		return nil, fmt.Errorf("binding status %q: %w", status, err)
	}
	e.Value = string(status)
	return e, nil
}

// NewBindingPropertiesChangedEvent carries a properties document for a binding.
func NewBindingPropertiesChangedEvent(n node.Identity, bindingType, properties string) *SystemEvent {
	e, _ := NewSystemEvent(n, BindingPropertiesChanged, bindingType)
	e.Value = properties
	return e
}

// NewBindingItemConfigEvent carries an item configuration for a binding. An
// empty config means the item is no longer bound.
func NewBindingItemConfigEvent(n node.Identity, bindingType, item, config string) *SystemEvent {
	e, _ := NewSystemEvent(n, BindingItemConfig, bindingType)
	e.Item = item
	e.Value = config
	return e
}

// ConfigValue returns the value, treating a blank value as absent.
func (e *SystemEvent) ConfigValue() (string, bool) {
	if strings.TrimSpace(e.Value) == "" {
		return "", false
	}
	return e.Value, true
}

// Properties parses the value as a properties document.
func (e *SystemEvent) Properties() (map[string]string, error) {
	v, ok := e.ConfigValue()
	if !ok {
		return map[string]string{}, nil
	}
	return ParseProperties(v)
}

// Status returns the binding status carried by a status event.
func (e *SystemEvent) Status() (BindingStatus, bool) {
	s := BindingStatus(e.Value)
	if s.EventType() == 0 || s.EventType() != e.Type {
		return "", false
	}
	return s, true
}

func (e *SystemEvent) String() string {
	return fmt.Sprintf("SystemEvent{Type: %s, Node: %s, Service: %s, Item: %s}",
		e.Type,
		e.Node,
		e.Service,
		e.Item,
	)
}
