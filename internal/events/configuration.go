package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homebus/homebus/internal/node"
)

// ConfigurationEventType distinguishes service-wide from item-level
// configuration.
type ConfigurationEventType int

const (
	_ ConfigurationEventType = iota
	ServiceConfig
	ItemConfig
)

func (t ConfigurationEventType) String() string {
	switch t {
	case ServiceConfig:
		return "SERVICE_CONFIG"
	case ItemConfig:
		return "ITEM_CONFIG"
	}
	return fmt.Sprintf("ConfigurationEventType(%d)", int(t))
}

// ConfigurationEvent delivers configuration for a service (usually a binding
// type). A nil or blank value means the configuration was removed.
type ConfigurationEvent struct {
	ID        uuid.UUID
	Type      ConfigurationEventType
	Node      string
	Service   string
	Item      string
	Timestamp time.Time

	value *string
}

// NewConfigurationEvent builds a configuration event originating from n.
func NewConfigurationEvent(n node.Identity, typ ConfigurationEventType, service, item string, value *string) (*ConfigurationEvent, error) {
	if typ != ServiceConfig && typ != ItemConfig {
		return nil, ErrMissingType
	}
	name := n.String()
	if name == "" {
		name = node.Missing
	}
	return &ConfigurationEvent{
		ID:        uuid.New(),
		Type:      typ,
		Node:      name,
		Service:   service,
		Item:      item,
		Timestamp: time.Now(),
		value:     value,
	}, nil
}

// NewServiceConfigEvent carries a properties document for service.
func NewServiceConfigEvent(n node.Identity, service, properties string) *ConfigurationEvent {
	e, _ := NewConfigurationEvent(n, ServiceConfig, service, "", &properties)
	return e
}

// NewItemConfigEvent carries the configuration of item for service.
func NewItemConfigEvent(n node.Identity, service, item, config string) *ConfigurationEvent {
	e, _ := NewConfigurationEvent(n, ItemConfig, service, item, &config)
	return e
}

// NewItemConfigRemovedEvent signals that item is no longer configured for service.
func NewItemConfigRemovedEvent(n node.Identity, service, item string) *ConfigurationEvent {
	e, _ := NewConfigurationEvent(n, ItemConfig, service, item, nil)
	return e
}

// Value returns the configuration value. Nil and blank values both report
// ok == false.
func (e *ConfigurationEvent) Value() (string, bool) {
	if e.value == nil || strings.TrimSpace(*e.value) == "" {
		return "", false
	}
	return *e.value, true
}

// Properties parses the value as a properties document. A removed
// configuration yields an empty map.
func (e *ConfigurationEvent) Properties() (map[string]string, error) {
	v, ok := e.Value()
	if !ok {
		return map[string]string{}, nil
	}
	return ParseProperties(v)
}

func (e *ConfigurationEvent) String() string {
	return fmt.Sprintf("ConfigurationEvent{Type: %s, Node: %s, Service: %s, Item: %s}",
		e.Type,
		e.Node,
		e.Service,
		e.Item,
	)
}
