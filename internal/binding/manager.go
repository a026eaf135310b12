package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/events"
	"github.com/homebus/homebus/internal/metrics"
	"github.com/homebus/homebus/internal/node"
	"github.com/homebus/homebus/internal/threadpool"
	"github.com/homebus/homebus/internal/types"
)

var (
	// ErrNilBinding is returned by Register for a nil binding.
	ErrNilBinding = errors.New("binding: nil binding")
	// ErrEmptyType is returned by Register for a binding without a type.
	ErrEmptyType = errors.New("binding: empty binding type")
)

// Bus is the part of the event bus the manager publishes to.
type Bus interface {
	eventbus.EventPublisher
	PostSystemEvent(e *events.SystemEvent) error
}

// Scheduler runs periodic binding executions. *threadpool.ScheduledPool
// satisfies it.
type Scheduler interface {
	ScheduleRepeating(key string, initialDelay, period time.Duration, task threadpool.Task) (*threadpool.Job, error)
}

// Info describes a registered binding.
type Info struct {
	Type         string        `json:"type"`
	State        State         `json:"state"`
	Active       bool          `json:"active"`
	Interval     time.Duration `json:"interval_ns,omitempty"`
	Items        []string      `json:"items"`
	Scheduled    bool          `json:"scheduled"`
	Executions   int64         `json:"executions"`
	RegisteredAt time.Time     `json:"registered_at"`
}

type record struct {
	binding      Binding
	state        State
	items        []string
	job          *threadpool.Job
	registeredAt time.Time
}

func (r *record) owns(item string) bool {
	return slices.Contains(r.items, item)
}

func (r *record) addItem(item string) {
	if !r.owns(item) {
		r.items = append(r.items, item)
	}
}

func (r *record) removeItem(item string) {
	if i := slices.Index(r.items, item); i >= 0 {
		r.items = slices.Delete(r.items, i, i+1)
	}
}

// retained holds the last configuration seen for a binding type so that a
// binding registering later, or replacing another, gets the same view.
type retained struct {
	props     map[string]string
	itemOrder []string
	items     map[string]string
}

// Manager owns binding registrations and routes bus traffic to them.
//
// It subscribes to all three bus channels. Property and item configuration
// is processed synchronously in the delivering goroutine, so a slow binding
// holds an events worker until it returns. Bindings are never invoked while
// the manager lock is held.
type Manager struct {
	bus       Bus
	scheduler Scheduler
	node      node.Identity
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// mu protects records, order and configs
	mu      sync.RWMutex
	records map[string]*record
	order   []string
	configs map[string]*retained
}

// NewManager creates a manager that posts status events to bus and
// schedules active bindings on scheduler.
func NewManager(bus Bus, scheduler Scheduler, n node.Identity, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:       bus,
		scheduler: scheduler,
		node:      n,
		logger:    logger.With("component", "BindingManager"),
		metrics:   m,
		records:   make(map[string]*record),
		configs:   make(map[string]*retained),
	}
}

// Attach subscribes the manager to every channel of b.
func (m *Manager) Attach(b *eventbus.Bus) {
	b.Subscribe(m)
	b.SubscribeSystem(m)
	b.SubscribeConfiguration(m)
}

// Detach removes the manager from every channel of b.
func (m *Manager) Detach(b *eventbus.Bus) {
	b.Unsubscribe(m)
	b.UnsubscribeSystem(m)
	b.UnsubscribeConfiguration(m)
}

func (m *Manager) String() string { return "BindingManager" }

// Register adds b under its binding type. A binding already registered under
// the same type is replaced: its job is cancelled and b inherits its item
// ownership. Configuration retained for the type is replayed to b before
// Register returns.
func (m *Manager) Register(b Binding) error {
	if b == nil {
		return ErrNilBinding
	}
	typ := b.BindingType()
	if typ == "" {
		return ErrEmptyType
	}

	if pa, ok := b.(PublisherAware); ok {
		pa.SetEventPublisher(m.bus)
	}

	rec := &record{
		binding:      b,
		state:        StateRegistered,
		registeredAt: time.Now(),
	}

	m.mu.Lock()
	old := m.records[typ]
	var oldJob *threadpool.Job
	if old != nil {
		rec.items = slices.Clone(old.items)
		oldJob = old.job
		old.job = nil
		old.state = StateRemoved
		m.order = slices.DeleteFunc(m.order, func(t string) bool { return t == typ })
	}
	m.records[typ] = rec
	m.order = append(m.order, typ)
	count := len(m.records)
	cfg := m.configs[typ].clone()
	m.mu.Unlock()

	if oldJob != nil {
		oldJob.Cancel()
	}
	m.metrics.BindingsRegistered(count)

	if old != nil {
		m.logger.Info("Binding replaced", "binding", typ, "items", len(rec.items))
	} else {
		m.logger.Info("Binding registered", "binding", typ)
	}
	m.emitStatus(typ, events.StatusNew)

	m.replay(rec, cfg)
	return nil
}

// Unregister removes b if it is the instance currently registered for its
// type, cancelling its periodic job. Any other call is a no-op.
func (m *Manager) Unregister(b Binding) {
	if b == nil {
		return
	}
	typ := b.BindingType()

	m.mu.Lock()
	rec, ok := m.records[typ]
	if !ok || rec.binding != b {
		m.mu.Unlock()
		return
	}
	delete(m.records, typ)
	m.order = slices.DeleteFunc(m.order, func(t string) bool { return t == typ })
	job := rec.job
	rec.job = nil
	rec.state = StateRemoved
	count := len(m.records)
	m.mu.Unlock()

	if job != nil {
		job.Cancel()
	}
	m.metrics.BindingsRegistered(count)
	m.logger.Info("Binding unregistered", "binding", typ)
	m.emitStatus(typ, events.StatusRemoved)
}

// Shutdown unregisters every binding.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	bindings := make([]Binding, 0, len(m.order))
	for _, typ := range m.order {
		bindings = append(bindings, m.records[typ].binding)
	}
	m.mu.RUnlock()

	for _, b := range bindings {
		m.Unregister(b)
	}
	m.logger.Info("Binding manager stopped", "bindings", len(bindings))
}

// Bindings describes every registered binding in registration order.
func (m *Manager) Bindings() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.order))
	for _, typ := range m.order {
		infos = append(infos, m.records[typ].info(typ))
	}
	return infos
}

// Info describes the binding registered under typ.
func (m *Manager) Info(typ string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[typ]
	if !ok {
		return Info{}, false
	}
	return rec.info(typ), true
}

func (r *record) info(typ string) Info {
	info := Info{
		Type:         typ,
		State:        r.state,
		Items:        slices.Clone(r.items),
		Scheduled:    r.job != nil,
		RegisteredAt: r.registeredAt,
	}
	if info.Items == nil {
		info.Items = []string{}
	}
	if r.job != nil {
		info.Executions = r.job.Runs()
		info.Interval = r.job.Period
	}
	if _, ok := r.binding.(ActiveBinding); ok {
		info.Active = true
	}
	return info
}

// ReceiveCommand forwards cmd to every binding owning item.
func (m *Manager) ReceiveCommand(item string, cmd types.Command) {
	for _, b := range m.owners(item) {
		m.guard(b.BindingType(), "command", func() { b.ReceiveCommand(item, cmd) })
	}
}

// ReceiveUpdate forwards state to every binding owning item.
func (m *Manager) ReceiveUpdate(item string, state types.State) {
	for _, b := range m.owners(item) {
		m.guard(b.BindingType(), "update", func() { b.ReceiveUpdate(item, state) })
	}
}

func (m *Manager) owners(item string) []Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owners []Binding
	for _, typ := range m.order {
		rec := m.records[typ]
		if rec.owns(item) {
			owners = append(owners, rec.binding)
		}
	}
	return owners
}

// ReceiveSystemEvent handles binding properties and item configuration
// carried as system events. Other system events are ignored.
func (m *Manager) ReceiveSystemEvent(e *events.SystemEvent) {
	switch e.Type {
	case events.BindingPropertiesChanged:
		props, err := e.Properties()
		if err != nil {
			m.rejectDocument(e.Service, err)
			return
		}
		m.applyProperties(e.Service, props)
	case events.BindingItemConfig:
		config, _ := e.ConfigValue()
		m.applyItemConfig(e.Service, e.Item, config)
	}
}

// ReceiveConfigurationEvent handles service properties and item
// configuration addressed to a binding type.
func (m *Manager) ReceiveConfigurationEvent(e *events.ConfigurationEvent) {
	switch e.Type {
	case events.ServiceConfig:
		props, err := e.Properties()
		if err != nil {
			m.rejectDocument(e.Service, err)
			return
		}
		m.applyProperties(e.Service, props)
	case events.ItemConfig:
		config, _ := e.Value()
		m.applyItemConfig(e.Service, e.Item, config)
	}
}

func (m *Manager) rejectDocument(typ string, err error) {
	cerr := &ConfigError{BindingType: typ, Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)}
	m.metrics.ConfigFailed(typ, "properties")
	m.logger.Error("Unreadable binding properties", "binding", typ, "error", cerr)
}

func (m *Manager) applyProperties(typ string, props map[string]string) {
	if typ == "" {
		return
	}

	m.mu.Lock()
	rec := m.records[typ]
	if rec == nil {
		m.retain(typ).props = maps.Clone(props)
		m.mu.Unlock()
		m.logger.Debug("Properties retained for unregistered binding", "binding", typ)
		return
	}
	m.mu.Unlock()

	kept := maps.Clone(props)
	if m.configure(rec, props) {
		m.mu.Lock()
		m.retain(typ).props = kept
		m.mu.Unlock()
	}
}

func (m *Manager) applyItemConfig(typ, item, config string) {
	if typ == "" || item == "" {
		return
	}

	m.mu.Lock()
	rec := m.records[typ]
	if rec == nil {
		m.retain(typ).setItem(item, config)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	// A rejected config leaves the retained one untouched.
	if m.bindItem(rec, item, config) {
		m.mu.Lock()
		m.retain(typ).setItem(item, config)
		m.mu.Unlock()
	}
}

// configure hands props to the binding and, for active bindings, replaces
// the periodic job. It reports whether the binding accepted props.
func (m *Manager) configure(rec *record, props map[string]string) bool {
	typ := rec.binding.BindingType()

	err := m.call(func() error { return rec.binding.ProcessProperties(props) })
	if err != nil {
		cerr := &ConfigError{BindingType: typ, Err: err}
		m.metrics.ConfigFailed(typ, "properties")
		m.logger.Error("Error configuring binding properties", "binding", typ, "error", cerr)
		return false
	}

	m.mu.Lock()
	if m.records[typ] != rec {
		m.mu.Unlock()
		return true
	}
	rec.state = StatePropertiesLoaded
	prev := rec.job
	rec.job = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	m.logger.Info("Binding properties loaded", "binding", typ, "properties", len(props))
	m.emitStatus(typ, events.StatusPropertiesLoaded)

	if active, ok := rec.binding.(ActiveBinding); ok {
		m.schedule(rec, active)
	}
	return true
}

func (m *Manager) schedule(rec *record, active ActiveBinding) {
	typ := active.BindingType()

	var interval time.Duration
	if err := m.call(func() error { interval = active.ScheduleInterval(); return nil }); err != nil {
		m.logger.Error("Schedule interval unavailable", "binding", typ, "error", err)
		return
	}
	if interval <= 0 {
		m.logger.Warn("Active binding not scheduled, interval must be positive",
			"binding", typ,
			"interval", interval,
		)
		return
	}

	job, err := m.scheduler.ScheduleRepeating(jobKey(typ), interval, interval, func(ctx context.Context) {
		m.execute(ctx, active)
	})
	if err != nil {
		m.logger.Error("Failed to schedule binding", "binding", typ, "error", err)
		return
	}

	m.mu.Lock()
	if m.records[typ] != rec {
		m.mu.Unlock()
		job.Cancel()
		return
	}
	prev := rec.job
	rec.job = job
	rec.state = StateActive
	m.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	m.logger.Info("Active binding scheduled", "binding", typ, "interval", interval, "job_id", job.ID)
}

func (m *Manager) execute(ctx context.Context, active ActiveBinding) {
	typ := active.BindingType()

	var enabled bool
	if err := m.call(func() error { enabled = active.IsEnabled(); return nil }); err != nil {
		m.metrics.BindingExecuted(typ, "panic")
		m.logger.Error("Binding enable check failed", "binding", typ, "error", err)
		return
	}
	if !enabled {
		m.metrics.BindingExecuted(typ, "skipped")
		return
	}

	if err := m.call(func() error { active.Execute(ctx); return nil }); err != nil {
		m.metrics.BindingExecuted(typ, "panic")
		m.logger.Error("Binding execution failed", "binding", typ, "error", err)
		return
	}
	m.metrics.BindingExecuted(typ, "ok")
}

// bindItem hands an item configuration to the binding. Ownership changes
// only when the binding accepts it.
func (m *Manager) bindItem(rec *record, item, config string) bool {
	typ := rec.binding.BindingType()

	err := m.call(func() error { return rec.binding.ProcessItemConfig(item, config) })
	if err != nil {
		cerr := &ConfigError{BindingType: typ, Item: item, Err: err}
		m.metrics.ConfigFailed(typ, "item")
		m.logger.Error("Error processing item config", "binding", typ, "item", item, "error", cerr)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[typ] != rec {
		return false
	}
	if config == "" {
		rec.removeItem(item)
		m.logger.Debug("Item unbound", "binding", typ, "item", item)
	} else {
		rec.addItem(item)
		m.logger.Debug("Item bound", "binding", typ, "item", item)
	}
	return true
}

func (m *Manager) replay(rec *record, cfg *retained) {
	if cfg == nil {
		return
	}
	typ := rec.binding.BindingType()

	if cfg.props != nil {
		m.configure(rec, cfg.props)
	}
	if len(cfg.itemOrder) > 0 {
		bound := 0
		for _, item := range cfg.itemOrder {
			if m.bindItem(rec, item, cfg.items[item]) {
				bound++
			}
		}
		m.logger.Info("Binding items loaded", "binding", typ, "items", bound)
		m.emitStatus(typ, events.StatusItemsLoaded)
	}
}

// retain returns the retained configuration for typ. Callers hold mu.
func (m *Manager) retain(typ string) *retained {
	r, ok := m.configs[typ]
	if !ok {
		r = &retained{items: make(map[string]string)}
		m.configs[typ] = r
	}
	return r
}

// setItem records config for item; an empty config forgets it.
func (r *retained) setItem(item, config string) {
	if config == "" {
		delete(r.items, item)
		r.itemOrder = slices.DeleteFunc(r.itemOrder, func(i string) bool { return i == item })
		return
	}
	if _, ok := r.items[item]; !ok {
		r.itemOrder = append(r.itemOrder, item)
	}
	r.items[item] = config
}

func (r *retained) clone() *retained {
	if r == nil {
		return nil
	}
	c := &retained{
		props:     maps.Clone(r.props),
		itemOrder: slices.Clone(r.itemOrder),
		items:     maps.Clone(r.items),
	}
	return c
}

// call runs fn and converts a panic into an error.
func (m *Manager) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.logger.Debug("Recovered binding panic", "stack", string(debug.Stack()))
		}
	}()
	return fn()
}

func (m *Manager) guard(typ, kind string, fn func()) {
	if err := m.call(func() error { fn(); return nil }); err != nil {
		m.logger.Error("Binding failed to handle event",
			"binding", typ,
			"kind", kind,
			"error", err,
		)
	}
}

func (m *Manager) emitStatus(typ string, status events.BindingStatus) {
	e, err := events.NewBindingStatusEvent(m.node, typ, status)
	if err != nil {
		m.logger.Error("Failed to build status event", "binding", typ, "status", status, "error", err)
		return
	}
	m.metrics.BindingStatus(typ, string(status))
	if err := m.bus.PostSystemEvent(e); err != nil {
		m.logger.Warn("Failed to post status event", "binding", typ, "status", status, "error", err)
	}
}

func jobKey(typ string) string {
	return "binding:" + typ
}
