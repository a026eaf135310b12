// Package bindingtest provides recording bindings for tests.
package bindingtest

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/types"
)

// Received is one command or update seen by a Recorder.
type Received struct {
	Item  string
	Value string
}

// ItemConfig is one item configuration seen by a Recorder.
type ItemConfig struct {
	Item   string
	Config string
}

// Recorder is a passive binding that records every call. Set the error
// hooks before registering it.
type Recorder struct {
	Type string

	// PropertiesErr, when set, is returned from ProcessProperties.
	PropertiesErr error
	// ItemConfigErr, when set, decides the result of ProcessItemConfig.
	ItemConfigErr func(item, config string) error

	mu          sync.Mutex
	commands    []Received
	updates     []Received
	properties  []map[string]string
	itemConfigs []ItemConfig
	publisher   eventbus.EventPublisher
}

// New returns a passive recorder for typ.
func New(typ string) *Recorder {
	return &Recorder{Type: typ}
}

func (r *Recorder) BindingType() string { return r.Type }

func (r *Recorder) String() string { return "recorder:" + r.Type }

func (r *Recorder) ReceiveCommand(item string, cmd types.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Received{Item: item, Value: cmd.String()})
}

func (r *Recorder) ReceiveUpdate(item string, state types.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, Received{Item: item, Value: state.String()})
}

func (r *Recorder) ProcessProperties(props map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.properties = append(r.properties, maps.Clone(props))
	return r.PropertiesErr
}

func (r *Recorder) ProcessItemConfig(item, config string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemConfigs = append(r.itemConfigs, ItemConfig{Item: item, Config: config})
	if r.ItemConfigErr != nil {
		return r.ItemConfigErr(item, config)
	}
	return nil
}

func (r *Recorder) SetEventPublisher(p eventbus.EventPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = p
}

// Publisher returns the injected publisher, if any.
func (r *Recorder) Publisher() eventbus.EventPublisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publisher
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Received, len(r.commands))
	copy(out, r.commands)
	return out
}

// Updates returns a copy of the recorded updates.
func (r *Recorder) Updates() []Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Received, len(r.updates))
	copy(out, r.updates)
	return out
}

// Properties returns every properties map received, oldest first.
func (r *Recorder) Properties() []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]string, len(r.properties))
	copy(out, r.properties)
	return out
}

// ItemConfigs returns every item configuration received, oldest first.
func (r *Recorder) ItemConfigs() []ItemConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ItemConfig, len(r.itemConfigs))
	copy(out, r.itemConfigs)
	return out
}

// ActiveRecorder is a Recorder that also counts executions.
type ActiveRecorder struct {
	*Recorder

	interval   atomic.Int64
	disabled   atomic.Bool
	executions atomic.Int64
	// OnExecute, when set, runs inside Execute.
	OnExecute func(ctx context.Context)
}

// NewActive returns an active recorder for typ scheduled every interval.
func NewActive(typ string, interval time.Duration) *ActiveRecorder {
	a := &ActiveRecorder{Recorder: New(typ)}
	a.interval.Store(int64(interval))
	return a
}

func (a *ActiveRecorder) Execute(ctx context.Context) {
	a.executions.Add(1)
	if a.OnExecute != nil {
		a.OnExecute(ctx)
	}
}

func (a *ActiveRecorder) ScheduleInterval() time.Duration {
	return time.Duration(a.interval.Load())
}

func (a *ActiveRecorder) IsEnabled() bool { return !a.disabled.Load() }

// SetInterval changes the interval reported to the manager.
func (a *ActiveRecorder) SetInterval(d time.Duration) { a.interval.Store(int64(d)) }

// SetEnabled toggles IsEnabled.
func (a *ActiveRecorder) SetEnabled(enabled bool) { a.disabled.Store(!enabled) }

// Executions reports how many times Execute ran.
func (a *ActiveRecorder) Executions() int64 { return a.executions.Load() }
