// Package heartbeat is a built-in active binding that publishes the current
// time to every item bound to it, once per interval.
//
// Properties:
//
//	interval=<ms>      period between beats (default 60000)
//	enabled=<bool>     pause or resume beats (default true)
//
// Item configuration selects the published format: "datetime" posts a
// DateTime state, "epoch" posts Unix seconds as a Decimal.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/homebus/homebus/internal/binding"
	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/types"
)

// BindingType is the type the heartbeat binding registers under.
const BindingType = "heartbeat"

// DefaultInterval applies until an interval property is received.
const DefaultInterval = 60 * time.Second

// Format is the representation posted for an item.
type Format string

const (
	FormatDateTime Format = "datetime"
	FormatEpoch    Format = "epoch"
)

// Binding implements binding.ActiveBinding.
type Binding struct {
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.RWMutex
	interval  time.Duration
	enabled   bool
	order     []string
	items     map[string]Format
	publisher eventbus.EventPublisher
}

var _ binding.ActiveBinding = (*Binding)(nil)

// New returns a heartbeat binding. A nil clock uses the wall clock.
func New(logger *slog.Logger, clk clock.Clock) *Binding {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Binding{
		clock:    clk,
		logger:   logger.With("binding", BindingType),
		interval: DefaultInterval,
		enabled:  true,
		items:    make(map[string]Format),
	}
}

func (b *Binding) BindingType() string { return BindingType }

func (b *Binding) String() string { return BindingType }

// ReceiveCommand answers any command on a bound item with an immediate beat.
func (b *Binding) ReceiveCommand(item string, cmd types.Command) {
	b.mu.RLock()
	format, ok := b.items[item]
	b.mu.RUnlock()
	if !ok {
		return
	}
	b.logger.Debug("Refresh requested", "item", item, "command", cmd.String())
	b.beat(item, format, b.clock.Now())
}

func (b *Binding) ReceiveUpdate(string, types.State) {}

func (b *Binding) ProcessProperties(props map[string]string) error {
	interval := DefaultInterval
	if raw, ok := props["interval"]; ok {
		ms, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || ms <= 0 {
			return fmt.Errorf("%w: interval %q must be a positive number of milliseconds", binding.ErrInvalidConfig, raw)
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	enabled := true
	if raw, ok := props["enabled"]; ok {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: enabled %q is not a boolean", binding.ErrInvalidConfig, raw)
		}
		enabled = v
	}

	b.mu.Lock()
	b.interval = interval
	b.enabled = enabled
	b.mu.Unlock()

	b.logger.Info("Heartbeat configured", "interval", interval, "enabled", enabled)
	return nil
}

func (b *Binding) ProcessItemConfig(item, config string) error {
	config = strings.TrimSpace(config)

	b.mu.Lock()
	defer b.mu.Unlock()

	if config == "" {
		delete(b.items, item)
		b.order = slices.DeleteFunc(b.order, func(i string) bool { return i == item })
		return nil
	}

	format := Format(strings.ToLower(config))
	switch format {
	case FormatDateTime, FormatEpoch:
	default:
		return fmt.Errorf("%w: unknown format %q", binding.ErrInvalidConfig, config)
	}

	if _, ok := b.items[item]; !ok {
		b.order = append(b.order, item)
	}
	b.items[item] = format
	return nil
}

func (b *Binding) SetEventPublisher(p eventbus.EventPublisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publisher = p
}

func (b *Binding) ScheduleInterval() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interval
}

func (b *Binding) IsEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// Execute posts one beat to every bound item.
func (b *Binding) Execute(ctx context.Context) {
	b.mu.RLock()
	items := slices.Clone(b.order)
	formats := make([]Format, len(items))
	for i, item := range items {
		formats[i] = b.items[item]
	}
	b.mu.RUnlock()

	now := b.clock.Now()
	for i, item := range items {
		if ctx.Err() != nil {
			return
		}
		b.beat(item, formats[i], now)
	}
}

func (b *Binding) beat(item string, format Format, now time.Time) {
	b.mu.RLock()
	pub := b.publisher
	b.mu.RUnlock()
	if pub == nil {
		return
	}

	var state types.State
	switch format {
	case FormatEpoch:
		state = types.DecimalType(now.Unix())
	default:
		state = types.NewDateTime(now)
	}

	if err := pub.PostUpdate(item, state); err != nil {
		b.logger.Warn("Failed to post heartbeat", "item", item, "error", err)
	}
}
