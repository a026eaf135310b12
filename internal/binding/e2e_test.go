package binding_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/homebus/homebus/internal/binding"
	"github.com/homebus/homebus/internal/binding/bindingtest"
	"github.com/homebus/homebus/internal/eventbus"
	"github.com/homebus/homebus/internal/events"
	"github.com/homebus/homebus/internal/threadpool"
	"github.com/homebus/homebus/internal/types"
)

// statusWatcher collects binding status events delivered by the bus.
type statusWatcher struct {
	mu   sync.Mutex
	seen map[events.BindingStatus]time.Time
}

func (w *statusWatcher) ReceiveSystemEvent(e *events.SystemEvent) {
	s, ok := e.Status()
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.seen[s]; !dup {
		w.seen[s] = time.Now()
	}
}

func (w *statusWatcher) has(s events.BindingStatus) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[s]
	return ok
}

type testStack struct {
	reg *threadpool.Registry
	bus *eventbus.Bus
	mgr *binding.Manager
}

func newStack(t *testing.T) *testStack {
	t.Helper()
	reg := threadpool.NewRegistry(threadpool.DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})

	pool, err := reg.Pool(threadpool.Events)
	if err != nil {
		t.Fatal(err)
	}
	sched, err := reg.Scheduled(threadpool.Background)
	if err != nil {
		t.Fatal(err)
	}

	bus := eventbus.New(pool, nil, nil)
	mgr := binding.NewManager(bus, sched, "e2e", nil, nil)
	mgr.Attach(bus)
	t.Cleanup(mgr.Shutdown)

	return &testStack{reg: reg, bus: bus, mgr: mgr}
}

func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestExecBindingLifecycle(t *testing.T) {
	rt := newStack(t)
	watcher := &statusWatcher{seen: make(map[events.BindingStatus]time.Time)}
	rt.bus.SubscribeSystem(watcher)

	exec := bindingtest.NewActive("exec", 1000*time.Millisecond)
	if err := rt.mgr.Register(exec); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rt.bus.PostConfigurationEvent(events.NewServiceConfigEvent("e2e", "exec", "timeout=5000")); err != nil {
		t.Fatal(err)
	}

	if !waitUntil(time.Second, func() bool { return watcher.has(events.StatusPropertiesLoaded) }) {
		t.Fatal("PROPERTIES_LOADED not observed")
	}
	if props := exec.Properties(); len(props) != 1 || props[0]["timeout"] != "5000" {
		t.Fatalf("unexpected properties %v", props)
	}

	time.Sleep(time.Until(start.Add(1200 * time.Millisecond)))
	if n := exec.Executions(); n < 1 {
		t.Errorf("expected at least one execution within 1200ms, got %d", n)
	}

	time.Sleep(time.Until(start.Add(3000 * time.Millisecond)))
	if n := exec.Executions(); n > 3 {
		t.Errorf("expected at most 3 executions within 3000ms, got %d", n)
	}

	rt.mgr.Unregister(exec)
	if !waitUntil(time.Second, func() bool { return watcher.has(events.StatusRemoved) }) {
		t.Error("REMOVED not observed")
	}

	stopped := exec.Executions()
	time.Sleep(1500 * time.Millisecond)
	if n := exec.Executions(); n != stopped {
		t.Errorf("executions continued after unregister: %d -> %d", stopped, n)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	rt := newStack(t)

	exec := bindingtest.New("exec")
	if err := rt.mgr.Register(exec); err != nil {
		t.Fatal(err)
	}
	if err := rt.bus.PostConfigurationEvent(events.NewItemConfigEvent("e2e", "exec", "Light", ">[ON:echo on]")); err != nil {
		t.Fatal(err)
	}
	if !waitUntil(time.Second, func() bool { return len(exec.ItemConfigs()) == 1 }) {
		t.Fatal("item config not delivered")
	}

	if err := rt.bus.SendCommand("Light", types.On); err != nil {
		t.Fatal(err)
	}
	if got := exec.Commands(); len(got) != 1 || got[0].Value != "ON" {
		t.Fatalf("SendCommand did not reach the binding synchronously: %v", got)
	}

	// A binding answers through the injected publisher.
	if err := exec.Publisher().PostUpdate("Light", types.On); err != nil {
		t.Fatal(err)
	}
	if !waitUntil(time.Second, func() bool { return len(exec.Updates()) == 1 }) {
		t.Error("update posted by the binding was not routed back")
	}
}

func TestRemovalWithNullAndEmptyConfig(t *testing.T) {
	rt := newStack(t)
	exec := bindingtest.New("exec")
	_ = rt.mgr.Register(exec)

	post := func(e *events.ConfigurationEvent) {
		t.Helper()
		if err := rt.bus.PostConfigurationEvent(e); err != nil {
			t.Fatal(err)
		}
	}

	post(events.NewItemConfigEvent("e2e", "exec", "A", "on"))
	post(events.NewItemConfigEvent("e2e", "exec", "B", "on"))
	if !waitUntil(time.Second, func() bool {
		info, _ := rt.mgr.Info("exec")
		return len(info.Items) == 2
	}) {
		t.Fatal("items not bound")
	}

	post(events.NewItemConfigRemovedEvent("e2e", "exec", "A"))
	post(events.NewItemConfigEvent("e2e", "exec", "B", ""))
	if !waitUntil(time.Second, func() bool {
		info, _ := rt.mgr.Info("exec")
		return len(info.Items) == 0
	}) {
		info, _ := rt.mgr.Info("exec")
		t.Errorf("expected both items unbound, still own %v", info.Items)
	}
}
