package player

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chazu/avmcore/avm1"
	"github.com/chazu/avmcore/avm2"
	"github.com/chazu/avmcore/backend"
	"github.com/chazu/avmcore/config"
	"github.com/chazu/avmcore/limits"
)

// ---------------------------------------------------------------------------
// Action helpers
// ---------------------------------------------------------------------------

func push(s string) []byte {
	body := append([]byte{0}, s...)
	body = append(body, 0)
	return append([]byte{avm1.ActionPush, byte(len(body)), byte(len(body) >> 8)}, body...)
}

func actions(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return append(out, avm1.ActionEnd)
}

func trace(s string) []byte {
	return append(push(s), avm1.ActionTrace)
}

// spin jumps to itself forever.
var spin = []byte{avm1.ActionJump, 2, 0, 0xFB, 0xFF}

type fixture struct {
	*Player
	traces []string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{}
	opts.TraceHook = func(s string) { f.traces = append(f.traces, s) }
	p, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	f.Player = p
	return f
}

func (f *fixture) expectTraces(t *testing.T, want ...string) {
	t.Helper()
	if len(f.traces) != len(want) {
		t.Fatalf("traces = %q, want %q", f.traces, want)
	}
	for i := range want {
		if f.traces[i] != want[i] {
			t.Fatalf("traces = %q, want %q", f.traces, want)
		}
	}
	f.traces = nil
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func TestRunFrameRunsQueuedScripts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.QueueActions(nil, actions(trace("first")))
	f.QueueActions(nil, actions(trace("second")))
	report, err := f.RunFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Ran != 2 || len(report.Errors) != 0 || report.Frame != 0 {
		t.Errorf("report = %+v", report)
	}
	f.expectTraces(t, "first", "second")

	report, err = f.RunFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Ran != 0 {
		t.Errorf("scripts ran twice: %+v", report)
	}
	if f.Frame() != 2 {
		t.Errorf("frame = %d, want 2", f.Frame())
	}
}

func TestScriptErrorsDoNotStopTheFrame(t *testing.T) {
	f := newFixture(t, Options{})
	f.QueueActions(nil, actions(push("bad"), []byte{avm1.ActionThrow}))
	f.QueueActions(nil, actions(trace("still runs")))

	report, err := f.RunFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %v, want one", report.Errors)
	}
	var te *avm1.ThrownError
	if !errors.As(report.Errors[0], &te) || te.Value.AsString() != "bad" {
		t.Errorf("error = %v, want thrown \"bad\"", report.Errors[0])
	}
	f.expectTraces(t, "still runs")
}

func TestExecutionLimitAbortsOnlyTheFrame(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
	cfg := config.Default()
	cfg.Limits.MaxActions = 10
	cfg.Limits.MaxExecutionMS = 1
	f := newFixture(t, Options{Config: cfg, Clock: clock})
	ctx := context.Background()

	f.QueueActions(nil, actions(spin))
	f.QueueActions(nil, actions(trace("skipped")))
	report, err := f.RunFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 1 || !errors.Is(report.Errors[0], limits.ErrExecutionLimit) {
		t.Fatalf("errors = %v, want the execution limit", report.Errors)
	}
	if report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", report.Skipped)
	}
	f.expectTraces(t)

	f.QueueActions(nil, actions(trace("next frame")))
	report, err = f.RunFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("next frame errors = %v", report.Errors)
	}
	f.expectTraces(t, "next frame")
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.QueueActions(nil, actions(trace("never")))
	if _, err := f.RunFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	f.expectTraces(t)
}

func TestPanicsAreRecovered(t *testing.T) {
	f := newFixture(t, Options{})
	f.Queue().Post(func() error { panic("boom") })
	f.QueueActions(nil, actions(trace("after")))

	report, err := f.RunFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Errors) != 1 || !errors.Is(report.Errors[0], ErrPanic) {
		t.Fatalf("errors = %v, want a recovered panic", report.Errors)
	}
	if report.Events != 1 {
		t.Errorf("events = %d, want 1", report.Events)
	}
	f.expectTraces(t, "after")
}

func TestClosedPlayer(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.RunFrame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("RunFrame after Close = %v", err)
	}
	if id := p.Queue().Post(func() error { return nil }); p.Queue().Len() != 0 {
		t.Errorf("event %s queued after Close", id)
	}
}

// ---------------------------------------------------------------------------
// Host entry points
// ---------------------------------------------------------------------------

func TestExecuteAction(t *testing.T) {
	f := newFixture(t, Options{})
	out, err := f.ExecuteAction(context.Background(), nil, actions(trace("now")))
	if err != nil {
		t.Fatal(err)
	}
	if out.State != avm1.StateReturned {
		t.Errorf("state = %s, want returned", out.State)
	}
	f.expectTraces(t, "now")
}

func TestConstructObject(t *testing.T) {
	f := newFixture(t, Options{})
	vm := f.AVM2()
	obj, err := f.ConstructObject(context.Background(), vm.ClassByName("RangeError"), []avm2.Value{avm2.String("out of range")})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := vm.GetProperty(avm2.ObjectValue(obj), "message")
	if err != nil || msg.AsString() != "out of range" {
		t.Errorf("message = %v, %v", msg, err)
	}

	_, err = f.ConstructObject(context.Background(), vm.ClassByName("Math"), nil)
	var te *avm2.ThrownError
	if !errors.As(err, &te) {
		t.Fatalf("new Math() = %v, want a script error", err)
	}
}

func TestQueueMethod(t *testing.T) {
	f := newFixture(t, Options{})
	var got []string
	m := avm2.NewNativeMethod("frameScript", func(_ *avm2.Activation, _ avm2.Value, args []avm2.Value) (avm2.Value, error) {
		got = append(got, args[0].AsString())
		return avm2.Undefined, nil
	})
	f.QueueMethod(m, avm2.String("tick"))
	if _, err := f.RunFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "tick" {
		t.Fatalf("got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Sockets
// ---------------------------------------------------------------------------

type fakeSocket struct {
	id   string
	sent []string
}

func (s *fakeSocket) ID() string { return s.id }
func (s *fakeSocket) Send(data []byte) error {
	s.sent = append(s.sent, string(data))
	return nil
}
func (s *fakeSocket) Close() error { return nil }

type fakeNavigator struct {
	sink   backend.SocketSink
	socket *fakeSocket
}

func (n *fakeNavigator) NavigateToURL(string, string, backend.NavigationMethod, map[string]string) {}

func (n *fakeNavigator) ConnectSocket(host string, port int, sink backend.SocketSink) (backend.Socket, error) {
	n.sink = sink
	n.socket = &fakeSocket{id: host}
	return n.socket, nil
}

func TestSocketEventsArriveNextFrame(t *testing.T) {
	nav := &fakeNavigator{}
	f := newFixture(t, Options{Backends: backend.Backends{Navigator: nav}})
	vm := f.AVM1()
	act := vm.RootActivation()

	ctor, err := vm.GetVariable("XMLSocket")
	if err != nil {
		t.Fatal(err)
	}
	sock, err := vm.Construct(ctor.AsObject(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var events []string
	handler := func(name string) avm1.Value {
		return avm1.ObjectValue(vm.NewFunction(name, func(_ *avm1.Activation, _ *avm1.Object, args []avm1.Value) (avm1.Value, error) {
			e := name
			if len(args) > 0 {
				e += ":" + args[0].String()
			}
			events = append(events, e)
			return avm1.Undefined, nil
		}))
	}
	sock.Define("onConnect", handler("onConnect"), 0)
	sock.Define("onData", handler("onData"), 0)
	sock.Define("onClose", handler("onClose"), 0)

	ok, err := sock.CallMethod(act, "connect", []avm1.Value{avm1.String("chat.example"), avm1.Number(9000)})
	if err != nil || !ok.AsBool() {
		t.Fatalf("connect = %v, %v", ok, err)
	}
	if _, err := sock.CallMethod(act, "send", []avm1.Value{avm1.String("<hello/>")}); err != nil {
		t.Fatal(err)
	}
	if len(nav.socket.sent) != 1 || nav.socket.sent[0] != "<hello/>" {
		t.Errorf("sent = %q", nav.socket.sent)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		nav.sink.SocketConnected("chat.example", true)
		nav.sink.SocketData("chat.example", []byte("<welcome/>"))
		nav.sink.SocketClosed("chat.example")
	}()
	wg.Wait()
	if len(events) != 0 {
		t.Fatalf("handlers ran before the frame: %q", events)
	}

	report, err := f.RunFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Events != 3 || len(report.Errors) != 0 {
		t.Errorf("report = %+v", report)
	}
	want := []string{"onConnect:true", "onData:<welcome/>", "onClose"}
	if len(events) != len(want) {
		t.Fatalf("events = %q, want %q", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %q, want %q", events, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

func sharedData(t *testing.T, vm *avm1.VM, name string) (*avm1.Object, *avm1.Object) {
	t.Helper()
	act := vm.RootActivation()
	ctor, err := vm.GetVariable("SharedObject")
	if err != nil {
		t.Fatal(err)
	}
	so, err := ctor.AsObject().CallMethod(act, "getLocal", []avm1.Value{avm1.String(name)})
	if err != nil || so.AsObject() == nil {
		t.Fatalf("getLocal = %v, %v", so, err)
	}
	data, err := so.AsObject().Get(act, "data")
	if err != nil {
		t.Fatal(err)
	}
	return so.AsObject(), data.AsObject()
}

func TestSharedObjectsPersistInSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "shared.db")

	first := newFixture(t, Options{Config: cfg})
	vm := first.AVM1()
	act := vm.RootActivation()
	so, data := sharedData(t, vm, "highscores")
	if err := data.Set(act, "best", avm1.Number(4200)); err != nil {
		t.Fatal(err)
	}
	if ok, err := so.CallMethod(act, "flush", nil); err != nil || !ok.AsBool() {
		t.Fatalf("flush = %v, %v", ok, err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := newFixture(t, Options{Config: cfg})
	_, data = sharedData(t, second.AVM1(), "highscores")
	best, err := data.Get(second.AVM1().RootActivation(), "best")
	if err != nil || best.AsNumber() != 4200 {
		t.Fatalf("best = %v, %v; want 4200", best, err)
	}
}
