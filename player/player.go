// Package player drives both virtual machines one frame at a time: it owns
// the shared heap, the execution limit and the queue of asynchronous
// completions, and recovers every script failure at the frame boundary.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/avmcore/avm1"
	"github.com/chazu/avmcore/avm2"
	"github.com/chazu/avmcore/backend"
	"github.com/chazu/avmcore/config"
	"github.com/chazu/avmcore/gc"
	"github.com/chazu/avmcore/intern"
	"github.com/chazu/avmcore/limits"
)

var log = commonlog.GetLogger("avmcore.player")

var (
	// ErrClosed is returned by every entry point after Close.
	ErrClosed = errors.New("player: closed")
	// ErrPanic wraps a Go panic recovered from a script unit.
	ErrPanic = errors.New("player: script unit panicked")
)

// Options configures a Player. Zero values select defaults.
type Options struct {
	Config    *config.Config
	Backends  backend.Backends
	Display   avm1.DisplayHost
	TraceHook func(string)

	// Clock replaces time.Now for the execution limit and AVM1 getTimer.
	Clock func() time.Time
}

// FrameReport summarizes one RunFrame call.
type FrameReport struct {
	Frame     int
	Events    int
	Ran       int
	Skipped   int
	Errors    []error
	Collected bool
}

type unit struct {
	name string
	run  func() error
}

// Player is the host driver. Like the VMs it wraps, it is used from a
// single goroutine; only its Queue accepts calls from other goroutines.
type Player struct {
	cfg   *config.Config
	heap  *gc.Heap
	atoms *intern.Table
	limit *limits.Limit
	queue *Queue
	avm1  *avm1.VM
	avm2  *avm2.VM

	storage io.Closer
	pending []unit
	frame   int
	closed  bool
}

// New creates a player and both VMs. When the configuration names a
// storage path and no Storage backend is given, SharedObjects are kept in
// a sqlite database at that path.
func New(opts Options) (*Player, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Player{
		cfg:   cfg,
		heap:  gc.NewHeap(cfg.GC.Threshold),
		atoms: intern.NewTable(),
		limit: limits.New(cfg.Limits.MaxActions, cfg.MaxExecution()),
		queue: NewQueue(),
	}
	if opts.Clock != nil {
		p.limit.SetClock(opts.Clock)
	}
	// Host calls made before the first frame run under a fresh budget.
	p.limit.Start(context.Background())

	backends := opts.Backends
	if backends.Storage == nil && cfg.Storage.Path != "" {
		s, err := backend.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("player: shared object storage: %w", err)
		}
		backends.Storage = s
		p.storage = s
	}

	p.avm1 = avm1.New(avm1.Options{
		Version:        uint8(min(max(cfg.Player.SWFVersion, 1), 255)),
		Heap:           p.heap,
		Limit:          p.limit,
		Backends:       backends,
		Display:        opts.Display,
		Sockets:        p.queue,
		MaxCallDepth:   cfg.Player.MaxCallDepth,
		Seed:           cfg.Player.Seed,
		LegacyCodepage: cfg.Text.LegacyCodepage,
		Now:            opts.Clock,
		TraceHook:      opts.TraceHook,
	})
	p.avm2 = avm2.New(avm2.Options{
		Heap:         p.heap,
		Atoms:        p.atoms,
		Limit:        p.limit,
		Backends:     backends,
		MaxCallDepth: cfg.Player.MaxCallDepth,
		Seed:         cfg.Player.Seed,
		TraceHook:    opts.TraceHook,
	})
	log.Infof("player ready: swf %d, %.1f fps", cfg.Player.SWFVersion, cfg.Player.FrameRate)
	return p, nil
}

func (p *Player) AVM1() *avm1.VM         { return p.avm1 }
func (p *Player) AVM2() *avm2.VM         { return p.avm2 }
func (p *Player) Heap() *gc.Heap         { return p.heap }
func (p *Player) Atoms() *intern.Table   { return p.atoms }
func (p *Player) Queue() *Queue          { return p.queue }
func (p *Player) Config() *config.Config { return p.cfg }
func (p *Player) Limit() *limits.Limit   { return p.limit }
func (p *Player) Frame() int             { return p.frame }
func (p *Player) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / p.cfg.Player.FrameRate)
}

// QueueActions schedules AVM1 actions against target (_root when nil) for
// the next frame.
func (p *Player) QueueActions(target *avm1.Object, code []byte) {
	p.pending = append(p.pending, unit{name: "avm1 actions", run: func() error {
		out, err := p.avm1.RunActions(code, target)
		if out.State == avm1.StateSuspended {
			log.Debugf("frame %d: actions suspended until their frame loads", p.frame)
		}
		return err
	}})
}

// QueueMethod schedules an AVM2 method, called as a script function, for
// the next frame.
func (p *Player) QueueMethod(m *avm2.Method, args ...avm2.Value) {
	p.pending = append(p.pending, unit{name: "avm2 " + m.Name, run: func() error {
		_, err := p.avm2.CallFunction(m, args)
		return err
	}})
}

// RunFrame runs one frame: queued completions first, then resumed AVM1
// continuations, then the scripts queued since the last frame, and finally
// a collector safepoint. Script failures are logged and reported; they do
// not stop the frame unless the execution limit trips, in which case the
// remaining units are skipped.
func (p *Player) RunFrame(ctx context.Context) (FrameReport, error) {
	if p.closed {
		return FrameReport{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return FrameReport{}, err
	}
	report := FrameReport{Frame: p.frame}
	p.limit.Start(ctx)

	record := func(err error) {
		if err != nil {
			report.Errors = append(report.Errors, err)
		}
	}
	for _, e := range p.queue.drain() {
		report.Events++
		record(p.guard(fmt.Sprintf("%s event %s", e.Kind, e.ID), func() error { return p.deliver(e) }))
	}
	if p.avm1.Pending() > 0 {
		record(p.guard("resumed actions", p.avm1.ResumePending))
	}

	units := p.pending
	p.pending = nil
	for _, u := range units {
		if p.limit.Expired() {
			report.Skipped++
			continue
		}
		report.Ran++
		record(p.guard(u.name, u.run))
	}
	if report.Skipped > 0 {
		log.Warningf("frame %d: execution limit reached, skipped %d script units", p.frame, report.Skipped)
	}

	if p.heap.Safepoint() {
		report.Collected = true
		s := p.heap.Stats()
		log.Debugf("frame %d: gc cycle %d swept %d, %d live, pause %s", p.frame, s.Cycles, s.LastSwept, s.Live, s.LastPause)
	}
	p.frame++
	return report, nil
}

// Run steps frames at the configured frame rate until ctx is done or, when
// frames is positive, that many frames have run.
func (p *Player) Run(ctx context.Context, frames int) error {
	ticker := time.NewTicker(p.FrameInterval())
	defer ticker.Stop()
	for n := 0; frames <= 0 || n < frames; n++ {
		if _, err := p.RunFrame(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ExecuteAction runs AVM1 actions immediately against target with a fresh
// execution budget.
func (p *Player) ExecuteAction(ctx context.Context, target *avm1.Object, actions []byte) (avm1.Outcome, error) {
	if p.closed {
		return avm1.Outcome{}, ErrClosed
	}
	p.limit.Start(ctx)
	var out avm1.Outcome
	err := p.guard("ExecuteAction", func() error {
		var err error
		out, err = p.avm1.RunActions(actions, target)
		return err
	})
	return out, err
}

// ConstructObject runs `new class(args...)` in AVM2 with a fresh execution
// budget.
func (p *Player) ConstructObject(ctx context.Context, class *avm2.Class, args []avm2.Value) (*avm2.Object, error) {
	if p.closed {
		return nil, ErrClosed
	}
	p.limit.Start(ctx)
	var obj *avm2.Object
	err := p.guard("ConstructObject "+class.Name.String(), func() error {
		var err error
		obj, err = p.avm2.Construct(class, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Player) deliver(e Event) error {
	switch e.Kind {
	case EventSocketConnected:
		return p.avm1.DeliverSocketConnected(e.Socket, e.OK)
	case EventSocketData:
		return p.avm1.DeliverSocketData(e.Socket, e.Data)
	case EventSocketClosed:
		return p.avm1.DeliverSocketClosed(e.Socket)
	case EventCallback:
		return e.fn()
	}
	return fmt.Errorf("player: unknown event kind %d", e.Kind)
}

// guard runs one script unit, converting panics to ErrPanic and logging
// whatever the unit failed with.
func (p *Player) guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanic, name, r)
		}
		if err != nil {
			log.Errorf("frame %d: %s: %s", p.frame, name, err)
		}
	}()
	return fn()
}

// Close shuts down both VMs, drops queued events and closes storage the
// player opened.
func (p *Player) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.queue.Close()
	p.avm1.Close()
	p.avm2.Close()
	if p.storage != nil {
		return p.storage.Close()
	}
	return nil
}
