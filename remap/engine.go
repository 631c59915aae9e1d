package remap

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/holoplot/go-evdev"

	"github.com/Alia5/remapd/keycode"
)

// DefaultWindowTimeout bounds a single window-class query.
const DefaultWindowTimeout = 50 * time.Millisecond

// WindowContext reports the class of the focused window. Implementations
// must honour ctx cancellation.
type WindowContext interface {
	Class(ctx context.Context) (string, error)
}

// EngineOptions configures an Engine. A nil *EngineOptions uses defaults:
// no window context (scoped rules never match) and the default logger.
type EngineOptions struct {
	Window        WindowContext
	WindowTimeout time.Duration
	Logger        *slog.Logger
	// Clock schedules repeating actions. Defaults to time.Now.
	Clock func() time.Time
}

type keyStatus uint8

const (
	// statusPassthrough: the press was forwarded to the virtual device.
	statusPassthrough keyStatus = iota + 1
	// statusPending: withheld while it may still complete a trigger.
	statusPending
	// statusConsumed: absorbed by an engagement; its press never reached the output.
	statusConsumed
)

// engagement is the active mapping: a rule whose output has been pressed,
// plus the output keys it holds down, in press order.
type engagement struct {
	rule *Rule
	held []keycode.Code
}

func (a *engagement) holds(k keycode.Code) bool {
	return a != nil && slices.Contains(a.held, k)
}

// Engine is the per-device remap state machine. It is not safe for
// concurrent use: one pipeline owns one engine. Only SetTable may be called
// from another goroutine.
type Engine struct {
	device  string
	table   atomic.Pointer[Table]
	window  WindowContext
	timeout time.Duration
	logger  *slog.Logger

	keys   map[keycode.Code]keyStatus
	order  []keycode.Code
	active *engagement

	clock   func() time.Time
	repeats []*repeater
	delays  map[*Action]int

	out      []Event
	dirty    bool
	now      time.Time
	queried  bool
	class    string
	classOK  bool
	queryCnt int
}

// NewEngine returns an engine for one physical device.
func NewEngine(device string, table *Table, o *EngineOptions) *Engine {
	e := &Engine{
		device:  device,
		timeout: DefaultWindowTimeout,
		logger:  slog.Default(),
		keys:    make(map[keycode.Code]keyStatus),
		clock:   time.Now,
		delays:  make(map[*Action]int),
	}
	if o != nil {
		e.window = o.Window
		if o.WindowTimeout > 0 {
			e.timeout = o.WindowTimeout
		}
		if o.Logger != nil {
			e.logger = o.Logger
		}
		if o.Clock != nil {
			e.clock = o.Clock
		}
	}
	e.table.Store(table)
	return e
}

// SetTable atomically replaces the remap table. An engaged mapping keeps its
// outputs until its trigger is broken.
func (e *Engine) SetTable(t *Table) { e.table.Store(t) }

// Table returns the current remap table.
func (e *Engine) Table() *Table { return e.table.Load() }

// WindowQueries returns how many window-class queries the engine has made.
func (e *Engine) WindowQueries() int { return e.queryCnt }

// Engaged returns the currently engaged rule, or nil.
func (e *Engine) Engaged() *Rule {
	if e.active == nil {
		return nil
	}
	return e.active.rule
}

// Held returns the physical keys currently held, in press order.
func (e *Engine) Held() []keycode.Code { return slices.Clone(e.order) }

// Process consumes one input event and returns the events to write to the
// virtual device, in order. Synthesized key events are each followed by a
// SYN_REPORT; passthrough events are forwarded verbatim and terminated by the
// input's own SYN_REPORT.
func (e *Engine) Process(ev Event) []Event {
	e.begin(ev.Time)

	switch ev.Type {
	case evdev.EV_SYN:
		switch {
		case ev.IsSync():
			if e.dirty {
				e.write(ev)
				e.dirty = false
			}
		case ev.Code == keycode.Code(evdev.SYN_DROPPED):
			e.logger.Debug("input buffer overrun reported by kernel", "device", e.device)
		default:
			e.forward(ev)
		}
	case evdev.EV_KEY:
		switch ev.Value {
		case Pressed:
			e.press(ev)
		case Released:
			e.release(ev)
		case Repeated:
			e.repeat(ev)
		default:
			e.forward(ev)
		}
	default:
		e.forward(ev)
	}
	return e.finish()
}

// Release disengages the active mapping and releases every key the engine
// holds down on the virtual device, leaving no stuck keys. It is used on
// device disconnect and shutdown; a second call returns nothing.
func (e *Engine) Release() []Event {
	e.begin(time.Now())
	if e.active != nil {
		e.disengage()
	}
	e.stopRepeats(func(*repeater) bool { return true })
	for i := len(e.order) - 1; i >= 0; i-- {
		k := e.order[i]
		if e.keys[k] == statusPassthrough {
			e.emitKey(k, Released)
		}
	}
	clear(e.keys)
	e.order = e.order[:0]
	if e.dirty {
		e.write(e.sync())
		e.dirty = false
	}
	return e.finish()
}

func (e *Engine) begin(ts time.Time) {
	e.out = nil
	e.now = ts
	e.queried = false
}

func (e *Engine) finish() []Event {
	out := e.out
	e.out = nil
	return out
}

func (e *Engine) write(ev Event) {
	ev.Device = e.device
	e.out = append(e.out, ev)
}

func (e *Engine) forward(ev Event) {
	e.write(ev)
	e.dirty = true
}

func (e *Engine) sync() Event {
	ev := SyncEvent()
	ev.Time = e.now
	return ev
}

// emitKey writes a synthesized key event followed by its SYN_REPORT.
func (e *Engine) emitKey(k keycode.Code, v Value) {
	ev := KeyEvent(k, v)
	ev.Time = e.now
	e.write(ev)
	e.write(e.sync())
	e.dirty = false
}

func (e *Engine) press(ev Event) {
	k := ev.Code
	if _, held := e.keys[k]; held {
		return
	}
	e.order = append(e.order, k)
	t := e.table.Load()

	if !t.IsTriggerKey(k) {
		e.flushPending()
		e.restoreConsumed()
		e.keys[k] = statusPassthrough
		if !e.active.holds(k) {
			e.forward(ev)
		}
		return
	}

	e.keys[k] = statusPending
	e.rematch()
	e.resolvePending()
}

func (e *Engine) release(ev Event) {
	k := ev.Code
	st, held := e.keys[k]
	if !held {
		if !e.table.Load().IsTriggerKey(k) && !e.active.holds(k) {
			e.forward(ev)
		}
		return
	}

	if st == statusPending {
		e.flushPending()
		st = statusPassthrough
	}
	delete(e.keys, k)
	e.order = slices.DeleteFunc(e.order, func(x keycode.Code) bool { return x == k })

	switch st {
	case statusPassthrough:
		if !e.active.holds(k) {
			e.forward(ev)
		}
	case statusConsumed:
		if e.active != nil && e.active.rule.Trigger.Contains(k) {
			e.disengage()
			e.rematch()
		}
	}
}

func (e *Engine) repeat(ev Event) {
	k := ev.Code
	st, held := e.keys[k]
	switch {
	case held && st == statusPassthrough:
		if !e.active.holds(k) {
			e.forward(ev)
		}
	case !held && !e.table.Load().IsTriggerKey(k):
		e.forward(ev)
	}
	// Repeats of withheld or mapped keys are dropped; N:N repeat translation is not implemented.
}

func (e *Engine) heldSet() keycode.Set {
	return keycode.NewSet(e.order...)
}

// rematch engages the best rule for the current held set if it differs from
// the engaged one and is strictly longer (or nothing is engaged).
func (e *Engine) rematch() {
	t := e.table.Load()
	best := t.Match(e.heldSet(), e.windowClass)
	if best == nil {
		return
	}
	if e.active != nil {
		if e.active.rule == best || best.Trigger.Len() <= e.active.rule.Trigger.Len() {
			return
		}
		e.disengage()
	}
	e.engage(best)
}

func (e *Engine) engage(r *Rule) {
	a := &engagement{rule: r}
	for _, k := range e.order {
		if !r.Trigger.Contains(k) {
			continue
		}
		if e.keys[k] == statusPassthrough {
			if slices.Contains(r.Output, k) {
				a.held = append(a.held, k)
			} else {
				e.emitKey(k, Released)
			}
		}
		e.keys[k] = statusConsumed
	}
	for _, o := range r.Output {
		if a.holds(o) || e.keys[o] == statusPassthrough {
			continue
		}
		e.emitKey(o, Pressed)
		a.held = append(a.held, o)
	}
	e.runActions(a)
	e.active = a
	e.logger.Debug("mapping engaged", "device", e.device, "trigger", r.Trigger.String(), "window", r.Condition)
}

// disengage releases the engaged outputs in reverse press order. A key also
// held as passthrough stays down; its own release will lift it.
func (e *Engine) disengage() {
	a := e.active
	e.active = nil
	e.stopRepeats(func(rp *repeater) bool { return rp.rule == a.rule && rp.left < 0 })
	for i := len(a.held) - 1; i >= 0; i-- {
		o := a.held[i]
		if e.keys[o] == statusPassthrough {
			continue
		}
		e.emitKey(o, Released)
	}
	e.logger.Debug("mapping released", "device", e.device, "trigger", a.rule.Trigger.String())
}

func (e *Engine) pending() []keycode.Code {
	var out []keycode.Code
	for _, k := range e.order {
		if e.keys[k] == statusPending {
			out = append(out, k)
		}
	}
	return out
}

// resolvePending flushes withheld keys once no trigger can complete anymore.
func (e *Engine) resolvePending() {
	p := e.pending()
	if len(p) == 0 {
		return
	}
	if e.table.Load().CanComplete(p, e.heldSet()) {
		return
	}
	e.flushPending()
}

// flushPending forwards every withheld key as a press, in press order.
// Keys absorbed by an earlier engagement are pressed again first, so a
// still held modifier applies to the flushed keys.
func (e *Engine) flushPending() {
	restored := false
	for _, k := range e.order {
		if e.keys[k] != statusPending {
			continue
		}
		if !restored {
			e.restoreConsumed()
			restored = true
		}
		e.keys[k] = statusPassthrough
		if !e.active.holds(k) {
			e.emitKey(k, Pressed)
		}
	}
}

// restoreConsumed re-presses keys that an earlier engagement absorbed and
// that are still physically held, so they modify the next passthrough key.
func (e *Engine) restoreConsumed() {
	for _, k := range e.order {
		if e.keys[k] != statusConsumed {
			continue
		}
		if e.active != nil && e.active.rule.Trigger.Contains(k) {
			continue
		}
		e.keys[k] = statusPassthrough
		if !e.active.holds(k) {
			e.emitKey(k, Pressed)
		}
	}
}

// windowClass queries the window context at most once per processed event.
// Errors and timeouts count as "no class": scoped rules do not match.
func (e *Engine) windowClass() (string, bool) {
	if e.queried {
		return e.class, e.classOK
	}
	e.queried = true
	e.class, e.classOK = "", false
	if e.window == nil {
		return "", false
	}
	e.queryCnt++
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	class, err := e.window.Class(ctx)
	if err != nil {
		e.logger.Debug("window class unavailable", "device", e.device, "error", err)
		return "", false
	}
	e.class, e.classOK = class, class != ""
	return e.class, e.classOK
}
