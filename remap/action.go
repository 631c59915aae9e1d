package remap

import (
	"fmt"
	"slices"
	"time"

	"github.com/Alia5/remapd/keycode"
)

// DefaultRepeatRate is the interval between two runs of a repeating action.
const DefaultRepeatRate = 100 * time.Millisecond

// Action is an output key with its own timing instead of being held exactly
// as long as the trigger.
//
// Values are written in order when the rule engages. A key the values leave
// pressed is released when the rule disengages. A repeating action writes its
// values again every Rate: Count times in total, or until the rule disengages
// when Count is 0. A delayed action only runs on every (Count+1)th engagement
// of its rule.
type Action struct {
	Code   keycode.Code
	Values []Value
	Repeat bool
	Rate   time.Duration
	Delay  bool
	Count  int
}

func (a *Action) values() []Value {
	if len(a.Values) > 0 {
		return a.Values
	}
	if a.Repeat {
		return []Value{Pressed, Released}
	}
	return []Value{Pressed}
}

func (a *Action) rate() time.Duration {
	if a.Rate > 0 {
		return a.Rate
	}
	return DefaultRepeatRate
}

func (a *Action) validate() error {
	switch {
	case a.Count < 0:
		return fmt.Errorf("count of %s is negative", a.Code)
	case a.Rate < 0:
		return fmt.Errorf("rate of %s is negative", a.Code)
	case a.Repeat && a.Delay:
		return fmt.Errorf("%s cannot both repeat and delay", a.Code)
	}
	for _, v := range a.Values {
		if v != Released && v != Pressed && v != Repeated {
			return fmt.Errorf("value %d of %s is not 0, 1 or 2", v, a.Code)
		}
	}
	return nil
}

// repeater is a running repeating action.
type repeater struct {
	rule   *Rule
	action *Action
	left   int // runs still to write, -1 until the rule disengages
	next   time.Time
	down   bool
}

// runActions starts the actions of the rule engaged as a.
func (e *Engine) runActions(a *engagement) {
	r := a.rule
	for i := range r.Actions {
		act := &r.Actions[i]
		if act.Delay && !e.delayDue(act) {
			continue
		}
		if act.Repeat {
			e.startRepeat(r, act)
			continue
		}
		if e.writeValues(act) && e.keys[act.Code] != statusPassthrough {
			a.held = append(a.held, act.Code)
		}
	}
}

// delayDue advances the engagement counter of a delayed action and reports
// whether this engagement runs it.
func (e *Engine) delayDue(act *Action) bool {
	n, seen := e.delays[act]
	if !seen || n == 0 {
		e.delays[act] = act.Count
		return true
	}
	e.delays[act] = n - 1
	return false
}

// writeValues writes the values of act and reports whether they leave the
// key pressed.
func (e *Engine) writeValues(act *Action) bool {
	vals := act.values()
	for _, v := range vals {
		e.emitKey(act.Code, v)
	}
	return vals[len(vals)-1] != Released
}

func (e *Engine) startRepeat(r *Rule, act *Action) {
	e.stopRepeats(func(rp *repeater) bool { return rp.action == act })
	rp := &repeater{rule: r, action: act, left: -1}
	if act.Count > 0 {
		rp.left = act.Count
	}
	e.runRepeat(rp, e.clock())
	if rp.left != 0 {
		e.repeats = append(e.repeats, rp)
	} else {
		e.finishRepeat(rp)
	}
}

func (e *Engine) runRepeat(rp *repeater, now time.Time) {
	rp.down = e.writeValues(rp.action)
	if rp.left > 0 {
		rp.left--
	}
	rp.next = now.Add(rp.action.rate())
}

func (e *Engine) finishRepeat(rp *repeater) {
	if rp.down && e.keys[rp.action.Code] != statusPassthrough {
		e.emitKey(rp.action.Code, Released)
	}
	rp.down = false
}

// stopRepeats ends every repeater matching stop, releasing its key.
func (e *Engine) stopRepeats(stop func(*repeater) bool) {
	e.repeats = slices.DeleteFunc(e.repeats, func(rp *repeater) bool {
		if !stop(rp) {
			return false
		}
		e.finishRepeat(rp)
		return true
	})
}

// NextDeadline returns when Tick has work to do next.
func (e *Engine) NextDeadline() (time.Time, bool) {
	var (
		next time.Time
		ok   bool
	)
	for _, rp := range e.repeats {
		if !ok || rp.next.Before(next) {
			next, ok = rp.next, true
		}
	}
	return next, ok
}

// Tick runs the repeating actions due at now and returns the events to write.
// A late tick runs each due action once; it does not catch up.
func (e *Engine) Tick(now time.Time) []Event {
	e.begin(now)
	e.repeats = slices.DeleteFunc(e.repeats, func(rp *repeater) bool {
		if rp.next.After(now) {
			return false
		}
		e.runRepeat(rp, now)
		if rp.left == 0 {
			e.finishRepeat(rp)
			return true
		}
		return false
	})
	return e.finish()
}
