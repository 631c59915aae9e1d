package remap

import (
	"slices"
	"sort"

	"github.com/Alia5/remapd/keycode"
)

// Rule maps a trigger combo, optionally scoped to a window class, to an
// ordered output sequence. An empty Condition means the rule is always active.
// Output keys are held while the rule is engaged; Actions run after them.
type Rule struct {
	Trigger   Combo
	Condition string
	Output    []keycode.Code
	Actions   []Action
}

// Codes returns every key the rule writes.
func (r *Rule) Codes() []keycode.Code {
	out := slices.Clone(r.Output)
	for _, a := range r.Actions {
		out = append(out, a.Code)
	}
	return out
}

// Scoped reports whether the rule only applies to one window class.
func (r *Rule) Scoped() bool { return r.Condition != "" }

// entry holds every rule sharing one trigger.
type entry struct {
	combo  Combo
	always *Rule
	scoped map[string]*Rule
}

// Table is the read-only set of rules of one physical device, indexed by
// trigger. Build it with NewTable; a built table is safe for concurrent reads.
type Table struct {
	entries map[string]*entry
	ordered []*entry
	byKey   map[keycode.Code][]*entry
	outputs keycode.Set
	rules   int
}

// NewTable validates rules and builds the lookup structure. Duplicate
// triggers under the same condition, empty triggers and repeated output keys
// are reported as *ConfigError; nothing is partially applied.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{
		entries: make(map[string]*entry),
		byKey:   make(map[keycode.Code][]*entry),
		outputs: keycode.NewSet(),
	}
	for i := range rules {
		r := rules[i]
		if r.Trigger.IsZero() {
			return nil, &ConfigError{Condition: r.Condition, Reason: "empty trigger"}
		}
		for i := range r.Actions {
			if err := r.Actions[i].validate(); err != nil {
				return nil, &ConfigError{Trigger: r.Trigger.String(), Condition: r.Condition, Reason: err.Error()}
			}
		}
		if dup := firstDuplicate(r.Codes()); dup != nil {
			return nil, &ConfigError{
				Trigger:   r.Trigger.String(),
				Condition: r.Condition,
				Reason:    "output key " + dup.String() + " listed twice",
			}
		}
		r.Output = slices.Clone(r.Output)
		r.Actions = slices.Clone(r.Actions)
		for i := range r.Actions {
			r.Actions[i].Values = slices.Clone(r.Actions[i].Values)
		}

		e, ok := t.entries[r.Trigger.id]
		if !ok {
			e = &entry{combo: r.Trigger, scoped: make(map[string]*Rule)}
			t.entries[r.Trigger.id] = e
			t.ordered = append(t.ordered, e)
			for _, k := range r.Trigger.keys {
				t.byKey[k] = append(t.byKey[k], e)
			}
		}
		if r.Scoped() {
			if _, exists := e.scoped[r.Condition]; exists {
				return nil, &ConfigError{Trigger: r.Trigger.String(), Condition: r.Condition, Reason: "duplicate trigger"}
			}
			e.scoped[r.Condition] = &r
		} else {
			if e.always != nil {
				return nil, &ConfigError{Trigger: r.Trigger.String(), Reason: "duplicate trigger"}
			}
			e.always = &r
		}
		t.outputs.Add(r.Codes()...)
		t.rules++
	}

	// Longest first; ties broken by canonical key order so matching is deterministic.
	sort.SliceStable(t.ordered, func(i, j int) bool {
		a, b := t.ordered[i].combo, t.ordered[j].combo
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return slices.Compare(a.keys, b.keys) < 0
	})
	for k, es := range t.byKey {
		sort.SliceStable(es, func(i, j int) bool { return es[i].combo.Len() > es[j].combo.Len() })
		t.byKey[k] = es
	}
	return t, nil
}

func firstDuplicate(codes []keycode.Code) *keycode.Code {
	seen := keycode.NewSet()
	for i := range codes {
		if seen.Has(codes[i]) {
			return &codes[i]
		}
		seen.Add(codes[i])
	}
	return nil
}

// Len returns the number of rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.rules
}

// Rules returns every rule, longest trigger first.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	var out []Rule
	for _, e := range t.ordered {
		if e.always != nil {
			out = append(out, *e.always)
		}
		conds := make([]string, 0, len(e.scoped))
		for c := range e.scoped {
			conds = append(conds, c)
		}
		sort.Strings(conds)
		for _, c := range conds {
			out = append(out, *e.scoped[c])
		}
	}
	return out
}

// IsTriggerKey reports whether k appears in at least one trigger.
func (t *Table) IsTriggerKey(k keycode.Code) bool {
	if t == nil {
		return false
	}
	return len(t.byKey[k]) > 0
}

// OutputCodes returns every key any rule may emit.
func (t *Table) OutputCodes() []keycode.Code {
	if t == nil {
		return nil
	}
	return t.outputs.Sorted()
}

// Lookup returns the rule for exactly this trigger. A rule scoped to class
// wins over the unconditioned one; pass "" to get the unconditioned rule.
func (t *Table) Lookup(trigger Combo, class string) (*Rule, bool) {
	if t == nil {
		return nil, false
	}
	e, ok := t.entries[trigger.id]
	if !ok {
		return nil, false
	}
	if r := e.pick(class, class != ""); r != nil {
		return r, true
	}
	return nil, false
}

func (e *entry) pick(class string, classOK bool) *Rule {
	if classOK {
		if r, ok := e.scoped[class]; ok {
			return r
		}
	}
	return e.always
}

// ClassFunc returns the current window class. It is called at most once per
// match and only when a candidate trigger has window-scoped rules.
type ClassFunc func() (class string, ok bool)

// Match returns the rule with the longest trigger fully contained in held.
// For equal triggers a rule scoped to the current window class takes
// precedence over the unconditioned rule.
func (t *Table) Match(held keycode.Set, class ClassFunc) *Rule {
	if t == nil || held.Len() == 0 {
		return nil
	}
	candidates := t.candidates(held)
	var (
		queried bool
		cls     string
		clsOK   bool
	)
	for _, e := range candidates {
		if !e.combo.HeldIn(held) {
			continue
		}
		if len(e.scoped) > 0 && !queried && class != nil {
			cls, clsOK = class()
			queried = true
		}
		if r := e.pick(cls, clsOK); r != nil {
			return r
		}
	}
	return nil
}

// candidates returns the entries sharing at least one key with held, longest first.
func (t *Table) candidates(held keycode.Set) []*entry {
	if held.Len() == 1 {
		for k := range held {
			return t.byKey[k]
		}
	}
	seen := make(map[*entry]struct{})
	var out []*entry
	for k := range held {
		for _, e := range t.byKey[k] {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].combo, out[j].combo
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return slices.Compare(a.keys, b.keys) < 0
	})
	return out
}

// CanComplete reports whether some trigger contains every key of pending and
// is not yet fully held, i.e. further presses could still complete it.
func (t *Table) CanComplete(pending []keycode.Code, held keycode.Set) bool {
	if t == nil || len(pending) == 0 {
		return false
	}
	for _, e := range t.byKey[pending[0]] {
		if e.combo.Len() < len(pending) {
			continue
		}
		all := true
		for _, p := range pending[1:] {
			if !e.combo.Contains(p) {
				all = false
				break
			}
		}
		if all && !e.combo.HeldIn(held) {
			return true
		}
	}
	return false
}
