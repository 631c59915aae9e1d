package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/internal/dispatch"
	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

// Trigger is a parsed remappings key.
type Trigger struct {
	Combo     remap.Combo
	Condition string
}

// ParseTrigger parses a remappings key: a single key name, or a tuple
// "(A, B, ...)". At most one tuple element may fail to resolve as a key; that
// element is the window class the rule is scoped to.
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	var parts []string
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		for _, p := range strings.Split(s[1:len(s)-1], ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
	} else {
		parts = []string{s}
	}

	var (
		codes []keycode.Code
		class string
	)
	for _, p := range parts {
		c, err := keycode.Parse(p)
		if err == nil {
			codes = append(codes, c)
			continue
		}
		if class != "" {
			return Trigger{}, fmt.Errorf("unknown keys %q and %q (only one window class allowed)", class, p)
		}
		class = p
	}
	if len(codes) == 0 {
		if class != "" {
			return Trigger{}, fmt.Errorf("unknown key %q", class)
		}
		return Trigger{}, fmt.Errorf("empty trigger")
	}
	combo, err := remap.NewCombo(codes...)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Combo: combo, Condition: class}, nil
}

// Identity returns the device selector of the group.
func (d Device) Identity() device.Identity {
	return device.Identity{Name: d.InputName, Phys: d.InputPhys, Path: d.InputFn}
}

// Output returns the output device name, applying the default.
func (d Device) Output() string {
	if d.OutputName == "" {
		return DefaultOutputName
	}
	return d.OutputName
}

// Rules converts the remappings into rules, ordered by trigger text.
func (d Device) Rules() ([]remap.Rule, error) {
	keys := make([]string, 0, len(d.Remappings))
	for k := range d.Remappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		rules []remap.Rule
		errs  []error
	)
	for _, k := range keys {
		trig, err := ParseTrigger(k)
		if err != nil {
			errs = append(errs, &remap.ConfigError{Trigger: k, Reason: err.Error()})
			continue
		}
		rule := remap.Rule{Trigger: trig.Combo, Condition: trig.Condition}
		var bad error
		for _, o := range d.Remappings[k] {
			c, err := keycode.Parse(o.Code)
			if err != nil {
				bad = fmt.Errorf("output: %w", err)
				break
			}
			if o.Plain() {
				rule.Output = append(rule.Output, c)
				continue
			}
			act, err := o.action(c)
			if err != nil {
				bad = err
				break
			}
			rule.Actions = append(rule.Actions, act)
		}
		if bad != nil {
			errs = append(errs, &remap.ConfigError{Trigger: k, Condition: trig.Condition, Reason: bad.Error()})
			continue
		}
		rules = append(rules, rule)
	}
	return rules, errors.Join(errs...)
}

// action converts an output with options into a remap action.
func (o Output) action(c keycode.Code) (remap.Action, error) {
	switch {
	case o.Rate != 0 && !o.Repeat:
		return remap.Action{}, fmt.Errorf("output %s: rate needs repeat", o.Code)
	case o.Count != 0 && !o.Repeat && !o.Delay:
		return remap.Action{}, fmt.Errorf("output %s: count needs repeat or delay", o.Code)
	}
	act := remap.Action{
		Code:   c,
		Repeat: o.Repeat,
		Rate:   time.Duration(o.Rate * float64(time.Second)),
		Delay:  o.Delay,
		Count:  o.Count,
	}
	for _, v := range o.Value {
		act.Values = append(act.Values, remap.Value(v))
	}
	return act, nil
}

// Groups builds the dispatch groups of the document. Invalid groups are left
// out and reported as joined *remap.ConfigError values; the valid ones are
// still returned.
func (doc *Document) Groups() ([]dispatch.Group, error) {
	var (
		groups []dispatch.Group
		errs   []error
	)
	for i, d := range doc.Devices {
		name := fmt.Sprintf("devices[%d]", i)
		if d.Identity().IsZero() {
			errs = append(errs, &remap.ConfigError{Group: name, Reason: `one of "input_name", "input_phys" or "input_fn" is required`})
			continue
		}
		if _, err := device.Compile(d.Identity()); err != nil {
			errs = append(errs, &remap.ConfigError{Group: name, Reason: err.Error()})
			continue
		}

		rules, err := d.Rules()
		if err != nil {
			errs = append(errs, withGroup(err, name))
			continue
		}
		table, err := remap.NewTable(rules)
		if err != nil {
			errs = append(errs, withGroup(err, name))
			continue
		}
		groups = append(groups, dispatch.Group{
			Index:  i,
			Input:  d.Identity(),
			Output: d.Output(),
			Table:  table,
		})
	}
	return groups, errors.Join(errs...)
}

// withGroup stamps the group name on every ConfigError inside err.
func withGroup(err error, group string) error {
	var ce *remap.ConfigError
	if errors.As(err, &ce) && ce.Group == "" {
		ce.Group = group
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if errors.As(e, &ce) && ce.Group == "" {
				ce.Group = group
			}
		}
	}
	return err
}
