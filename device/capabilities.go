package device

import (
	"maps"
	"slices"

	"github.com/holoplot/go-evdev"

	"github.com/Alia5/remapd/keycode"
)

// Capabilities is what a device can report: event codes per event type and
// the ranges of its absolute axes. The zero value is empty and ready to use.
type Capabilities struct {
	codes map[evdev.EvType]map[evdev.EvCode]struct{}
	abs   map[evdev.EvCode]evdev.AbsInfo
}

// KeyCapabilities returns capabilities holding only the given keys.
func KeyCapabilities(keys ...keycode.Code) *Capabilities {
	c := &Capabilities{}
	c.AddKeys(keys...)
	return c
}

// Add records codes of event type t. Adding a type with no codes still marks
// the type as supported.
func (c *Capabilities) Add(t evdev.EvType, codes ...evdev.EvCode) {
	if c.codes == nil {
		c.codes = make(map[evdev.EvType]map[evdev.EvCode]struct{})
	}
	set, ok := c.codes[t]
	if !ok {
		set = make(map[evdev.EvCode]struct{}, len(codes))
		c.codes[t] = set
	}
	for _, code := range codes {
		set[code] = struct{}{}
	}
}

func (c *Capabilities) AddKeys(keys ...keycode.Code) {
	codes := make([]evdev.EvCode, len(keys))
	for i, k := range keys {
		codes[i] = k.EvCode()
	}
	c.Add(evdev.EV_KEY, codes...)
}

// SetAbs records an absolute axis and its range.
func (c *Capabilities) SetAbs(code evdev.EvCode, info evdev.AbsInfo) {
	c.Add(evdev.EV_ABS, code)
	if c.abs == nil {
		c.abs = make(map[evdev.EvCode]evdev.AbsInfo)
	}
	c.abs[code] = info
}

// Merge adds everything o supports. Axis ranges already present win.
func (c *Capabilities) Merge(o *Capabilities) {
	if o == nil {
		return
	}
	for t, set := range o.codes {
		c.Add(t, slices.Collect(maps.Keys(set))...)
	}
	for code, info := range o.abs {
		if _, ok := c.abs[code]; !ok {
			c.SetAbs(code, info)
		}
	}
}

// Has reports whether code of type t is supported.
func (c *Capabilities) Has(t evdev.EvType, code evdev.EvCode) bool {
	if c == nil {
		return false
	}
	_, ok := c.codes[t][code]
	return ok
}

// Types returns the supported event types, ascending.
func (c *Capabilities) Types() []evdev.EvType {
	if c == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c.codes))
}

// Codes returns the supported codes of type t, ascending.
func (c *Capabilities) Codes(t evdev.EvType) []evdev.EvCode {
	if c == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c.codes[t]))
}

// Keys returns the EV_KEY codes, ascending.
func (c *Capabilities) Keys() []keycode.Code {
	codes := c.Codes(evdev.EV_KEY)
	out := make([]keycode.Code, len(codes))
	for i, code := range codes {
		out[i] = keycode.Of(code)
	}
	return out
}

// Abs returns the range of an absolute axis.
func (c *Capabilities) Abs(code evdev.EvCode) (evdev.AbsInfo, bool) {
	if c == nil {
		return evdev.AbsInfo{}, false
	}
	info, ok := c.abs[code]
	return info, ok
}

// Map returns the codes per type in the shape evdev.CreateDevice takes.
func (c *Capabilities) Map() map[evdev.EvType][]evdev.EvCode {
	out := make(map[evdev.EvType][]evdev.EvCode, len(c.Types()))
	for _, t := range c.Types() {
		out[t] = c.Codes(t)
	}
	return out
}
