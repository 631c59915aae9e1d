// Package keycode provides the key identifiers used by remap tables.
//
// A Code is the Linux input event code of an EV_KEY event (KEY_* and BTN_*).
// Names are resolved through the go-evdev code tables so configuration files
// can use the same symbolic names the kernel headers define.
package keycode

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"
)

// Code identifies a key or button.
type Code uint16

// Of converts an evdev code to a Code.
func Of(c evdev.EvCode) Code { return Code(c) }

// EvCode returns the code as an evdev.EvCode.
func (c Code) EvCode() evdev.EvCode { return evdev.EvCode(c) }

// preferred holds the name printed for codes with several names. The evdev
// table returns the range marker (BTN_MOUSE, BTN_GAMEPAD) for them.
var preferred = map[evdev.EvCode]string{
	evdev.BTN_0:              "BTN_0",
	evdev.BTN_LEFT:           "BTN_LEFT",
	evdev.BTN_TRIGGER:        "BTN_TRIGGER",
	evdev.BTN_SOUTH:          "BTN_SOUTH",
	evdev.BTN_TOOL_PEN:       "BTN_TOOL_PEN",
	evdev.BTN_GEAR_DOWN:      "BTN_GEAR_DOWN",
	evdev.BTN_TRIGGER_HAPPY1: "BTN_TRIGGER_HAPPY1",
}

// String returns the symbolic name (e.g. "KEY_A"), or the numeric value for
// codes without a name.
func (c Code) String() string {
	if name, ok := preferred[evdev.EvCode(c)]; ok {
		return name
	}
	if name, ok := evdev.KEYToString[evdev.EvCode(c)]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

// Parse resolves a symbolic key name (KEY_*, BTN_*) or a decimal code.
// Lookup is case-insensitive.
func Parse(name string) (Code, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty key name")
	}
	if c, ok := evdev.KEYFromString[name]; ok {
		return Code(c), nil
	}
	if c, ok := evdev.KEYFromString[strings.ToUpper(name)]; ok {
		return Code(c), nil
	}
	if n, err := strconv.ParseUint(name, 10, 16); err == nil {
		return Code(n), nil
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// MustParse is like Parse but panics on unknown names. Intended for tests and
// static tables.
func MustParse(name string) Code {
	c, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Sort orders codes ascending, which is the canonical order for combos.
func Sort(codes []Code) {
	slices.Sort(codes)
}

// Names returns the symbolic names of codes, in order.
func Names(codes []Code) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return out
}
