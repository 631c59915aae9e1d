// Package remap implements the remap engine: per-device key state tracking,
// combo matching against a remap table and the ordering of synthesized output.
package remap

import (
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"

	"github.com/Alia5/remapd/keycode"
)

// Value is the value field of an EV_KEY event.
type Value int32

const (
	Released Value = 0
	Pressed  Value = 1
	Repeated Value = 2
)

func (v Value) String() string {
	switch v {
	case Released:
		return "released"
	case Pressed:
		return "pressed"
	case Repeated:
		return "repeated"
	default:
		return fmt.Sprintf("value(%d)", int32(v))
	}
}

// Event is one input event as read from a physical device or written to a
// virtual one. Events are values and never modified after creation.
type Event struct {
	Device string
	Type   evdev.EvType
	Code   keycode.Code
	Value  Value
	Time   time.Time
}

// KeyEvent builds an EV_KEY event.
func KeyEvent(code keycode.Code, v Value) Event {
	return Event{Type: evdev.EV_KEY, Code: code, Value: v}
}

// SyncEvent builds a SYN_REPORT marker.
func SyncEvent() Event {
	return Event{Type: evdev.EV_SYN, Code: keycode.Code(evdev.SYN_REPORT)}
}

// IsKey reports whether e is an EV_KEY event.
func (e Event) IsKey() bool { return e.Type == evdev.EV_KEY }

// IsSync reports whether e is a SYN_REPORT marker.
func (e Event) IsSync() bool {
	return e.Type == evdev.EV_SYN && e.Code == keycode.Code(evdev.SYN_REPORT)
}

func (e Event) String() string {
	switch e.Type {
	case evdev.EV_KEY:
		return fmt.Sprintf("%s %s", e.Code, e.Value)
	case evdev.EV_SYN:
		if e.IsSync() {
			return "SYN_REPORT"
		}
		return fmt.Sprintf("EV_SYN code=%d value=%d", uint16(e.Code), int32(e.Value))
	default:
		return fmt.Sprintf("type=%d code=%d value=%d", uint16(e.Type), uint16(e.Code), int32(e.Value))
	}
}
