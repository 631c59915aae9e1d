// Package device reads events from physical input devices through evdev.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Alia5/remapd/remap"
)

// ErrUnavailable is returned when a device cannot be found, opened or
// grabbed, or disappears while being read.
var ErrUnavailable = errors.New("device unavailable")

// Identity selects a physical device. Every non-empty field must match.
// Name and Phys accept glob patterns; Path is an exact device node path.
type Identity struct {
	Name string `json:"name,omitempty"`
	Phys string `json:"phys,omitempty"`
	Path string `json:"path,omitempty"`
}

func (id Identity) IsZero() bool {
	return id.Name == "" && id.Phys == "" && id.Path == ""
}

func (id Identity) String() string {
	var parts []string
	if id.Path != "" {
		parts = append(parts, "path="+id.Path)
	}
	if id.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%q", id.Name))
	}
	if id.Phys != "" {
		parts = append(parts, fmt.Sprintf("phys=%q", id.Phys))
	}
	return strings.Join(parts, " ")
}

// Info describes one input device node.
type Info struct {
	Path string
	Name string
	Phys string
}

// Reader is a grabbed source of input events.
type Reader interface {
	// ReadEvent blocks until the next event. Errors wrap ErrUnavailable
	// once the device is gone or closed.
	ReadEvent() (remap.Event, error)
	// Grab takes exclusive access; no other consumer sees the device's events.
	Grab() error
	// Release drops exclusive access.
	Release() error
	Close() error
	Info() Info
	// Capabilities lists the events the device can produce. The virtual
	// output must declare them to be able to forward them.
	Capabilities() *Capabilities
}

// Matcher is a compiled Identity.
type Matcher struct {
	id   Identity
	name glob.Glob
	phys glob.Glob
}

// Compile builds a Matcher for id.
func Compile(id Identity) (*Matcher, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("device identity needs a name, phys or path")
	}
	m := &Matcher{id: id}
	var err error
	if id.Name != "" {
		if m.name, err = glob.Compile(id.Name); err != nil {
			return nil, fmt.Errorf("invalid name pattern %q: %w", id.Name, err)
		}
	}
	if id.Phys != "" {
		if m.phys, err = glob.Compile(id.Phys); err != nil {
			return nil, fmt.Errorf("invalid phys pattern %q: %w", id.Phys, err)
		}
	}
	return m, nil
}

// Match reports whether info satisfies every field of the identity.
func (m *Matcher) Match(info Info) bool {
	if m.id.Path != "" && m.id.Path != info.Path {
		return false
	}
	if m.name != nil && !m.name.Match(info.Name) {
		return false
	}
	if m.phys != nil && !m.phys.Match(info.Phys) {
		return false
	}
	return true
}

// Select returns the first device in infos matching id.
func Select(infos []Info, id Identity) (Info, error) {
	m, err := Compile(id)
	if err != nil {
		return Info{}, err
	}
	for _, info := range infos {
		if m.Match(info) {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: no device matches %s", ErrUnavailable, id)
}

// Lookup resolves a user-supplied device argument: a path, an event number
// ("3" or "event3"), or a name/phys pattern.
func Lookup(infos []Info, arg string) (Info, error) {
	if strings.HasPrefix(arg, "/") {
		return Select(infos, Identity{Path: arg})
	}
	n := strings.TrimPrefix(arg, "event")
	if n != "" && strings.Trim(n, "0123456789") == "" {
		return Select(infos, Identity{Path: "/dev/input/event" + n})
	}
	if info, err := Select(infos, Identity{Name: arg}); err == nil {
		return info, nil
	}
	return Select(infos, Identity{Phys: arg})
}
