package device

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"

	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

// evdevReader reads one /dev/input/event* node.
type evdevReader struct {
	dev  *evdev.InputDevice
	info Info

	mu        sync.Mutex
	grabbed   bool
	closeOnce sync.Once
	closeErr  error
}

// Open opens the device node at path without grabbing it.
func Open(path string) (Reader, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, path, err)
	}
	return &evdevReader{dev: dev, info: describe(dev, path)}, nil
}

// OpenMatching finds the device matching id and opens it.
func OpenMatching(id Identity) (Reader, error) {
	infos, err := List()
	if err != nil {
		return nil, err
	}
	info, err := Select(infos, id)
	if err != nil {
		return nil, err
	}
	return Open(info.Path)
}

func describe(dev *evdev.InputDevice, path string) Info {
	info := Info{Path: path}
	if name, err := dev.Name(); err == nil {
		info.Name = name
	}
	if phys, err := dev.PhysicalLocation(); err == nil {
		info.Phys = phys
	}
	return info
}

// List returns every readable input device, newest event node first.
func List() ([]Info, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	infos := make([]Info, 0, len(paths))
	for _, p := range paths {
		info := Info{Path: p.Path, Name: p.Name}
		if dev, err := evdev.Open(p.Path); err == nil {
			info = describe(dev, p.Path)
			_ = dev.Close()
		}
		infos = append(infos, info)
	}
	SortNewestFirst(infos)
	return infos, nil
}

// SortNewestFirst orders infos by event node number, highest first.
func SortNewestFirst(infos []Info) {
	slices.SortStableFunc(infos, func(a, b Info) int {
		na, nb := eventNumber(a.Path), eventNumber(b.Path)
		if na != nb {
			return nb - na
		}
		return strings.Compare(a.Path, b.Path)
	})
}

func eventNumber(path string) int {
	i := strings.LastIndex(path, "event")
	if i < 0 {
		return -1
	}
	n := 0
	for _, r := range path[i+len("event"):] {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func (r *evdevReader) Info() Info { return r.info }

func (r *evdevReader) ReadEvent() (remap.Event, error) {
	ev, err := r.dev.ReadOne()
	if err != nil {
		return remap.Event{}, fmt.Errorf("%w: read %s: %w", ErrUnavailable, r.info.Path, err)
	}
	return remap.Event{
		Device: r.info.Path,
		Type:   ev.Type,
		Code:   keycode.Code(ev.Code),
		Value:  remap.Value(ev.Value),
		Time:   time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000),
	}, nil
}

func (r *evdevReader) Grab() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grabbed {
		return nil
	}
	if err := r.dev.Grab(); err != nil {
		return fmt.Errorf("%w: grab %s: %w", ErrUnavailable, r.info.Path, err)
	}
	r.grabbed = true
	return nil
}

func (r *evdevReader) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.grabbed {
		return nil
	}
	r.grabbed = false
	return r.dev.Ungrab()
}

// Close ungrabs and closes the device. A blocked ReadEvent returns an error.
func (r *evdevReader) Close() error {
	r.closeOnce.Do(func() {
		_ = r.Release()
		r.closeErr = r.dev.Close()
	})
	return r.closeErr
}

// skippedTypes are not declared on outputs. Repeats are forwarded from the
// input instead of generated by the output.
var skippedTypes = []evdev.EvType{evdev.EV_SYN, evdev.EV_REP, evdev.EV_FF, evdev.EV_FF_STATUS}

func (r *evdevReader) Capabilities() *Capabilities {
	c := &Capabilities{}
	for _, t := range r.dev.CapableTypes() {
		if slices.Contains(skippedTypes, t) {
			continue
		}
		if t == evdev.EV_ABS {
			continue
		}
		c.Add(t, r.dev.CapableEvents(t)...)
	}
	if infos, err := r.dev.AbsInfos(); err == nil {
		for code, info := range infos {
			c.SetAbs(code, info)
		}
	}
	return c
}
