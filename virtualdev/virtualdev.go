// Package virtualdev creates the uinput devices remapd writes its output to.
package virtualdev

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/remap"
)

// UinputPath is the uinput control node.
const UinputPath = "/dev/uinput"

const busVirtual = 0x06

// ErrClosed is returned by Emit after the device has been closed.
var ErrClosed = errors.New("virtual device closed")

// Emitter writes event groups to a virtual device.
type Emitter interface {
	// Emit writes events as one atomic group, terminated by a SYN_REPORT.
	// Concurrent callers are serialized.
	Emit(events []remap.Event) error
	Name() string
	Close() error
}

type eventWriter interface {
	WriteOne(ev *evdev.InputEvent) error
	Close() error
}

// Device is a uinput device.
type Device struct {
	name string

	mu     sync.Mutex
	w      eventWriter
	closed bool
}

// CheckUinput reports whether the current user may create uinput devices.
func CheckUinput() error {
	if err := unix.Access(UinputPath, unix.W_OK); err != nil {
		return fmt.Errorf("cannot write %s (is the uinput module loaded and are you in the input group?): %w", UinputPath, err)
	}
	return nil
}

// Create creates a virtual device declaring caps. The capability set of a
// uinput device is fixed at creation.
func Create(name string, caps *device.Capabilities) (*Device, error) {
	if err := CheckUinput(); err != nil {
		return nil, err
	}
	id := evdev.InputID{BusType: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}
	decl := declared(caps)

	var (
		w   eventWriter
		err error
	)
	if len(decl.Codes(evdev.EV_ABS)) > 0 {
		w, err = createWithAxes(name, id, decl)
	} else {
		w, err = evdev.CreateDevice(name, id, decl.Map())
	}
	if err != nil {
		return nil, fmt.Errorf("create virtual device %q: %w", name, err)
	}
	return newDevice(name, w), nil
}

// declared returns caps plus what every output declares: the key type and
// MSC_SCAN.
func declared(caps *device.Capabilities) *device.Capabilities {
	c := &device.Capabilities{}
	c.Merge(caps)
	c.Add(evdev.EV_KEY)
	c.Add(evdev.EV_MSC, evdev.MSC_SCAN)
	return c
}

func newDevice(name string, w eventWriter) *Device {
	return &Device{name: name, w: w}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Emit(events []remap.Event) error {
	if len(events) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for _, ev := range events {
		if err := d.write(ev); err != nil {
			return err
		}
	}
	if !events[len(events)-1].IsSync() {
		return d.write(remap.SyncEvent())
	}
	return nil
}

func (d *Device) write(ev remap.Event) error {
	err := d.w.WriteOne(&evdev.InputEvent{
		Type:  ev.Type,
		Code:  ev.Code.EvCode(),
		Value: int32(ev.Value),
	})
	if err != nil {
		return fmt.Errorf("write %s to %s: %w", ev, d.name, err)
	}
	return nil
}

// Close destroys the device. Keys still down are released by the kernel.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.w.Close()
}
