package virtualdev

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"github.com/Alia5/remapd/device"
)

// uinput ioctl requests from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
)

var uiSetBit = map[evdev.EvType]uint{
	evdev.EV_KEY: 0x40045565,
	evdev.EV_REL: 0x40045566,
	evdev.EV_ABS: 0x40045567,
	evdev.EV_MSC: 0x40045568,
	evdev.EV_LED: 0x40045569,
	evdev.EV_SND: 0x4004556a,
	evdev.EV_SW:  0x4004556d,
}

// axisDevice is a uinput device set up without evdev.CreateDevice, which
// cannot pass absolute axis ranges.
type axisDevice struct {
	f    *os.File
	once sync.Once
}

func createWithAxes(name string, id evdev.InputID, caps *device.Capabilities) (*axisDevice, error) {
	f, err := os.OpenFile(UinputPath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())
	for _, t := range caps.Types() {
		req, ok := uiSetBit[t]
		if !ok {
			continue
		}
		if err := unix.IoctlSetInt(fd, uiSetEvBit, int(t)); err != nil {
			f.Close()
			return nil, fmt.Errorf("set event type %d: %w", t, err)
		}
		for _, code := range caps.Codes(t) {
			if err := unix.IoctlSetInt(fd, req, int(code)); err != nil {
				f.Close()
				return nil, fmt.Errorf("set event code %d/%d: %w", t, code, err)
			}
		}
	}

	setup := userDevice(name, id, caps)
	if err := binary.Write(f, binary.LittleEndian, &setup); err != nil {
		f.Close()
		return nil, fmt.Errorf("write device setup: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("create device: %w", err)
	}
	return &axisDevice{f: f}, nil
}

// userDevice fills the legacy uinput setup record, including the axis ranges.
func userDevice(name string, id evdev.InputID, caps *device.Capabilities) evdev.UinputUserDevice {
	u := evdev.UinputUserDevice{ID: id}
	copy(u.Name[:len(u.Name)-1], name)
	for _, code := range caps.Codes(evdev.EV_ABS) {
		info, ok := caps.Abs(code)
		if !ok || int(code) >= len(u.Absmax) {
			continue
		}
		u.Absmin[code] = info.Minimum
		u.Absmax[code] = info.Maximum
		u.Absfuzz[code] = info.Fuzz
		u.Absflat[code] = info.Flat
	}
	return u
}

func (d *axisDevice) WriteOne(ev *evdev.InputEvent) error {
	return binary.Write(d.f, binary.LittleEndian, ev)
}

func (d *axisDevice) Close() error {
	var err error
	d.once.Do(func() {
		_ = unix.IoctlSetInt(int(d.f.Fd()), uiDevDestroy, 0)
		err = d.f.Close()
	})
	return err
}
