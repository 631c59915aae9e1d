package virtualdev

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

type fakeWriter struct {
	mu      sync.Mutex
	events  []evdev.InputEvent
	failAt  int
	closed  int
	failErr error
}

func (f *fakeWriter) WriteOne(ev *evdev.InputEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil && len(f.events) == f.failAt {
		return f.failErr
	}
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed++
	return nil
}

func TestDeviceEmit(t *testing.T) {
	w := &fakeWriter{}
	d := newDevice("remapd-kbd", w)
	a := keycode.MustParse("KEY_A")

	require.NoError(t, d.Emit([]remap.Event{remap.KeyEvent(a, remap.Pressed)}))
	require.Len(t, w.events, 2, "a SYN_REPORT terminates the group")
	assert.Equal(t, evdev.EvType(evdev.EV_KEY), w.events[0].Type)
	assert.Equal(t, int32(1), w.events[0].Value)
	assert.Equal(t, evdev.EvType(evdev.EV_SYN), w.events[1].Type)

	require.NoError(t, d.Emit([]remap.Event{remap.KeyEvent(a, remap.Released), remap.SyncEvent()}))
	assert.Len(t, w.events, 4, "no extra SYN when the group already ends with one")

	require.NoError(t, d.Emit(nil))
	assert.Len(t, w.events, 4)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, d.Emit([]remap.Event{remap.KeyEvent(a, remap.Pressed)}), ErrClosed)
}

func TestDeviceEmitFailure(t *testing.T) {
	boom := errors.New("boom")
	w := &fakeWriter{failAt: 1, failErr: boom}
	d := newDevice("out", w)
	a := keycode.MustParse("KEY_A")

	err := d.Emit([]remap.Event{remap.KeyEvent(a, remap.Pressed), remap.KeyEvent(a, remap.Released)})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "out")
}

func TestDeviceConcurrentEmit(t *testing.T) {
	w := &fakeWriter{}
	d := newDevice("shared", w)
	a := keycode.MustParse("KEY_A")
	b := keycode.MustParse("KEY_B")

	var wg sync.WaitGroup
	for _, c := range []keycode.Code{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = d.Emit([]remap.Event{remap.KeyEvent(c, remap.Pressed), remap.KeyEvent(c, remap.Released)})
			}
		}()
	}
	wg.Wait()

	require.Len(t, w.events, 600)
	for i := 0; i < len(w.events); i += 3 {
		assert.Equal(t, w.events[i].Code, w.events[i+1].Code, "groups are not interleaved")
		assert.Equal(t, evdev.EvType(evdev.EV_SYN), w.events[i+2].Type)
	}
}

type fakeEmitter struct {
	name   string
	caps   *device.Capabilities
	closed int
}

func (f *fakeEmitter) Emit([]remap.Event) error { return nil }
func (f *fakeEmitter) Name() string             { return f.name }
func (f *fakeEmitter) Close() error {
	f.closed++
	return nil
}

func TestRegistry(t *testing.T) {
	created := map[string]*fakeEmitter{}
	reg := NewRegistry(func(name string, caps *device.Capabilities) (Emitter, error) {
		if name == "broken" {
			return nil, errors.New("no uinput")
		}
		e := &fakeEmitter{name: name, caps: caps}
		created[name] = e
		return e, nil
	})
	a, b := keycode.MustParse("KEY_A"), keycode.MustParse("KEY_B")

	h1, err := reg.Acquire("kbd", device.KeyCapabilities(a))
	require.NoError(t, err)
	h2, err := reg.Acquire("kbd", device.KeyCapabilities(a, b))
	require.NoError(t, err)
	assert.Len(t, created, 1, "one device per output name")
	assert.Equal(t, "kbd", h2.Name())
	assert.Equal(t, []keycode.Code{b}, reg.Missing("kbd", []keycode.Code{a, b}))

	_, err = reg.Acquire("broken", nil)
	assert.Error(t, err)

	h3, err := reg.Acquire("mouse", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"kbd", "mouse"}, reg.Names())

	require.NoError(t, h1.Close())
	require.NoError(t, h1.Close())
	assert.Equal(t, 0, created["kbd"].closed, "still referenced by h2")
	require.NoError(t, h2.Close())
	assert.Equal(t, 1, created["kbd"].closed)
	assert.Equal(t, []string{"mouse"}, reg.Names())

	require.NoError(t, reg.Close())
	assert.Equal(t, 1, created["mouse"].closed)
	assert.Empty(t, reg.Names())
	_ = h3.Close()

	_, err = reg.Acquire("kbd", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDeclared(t *testing.T) {
	caps := device.KeyCapabilities(keycode.MustParse("BTN_LEFT"))
	caps.Add(evdev.EV_REL, evdev.REL_X, evdev.REL_Y)

	d := declared(caps)
	assert.Equal(t, []evdev.EvType{evdev.EV_KEY, evdev.EV_REL, evdev.EV_MSC}, d.Types())
	assert.Equal(t, []evdev.EvCode{evdev.REL_X, evdev.REL_Y}, d.Codes(evdev.EV_REL))
	assert.True(t, d.Has(evdev.EV_MSC, evdev.MSC_SCAN))
	assert.False(t, caps.Has(evdev.EV_MSC, evdev.MSC_SCAN), "input capabilities are not modified")

	empty := declared(nil)
	assert.Equal(t, []evdev.EvType{evdev.EV_KEY, evdev.EV_MSC}, empty.Types())
}

func TestUserDevice(t *testing.T) {
	caps := &device.Capabilities{}
	caps.SetAbs(evdev.ABS_X, evdev.AbsInfo{Minimum: -32768, Maximum: 32767, Fuzz: 16, Flat: 128})
	caps.SetAbs(evdev.ABS_HAT0X, evdev.AbsInfo{Minimum: -1, Maximum: 1})
	id := evdev.InputID{BusType: busVirtual, Vendor: 1, Product: 1, Version: 1}

	u := userDevice("remapd-pad", id, caps)
	assert.Equal(t, "remapd-pad", string(u.Name[:len("remapd-pad")]))
	assert.Zero(t, u.Name[len("remapd-pad")])
	assert.Equal(t, id, u.ID)
	assert.Equal(t, int32(-32768), u.Absmin[evdev.ABS_X])
	assert.Equal(t, int32(32767), u.Absmax[evdev.ABS_X])
	assert.Equal(t, int32(16), u.Absfuzz[evdev.ABS_X])
	assert.Equal(t, int32(128), u.Absflat[evdev.ABS_X])
	assert.Equal(t, int32(-1), u.Absmin[evdev.ABS_HAT0X])
	assert.Equal(t, int32(0), u.Absmax[evdev.ABS_Y])

	long := userDevice(strings.Repeat("x", 200), id, caps)
	assert.Equal(t, byte('x'), long.Name[len(long.Name)-2])
	assert.Zero(t, long.Name[len(long.Name)-1], "the name stays NUL terminated")
}
