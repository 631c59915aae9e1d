package testing

import (
	"fmt"
	"sync"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

// FakeReader replays a scripted event list, then blocks until closed.
// Push feeds more events while running.
type FakeReader struct {
	info device.Info
	caps *device.Capabilities

	events chan remap.Event
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	GrabErr error
	grabbed bool
	closed  bool
}

// NewFakeReader returns a reader for a device at path that can send keys and
// will emit events.
func NewFakeReader(path, name string, keys []keycode.Code, events ...remap.Event) *FakeReader {
	r := &FakeReader{
		info:   device.Info{Path: path, Name: name},
		caps:   device.KeyCapabilities(keys...),
		events: make(chan remap.Event, len(events)+64),
		done:   make(chan struct{}),
	}
	for _, ev := range events {
		r.events <- ev
	}
	return r
}

// Push queues events for ReadEvent.
func (r *FakeReader) Push(events ...remap.Event) {
	for _, ev := range events {
		r.events <- ev
	}
}

// Unplug makes the next ReadEvent fail as if the device was removed.
func (r *FakeReader) Unplug() {
	r.once.Do(func() { close(r.done) })
}

// ReadEvent returns queued events before reporting an unplug.
func (r *FakeReader) ReadEvent() (remap.Event, error) {
	select {
	case ev := <-r.events:
		ev.Device = r.info.Path
		return ev, nil
	default:
	}
	select {
	case ev := <-r.events:
		ev.Device = r.info.Path
		return ev, nil
	case <-r.done:
		return remap.Event{}, fmt.Errorf("%w: %s removed", device.ErrUnavailable, r.info.Path)
	}
}

func (r *FakeReader) Grab() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GrabErr != nil {
		return r.GrabErr
	}
	r.grabbed = true
	return nil
}

func (r *FakeReader) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grabbed = false
	return nil
}

func (r *FakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.grabbed = false
	r.mu.Unlock()
	r.Unplug()
	return nil
}

// WithCapabilities replaces the capabilities the reader reports.
func (r *FakeReader) WithCapabilities(c *device.Capabilities) *FakeReader {
	r.caps = c
	return r
}

func (r *FakeReader) Info() device.Info                  { return r.info }
func (r *FakeReader) Capabilities() *device.Capabilities { return r.caps }

// Grabbed reports whether the device is currently grabbed.
func (r *FakeReader) Grabbed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grabbed
}

// Closed reports whether Close was called.
func (r *FakeReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// RecordingEmitter stores every emitted group.
type RecordingEmitter struct {
	name string
	Caps *device.Capabilities

	mu      sync.Mutex
	groups  [][]remap.Event
	EmitErr error
	closed  bool
}

func NewRecordingEmitter(name string, caps *device.Capabilities) *RecordingEmitter {
	return &RecordingEmitter{name: name, Caps: caps}
}

func (e *RecordingEmitter) Emit(events []remap.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.EmitErr != nil {
		return e.EmitErr
	}
	e.groups = append(e.groups, append([]remap.Event(nil), events...))
	return nil
}

func (e *RecordingEmitter) Name() string { return e.name }

func (e *RecordingEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Groups returns a copy of every emitted group.
func (e *RecordingEmitter) Groups() [][]remap.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]remap.Event(nil), e.groups...)
}

// Keys renders the emitted key events as "+KEY_A" / "-KEY_A" / "=KEY_A".
func (e *RecordingEmitter) Keys() []string {
	var out []string
	for _, g := range e.Groups() {
		for _, ev := range g {
			if !ev.IsKey() {
				continue
			}
			prefix := "+"
			switch ev.Value {
			case remap.Released:
				prefix = "-"
			case remap.Repeated:
				prefix = "="
			}
			out = append(out, prefix+ev.Code.String())
		}
	}
	return out
}

func (e *RecordingEmitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Press returns a press followed by a SYN_REPORT, the way a keyboard reports it.
func Press(name string) []remap.Event {
	return []remap.Event{remap.KeyEvent(keycode.MustParse(name), remap.Pressed), remap.SyncEvent()}
}

// Release returns a release followed by a SYN_REPORT.
func Release(name string) []remap.Event {
	return []remap.Event{remap.KeyEvent(keycode.MustParse(name), remap.Released), remap.SyncEvent()}
}
