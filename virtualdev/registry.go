package virtualdev

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holoplot/go-evdev"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

// Factory creates the device behind an output name.
type Factory func(name string, caps *device.Capabilities) (Emitter, error)

// CreateFactory is the Factory backed by uinput.
func CreateFactory(name string, caps *device.Capabilities) (Emitter, error) {
	return Create(name, caps)
}

// Registry owns the virtual devices by output name. Several pipelines may
// share one output; the device is destroyed when the last handle is closed.
type Registry struct {
	mutex   sync.Mutex
	factory Factory
	outputs map[string]*output
	closed  bool
}

type output struct {
	dev  Emitter
	caps *device.Capabilities
	refs int
}

func NewRegistry(f Factory) *Registry {
	return &Registry{factory: f, outputs: make(map[string]*output)}
}

// Acquire returns a handle to the output called name, creating the device
// with caps on first use. Closing the handle drops the reference.
func (r *Registry) Acquire(name string, caps *device.Capabilities) (Emitter, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	o, ok := r.outputs[name]
	if !ok {
		dev, err := r.factory(name, caps)
		if err != nil {
			return nil, err
		}
		o = &output{dev: dev, caps: caps}
		r.outputs[name] = o
	}
	o.refs++
	return &handle{r: r, name: name, o: o}, nil
}

// Missing returns the keys the output called name cannot emit.
func (r *Registry) Missing(name string, keys []keycode.Code) []keycode.Code {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	o, ok := r.outputs[name]
	if !ok {
		return nil
	}
	var out []keycode.Code
	for _, c := range keys {
		if !o.caps.Has(evdev.EV_KEY, c.EvCode()) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the output names currently alive.
func (r *Registry) Names() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]string, 0, len(r.outputs))
	for n := range r.outputs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) release(name string, o *output) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	o.refs--
	if o.refs > 0 {
		return nil
	}
	if cur, ok := r.outputs[name]; !ok || cur != o {
		// already destroyed by Close
		return nil
	}
	delete(r.outputs, name)
	return o.dev.Close()
}

// Close destroys every device regardless of outstanding handles.
func (r *Registry) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closed = true
	var errs []error
	for name, o := range r.outputs {
		if err := o.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.outputs, name)
	}
	return errors.Join(errs...)
}

type handle struct {
	r    *Registry
	name string
	o    *output
	once sync.Once
}

func (h *handle) Emit(events []remap.Event) error { return h.o.dev.Emit(events) }
func (h *handle) Name() string                    { return h.name }

func (h *handle) Close() error {
	var err error
	h.once.Do(func() { err = h.r.release(h.name, h.o) })
	return err
}
