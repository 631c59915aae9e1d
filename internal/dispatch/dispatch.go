// Package dispatch runs one remap pipeline per configured device group.
//
// A pipeline reads from a grabbed physical device, runs every event through
// its own remap engine and writes the result to a (possibly shared) virtual
// output. Pipelines fail independently: a device that disappears stops its
// own pipeline and nothing else.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
	"github.com/Alia5/remapd/virtualdev"
)

const defaultQueueSize = 256

// Group is one configured mapping group: which device to read, which virtual
// output to write to, and the remap table in between.
type Group struct {
	Index  int
	Input  device.Identity
	Output string
	Table  *remap.Table
}

func (g Group) String() string {
	return fmt.Sprintf("devices[%d] (%s -> %s)", g.Index, g.Input, g.Output)
}

// Opener finds and opens the device for an identity.
type Opener func(id device.Identity) (device.Reader, error)

// EventLogger receives every input and output event when trace logging is on.
type EventLogger interface {
	Log(in bool, source string, ev fmt.Stringer)
}

// PipelineError reports why a pipeline could not start or stopped.
type PipelineError struct {
	Group  int
	Device string
	Output string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s -> %s: %v", e.Device, e.Output, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Options configures a Dispatcher. A nil *Options uses defaults.
type Options struct {
	Window        remap.WindowContext
	WindowTimeout time.Duration
	Events        EventLogger
	QueueSize     int
}

// Dispatcher supervises the pipelines.
type Dispatcher struct {
	open     Opener
	registry *virtualdev.Registry
	logger   *slog.Logger
	opts     Options

	mutex     sync.Mutex
	pipelines []*Pipeline
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	errs      chan *PipelineError
	done      chan struct{}
	started   bool
}

// New returns a dispatcher that opens devices with open and creates outputs
// through registry.
func New(open Opener, registry *virtualdev.Registry, logger *slog.Logger, o *Options) *Dispatcher {
	d := &Dispatcher{
		open:     open,
		registry: registry,
		logger:   logger,
		errs:     make(chan *PipelineError, 16),
		done:     make(chan struct{}),
	}
	if o != nil {
		d.opts = *o
	}
	if d.opts.QueueSize <= 0 {
		d.opts.QueueSize = defaultQueueSize
	}
	return d
}

type opened struct {
	group  Group
	reader device.Reader
}

// Start opens and grabs every group's device and starts its pipeline. Groups
// that cannot start are reported and skipped; Start only fails when no
// pipeline could be started at all.
func (d *Dispatcher) Start(ctx context.Context, groups []Group) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)

	var readers []opened
	for _, g := range groups {
		r, err := d.open(g.Input)
		if err != nil {
			d.report(&PipelineError{Group: g.Index, Device: g.Input.String(), Output: g.Output, Err: err})
			continue
		}
		readers = append(readers, opened{group: g, reader: r})
	}

	// A uinput device's capabilities are fixed at creation, so each output
	// is created with everything any of its inputs can send.
	caps := make(map[string]*device.Capabilities)
	for _, o := range readers {
		c, ok := caps[o.group.Output]
		if !ok {
			c = &device.Capabilities{}
			caps[o.group.Output] = c
		}
		c.Merge(o.reader.Capabilities())
		c.AddKeys(o.group.Table.OutputCodes()...)
	}

	for _, o := range readers {
		p, err := d.startPipeline(ctx, o, caps[o.group.Output])
		if err != nil {
			d.report(&PipelineError{Group: o.group.Index, Device: o.reader.Info().Path, Output: o.group.Output, Err: err})
			continue
		}
		d.pipelines = append(d.pipelines, p)
	}

	go func() {
		d.wg.Wait()
		close(d.done)
	}()

	if len(d.pipelines) == 0 {
		return fmt.Errorf("no device could be started")
	}
	return nil
}

func (d *Dispatcher) startPipeline(ctx context.Context, o opened, caps *device.Capabilities) (*Pipeline, error) {
	info := o.reader.Info()
	out, err := d.registry.Acquire(o.group.Output, caps)
	if err != nil {
		_ = o.reader.Close()
		return nil, err
	}
	if err := o.reader.Grab(); err != nil {
		_ = o.reader.Close()
		_ = out.Close()
		return nil, err
	}

	logger := d.logger.With("device", info.Path, "output", o.group.Output)
	p := &Pipeline{
		group:  o.group,
		info:   info,
		reader: o.reader,
		out:    out,
		logger: logger,
		events: d.opts.Events,
		queue:  d.opts.QueueSize,
		done:   make(chan struct{}),
		engine: remap.NewEngine(info.Path, o.group.Table, &remap.EngineOptions{
			Window:        d.opts.Window,
			WindowTimeout: d.opts.WindowTimeout,
			Logger:        logger,
		}),
	}
	logger.Info("remapping device", "name", info.Name, "rules", o.group.Table.Len())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := p.run(ctx); err != nil {
			d.report(&PipelineError{Group: o.group.Index, Device: info.Path, Output: o.group.Output, Err: err})
		}
	}()
	return p, nil
}

func (d *Dispatcher) report(err *PipelineError) {
	d.logger.Error("pipeline failed", "group", err.Group, "device", err.Device, "output", err.Output, "error", err.Err)
	select {
	case d.errs <- err:
	default:
	}
}

// Errors delivers pipeline failures. Reports are dropped when nobody reads.
func (d *Dispatcher) Errors() <-chan *PipelineError { return d.errs }

// Done is closed once every started pipeline has stopped.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Wait blocks until every pipeline has stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Reload swaps the remap tables of running pipelines. Groups are matched by
// index; a group whose device or output changed needs a restart and keeps
// its old table. It returns the number of tables swapped.
func (d *Dispatcher) Reload(groups []Group) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	byIndex := make(map[int]*Pipeline, len(d.pipelines))
	for _, p := range d.pipelines {
		byIndex[p.group.Index] = p
	}

	swapped := 0
	for _, g := range groups {
		p, ok := byIndex[g.Index]
		if !ok {
			d.logger.Warn("new device group needs a restart", "group", g.String())
			continue
		}
		if p.group.Output != g.Output || p.group.Input != g.Input {
			d.logger.Warn("device or output of a group changed, restart to apply", "group", g.String())
			continue
		}
		if missing := d.registry.Missing(g.Output, g.Table.OutputCodes()); len(missing) > 0 {
			d.logger.Warn("output cannot emit some keys until restart", "output", g.Output, "keys", keycode.Names(missing))
		}
		p.engine.SetTable(g.Table)
		p.group.Table = g.Table
		swapped++
	}
	d.logger.Info("remap tables reloaded", "swapped", swapped)
	return swapped
}

// PipelineInfo is a snapshot of one pipeline.
type PipelineInfo struct {
	Group   int
	Device  device.Info
	Output  string
	Rules   int
	Running bool
}

func (d *Dispatcher) Pipelines() []PipelineInfo {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]PipelineInfo, 0, len(d.pipelines))
	for _, p := range d.pipelines {
		out = append(out, PipelineInfo{
			Group:   p.group.Index,
			Device:  p.info,
			Output:  p.group.Output,
			Rules:   p.engine.Table().Len(),
			Running: p.Running(),
		})
	}
	return out
}

// Shutdown stops every pipeline, releasing held keys and ungrabbing devices,
// then destroys the virtual outputs.
func (d *Dispatcher) Shutdown() error {
	d.mutex.Lock()
	cancel := d.cancel
	d.mutex.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	if err := d.registry.Close(); err != nil && !errors.Is(err, virtualdev.ErrClosed) {
		return err
	}
	return nil
}
