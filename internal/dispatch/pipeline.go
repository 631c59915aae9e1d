package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/remap"
	"github.com/Alia5/remapd/virtualdev"
)

// Pipeline moves events from one physical device through its engine to the
// group's virtual output.
type Pipeline struct {
	group  Group
	info   device.Info
	reader device.Reader
	out    virtualdev.Emitter
	engine *remap.Engine
	logger *slog.Logger
	events EventLogger
	queue  int

	done chan struct{}
}

func (p *Pipeline) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Pipeline) run(ctx context.Context) error {
	defer close(p.done)

	evCh := make(chan remap.Event, p.queue)
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		for {
			ev, err := p.reader.ReadEvent()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case evCh <- ev:
			case <-stop:
				return
			}
		}
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var buf []remap.Event
	for {
		p.arm(timer)
		select {
		case <-ctx.Done():
			close(stop)
			p.teardown(buf)
			p.logger.Info("device released")
			return nil

		case err := <-errCh:
			close(stop)
			var derr error
			if buf, derr = p.drain(evCh, buf); derr != nil {
				p.teardown(nil)
				return derr
			}
			p.teardown(buf)
			return err

		case ev := <-evCh:
			var err error
			if buf, err = p.handle(buf, ev); err != nil {
				close(stop)
				p.teardown(nil)
				return err
			}

		case now := <-timer.C:
			var err error
			if buf, err = p.flush(append(buf, p.engine.Tick(now)...)); err != nil {
				close(stop)
				p.teardown(nil)
				return err
			}
		}
	}
}

// arm sets timer to the engine's next repeating action.
func (p *Pipeline) arm(timer *time.Timer) {
	if at, ok := p.engine.NextDeadline(); ok {
		timer.Reset(time.Until(at))
		return
	}
	timer.Stop()
}

// drain handles the events still queued after the reader stopped.
func (p *Pipeline) drain(evCh <-chan remap.Event, buf []remap.Event) ([]remap.Event, error) {
	for {
		select {
		case ev := <-evCh:
			var err error
			if buf, err = p.handle(buf, ev); err != nil {
				return buf, err
			}
		default:
			return buf, nil
		}
	}
}

// handle runs ev through the engine and flushes the buffered output.
func (p *Pipeline) handle(buf []remap.Event, ev remap.Event) ([]remap.Event, error) {
	if p.events != nil {
		p.events.Log(true, p.info.Path, ev)
	}
	return p.flush(append(buf, p.engine.Process(ev)...))
}

// flush writes buf once it ends with a SYN_REPORT. Only a closed output is
// returned as an error.
func (p *Pipeline) flush(buf []remap.Event) ([]remap.Event, error) {
	if len(buf) == 0 || !buf[len(buf)-1].IsSync() {
		return buf, nil
	}
	err := p.emit(buf)
	buf = buf[:0]
	if errors.Is(err, virtualdev.ErrClosed) {
		return buf, err
	}
	if err != nil {
		// the engine has already committed this group, it is not retried
		p.logger.Error("failed to write to virtual device", "error", err)
	}
	return buf, nil
}

func (p *Pipeline) emit(events []remap.Event) error {
	if p.events != nil {
		for _, ev := range events {
			p.events.Log(false, p.out.Name(), ev)
		}
	}
	return p.out.Emit(events)
}

// teardown releases every key the engine holds down, then ungrabs and closes
// the device and drops the output reference.
func (p *Pipeline) teardown(pending []remap.Event) {
	final := append(pending, p.engine.Release()...)
	if len(final) > 0 {
		if err := p.emit(final); err != nil {
			p.logger.Warn("failed to release held keys", "error", err)
		}
	}
	if err := p.reader.Release(); err != nil {
		p.logger.Debug("ungrab failed", "error", err)
	}
	if err := p.reader.Close(); err != nil {
		p.logger.Debug("close failed", "error", err)
	}
	if err := p.out.Close(); err != nil {
		p.logger.Warn("failed to close output", "error", err)
	}
}
