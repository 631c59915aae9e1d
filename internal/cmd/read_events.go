package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/remap"
)

type ReadEvents struct {
	Device string `arg:"" help:"Device path, event number, name or phys"`
	All    bool   `help:"Print releases and repeats too"`
}

// Run is called by Kong when the read-events command is executed.
func (c *ReadEvents) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infos, err := device.List()
	if err != nil {
		return err
	}
	info, err := device.Lookup(infos, c.Device)
	if err != nil {
		return err
	}
	r, err := device.Open(info.Path)
	if err != nil {
		return err
	}
	defer r.Close()

	logger.Info("reading events", "device", info.Path, "name", info.Name)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Press keys on the device, Ctrl-C to stop.")
	}

	go func() {
		<-ctx.Done()
		_ = r.Close()
	}()
	err = printKeyEvents(os.Stdout, r, c.All)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// printKeyEvents writes one line per key event read from r until r fails.
func printKeyEvents(w io.Writer, r device.Reader, all bool) error {
	for {
		ev, err := r.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !ev.IsKey() {
			continue
		}
		if !all && ev.Value != remap.Pressed {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\t%s\n", ev.Code, uint16(ev.Code), ev.Value); err != nil {
			return err
		}
	}
}
