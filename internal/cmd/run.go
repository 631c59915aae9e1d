package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/internal/config"
	"github.com/Alia5/remapd/internal/configpaths"
	"github.com/Alia5/remapd/internal/dispatch"
	"github.com/Alia5/remapd/internal/log"
	"github.com/Alia5/remapd/remap"
	"github.com/Alia5/remapd/virtualdev"
	"github.com/Alia5/remapd/window"
)

type Run struct {
	RemapConfig    string        `name:"remap-config" short:"f" help:"Remap configuration file (defaults to the first config.{yaml,yml,toml,json} in the config dirs)" type:"path" env:"REMAPD_REMAP_CONFIG"`
	Watch          bool          `help:"Reload remappings when the configuration file changes" env:"REMAPD_WATCH"`
	NoWindow       bool          `name:"no-window" help:"Disable window-scoped rules" env:"REMAPD_NO_WINDOW"`
	Display        string        `help:"X display used for window-scoped rules (defaults to $DISPLAY)" env:"REMAPD_DISPLAY"`
	WindowTimeout  time.Duration `help:"Timeout of one active window query" default:"50ms" env:"REMAPD_WINDOW_TIMEOUT"`
	WindowCacheTTL time.Duration `name:"window-cache-ttl" help:"Cache the active window class for this long (0 disables)" default:"0s" env:"REMAPD_WINDOW_CACHE_TTL"`
	QueueSize      int           `help:"Events buffered between a device and its remap engine" default:"256" env:"REMAPD_QUEUE_SIZE"`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, events log.EventLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Start(ctx, logger, events)
}

func (r *Run) Start(ctx context.Context, logger *slog.Logger, events log.EventLogger) error {
	path, err := configpaths.FindConfig(r.RemapConfig)
	if err != nil {
		return err
	}
	loader := config.NewLoader(path, logger)
	doc, err := loader.Load()
	if err != nil {
		return err
	}
	logger.Info("loaded remap configuration", "path", path, "devices", len(doc.Devices))

	groups, err := doc.Groups()
	if err != nil {
		logConfigErrors(logger, err)
	}
	if len(groups) == 0 {
		return errors.New("no usable device group in configuration")
	}

	if err := virtualdev.CheckUinput(); err != nil {
		logger.Error("cannot create virtual devices")
		logger.Error("load the uinput module and make sure this user may write to " + virtualdev.UinputPath)
		return err
	}

	provider, closeWindow := window.NewProvider(&window.ProviderOptions{
		Display:  r.Display,
		CacheTTL: r.WindowCacheTTL,
		Timeout:  r.WindowTimeout,
		Disabled: r.NoWindow,
	}, logger)
	defer func() { _ = closeWindow() }()

	d := dispatch.New(device.OpenMatching, virtualdev.NewRegistry(virtualdev.CreateFactory), logger, &dispatch.Options{
		Window:        provider,
		WindowTimeout: r.WindowTimeout,
		Events:        events,
		QueueSize:     r.QueueSize,
	})
	if err := d.Start(ctx, groups); err != nil {
		_ = d.Shutdown()
		return err
	}

	if r.Watch {
		loader.OnChange(func(doc *config.Document) {
			groups, err := doc.Groups()
			if err != nil {
				logConfigErrors(logger, err)
			}
			d.Reload(groups)
		})
		go func() {
			if err := loader.Watch(ctx); err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	var stopped bool
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-d.Done():
		stopped = true
	}

	if err := d.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if stopped {
		return errors.New("every device pipeline has stopped")
	}
	return nil
}

func logConfigErrors(logger *slog.Logger, err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var ce *remap.ConfigError
		if errors.As(e, &ce) {
			logger.Error("skipping invalid remapping", "group", ce.Group, "trigger", ce.Trigger, "reason", ce.Reason)
			continue
		}
		logger.Error("invalid configuration", "error", e)
	}
}
