//go:build !linux

package cmd

import (
	"errors"
	"log/slog"
)

type Install struct {
	RemapConfig string `name:"remap-config" short:"f" help:"Remap configuration the service runs with" type:"path"`
	Watch       bool   `help:"Let the service reload remappings when the configuration changes" default:"true" negatable:""`
}

type Uninstall struct{}

var errNoService = errors.New("service installation is only supported on linux")

func (i *Install) Run(logger *slog.Logger) error { return errNoService }

func (u *Uninstall) Run(logger *slog.Logger) error { return errNoService }
