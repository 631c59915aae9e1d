package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/Alia5/remapd/device"
)

type ListDevices struct{}

// Run is called by Kong when the list-devices command is executed.
func (l *ListDevices) Run() error {
	infos, err := device.List()
	if err != nil {
		return err
	}
	return writeDevices(os.Stdout, infos)
}

func writeDevices(w io.Writer, infos []device.Info) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no input devices found (are you in the input group?)")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tPHYS\tNAME")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Path, info.Phys, info.Name)
	}
	return tw.Flush()
}
