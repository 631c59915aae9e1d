package cmd

// CLI is the root command line of remapd.
type CLI struct {
	ConfigFile string    `name:"config" help:"Path to a flags configuration file (JSON, YAML or TOML)" type:"path" env:"REMAPD_CONFIG"`
	Log        LogConfig `embed:"" prefix:"log."`

	Run         Run           `cmd:"" default:"withargs" help:"Run the remap daemon"`
	ListDevices ListDevices   `cmd:"" name:"list-devices" help:"List input devices"`
	ReadEvents  ReadEvents    `cmd:"" name:"read-events" help:"Print the key presses of one input device"`
	Config      ConfigCommand `cmd:"" help:"Configuration helpers"`
	Install     Install       `cmd:"" help:"Install remapd as a systemd service"`
	Uninstall   Uninstall     `cmd:"" help:"Remove the remapd systemd service"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"REMAPD_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"REMAPD_LOG_FILE"`
	RawFile string `help:"Write every input and output event to this file" env:"REMAPD_LOG_RAW_FILE"`
}
