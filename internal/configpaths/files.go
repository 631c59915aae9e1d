package configpaths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SystemConfigDir holds the system-wide configuration.
const SystemConfigDir = "/etc/remapd"

// RemapBaseName is the base name of the remap configuration document.
const RemapBaseName = "config"

// FlagsBaseName is the base name of files holding command line defaults.
const FlagsBaseName = "remapd"

var remapExts = []string{".yaml", ".yml", ".toml", ".json"}

// DefaultConfigDir returns the per-user configuration directory for remapd.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "remapd"), nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "remapd"), nil
	}
	return "", errors.New("neither XDG_CONFIG_HOME nor HOME is set")
}

// DefaultConfigPath returns the per-user remap configuration path for format.
func DefaultConfigPath(format string) (string, error) {
	return DefaultNamedConfigPath(RemapBaseName, format)
}

// DefaultNamedConfigPath returns the per-user path for baseName in format.
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, baseName+"."+Ext(format)), nil
}

// Ext maps a format name to its file extension, defaulting to yaml.
func Ext(format string) string {
	switch format {
	case "json":
		return "json"
	case "toml":
		return "toml"
	default:
		return "yaml"
	}
}

// EnsureDir ensures the directory for a given file path exists.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// RemapCandidatePaths lists where the remap configuration is looked for, in
// priority order.
func RemapCandidatePaths() []string {
	var dirs []string
	if dir, err := DefaultConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, SystemConfigDir)

	var out []string
	for _, dir := range dirs {
		for _, ext := range remapExts {
			out = append(out, filepath.Join(dir, RemapBaseName+ext))
		}
	}
	return out
}

// FindConfig returns explicit if set, otherwise the first existing remap
// configuration candidate.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	candidates := RemapCandidatePaths()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("no config file found, looked in %v", candidates)
}

// ConfigCandidatePaths builds candidate paths for command line default files
// per format. If userPath is provided, it is prioritized and routed to the
// matching loader by extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&jsonPaths, userPath)
		}
	}

	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if dir, err := DefaultConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, SystemConfigDir)

	for _, dir := range dirs {
		add(&jsonPaths, filepath.Join(dir, FlagsBaseName+".json"))
		add(&yamlPaths, filepath.Join(dir, FlagsBaseName+".yaml"))
		add(&yamlPaths, filepath.Join(dir, FlagsBaseName+".yml"))
		add(&tomlPaths, filepath.Join(dir, FlagsBaseName+".toml"))
	}
	return
}
