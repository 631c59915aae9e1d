package config

import (
	"encoding/json"
	"fmt"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// Template returns an example document.
func Template() *Document {
	return &Document{Devices: []Device{{
		InputName:  "AT Translated Set 2 keyboard",
		OutputName: "remapd-kbd",
		Remappings: map[string][]Output{
			"KEY_CAPSLOCK":                 {{Code: "KEY_ESC"}},
			"(KEY_LEFTMETA, KEY_F1)":       {{Code: "KEY_LEFTMETA"}, {Code: "KEY_F1"}},
			"(KEY_LEFTCTRL, KEY_W)":        {{Code: "KEY_LEFTCTRL"}, {Code: "KEY_X"}},
			"(KEY_LEFTCTRL, KEY_W, XTerm)": {{Code: "KEY_LEFTCTRL"}, {Code: "KEY_W"}},
			"KEY_PAUSE":                    {{Code: "BTN_LEFT", Value: Values{1, 0}, Repeat: true, Rate: 0.05}},
		},
	}}}
}

// Marshal encodes doc in format f.
func Marshal(doc *Document, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		return toml.Marshal(*doc)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}
