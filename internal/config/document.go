// Package config loads the remap configuration document.
//
// The document lists device groups. Each group names an input device (by
// name, phys or device node), an output device and its remappings:
//
//	devices:
//	  - input_name: "AT Translated Set 2 keyboard"
//	    output_name: remapd-kbd
//	    remappings:
//	      KEY_CAPSLOCK: [KEY_ESC]
//	      "(KEY_LEFTMETA, KEY_F1)": [KEY_LEFTMETA, KEY_F1]
//	      "(KEY_LEFTCTRL, KEY_W, XTerm)": [KEY_LEFTCTRL, KEY_W]
//	      BTN_EXTRA: [{code: BTN_LEFT, value: [1, 0], repeat: true, rate: 0.05}]
//
// YAML, TOML and JSON are accepted and validated against an embedded JSON
// schema before use.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	yaml "gopkg.in/yaml.v3"
)

// DefaultOutputName is used for groups without output_name.
const DefaultOutputName = "remapd"

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if schemaErr = c.AddResource("schema.json", bytes.NewReader(schemaJSON)); schemaErr != nil {
			return
		}
		schema, schemaErr = c.Compile("schema.json")
	})
	return schema, schemaErr
}

// Document is a decoded remap configuration.
type Document struct {
	Devices []Device `json:"devices" yaml:"devices" toml:"devices"`
}

// Device is one mapping group of the document.
type Device struct {
	InputName  string              `json:"input_name,omitempty" yaml:"input_name,omitempty" toml:"input_name,omitempty"`
	InputPhys  string              `json:"input_phys,omitempty" yaml:"input_phys,omitempty" toml:"input_phys,omitempty"`
	InputFn    string              `json:"input_fn,omitempty" yaml:"input_fn,omitempty" toml:"input_fn,omitempty"`
	OutputName string              `json:"output_name,omitempty" yaml:"output_name,omitempty" toml:"output_name,omitempty"`
	Remappings map[string][]Output `json:"remappings" yaml:"remappings" toml:"remappings"`
}

// Output is one element of a remapping's output list: a key name, a raw code
// or an object {code: ...} with optional timing options.
type Output struct {
	Code   string  `json:"code" yaml:"code" toml:"code"`
	Value  Values  `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Repeat bool    `json:"repeat,omitempty" yaml:"repeat,omitempty" toml:"repeat,omitempty"`
	Delay  bool    `json:"delay,omitempty" yaml:"delay,omitempty" toml:"delay,omitempty"`
	Rate   float64 `json:"rate,omitempty" yaml:"rate,omitempty" toml:"rate,omitempty"`
	Count  int     `json:"count,omitempty" yaml:"count,omitempty" toml:"count,omitempty"`
}

// Plain reports whether the output is an ordinary held key.
func (o Output) Plain() bool {
	return len(o.Value) == 0 && !o.Repeat && !o.Delay && o.Rate == 0 && o.Count == 0
}

func (o *Output) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Code   json.RawMessage `json:"code"`
			Value  Values          `json:"value"`
			Repeat bool            `json:"repeat"`
			Delay  bool            `json:"delay"`
			Rate   float64         `json:"rate"`
			Count  int             `json:"count"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		o.Value, o.Repeat, o.Delay, o.Rate, o.Count = obj.Value, obj.Repeat, obj.Delay, obj.Rate, obj.Count
		data = obj.Code
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Code = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("output must be a key name, a code or {code: ...}: %s", data)
	}
	o.Code = n.String()
	return nil
}

// Values is the value option of an output: one event value or a list.
type Values []int

func (v *Values) UnmarshalJSON(data []byte) error {
	var one int
	if err := json.Unmarshal(data, &one); err == nil {
		*v = Values{one}
		return nil
	}
	var list []int
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("value must be a number or a list of numbers: %s", data)
	}
	*v = list
	return nil
}

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension. Unknown extensions are
// read as YAML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// LoadFile reads and validates the document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	doc, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes data in format f, validates it against the schema and
// returns the document.
func Parse(data []byte, f Format) (*Document, error) {
	var raw any
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		raw = tree.ToMap()
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}

	// Round trip through JSON so every format validates and decodes the same way.
	js, err := json.Marshal(normalize(raw))
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := sch.Validate(generic); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &doc, nil
}

// normalize converts YAML's map[any]any (produced for non-string keys such
// as raw key codes) into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
