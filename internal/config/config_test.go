package config_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/remapd/device"
	"github.com/Alia5/remapd/internal/config"
	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

var k = keycode.MustParse

const yamlDoc = `
devices:
  - input_name: "AT Translated Set 2 keyboard"
    output_name: remapd-kbd
    remappings:
      KEY_CAPSLOCK: [KEY_ESC]
      "(KEY_LEFTMETA, KEY_F1)": [KEY_LEFTMETA, KEY_F1]
      "(KEY_LEFTCTRL, KEY_W)": [KEY_LEFTCTRL, KEY_X]
      "(KEY_LEFTCTRL, KEY_W, XTerm)": [KEY_LEFTCTRL, KEY_W]
      BTN_EXTRA: [{code: KEY_Z}, 30]
  - input_phys: "usb-*/input1"
    input_fn: /dev/input/event7
    remappings:
      KEY_F1: [BTN_LEFT]
`

const tomlDoc = `
[[devices]]
input_name = "AT Translated Set 2 keyboard"
output_name = "remapd-kbd"

[devices.remappings]
KEY_CAPSLOCK = ["KEY_ESC"]
"(KEY_LEFTCTRL, KEY_W, XTerm)" = ["KEY_LEFTCTRL", "KEY_W"]
BTN_EXTRA = [{ code = "KEY_Z" }, { code = 30 }]
`

const jsonDoc = `{
  "devices": [{
    "input_fn": "/dev/input/event3",
    "remappings": {
      "KEY_CAPSLOCK": ["KEY_ESC"],
      "(KEY_LEFTCTRL, KEY_W, XTerm)": ["KEY_LEFTCTRL", "KEY_W"],
      "BTN_EXTRA": [{"code": "KEY_Z"}, 30]
    }
  }]
}`

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format config.Format
	}{
		{name: "yaml", data: yamlDoc, format: config.FormatYAML},
		{name: "toml", data: tomlDoc, format: config.FormatTOML},
		{name: "json", data: jsonDoc, format: config.FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := config.Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			require.NotEmpty(t, doc.Devices)

			d := doc.Devices[0]
			assert.Equal(t, []config.Output{{Code: "KEY_ESC"}}, d.Remappings["KEY_CAPSLOCK"])
			assert.Equal(t, []config.Output{{Code: "KEY_Z"}, {Code: "30"}}, d.Remappings["BTN_EXTRA"])

			groups, err := doc.Groups()
			require.NoError(t, err)
			require.NotEmpty(t, groups)

			r, ok := groups[0].Table.Lookup(remap.MustCombo(k("KEY_LEFTCTRL"), k("KEY_W")), "XTerm")
			require.True(t, ok)
			assert.Equal(t, "XTerm", r.Condition)
			assert.Equal(t, []keycode.Code{k("KEY_LEFTCTRL"), k("KEY_W")}, r.Output)

			r, ok = groups[0].Table.Lookup(remap.Single(k("BTN_EXTRA")), "")
			require.True(t, ok)
			assert.Equal(t, []keycode.Code{k("KEY_Z"), k("KEY_A")}, r.Output)
		})
	}
}

func TestGroups(t *testing.T) {
	doc, err := config.Parse([]byte(yamlDoc), config.FormatYAML)
	require.NoError(t, err)

	groups, err := doc.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, 0, groups[0].Index)
	assert.Equal(t, device.Identity{Name: "AT Translated Set 2 keyboard"}, groups[0].Input)
	assert.Equal(t, "remapd-kbd", groups[0].Output)
	assert.Equal(t, 5, groups[0].Table.Len())

	assert.Equal(t, device.Identity{Phys: "usb-*/input1", Path: "/dev/input/event7"}, groups[1].Input)
	assert.Equal(t, config.DefaultOutputName, groups[1].Output)
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in        string
		keys      []string
		condition string
		wantErr   bool
	}{
		{in: "KEY_A", keys: []string{"KEY_A"}},
		{in: "key_a", keys: []string{"KEY_A"}},
		{in: "30", keys: []string{"KEY_A"}},
		{in: "(KEY_LEFTMETA, KEY_F1)", keys: []string{"KEY_LEFTMETA", "KEY_F1"}},
		{in: "(KEY_F1, KEY_LEFTMETA)", keys: []string{"KEY_LEFTMETA", "KEY_F1"}},
		{in: "(KEY_A)", keys: []string{"KEY_A"}},
		{in: "(KEY_LEFTCTRL, KEY_W, XTerm)", keys: []string{"KEY_LEFTCTRL", "KEY_W"}, condition: "XTerm"},
		{in: "(Firefox, KEY_Q)", keys: []string{"KEY_Q"}, condition: "Firefox"},
		{in: "(KEY_A, Foo, Bar)", wantErr: true},
		{in: "(XTerm)", wantErr: true},
		{in: "NOT_A_KEY", wantErr: true},
		{in: "()", wantErr: true},
		{in: "(KEY_A, KEY_A)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			trig, err := config.ParseTrigger(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var want []keycode.Code
			for _, n := range tt.keys {
				want = append(want, k(n))
			}
			assert.True(t, remap.MustCombo(want...).Equal(trig.Combo), "got %s", trig.Combo)
			assert.Equal(t, tt.condition, trig.Condition)
		})
	}
}

func TestSchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "missing devices", doc: `{}`},
		{name: "no input identifier", doc: `{"devices": [{"remappings": {"KEY_A": ["KEY_B"]}}]}`},
		{name: "empty output list", doc: `{"devices": [{"input_fn": "/dev/input/event3", "remappings": {"KEY_A": []}}]}`},
		{name: "unknown field", doc: `{"devices": [{"input_fn": "/dev/input/event3", "remap": {}, "remappings": {}}]}`},
		{name: "type override", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [{"code": "KEY_B", "type": "EV_REL"}]}}]}`},
		{name: "repeat and delay", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [{"code": "KEY_B", "repeat": true, "delay": true}]}}]}`},
		{name: "rate without repeat", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [{"code": "KEY_B", "rate": 0.5}]}}]}`},
		{name: "zero rate", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [{"code": "KEY_B", "repeat": true, "rate": 0}]}}]}`},
		{name: "value out of range", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [{"code": "KEY_B", "value": [1, 5]}]}}]}`},
		{name: "negative count", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [{"code": "KEY_B", "delay": true, "count": -1}]}}]}`},
		{name: "code out of range", doc: `{"devices": [{"input_fn": "x", "remappings": {"KEY_A": [70000]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc), config.FormatJSON)
			assert.Error(t, err)
		})
	}
}

const yamlOptions = `
devices:
  - input_fn: /dev/input/event7
    remappings:
      BTN_EXTRA:
        - KEY_LEFTSHIFT
        - {code: BTN_LEFT, value: [1, 0], repeat: true, rate: 0.25, count: 3}
        - {code: KEY_B, delay: true, count: 1}
        - {code: KEY_C, value: 1}
`

const tomlOptions = `
[[devices]]
input_fn = "/dev/input/event7"

[devices.remappings]
BTN_EXTRA = [
  { code = "KEY_LEFTSHIFT" },
  { code = "BTN_LEFT", value = [1, 0], repeat = true, rate = 0.25, count = 3 },
  { code = "KEY_B", delay = true, count = 1 },
  { code = "KEY_C", value = 1 },
]
`

func TestOutputOptions(t *testing.T) {
	for _, tt := range []struct {
		name   string
		data   string
		format config.Format
	}{
		{name: "yaml", data: yamlOptions, format: config.FormatYAML},
		{name: "toml", data: tomlOptions, format: config.FormatTOML},
	} {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := config.Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			outs := doc.Devices[0].Remappings["BTN_EXTRA"]
			require.Len(t, outs, 4)
			assert.True(t, outs[0].Plain())
			assert.Equal(t, config.Values{1, 0}, outs[1].Value)
			assert.Equal(t, config.Values{1}, outs[3].Value, "a single value becomes a list")

			groups, err := doc.Groups()
			require.NoError(t, err)
			r, ok := groups[0].Table.Lookup(remap.Single(k("BTN_EXTRA")), "")
			require.True(t, ok)
			assert.Equal(t, []keycode.Code{k("KEY_LEFTSHIFT")}, r.Output)
			assert.Equal(t, []remap.Action{
				{Code: k("BTN_LEFT"), Values: []remap.Value{remap.Pressed, remap.Released}, Repeat: true, Rate: 250 * time.Millisecond, Count: 3},
				{Code: k("KEY_B"), Delay: true, Count: 1},
				{Code: k("KEY_C"), Values: []remap.Value{remap.Pressed}},
			}, r.Actions)
			assert.Contains(t, groups[0].Table.OutputCodes(), k("BTN_LEFT"))
		})
	}
}

func TestOutputOptionErrors(t *testing.T) {
	doc := &config.Document{Devices: []config.Device{{
		InputFn: "/dev/input/event3",
		Remappings: map[string][]config.Output{
			"KEY_A": {{Code: "KEY_B", Count: 2}},
			"KEY_C": {{Code: "KEY_D", Rate: 0.5}},
		},
	}}}
	groups, err := doc.Groups()
	assert.Empty(t, groups)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count needs repeat or delay")
	assert.Contains(t, err.Error(), "rate needs repeat")
}

func TestGroupsReportConfigErrors(t *testing.T) {
	doc := &config.Document{Devices: []config.Device{
		{InputFn: "/dev/input/event3", Remappings: map[string][]config.Output{
			"KEY_A":         {{Code: "KEY_B"}},
			"(KEY_A)":       {{Code: "KEY_C"}},
			"(KEY_B, X, Y)": {{Code: "KEY_C"}},
		}},
		{InputFn: "/dev/input/event4", Remappings: map[string][]config.Output{
			"KEY_A": {{Code: "KEY_NOPE"}},
		}},
		{InputFn: "/dev/input/event5", Remappings: map[string][]config.Output{
			"KEY_F1": {{Code: "KEY_F5"}},
		}},
		{Remappings: map[string][]config.Output{"KEY_A": {{Code: "KEY_B"}}}},
	}}

	groups, err := doc.Groups()
	require.Error(t, err)
	require.Len(t, groups, 1, "valid groups are still returned")
	assert.Equal(t, 2, groups[0].Index)

	var cfgErr *remap.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "devices[0]")
	assert.Contains(t, err.Error(), "devices[1]")
	assert.Contains(t, err.Error(), "devices[3]")
	assert.Contains(t, err.Error(), "KEY_NOPE")
}

func TestTemplateRoundTrip(t *testing.T) {
	for _, f := range []config.Format{config.FormatJSON, config.FormatYAML} {
		t.Run(string(f), func(t *testing.T) {
			data, err := config.Marshal(config.Template(), f)
			require.NoError(t, err)
			doc, err := config.Parse(data, f)
			require.NoError(t, err)
			groups, err := doc.Groups()
			require.NoError(t, err)
			require.Len(t, groups, 1)
			assert.Equal(t, 5, groups[0].Table.Len())
			r, ok := groups[0].Table.Lookup(remap.Single(k("KEY_PAUSE")), "")
			require.True(t, ok)
			require.Len(t, r.Actions, 1)
			assert.True(t, r.Actions[0].Repeat)
		})
	}
}

func TestLoaderWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := config.NewLoader(path, logger)
	doc, err := l.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Devices, 2)

	changed := make(chan *config.Document, 4)
	l.OnChange(func(d *config.Document) { changed <- d })
	l.OnChange(func(*config.Document) {
		l.OnChange(func(*config.Document) {})
	})

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() { watchErr <- l.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("devices: [[[broken"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, l.Document().Devices, 2, "invalid reload keeps the previous document")

	require.NoError(t, os.WriteFile(path, []byte(jsonDoc), 0o644))
	select {
	case d := <-changed:
		require.Len(t, d.Devices, 1)
		assert.Equal(t, "/dev/input/event3", d.Devices[0].InputFn)
	case <-time.After(3 * time.Second):
		t.Fatal("reload not observed")
	}

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
