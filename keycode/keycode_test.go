package keycode_test

import (
	"testing"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/remapd/keycode"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    keycode.Code
		wantErr bool
	}{
		{name: "symbolic", input: "KEY_A", want: keycode.Of(evdev.KEY_A)},
		{name: "lowercase", input: "key_leftmeta", want: keycode.Of(evdev.KEY_LEFTMETA)},
		{name: "surrounding space", input: "  KEY_F1 ", want: keycode.Of(evdev.KEY_F1)},
		{name: "numeric", input: "30", want: keycode.Of(evdev.KEY_A)},
		{name: "window class", input: "XTerm", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keycode.Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	c := keycode.Of(evdev.KEY_LEFTCTRL)
	assert.Equal(t, "KEY_LEFTCTRL", c.String())
	assert.Equal(t, c, keycode.MustParse(c.String()))
}

func TestStringPrefersButtonNames(t *testing.T) {
	tests := []struct {
		code evdev.EvCode
		want string
	}{
		{code: evdev.BTN_LEFT, want: "BTN_LEFT"},
		{code: evdev.BTN_SOUTH, want: "BTN_SOUTH"},
		{code: evdev.BTN_EAST, want: "BTN_EAST"},
		{code: evdev.BTN_TRIGGER, want: "BTN_TRIGGER"},
		{code: evdev.BTN_0, want: "BTN_0"},
		{code: evdev.KEY_MUTE, want: "KEY_MUTE"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c := keycode.Of(tt.code)
			assert.Equal(t, tt.want, c.String())
			assert.Equal(t, c, keycode.MustParse(c.String()))
		})
	}
	assert.Equal(t, keycode.Of(evdev.BTN_LEFT), keycode.MustParse("BTN_MOUSE"), "aliases still parse")
	assert.Equal(t, "code(752)", keycode.Code(752).String())
}

func TestSet(t *testing.T) {
	a, b, c := keycode.Of(evdev.KEY_A), keycode.Of(evdev.KEY_B), keycode.Of(evdev.KEY_C)
	s := keycode.NewSet(c, a)
	s.Add(b)
	assert.True(t, s.HasAll([]keycode.Code{a, b}))
	s.Remove(b)
	assert.False(t, s.Has(b))
	assert.Equal(t, []keycode.Code{a, c}, s.Sorted())
}
