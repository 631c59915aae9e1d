package remap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/remapd/keycode"
	"github.com/Alia5/remapd/remap"
)

func TestCombo(t *testing.T) {
	a := remap.MustCombo(k("KEY_W"), k("KEY_LEFTCTRL"))
	b := remap.MustCombo(k("KEY_LEFTCTRL"), k("KEY_W"))

	assert.True(t, a.Equal(b), "press order is irrelevant")
	assert.Equal(t, []keycode.Code{k("KEY_W"), k("KEY_LEFTCTRL")}, a.Keys(), "keys are ordered by code")
	assert.Equal(t, "(KEY_W, KEY_LEFTCTRL)", a.String())
	assert.Equal(t, "KEY_F1", remap.Single(k("KEY_F1")).String())
	assert.True(t, a.HeldIn(keycode.NewSet(k("KEY_W"), k("KEY_LEFTCTRL"), k("KEY_A"))))
	assert.False(t, a.HeldIn(keycode.NewSet(k("KEY_W"))))

	_, err := remap.NewCombo()
	assert.Error(t, err)
	_, err = remap.NewCombo(k("KEY_A"), k("KEY_A"))
	assert.Error(t, err)
}

func TestNewTableErrors(t *testing.T) {
	tests := []struct {
		name   string
		rules  []remap.Rule
		reason string
	}{
		{
			name:   "empty trigger",
			rules:  []remap.Rule{{Output: []keycode.Code{k("KEY_A")}}},
			reason: "empty trigger",
		},
		{
			name: "duplicate unconditioned trigger",
			rules: []remap.Rule{
				rule([]string{"KEY_A"}, "KEY_LEFTCTRL", "KEY_W"),
				rule([]string{"KEY_B"}, "KEY_W", "KEY_LEFTCTRL"),
			},
			reason: "duplicate trigger",
		},
		{
			name: "duplicate scoped trigger",
			rules: []remap.Rule{
				scoped("XTerm", rule([]string{"KEY_A"}, "KEY_F1")),
				scoped("XTerm", rule([]string{"KEY_B"}, "KEY_F1")),
			},
			reason: "duplicate trigger",
		},
		{
			name:   "repeated output key",
			rules:  []remap.Rule{rule([]string{"KEY_A", "KEY_A"}, "KEY_F1")},
			reason: "output key KEY_A listed twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := remap.NewTable(tt.rules)
			assert.Nil(t, tbl)
			var cfgErr *remap.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.reason, cfgErr.Reason)
		})
	}
}

func TestTableMatch(t *testing.T) {
	tbl := table(t,
		rule([]string{"KEY_X"}, "KEY_LEFTCTRL"),
		rule([]string{"KEY_LEFTCTRL", "KEY_X"}, "KEY_LEFTCTRL", "KEY_W"),
		scoped("XTerm", rule([]string{"KEY_LEFTCTRL", "KEY_W"}, "KEY_LEFTCTRL", "KEY_W")),
		scoped("Emacs", rule([]string{"KEY_F5"}, "KEY_F1")),
	)
	assert.Equal(t, 4, tbl.Len())
	assert.True(t, tbl.IsTriggerKey(k("KEY_W")))
	assert.False(t, tbl.IsTriggerKey(k("KEY_A")))
	assert.ElementsMatch(t,
		[]keycode.Code{k("KEY_X"), k("KEY_LEFTCTRL"), k("KEY_W"), k("KEY_F5")},
		tbl.OutputCodes())

	class := func(c string) remap.ClassFunc {
		return func() (string, bool) { return c, c != "" }
	}

	tests := []struct {
		name     string
		held     []string
		class    string
		expected string
	}{
		{name: "nothing held", held: nil, expected: ""},
		{name: "single key", held: []string{"KEY_LEFTCTRL"}, expected: "KEY_LEFTCTRL"},
		{name: "longest wins", held: []string{"KEY_LEFTCTRL", "KEY_W"}, expected: "(KEY_W, KEY_LEFTCTRL)"},
		{name: "extra keys allowed", held: []string{"KEY_A", "KEY_W", "KEY_LEFTCTRL"}, expected: "(KEY_W, KEY_LEFTCTRL)"},
		{name: "unrelated key", held: []string{"KEY_A"}, expected: ""},
		{name: "scoped only without class", held: []string{"KEY_F1"}, expected: ""},
		{name: "scoped only with class", held: []string{"KEY_F1"}, class: "Emacs", expected: "KEY_F1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			held := keycode.NewSet()
			for _, n := range tt.held {
				held.Add(k(n))
			}
			r := tbl.Match(held, class(tt.class))
			if tt.expected == "" {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.expected, r.Trigger.String())
		})
	}

	t.Run("scoped rule overrides unconditioned", func(t *testing.T) {
		held := keycode.NewSet(k("KEY_LEFTCTRL"), k("KEY_W"))
		r := tbl.Match(held, class("XTerm"))
		require.NotNil(t, r)
		assert.Equal(t, "XTerm", r.Condition)
		assert.Equal(t, []keycode.Code{k("KEY_LEFTCTRL"), k("KEY_W")}, r.Output)

		r = tbl.Match(held, class("firefox"))
		require.NotNil(t, r)
		assert.Empty(t, r.Condition)
	})

	t.Run("class only queried for scoped candidates", func(t *testing.T) {
		calls := 0
		fn := func() (string, bool) { calls++; return "XTerm", true }
		tbl.Match(keycode.NewSet(k("KEY_LEFTCTRL")), fn)
		assert.Equal(t, 0, calls)
		tbl.Match(keycode.NewSet(k("KEY_LEFTCTRL"), k("KEY_W"), k("KEY_F1")), fn)
		assert.Equal(t, 1, calls)
	})

	t.Run("lookup", func(t *testing.T) {
		trig := remap.MustCombo(k("KEY_W"), k("KEY_LEFTCTRL"))
		r, ok := tbl.Lookup(trig, "")
		require.True(t, ok)
		assert.Empty(t, r.Condition)
		r, ok = tbl.Lookup(trig, "XTerm")
		require.True(t, ok)
		assert.Equal(t, "XTerm", r.Condition)
		_, ok = tbl.Lookup(remap.Single(k("KEY_A")), "")
		assert.False(t, ok)
	})
}

func TestTableCanComplete(t *testing.T) {
	tbl := table(t,
		rule([]string{"KEY_F5"}, "KEY_LEFTCTRL", "KEY_LEFTALT", "KEY_F1"),
		rule([]string{"KEY_F6"}, "KEY_F2"),
	)
	set := func(names ...string) keycode.Set {
		s := keycode.NewSet()
		for _, n := range names {
			s.Add(k(n))
		}
		return s
	}

	assert.True(t, tbl.CanComplete([]keycode.Code{k("KEY_LEFTCTRL")}, set("KEY_LEFTCTRL")))
	assert.True(t, tbl.CanComplete([]keycode.Code{k("KEY_LEFTCTRL"), k("KEY_LEFTALT")}, set("KEY_LEFTCTRL", "KEY_LEFTALT")))
	assert.False(t, tbl.CanComplete([]keycode.Code{k("KEY_F2")}, set("KEY_F2")))
	assert.False(t, tbl.CanComplete([]keycode.Code{k("KEY_LEFTCTRL"), k("KEY_F2")}, set("KEY_LEFTCTRL", "KEY_F2")))
	assert.False(t, tbl.CanComplete(nil, set()))

	var nilTable *remap.Table
	assert.False(t, nilTable.CanComplete([]keycode.Code{k("KEY_A")}, set("KEY_A")))
	assert.Nil(t, nilTable.Match(set("KEY_A"), nil))
}

func TestConfigErrorMessage(t *testing.T) {
	err := &remap.ConfigError{Group: "devices[0]", Trigger: "KEY_F1", Condition: "XTerm", Reason: "duplicate trigger"}
	assert.Equal(t, `config devices[0]: trigger KEY_F1 [window "XTerm"]: duplicate trigger`, err.Error())
}
