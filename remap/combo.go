package remap

import (
	"fmt"
	"strings"

	"github.com/Alia5/remapd/keycode"
)

// Combo is a set of keys that must be held together to trigger a rule.
// Keys are stored in canonical (ascending) order; the order a user writes
// them in, or presses them in, does not matter.
type Combo struct {
	keys []keycode.Code
	id   string
}

// Single returns the combo made of one key.
func Single(c keycode.Code) Combo {
	return Combo{keys: []keycode.Code{c}, id: comboID([]keycode.Code{c})}
}

// NewCombo canonicalises codes into a combo. Empty input and repeated keys
// are rejected.
func NewCombo(codes ...keycode.Code) (Combo, error) {
	if len(codes) == 0 {
		return Combo{}, fmt.Errorf("combo has no keys")
	}
	keys := make([]keycode.Code, len(codes))
	copy(keys, codes)
	keycode.Sort(keys)
	for i := 1; i < len(keys); i++ {
		if keys[i] == keys[i-1] {
			return Combo{}, fmt.Errorf("key %s repeated in combo", keys[i])
		}
	}
	return Combo{keys: keys, id: comboID(keys)}, nil
}

// MustCombo is like NewCombo but panics on error.
func MustCombo(codes ...keycode.Code) Combo {
	c, err := NewCombo(codes...)
	if err != nil {
		panic(err)
	}
	return c
}

func comboID(keys []keycode.Code) string {
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", uint16(k))
	}
	return b.String()
}

// Keys returns a copy of the keys in canonical order.
func (c Combo) Keys() []keycode.Code {
	out := make([]keycode.Code, len(c.keys))
	copy(out, c.keys)
	return out
}

func (c Combo) Len() int           { return len(c.keys) }
func (c Combo) IsZero() bool       { return len(c.keys) == 0 }
func (c Combo) Equal(o Combo) bool { return c.id == o.id }

// Contains reports whether k is part of the combo.
func (c Combo) Contains(k keycode.Code) bool {
	for _, x := range c.keys {
		if x == k {
			return true
		}
	}
	return false
}

// HeldIn reports whether every key of the combo is in held.
func (c Combo) HeldIn(held keycode.Set) bool {
	return held.HasAll(c.keys)
}

func (c Combo) String() string {
	if len(c.keys) == 1 {
		return c.keys[0].String()
	}
	return "(" + strings.Join(keycode.Names(c.keys), ", ") + ")"
}
