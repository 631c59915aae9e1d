package window

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// X11 reads the focused window's WM_CLASS through the EWMH
// _NET_ACTIVE_WINDOW property of the root window.
type X11 struct {
	conn   *xgb.Conn
	root   xproto.Window
	active xproto.Atom

	closeOnce sync.Once
}

// NewX11 connects to display (empty means $DISPLAY).
func NewX11(display string) (*X11, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to X display %q: %w", ErrUnavailable, display, err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root

	name := "_NET_ACTIVE_WINDOW"
	atom, err := xproto.InternAtom(conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: intern %s: %w", ErrUnavailable, name, err)
	}
	if atom.Atom == xproto.AtomNone {
		conn.Close()
		return nil, fmt.Errorf("%w: window manager does not support %s", ErrUnavailable, name)
	}

	return &X11{conn: conn, root: root, active: atom.Atom}, nil
}

// Class returns the class part of WM_CLASS of the active window. The X round
// trips do not observe ctx once started; NewProvider bounds them with
// WithTimeout.
func (x *X11) Class(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return x.query()
}

func (x *X11) query() (string, error) {
	prop, err := xproto.GetProperty(x.conn, false, x.root, x.active, xproto.GetPropertyTypeAny, 0, 1).Reply()
	if err != nil {
		return "", fmt.Errorf("%w: read active window: %w", ErrUnavailable, err)
	}
	if prop == nil || len(prop.Value) < 4 {
		return "", ErrUnavailable
	}
	win := xproto.Window(xgb.Get32(prop.Value))
	if win == 0 {
		return "", ErrUnavailable
	}

	cls, err := xproto.GetProperty(x.conn, false, win, xproto.AtomWmClass, xproto.AtomString, 0, 256).Reply()
	if err != nil {
		return "", fmt.Errorf("%w: read WM_CLASS of window 0x%x: %w", ErrUnavailable, uint32(win), err)
	}
	if cls == nil {
		return "", ErrUnavailable
	}
	class, ok := parseWMClass(cls.Value)
	if !ok {
		return "", ErrUnavailable
	}
	return class, nil
}

// parseWMClass extracts the class from a WM_CLASS value, which holds two
// NUL-terminated strings: instance name then class name.
func parseWMClass(v []byte) (string, bool) {
	parts := bytes.Split(bytes.TrimRight(v, "\x00"), []byte{0})
	if len(parts) < 2 || len(parts[1]) == 0 {
		return "", false
	}
	return string(parts[1]), true
}

func (x *X11) Close() error {
	x.closeOnce.Do(x.conn.Close)
	return nil
}
