package window

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Session is the kind of graphical session remapd runs under.
type Session string

const (
	SessionX11     Session = "x11"
	SessionWayland Session = "wayland"
	SessionTTY     Session = "tty"
	SessionUnknown Session = ""
)

const (
	logindDest    = "org.freedesktop.login1"
	logindSession = dbus.ObjectPath("/org/freedesktop/login1/session/auto")
	logindType    = "org.freedesktop.login1.Session.Type"
)

// SessionDetector finds the session type. Getenv and Logind are replaceable
// for tests; a nil Logind skips the D-Bus lookup.
type SessionDetector struct {
	Getenv func(string) string
	Logind func() (string, error)
}

// DetectSession inspects the environment and falls back to asking logind.
func DetectSession() Session {
	d := SessionDetector{Getenv: os.Getenv, Logind: logindSessionType}
	return d.Detect()
}

func (d SessionDetector) Detect() Session {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	switch strings.ToLower(getenv("XDG_SESSION_TYPE")) {
	case "x11":
		return SessionX11
	case "wayland":
		return SessionWayland
	case "tty":
		return SessionTTY
	}
	if getenv("WAYLAND_DISPLAY") != "" {
		return SessionWayland
	}
	if getenv("DISPLAY") != "" {
		return SessionX11
	}
	if d.Logind == nil {
		return SessionUnknown
	}
	t, err := d.Logind()
	if err != nil {
		return SessionUnknown
	}
	switch strings.ToLower(t) {
	case "x11":
		return SessionX11
	case "wayland":
		return SessionWayland
	case "tty":
		return SessionTTY
	}
	return SessionUnknown
}

func logindSessionType() (string, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return "", fmt.Errorf("connect system bus: %w", err)
	}
	defer conn.Close()

	v, err := conn.Object(logindDest, logindSession).GetProperty(logindType)
	if err != nil {
		return "", fmt.Errorf("read session type: %w", err)
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected session type %v", v.Value())
	}
	return s, nil
}

// ProviderOptions configures NewProvider.
type ProviderOptions struct {
	Display  string
	CacheTTL time.Duration
	Timeout  time.Duration
	Disabled bool
}

// NewProvider picks the provider for the current session: X11 when available,
// Unavailable otherwise. The returned close func releases the X connection.
func NewProvider(o *ProviderOptions, logger *slog.Logger) (Provider, func() error) {
	noop := func() error { return nil }
	if o == nil {
		o = &ProviderOptions{}
	}
	if o.Disabled {
		logger.Info("window-scoped rules disabled")
		return Unavailable{Reason: "disabled"}, noop
	}

	session := DetectSession()
	if session != SessionX11 && !(session == SessionUnknown && o.Display != "") {
		logger.Warn("window-scoped rules need an X11 session, they will never match", "session", string(session))
		return Unavailable{Reason: "session is " + sessionName(session)}, noop
	}

	x, err := NewX11(o.Display)
	if err != nil {
		logger.Warn("X11 window provider unavailable, window-scoped rules will never match", "error", err)
		return Unavailable{Reason: err.Error()}, noop
	}
	logger.Debug("X11 window provider connected", "display", o.Display)

	var p Provider = WithTimeout(x, queryTimeout(o))
	if o.CacheTTL > 0 {
		p = NewCached(p, o.CacheTTL)
	}
	return p, x.Close
}

// DefaultTimeout bounds an X11 query when ProviderOptions.Timeout is unset.
const DefaultTimeout = 50 * time.Millisecond

func queryTimeout(o *ProviderOptions) time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func sessionName(s Session) string {
	if s == SessionUnknown {
		return "unknown"
	}
	return string(s)
}
