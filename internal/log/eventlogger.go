package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// EventLogger writes one line per input or output event.
type EventLogger interface {
	Log(in bool, source string, ev fmt.Stringer)
}

type eventLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewEventLogger returns an EventLogger writing to w. A nil w discards.
func NewEventLogger(w io.Writer) EventLogger {
	return &eventLogger{w: w, now: time.Now}
}

// Log writes a timestamped record. in=true is an event read from a physical
// device, in=false one written to a virtual device.
func (l *eventLogger) Log(in bool, source string, ev fmt.Stringer) {
	if l.w == nil || ev == nil {
		return
	}
	dir := "OUT"
	if in {
		dir = "IN "
	}
	line := fmt.Sprintf("%s %s %s %s\n", l.now().Format("15:04:05.000000"), dir, source, ev)

	l.mu.Lock()
	_, _ = io.WriteString(l.w, line)
	l.mu.Unlock()
}
