package remap

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed or contradictory remap table. It is raised
// while the table is built, so a table is either complete or not built at all.
type ConfigError struct {
	Group     string
	Trigger   string
	Condition string
	Reason    string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Group != "" {
		fmt.Fprintf(&b, " %s", e.Group)
	}
	if e.Trigger != "" {
		fmt.Fprintf(&b, ": trigger %s", e.Trigger)
	}
	if e.Condition != "" {
		fmt.Fprintf(&b, " [window %q]", e.Condition)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}
