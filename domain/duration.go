package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationLiteralRe = regexp.MustCompile(`^(\d+)([mhdw])$`)

// ParseDurationLiteral parses the wire duration grammar from spec.md §6.2:
// `\d+[mhd]` for SLA policies, `\d+[mhdw]` for snooze. allowWeeks gates
// the `w` unit so a caller that only accepts the SLA grammar rejects a
// snooze-style literal with a clear message instead of silently
// succeeding.
func ParseDurationLiteral(literal string, allowWeeks bool) (time.Duration, error) {
	m := durationLiteralRe.FindStringSubmatch(literal)
	if m == nil {
		return 0, fmt.Errorf("invalid duration literal %q", literal)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration literal %q", literal)
	}
	unit := m[2]
	if unit == "w" && !allowWeeks {
		return 0, fmt.Errorf("invalid duration literal %q: weeks not allowed here", literal)
	}
	switch unit {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration literal %q", literal)
	}
}
