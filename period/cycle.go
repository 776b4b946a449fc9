package period

import (
	"fmt"
	"strings"
	"time"
)

// Cycle is a utility meter reset cycle
type Cycle string

const (
	Hourly  Cycle = "hourly"
	Daily   Cycle = "daily"
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// Cycles lists all supported cycles
var Cycles = []Cycle{Hourly, Daily, Monthly, Yearly}

// ParseCycle parses a cycle name
func ParseCycle(s string) (Cycle, error) {
	c := Cycle(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Hourly, Daily, Monthly, Yearly:
		return c, nil
	}
	return "", fmt.Errorf("invalid cycle: %s", s)
}

// Window returns the cycle window containing now
func (c Cycle) Window(now time.Time) Window {
	switch c {
	case Hourly:
		return Hour(now)
	case Monthly:
		return ThisMonth(now)
	case Yearly:
		return Year(now)
	default:
		return Today(now)
	}
}
