package match

import (
	"strconv"
	"strings"
	"time"
)

// MTimeOp is the comparison an mtime predicate applies.
type MTimeOp int

const (
	// OpExact matches objects whose age is exactly n whole days
	// (n <= age < n+1).
	OpExact MTimeOp = iota
	// OpGreater matches objects older than n days.
	OpGreater
	// OpLess matches objects younger than n days.
	OpLess
)

// MTime is a find-style age predicate over whole 24-hour periods:
// "+n" means age > n days, bare "n" means exactly n days, "-n" means
// age < n days.
type MTime struct {
	Op   MTimeOp
	Days int
}

// ParseMTime parses an mtime expression. Empty input yields nil (no
// predicate). Anything that is not an optionally signed non-negative
// integer yields an InvalidPatternError.
func ParseMTime(expr string) (*MTime, error) {
	if expr == "" {
		return nil, nil
	}

	m := &MTime{Op: OpExact}

	digits := expr
	switch {
	case strings.HasPrefix(expr, "+"):
		m.Op = OpGreater
		digits = expr[1:]
	case strings.HasPrefix(expr, "-"):
		m.Op = OpLess
		digits = expr[1:]
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || digits != strconv.Itoa(n) {
		return nil, &InvalidPatternError{
			Expr:   expr,
			Reason: "mtime must be +N, N, or -N where N is a non-negative number of days",
		}
	}

	m.Days = n

	return m, nil
}

// Match reports whether an object of the given age satisfies the predicate.
// Age is truncated to whole 24-hour periods; a modification time in the
// future counts as age zero.
func (m *MTime) Match(age time.Duration) bool {
	if age < 0 {
		age = 0
	}

	days := int(age / (24 * time.Hour))

	switch m.Op {
	case OpGreater:
		return days > m.Days
	case OpLess:
		return days < m.Days
	default:
		return days == m.Days
	}
}

// String renders the predicate back in its command-line form.
func (m *MTime) String() string {
	switch m.Op {
	case OpGreater:
		return "+" + strconv.Itoa(m.Days)
	case OpLess:
		return "-" + strconv.Itoa(m.Days)
	default:
		return strconv.Itoa(m.Days)
	}
}
