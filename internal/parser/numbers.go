package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var errNotDecimal = errors.New("expected unsigned decimal digits")

// parseUint parses plain ASCII decimal digits. Signs are rejected here rather
// than left to strconv, which would accept a leading '+'.
func parseUint(s string, bitSize int) (uint64, error) {
	if !isDigits(s) {
		return 0, errNotDecimal
	}
	return strconv.ParseUint(s, 10, bitSize)
}

// parseSeconds parses a decimal seconds value such as "9.009" into an exact
// time.Duration. Digits past nanosecond resolution are truncated.
func parseSeconds(s string) (time.Duration, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, errNotDecimal
	}
	if (whole != "" && !isDigits(whole)) || (frac != "" && !isDigits(frac)) {
		return 0, errNotDecimal
	}

	var secs uint64
	if whole != "" {
		v, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, err
		}
		secs = v
	}
	if secs > math.MaxInt64/uint64(time.Second) {
		return 0, strconv.ErrRange
	}

	if len(frac) > 9 {
		frac = frac[:9]
	}
	var nanos uint64
	if frac != "" {
		v, err := strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, err
		}
		nanos = v
	}

	d := time.Duration(secs)*time.Second + time.Duration(nanos)
	if d < 0 {
		return 0, strconv.ErrRange
	}
	return d, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
