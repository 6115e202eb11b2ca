// Package qvalue implements RFC 7231 quality values ("q=0.8") at
// milli-precision, as used by Accept and Accept-* header negotiation
// (spec §4.4, GLOSSARY "Q-value").
package qvalue

import (
	"fmt"
	"strconv"
	"strings"
)

// QValue is a quality factor in [0, 1000] representing [0.0, 1.0] at
// milli-precision, matching RFC 7231's three-decimal-digit grammar.
type QValue uint16

// Max is q=1.0, the default weight of an Accept entry with no q parameter.
const Max QValue = 1000

// Zero is q=0.0, meaning "not acceptable at all".
const Zero QValue = 0

// FromClamped builds a QValue from a milli value, clamping to [0, 1000].
func FromClamped(milli int) QValue {
	if milli < 0 {
		return Zero
	}
	if milli > int(Max) {
		return Max
	}
	return QValue(milli)
}

// Parse parses an RFC 7231 qvalue string: "0", "1", or "0.ddd"/"1.000"
// with one to three fractional digits. Returns false on any malformed
// input, including more than three fractional digits or a leading digit
// other than 0 or 1.
func Parse(s string) (QValue, bool) {
	if s == "" {
		return 0, false
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" {
		return 0, false
	}
	if len(frac) > 3 {
		return 0, false
	}
	switch whole {
	case "0":
	case "1":
		for _, c := range frac {
			if c != '0' {
				return 0, false
			}
		}
		return Max, true
	default:
		return 0, false
	}
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	padded := (frac + "000")[:3]
	n, err := strconv.Atoi(padded)
	if err != nil {
		return 0, false
	}
	return QValue(n), true
}

// String renders the canonical form: "1" for q=1.0, "0" for q=0,
// otherwise "0.ddd" with trailing zero fractional digits trimmed.
func (q QValue) String() string {
	if q >= Max {
		return "1"
	}
	if q == Zero {
		return "0"
	}
	s := fmt.Sprintf("0.%03d", uint16(q))
	for strings.HasSuffix(s, "0") && !strings.HasSuffix(s, ".0") {
		s = s[:len(s)-1]
	}
	return s
}

// Float64 returns the quality value as a float in [0, 1].
func (q QValue) Float64() float64 {
	return float64(q) / float64(Max)
}
