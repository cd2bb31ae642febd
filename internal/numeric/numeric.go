// Package numeric normalizes user-entered numeric text before billing math.
package numeric

import (
	"math"
	"strconv"
	"strings"
)

// Normalize replaces comma decimal separators with periods and trims
// surrounding whitespace.
func Normalize(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
}

// Parse returns the decimal value of raw, tolerating a comma as the decimal
// separator. Empty or malformed input parses to 0; the format check stays the
// caller's concern (see Valid) so coercion never hides a rejected save.
func Parse(raw string) float64 {
	v, err := strconv.ParseFloat(Normalize(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Valid reports whether raw parses as a finite decimal number after
// normalization. strconv accepts "NaN" and "Inf" spellings, which are not
// numbers for billing purposes: NaN defeats range checks and an infinity
// would poison every aggregate it reaches. Empty input is not valid;
// presence is validated separately.
func Valid(raw string) bool {
	v, err := strconv.ParseFloat(Normalize(raw), 64)
	return err == nil && !math.IsNaN(v) && !math.IsInf(v, 0)
}
