// Package tax computes per-channel tax amounts for invoice lines.
//
// Rates are percent values (5 means 5%). GST and PST are independent
// channels; each one is computed from its own rate, in inclusive mode too.
package tax

// Mode represents how tax is applied to a line total.
type Mode string

const (
	ModeExclusive Mode = "exclusive" // subtotal + tax
	ModeInclusive Mode = "inclusive" // total already includes tax
)

// Valid reports whether m is a known tax mode.
func (m Mode) Valid() bool {
	return m == ModeExclusive || m == ModeInclusive
}

// ComputeExclusive returns the tax added on top of subtotal.
func ComputeExclusive(subtotal, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return subtotal * rate / 100
}

// ComputeInclusive returns the tax portion already embedded in a
// tax-inclusive subtotal.
func ComputeInclusive(subtotal, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return subtotal * (1 - 1/(1+rate/100))
}

// Compute dispatches on mode. Negative subtotals pass through unchanged so
// credit lines carry negative tax.
func Compute(mode Mode, subtotal, rate float64) float64 {
	if mode == ModeInclusive {
		return ComputeInclusive(subtotal, rate)
	}
	return ComputeExclusive(subtotal, rate)
}
