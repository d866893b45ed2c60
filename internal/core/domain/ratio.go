package domain

import "fmt"

// Ratio is an exact rational exchange rate. Rates are never floats; the
// numerator/denominator pair survives storage round-trips without loss.
type Ratio struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// NewRatio builds a ratio, rejecting a zero denominator.
func NewRatio(numerator, denominator uint64) (Ratio, error) {
	if denominator == 0 {
		return Ratio{}, fmt.Errorf("ratio denominator must be non-zero")
	}
	return Ratio{Numerator: numerator, Denominator: denominator}, nil
}

// IsPositive reports whether the ratio is a strictly positive, well-formed rate.
func (r Ratio) IsPositive() bool {
	return r.Numerator > 0 && r.Denominator > 0
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
}
