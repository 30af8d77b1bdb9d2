package decision

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientHistory is returned when there is no prior day to build a range from.
var ErrInsufficientHistory = errors.New("decision: need at least two closes")

// Range is the trailing minimum and maximum, excluding the current day.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// ComputeRange returns the current close (the last element) and the range over
// every earlier close. Today is kept out of its own range so a new low or high
// stays detectable.
func ComputeRange(closes []decimal.Decimal) (decimal.Decimal, Range, error) {
	if len(closes) < 2 {
		return decimal.Decimal{}, Range{}, ErrInsufficientHistory
	}

	past := closes[:len(closes)-1]
	r := Range{Min: past[0], Max: past[0]}
	for _, c := range past[1:] {
		if c.LessThan(r.Min) {
			r.Min = c
		}
		if c.GreaterThan(r.Max) {
			r.Max = c
		}
	}

	return closes[len(closes)-1], r, nil
}
