package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RunRecord is one row of penwatch_runs. Price columns stay NULL when the run
// failed before the figure was known.
type RunRecord struct {
	RunID      string
	ObservedAt time.Time
	Official   decimal.NullDecimal
	Street     decimal.NullDecimal
	Reference  decimal.NullDecimal
	Source     string
	RangeMin   decimal.NullDecimal
	RangeMax   decimal.NullDecimal
	LastPrice  decimal.NullDecimal
	Notified   bool
	Greeting   string
	Category   string
	Status     string
	Error      *string
	CreatedAt  time.Time
}
