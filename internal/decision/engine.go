package decision

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format stored for greeting guards.
const DateLayout = "2006-01-02"

// Source names where the reference price came from.
type Source string

const (
	SourceOfficial Source = "official"
	SourceStreet   Source = "street"
)

// Greeting identifies a scheduled open/close message.
type Greeting string

const (
	GreetingNone  Greeting = ""
	GreetingOpen  Greeting = "open"
	GreetingClose Greeting = "close"
)

// Category drives message wording only; it never affects the send decision.
type Category string

const (
	CategoryLow  Category = "low"
	CategoryHigh Category = "high"
	CategoryUp   Category = "up"
	CategoryDown Category = "down"
	CategoryFlat Category = "flat"
)

// Memory is the subset of persisted state the engine reads and updates.
type Memory struct {
	LastPrice      decimal.Decimal
	LastOpenedDate string
	LastClosedDate string
}

// Equal compares two memories by value.
func (m Memory) Equal(o Memory) bool {
	return m.LastPrice.Equal(o.LastPrice) &&
		m.LastOpenedDate == o.LastOpenedDate &&
		m.LastClosedDate == o.LastClosedDate
}

// Policy holds the fixed tuning of the engine.
type Policy struct {
	Threshold decimal.Decimal
	OpenHour  int
	CloseHour int
}

// Input is everything a single decision depends on.
type Input struct {
	Price  decimal.Decimal
	Range  Range
	Memory Memory
	// Now must already be in the alerting timezone.
	Now time.Time
}

// Outcome is the result of one decision.
type Outcome struct {
	Notify     bool
	PriceAlert bool
	Greeting   Greeting
	Category   Category
	Delta      decimal.Decimal
	Memory     Memory
	Changed    bool
}

// Engine applies the notification policy.
type Engine struct {
	policy Policy
}

// NewEngine builds an engine for the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine tuning.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Decide evaluates greetings first, then the price threshold rules.
func (e *Engine) Decide(in Input) Outcome {
	next := in.Memory
	today := in.Now.Format(DateLayout)

	greeting := GreetingNone
	switch hour := in.Now.Hour(); {
	case hour == e.policy.OpenHour && in.Memory.LastOpenedDate != today:
		greeting = GreetingOpen
		next.LastOpenedDate = today
	case hour == e.policy.CloseHour && in.Memory.LastClosedDate != today:
		greeting = GreetingClose
		next.LastClosedDate = today
	}

	delta := in.Price.Sub(in.Memory.LastPrice)
	diff := delta.Abs()
	moved := !diff.IsZero()
	atLow := in.Price.LessThanOrEqual(in.Range.Min)
	atHigh := in.Price.GreaterThanOrEqual(in.Range.Max)

	priceAlert := diff.GreaterThanOrEqual(e.policy.Threshold) ||
		(atLow && moved) ||
		(atHigh && moved)

	notify := priceAlert || greeting != GreetingNone
	if notify {
		next.LastPrice = in.Price
	}

	return Outcome{
		Notify:     notify,
		PriceAlert: priceAlert,
		Greeting:   greeting,
		Category:   categorize(in.Price, in.Memory.LastPrice, in.Range),
		Delta:      delta,
		Memory:     next,
		Changed:    !next.Equal(in.Memory),
	}
}

func categorize(price, last decimal.Decimal, r Range) Category {
	switch {
	case price.LessThanOrEqual(r.Min):
		return CategoryLow
	case price.GreaterThanOrEqual(r.Max):
		return CategoryHigh
	case price.GreaterThan(last):
		return CategoryUp
	case price.LessThan(last):
		return CategoryDown
	default:
		return CategoryFlat
	}
}

// ReferencePrice prefers the street quote when present.
func ReferencePrice(official decimal.Decimal, street decimal.NullDecimal) (decimal.Decimal, Source) {
	if street.Valid {
		return street.Decimal, SourceStreet
	}
	return official, SourceOfficial
}
