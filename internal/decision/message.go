package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MessageContext carries the figures shown in a notification.
type MessageContext struct {
	Outcome  Outcome
	Price    decimal.Decimal
	Last     decimal.Decimal
	Source   Source
	Official decimal.Decimal
	Street   decimal.NullDecimal
	Range    Range
	Now      time.Time
	Seed     int64
}

// RenderMessage builds the Telegram Markdown text. A greeting and a price
// alert in the same run share one message.
func RenderMessage(mc MessageContext) string {
	var b strings.Builder

	if line := SelectGreeting(mc.Outcome.Greeting, mc.Seed); line != "" {
		b.WriteString("*" + line + "*\n\n")
	}

	phrase := SelectPhrase(mc.Outcome.Category, mc.Seed)
	fmt.Fprintf(&b, "%s *%s*: el dólar está en *S/ %s*", phrase.Icon, phrase.Title, mc.Price.StringFixed(3))
	if mc.Source == SourceStreet {
		b.WriteString(" (paralelo)")
	}
	b.WriteString("\n")
	b.WriteString("_" + phrase.Hint + "_\n\n")

	if mc.Street.Valid {
		fmt.Fprintf(&b, "💵 Paralelo: S/ %s\n", mc.Street.Decimal.StringFixed(3))
	}
	fmt.Fprintf(&b, "🏦 Oficial: S/ %s\n", mc.Official.StringFixed(3))
	fmt.Fprintf(&b, "📊 Rango 30 días: S/ %s – S/ %s\n", mc.Range.Min.StringFixed(3), mc.Range.Max.StringFixed(3))

	if !mc.Last.IsZero() && !mc.Outcome.Delta.IsZero() {
		sign := ""
		if mc.Outcome.Delta.IsPositive() {
			sign = "+"
		}
		fmt.Fprintf(&b, "↕️ Cambio vs último aviso: %s%s\n", sign, mc.Outcome.Delta.StringFixed(3))
	}

	fmt.Fprintf(&b, "🕒 %s", mc.Now.Format("02/01/2006 15:04"))
	return b.String()
}
