package decision

import "math/rand/v2"

// Phrase is one pre-written message variant.
type Phrase struct {
	Icon  string
	Title string
	Hint  string
}

var phrases = map[Category][]Phrase{
	CategoryLow: {
		{Icon: "🚨", Title: "BAJO DEL MES", Hint: "Buen momento para COMPRAR dólares."},
		{Icon: "🟢", Title: "MÍNIMO MENSUAL", Hint: "El dólar está barato, aprovecha para comprar."},
		{Icon: "📉", Title: "NUEVO PISO", Hint: "Precio en su punto más bajo del mes."},
	},
	CategoryHigh: {
		{Icon: "📈", Title: "ALTO DEL MES", Hint: "Buen momento para VENDER dólares."},
		{Icon: "🔴", Title: "MÁXIMO MENSUAL", Hint: "El dólar está caro, evalúa vender."},
		{Icon: "🚀", Title: "NUEVO TECHO", Hint: "Precio en su punto más alto del mes."},
	},
	CategoryUp: {
		{Icon: "⬆️", Title: "SUBE EL DÓLAR", Hint: "Movimiento al alza desde el último aviso."},
		{Icon: "🔺", Title: "AL ALZA", Hint: "El tipo de cambio viene subiendo."},
	},
	CategoryDown: {
		{Icon: "⬇️", Title: "BAJA EL DÓLAR", Hint: "Movimiento a la baja desde el último aviso."},
		{Icon: "🔻", Title: "A LA BAJA", Hint: "El tipo de cambio viene bajando."},
	},
	CategoryFlat: {
		{Icon: "➖", Title: "SIN CAMBIOS", Hint: "El precio se mantiene desde el último aviso."},
	},
}

var greetings = map[Greeting][]string{
	GreetingOpen: {
		"☀️ ¡Buenos días! Abre el mercado cambiario.",
		"🔔 Arranca la jornada cambiaria.",
		"☕ Inicio de operaciones, así está el dólar.",
	},
	GreetingClose: {
		"🌙 Cierre de la jornada cambiaria.",
		"🔕 Termina el día en el mercado.",
		"🏁 Así cierra el dólar hoy.",
	},
}

// SelectPhrase deterministically picks a variant for the category from the seed.
func SelectPhrase(category Category, seed int64) Phrase {
	variants, ok := phrases[category]
	if !ok || len(variants) == 0 {
		variants = phrases[CategoryFlat]
	}
	return variants[pick(len(variants), seed)]
}

// SelectGreeting deterministically picks the greeting line; empty for GreetingNone.
func SelectGreeting(greeting Greeting, seed int64) string {
	variants := greetings[greeting]
	if len(variants) == 0 {
		return ""
	}
	return variants[pick(len(variants), seed)]
}

func pick(n int, seed int64) int {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(n)))
	return rng.IntN(n)
}
