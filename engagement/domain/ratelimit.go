package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// ActionClass identifica a classe de ação limitada por usuário.
type ActionClass string

const (
	ActionContact ActionClass = "contact"
	ActionRating  ActionClass = "rating"
)

// WindowKind define como a janela de contagem é delimitada.
type WindowKind int

const (
	// WindowTrailing: janela fixa que começa no primeiro evento e dura Length.
	WindowTrailing WindowKind = iota
	// WindowCalendarDay: janela que reinicia à meia-noite UTC.
	WindowCalendarDay
)

// Policy é o limite configurado para uma classe de ação.
type Policy struct {
	Class  ActionClass
	Limit  int
	Kind   WindowKind
	Length time.Duration // usado apenas por WindowTrailing
}

// WindowStart devolve o início da janela corrente de uma política de calendário.
func (p Policy) WindowStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Exceeded diz se uma contagem já consumiu o limite (a próxima ação deve ser negada).
func (p Policy) Exceeded(count int64) bool {
	return count >= int64(p.Limit)
}

// DefaultContactPolicy: janela móvel de uma hora, 10 contatos.
func DefaultContactPolicy() Policy {
	return Policy{Class: ActionContact, Limit: 10, Kind: WindowTrailing, Length: time.Hour}
}

// DefaultRatingPolicy: dia de calendário UTC, 20 avaliações.
func DefaultRatingPolicy() Policy {
	return Policy{Class: ActionRating, Limit: 20, Kind: WindowCalendarDay}
}

// Key identifica o cliente no guarda de rajada (flood guard) do transporte.
type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: a implementação pode ser token-bucket, leaky-bucket, etc.
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: usuário).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
