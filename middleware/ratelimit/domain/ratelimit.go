package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica o par (ação, ator) que está sendo limitado, ex: "post:<userId>".
type Key string

// NewKey compõe a chave de uma ação para um ator. Ações diferentes contra o
// mesmo ator são contadas de forma independente.
func NewKey(action, actor string) Key {
	return Key(action + ":" + actor)
}

// Policy define uma janela fixa: no máximo MaxRequests dentro de Window.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

// Valid informa se a política é utilizável. Políticas com valores não positivos
// são tratadas pelos stores como "rejeita tudo".
func (p Policy) Valid() bool {
	return p.Window > 0 && p.MaxRequests > 0
}

// Result é a resposta de um Check.
//
// Rejeição é dado (Allowed=false), não erro: quem chama precisa olhar o campo.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt é o instante em que a janela corrente expira. Em uma rejeição,
	// continua sendo o fim da janela em curso (útil para Retry-After).
	ResetAt time.Time
	Limit   int
}

// RetryAfter calcula quanto falta para a janela virar, a partir de now.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || r.ResetAt.IsZero() {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// WindowStore mantém os contadores de janela fixa por chave.
//
// O store em memória nunca retorna erro; implementações remotas (Redis) podem.
type WindowStore interface {
	Check(ctx context.Context, key Key, p Policy) (Result, error)
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado pelo guard por IP (token bucket em golang.org/x/time/rate).
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
