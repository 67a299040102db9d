package infra

import (
	"context"
	"sync"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"
)

// DefaultSweepThreshold é o número de chaves distintas acima do qual um Check
// faz a varredura de janelas expiradas.
const DefaultSweepThreshold = 10000

// MemoryWindowStore é um contador de janela fixa por chave, em memória e local
// ao processo.
//
// Não há goroutine de limpeza: registros expirados só saem do mapa quando o
// número de chaves passa do threshold (varredura oportunista dentro do Check).
// Em várias instâncias, cada uma tem seu mapa (limite efetivo = max × instâncias).
type MemoryWindowStore struct {
	mu      sync.Mutex
	records map[domain.Key]*windowRecord

	sweepThreshold int
	now            func() time.Time
}

type windowRecord struct {
	count   int
	resetAt time.Time
}

type MemoryWindowOption func(*MemoryWindowStore)

// WithSweepThreshold define a partir de quantas chaves o Check varre expirados.
// Valores <= 0 mantêm o padrão.
func WithSweepThreshold(n int) MemoryWindowOption {
	return func(s *MemoryWindowStore) {
		if n > 0 {
			s.sweepThreshold = n
		}
	}
}

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) MemoryWindowOption {
	return func(s *MemoryWindowStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		records:        make(map[domain.Key]*windowRecord),
		sweepThreshold: DefaultSweepThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implementa domain.WindowStore. Nunca retorna erro.
//
// Política inválida (Window <= 0 ou MaxRequests <= 0) rejeita sempre, sem
// tocar no mapa.
func (s *MemoryWindowStore) Check(_ context.Context, key domain.Key, p domain.Policy) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if !p.Valid() {
		return domain.Result{Allowed: false, Remaining: 0, ResetAt: now, Limit: max(p.MaxRequests, 0)}, nil
	}

	if len(s.records) > s.sweepThreshold {
		s.sweepLocked(now)
	}

	rec, ok := s.records[key]
	if !ok || rec.resetAt.Before(now) {
		rec = &windowRecord{count: 1, resetAt: now.Add(p.Window)}
		s.records[key] = rec
		return domain.Result{
			Allowed:   true,
			Remaining: p.MaxRequests - 1,
			ResetAt:   rec.resetAt,
			Limit:     p.MaxRequests,
		}, nil
	}

	if rec.count >= p.MaxRequests {
		return domain.Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   rec.resetAt,
			Limit:     p.MaxRequests,
		}, nil
	}

	rec.count++
	return domain.Result{
		Allowed:   true,
		Remaining: p.MaxRequests - rec.count,
		ResetAt:   rec.resetAt,
		Limit:     p.MaxRequests,
	}, nil
}

// Len devolve quantas chaves estão no mapa (incluindo expiradas ainda não varridas).
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryWindowStore) sweepLocked(now time.Time) {
	for k, rec := range s.records {
		if rec.resetAt.Before(now) {
			delete(s.records, k)
		}
	}
}
