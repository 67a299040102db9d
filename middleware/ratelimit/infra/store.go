package infra

import (
	"context"
	"sync"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TokenBucketStore guarda um token bucket (x/time/rate) por cliente. É o guard
// de flood por IP que roda antes das janelas por ação.
//
// Diferente do MemoryWindowStore, a limpeza aqui é por inatividade e roda em
// uma goroutine (StartJanitor).
type TokenBucketStore struct {
	mu           sync.Mutex
	buckets      map[domain.Key]*bucket
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	logger       *zap.Logger
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucketStore)

func WithIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.cleanupEvery = d }
}

func WithBucketLogger(l *zap.Logger) TokenBucketOption {
	return func(s *TokenBucketStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewTokenBucketStore(rps float64, burst int, opts ...TokenBucketOption) *TokenBucketStore {
	s := &TokenBucketStore{
		buckets:      make(map[domain.Key]*bucket),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenBucketStore) RPS() float64 { return float64(s.rps) }
func (s *TokenBucketStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *TokenBucketStore) Get(key domain.Key) domain.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup remove buckets sem uso há mais de idleTTL e devolve quantos saíram.
func (s *TokenBucketStore) Cleanup() int {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa buckets inativos periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Cleanup(); n > 0 {
					s.logger.Debug("ip guard buckets evicted", zap.Int("removed", n), zap.Int("remaining", s.Len()))
				}
			}
		}
	}()
}
