package application

import (
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"
)

// GuardService decide o guard por cliente (token bucket), antes das janelas por ação.
//
// Não sabe nada de HTTP (headers/status), apenas retorna uma decisão.
type GuardService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s GuardService) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	retry := s.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}
