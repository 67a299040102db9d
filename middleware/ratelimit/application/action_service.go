package application

import (
	"context"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// ActionService aplica a janela fixa de uma ação para um ator.
//
// Deve ser chamado antes do efeito colateral. Não há devolução de cota se o
// efeito falhar depois de aceito.
type ActionService struct {
	Store  domain.WindowStore
	Logger *zap.Logger
	// Now é usado só no fail-open; nil usa time.Now.
	Now func() time.Time
}

// Check nunca falha: erro do store (ex: Redis fora) vira fail-open com log warn.
func (s ActionService) Check(ctx context.Context, action domain.Action, actor string) domain.Result {
	if s.Store == nil {
		return s.failOpen(action)
	}

	key := action.Key(actor)
	res, err := s.Store.Check(ctx, key, action.Policy)
	if err != nil {
		s.logger().Warn("action rate limit store failed, allowing request",
			zap.String("action", action.Name),
			zap.String("key", string(key)),
			zap.Error(err),
		)
		return s.failOpen(action)
	}
	return res
}

func (s ActionService) failOpen(action domain.Action) domain.Result {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return domain.Result{
		Allowed:   true,
		Remaining: max(action.Policy.MaxRequests, 0),
		ResetAt:   now().Add(action.Policy.Window),
		Limit:     max(action.Policy.MaxRequests, 0),
	}
}

func (s ActionService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
