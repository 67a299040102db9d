package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/application"
	"roleplay-realm-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// ActionOptions configura o ActionMiddleware.
type ActionOptions struct {
	Store  domain.WindowStore
	Stats  domain.StatsStore
	Logger *zap.Logger

	// ActorHeader identifica o usuário autenticado (padrão X-User-Id). Só é
	// lido com TrustActorHeader: o header precisa vir de um proxy de auth que
	// descarta o valor enviado pelo cliente. Caso contrário, ou sem o header,
	// o ator é ActorFallback (IP do cliente por padrão).
	ActorHeader      string
	TrustActorHeader bool
	ActorFallback    KeyFunc

	TrustXForwardedFor  bool
	AddRateLimitHeaders bool

	Now func() time.Time
}

type errorBody struct {
	Error string `json:"error"`
}

// ActionMiddleware limita `action` por ator com janela fixa.
//
// Rejeição: 429 com JSON {"error": action.Message} e Retry-After até o fim da
// janela; o próximo handler não é chamado. Aceito: segue e a cota já foi
// consumida, mesmo que o upstream falhe.
func ActionMiddleware(opts ActionOptions, action domain.Action) func(next http.Handler) http.Handler {
	if opts.ActorHeader == "" {
		opts.ActorHeader = "X-User-Id"
	}
	if opts.ActorFallback == nil {
		opts.ActorFallback = DefaultKeyFunc("", opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	msg := action.Message
	if msg == "" {
		msg = http.StatusText(http.StatusTooManyRequests)
	}

	svc := application.ActionService{
		Store:  opts.Store,
		Logger: opts.Logger,
		Now:    opts.Now,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor string
			if opts.TrustActorHeader {
				actor = strings.TrimSpace(r.Header.Get(opts.ActorHeader))
			}
			if actor == "" {
				actor = opts.ActorFallback(r)
			}

			res := svc.Check(r.Context(), action, actor)

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:       action.Key(actor),
					Action:    action.Name,
					Allowed:   res.Allowed,
					Remaining: res.Remaining,
					Method:    r.Method,
					Path:      r.URL.Path,
					At:        opts.Now(),
				}); err != nil {
					opts.Logger.Debug("rate limit stats record failed", zap.String("action", action.Name), zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", formatInt(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", formatInt64(res.ResetAt.Unix()))
			}

			if !res.Allowed {
				opts.Logger.Info("action rate limited",
					zap.String("action", action.Name),
					zap.String("actor", actor),
					zap.Time("reset_at", res.ResetAt),
				)
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(res.RetryAfter(opts.Now()))))
				writeJSONError(w, http.StatusTooManyRequests, msg)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds arredonda para cima; nunca menos que 1s em uma rejeição.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
