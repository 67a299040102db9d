package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript faz leitura, criação e incremento da janela em uma única
// chamada atômica no Redis. A janela é um hash {count, reset}; reset é o fim
// absoluto em ms, então rejeições repetidas devolvem sempre o mesmo valor.
// Rejeições não incrementam o contador. A janela expira quando reset < now,
// como no store em memória; o TTL da chave só limpa o Redis depois disso.
//
// KEYS[1]: chave da janela
// ARGV[1]: limite de requests
// ARGV[2]: tamanho da janela em ms
// ARGV[3]: agora em ms (unix)
//
// Retorno: {allowed (0|1), count, reset_ms}
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset') or '0')

if count == 0 or reset < now then
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
  redis.call('PEXPIRE', KEYS[1], window + 1000)
  return {1, 1, reset}
end

if count >= limit then
  return {0, count, reset}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset}
`)

// RedisWindowStore implementa domain.WindowStore sobre Redis, compartilhando
// os contadores entre instâncias do gateway.
type RedisWindowStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithRedisClock(now func() time.Time) RedisWindowOption {
	return func(s *RedisWindowStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisWindowStore(rdb redis.UniversalClient, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implementa domain.WindowStore. Erros de rede/Redis são devolvidos ao
// chamador (a camada application decide o fail-open).
func (s *RedisWindowStore) Check(ctx context.Context, key domain.Key, p domain.Policy) (domain.Result, error) {
	now := s.now()
	if !p.Valid() {
		return domain.Result{Allowed: false, Remaining: 0, ResetAt: now, Limit: max(p.MaxRequests, 0)}, nil
	}

	windowMs := p.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	vals, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, p.MaxRequests, windowMs, now.UnixMilli()).Int64Slice()
	if err != nil {
		return domain.Result{}, fmt.Errorf("redis window check %q: %w", key, err)
	}
	if len(vals) != 3 {
		return domain.Result{}, fmt.Errorf("redis window check %q: unexpected reply length %d", key, len(vals))
	}

	allowed := vals[0] == 1
	count := int(vals[1])

	res := domain.Result{
		Allowed: allowed,
		ResetAt: time.UnixMilli(vals[2]),
		Limit:   p.MaxRequests,
	}
	if allowed {
		res.Remaining = max(p.MaxRequests-count, 0)
	}
	return res, nil
}

func (s *RedisWindowStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}
