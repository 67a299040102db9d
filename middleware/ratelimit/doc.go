// Package ratelimit fornece adapters HTTP (net/http) para o rate limit das ações
// do Roleplay Realm, o guard por IP e o limite de concorrência.
//
// Camadas:
//
//   - domain: contratos e tipos (Key, Policy, Result, Action, WindowStore)
//   - application: casos de uso sem net/http (ActionService, GuardService, ConcurrencyService)
//   - infra: implementações (janela fixa em memória/Redis, token bucket, semáforo, stats)
//   - ratelimit (este pacote): catálogo de ações, middlewares HTTP, extração de chave,
//     tradução para status/headers
//
// Fluxo de uma ação (ex: POST /api/posts):
//
//  1. Identifica o ator (X-User-Id ou IP)
//  2. ActionService.Check com a chave "post:<ator>"
//  3. Se rejeitado, responde 429 com JSON e Retry-After; o efeito não acontece
//  4. Se aceito, chama o próximo handler (reverse proxy ou handler local)
package ratelimit
