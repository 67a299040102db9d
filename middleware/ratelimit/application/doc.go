// Package application contém os casos de uso do rate limit, sem net/http.
//
//   - ActionService.Check(ctx, action, actor): janela fixa por ação/ator, com fail-open
//   - Service.Decide(key): guard por IP (token bucket), allow/deny + retry-after
//   - ConcurrencyService.Acquire(ctx): vaga no pool com timeout
package application
