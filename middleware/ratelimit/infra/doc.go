// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - MemoryWindowStore: janela fixa por chave em memória, com varredura oportunista
//   - RedisWindowStore: a mesma janela fixa compartilhada via script Lua no Redis
//   - TokenBucketStore: token bucket por cliente (golang.org/x/time/rate) para o guard por IP
//   - ChanPool: semáforo simples para limite de concorrência
//   - Memory/Redis/PrometheusStatsStore: contabilidade best-effort das decisões
package infra
