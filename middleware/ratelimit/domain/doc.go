// Package domain define contratos e tipos de domínio para rate limit por ação,
// guard por IP e limite de concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas, o que
// permite testar as regras sem Redis ou servidor HTTP.
package domain
