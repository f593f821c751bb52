// Package engagement expõe o motor de engajamento via HTTP/JSON.
//
// Organização:
//   - domain/: tipos, contratos e regras puras
//   - application/: casos de uso (navegação, cotas, avaliações, favoritos/contatos, cadastro)
//   - infra/: implementações concretas (Redis, SQLite, token bucket, pools)
//
// Este pacote só traduz HTTP para os casos de uso e de volta (status, headers, JSON).
// Middlewares: RequestID, FloodGuard (429 + Retry-After) e Concurrency (503).
package engagement
