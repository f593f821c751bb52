// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisSessionCache / MemorySessionCache: SessionCache com TTL por chave
//   - SQLiteStore: ProviderStore, CatalogReader, UserStore e StatsReader em SQLite
//   - FloodStore: token bucket por usuário usando golang.org/x/time/rate
//   - ChanPool / KeyLock: semáforo de concorrência e lock por chave (por prestador)
//   - RedisStatsStore / MemoryStatsStore: contadores de ActionEvent
package infra
