// Package domain define contratos e tipos de domínio do motor de engajamento
// (cursor de navegação, rate limit, agregado de avaliações, favoritos e contatos).
//
// Este pacote não depende de net/http nem de implementações concretas
// (Redis, SQLite). A intenção é permitir testes de unidade puros com fakes
// dos dois colaboradores externos: SessionCache e ProviderStore.
package domain
