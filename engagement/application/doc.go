// Package application contém os casos de uso do motor de engajamento:
// cursor de navegação, rate limit por usuário, agregado de avaliações,
// favoritos/contatos, cadastro e estatísticas do operador. Também guarda as
// regras de aplicação do guarda de rajada e do limite de concorrência usadas
// pelo adaptador HTTP.
//
// Ele depende apenas do pacote domain e não conhece net/http, Redis ou SQL.
// Nenhum serviço chama outro diretamente: a composição acontece uma camada
// acima (adaptador de transporte / cmd), então cada um é testável com fakes
// de SessionCache e ProviderStore.
package application
