package domain

import "sort"

// RankProviders ordena pela política de navegação: média desc, contatos desc,
// id asc (determinístico para prestadores empatados). Não altera a entrada.
func RankProviders(providers []Provider) []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		if a.ContactCount != b.ContactCount {
			return a.ContactCount > b.ContactCount
		}
		return a.ID < b.ID
	})
	return out
}

func ProviderIDs(providers []Provider) []ProviderID {
	ids := make([]ProviderID, len(providers))
	for i, p := range providers {
		ids[i] = p.ID
	}
	return ids
}

// Summarize calcula média e contagem das avaliações moderadas.
// Conjunto vazio => (0.0, 0), nunca divisão por zero.
func Summarize(ratings []RatingRecord) (float64, int) {
	sum, n := 0, 0
	for _, r := range ratings {
		if !r.Moderated {
			continue
		}
		sum += r.Value
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), n
}
