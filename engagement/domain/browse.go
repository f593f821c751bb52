package domain

// Filter descreve a seleção que originou um snapshot de navegação.
type Filter struct {
	LocationID LocationID `json:"location_id"`
	CategoryID CategoryID `json:"category_id"`
	// Parâmetros extras opcionais.
	MinRating     float64  `json:"min_rating,omitempty"`
	PriceMin      *float64 `json:"price_min,omitempty"`
	PriceMax      *float64 `json:"price_max,omitempty"`
	AvailableOnly bool     `json:"available_only,omitempty"`
}

// BrowsingState é o estado de navegação paginada de um usuário.
//
// Invariante: 0 <= CurrentIndex < len(ProviderIDs) enquanto o estado existir.
// O snapshot é imutável: nunca é re-consultado durante a vida do estado.
// A expiração é o TTL da chave no SessionCache (deslizante a cada leitura).
type BrowsingState struct {
	LocationID   LocationID   `json:"location_id"`
	CategoryID   CategoryID   `json:"category_id"`
	ProviderIDs  []ProviderID `json:"provider_ids"`
	CurrentIndex int          `json:"current_index"`
	Filter       *Filter      `json:"filters,omitempty"`
}

// Position é o que o transporte renderiza: qual prestador, em que índice, de quantos.
type Position struct {
	ProviderID ProviderID `json:"provider_id"`
	Index      int        `json:"index"`
	Total      int        `json:"total"`
}

// Valid checa a invariante de índice.
func (s BrowsingState) Valid() bool {
	return len(s.ProviderIDs) > 0 && s.CurrentIndex >= 0 && s.CurrentIndex < len(s.ProviderIDs)
}

func (s BrowsingState) Position() Position {
	return Position{ProviderID: s.ProviderIDs[s.CurrentIndex], Index: s.CurrentIndex, Total: len(s.ProviderIDs)}
}

// Clamp aplica delta ao índice atual limitando a [0, total-1].
// Passar da borda é no-op (nunca dá a volta, nunca é erro).
func Clamp(index, delta, total int) int {
	if total <= 0 {
		return 0
	}
	next := index + delta
	// overflow de int com deltas absurdos
	if delta > 0 && next < index {
		next = total - 1
	}
	if delta < 0 && next > index {
		next = 0
	}
	if next < 0 {
		return 0
	}
	if next > total-1 {
		return total - 1
	}
	return next
}
