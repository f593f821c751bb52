package domain

import (
	"context"
	"time"
)

// ProviderAggregate são campos derivados guardados no ProviderStore.
//
// AverageRating/RatingCount são uma view materializada das RatingRecords
// moderadas: sempre recalculados a partir do conjunto, nunca ajustados
// incrementalmente. ViewCount/ContactCount são contadores "cegos" de exibição.
type ProviderAggregate struct {
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
	ViewCount     int64   `json:"view_count"`
	ContactCount  int64   `json:"contact_count"`
}

type Provider struct {
	ID               ProviderID `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Phone            string     `json:"phone,omitempty"`
	TelegramUsername string     `json:"telegram_username,omitempty"`
	PriceMin         *float64   `json:"price_min,omitempty"`
	PriceMax         *float64   `json:"price_max,omitempty"`
	Currency         string     `json:"currency"`
	LocationID       LocationID `json:"location_id"`
	CategoryID       CategoryID `json:"category_id"`
	Active           bool       `json:"active"`
	Approved         bool       `json:"approved"`
	Available        bool       `json:"available"`
	ProviderAggregate
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingRecord: no máximo um por (usuário, prestador). Uma segunda nota é upsert.
type RatingRecord struct {
	ID         int64      `json:"id"`
	UserID     UserID     `json:"user_id"`
	ProviderID ProviderID `json:"provider_id"`
	Value      int        `json:"value"`
	Comment    *string    `json:"comment,omitempty"`
	Moderated  bool       `json:"moderated"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type FavoriteRecord struct {
	UserID     UserID     `json:"user_id"`
	ProviderID ProviderID `json:"provider_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ContactRecord é append-only: nunca atualizado nem removido, e não deduplicado.
type ContactRecord struct {
	ID          string     `json:"id"`
	UserID      UserID     `json:"user_id"`
	ProviderID  ProviderID `json:"provider_id"`
	ContactedAt time.Time  `json:"contacted_at"`
}

type ContactCount struct {
	ProviderID ProviderID `json:"provider_id"`
	Count      int64      `json:"count"`
}

const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// ValidRating checa o intervalo [1,5].
func ValidRating(value int) error {
	if value < MinRatingValue || value > MaxRatingValue {
		return invalidf("rating value %d outside [%d,%d]", value, MinRatingValue, MaxRatingValue)
	}
	return nil
}

// ProviderReader lê prestadores. GetProvider devolve ErrNotFound se não existir.
type ProviderReader interface {
	GetProvider(ctx context.Context, id ProviderID) (Provider, error)
	// ListProviders devolve apenas prestadores ativos e aprovados que casam com o filtro.
	ListProviders(ctx context.Context, f Filter) ([]Provider, error)
}

type RatingStore interface {
	// GetRating devolve ErrNotFound se o par não tem avaliação.
	GetRating(ctx context.Context, user UserID, provider ProviderID) (RatingRecord, error)
	// UpsertRating cria (moderated=true) ou sobrescreve valor/comentário no mesmo registro.
	UpsertRating(ctx context.Context, user UserID, provider ProviderID, value int, comment *string, now time.Time) (RatingRecord, bool, error)
	SetRatingModerated(ctx context.Context, user UserID, provider ProviderID, moderated bool, now time.Time) (RatingRecord, error)
	// ListModeratedRatings: mais recentes primeiro; limit <= 0 devolve todas.
	ListModeratedRatings(ctx context.Context, provider ProviderID, limit int) ([]RatingRecord, error)
	// CountRatingsSince conta avaliações criadas pelo usuário a partir de since.
	CountRatingsSince(ctx context.Context, user UserID, since time.Time) (int64, error)
	// WriteAggregate grava média e contagem atomicamente (tudo ou nada).
	WriteAggregate(ctx context.Context, provider ProviderID, average float64, count int) error
}

type FavoriteStore interface {
	// AddFavorite é idempotente: devolve o registro existente e created=false.
	AddFavorite(ctx context.Context, user UserID, provider ProviderID, now time.Time) (FavoriteRecord, bool, error)
	RemoveFavorite(ctx context.Context, user UserID, provider ProviderID) (bool, error)
	// ListFavorites: mais recente primeiro.
	ListFavorites(ctx context.Context, user UserID) ([]FavoriteRecord, error)
	GetFavorite(ctx context.Context, user UserID, provider ProviderID) (FavoriteRecord, error)
}

type ContactStore interface {
	AppendContact(ctx context.Context, user UserID, provider ProviderID, at time.Time) (ContactRecord, error)
	IncrementContactCount(ctx context.Context, provider ProviderID) error
	IncrementViewCount(ctx context.Context, provider ProviderID) error
	// MostContacted é derivado do ledger (não do campo contact_count).
	MostContacted(ctx context.Context, limit int) ([]ContactCount, error)
	CountContactsSince(ctx context.Context, user UserID, since time.Time) (int64, error)
}

// ProviderStore é o colaborador persistente completo consumido pelo motor.
type ProviderStore interface {
	ProviderReader
	RatingStore
	FavoriteStore
	ContactStore
}
