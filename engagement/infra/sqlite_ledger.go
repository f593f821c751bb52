package infra

import (
	"context"
	"fmt"
	"time"

	"marketplace-engine/engagement/domain"

	"github.com/oklog/ulid/v2"
)

// --- favoritos ---

func (s *SQLiteStore) AddFavorite(ctx context.Context, user domain.UserID, provider domain.ProviderID, now time.Time) (domain.FavoriteRecord, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favorites (user_id, provider_id, created_at) VALUES (?, ?, ?)`,
		user, provider, now.UTC())
	if err != nil {
		return domain.FavoriteRecord{}, false, fmt.Errorf("add favorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.FavoriteRecord{}, false, err
	}
	rec, err := s.GetFavorite(ctx, user, provider)
	if err != nil {
		return domain.FavoriteRecord{}, false, err
	}
	return rec, n == 1, nil
}

func (s *SQLiteStore) RemoveFavorite(ctx context.Context, user domain.UserID, provider domain.ProviderID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND provider_id = ?`, user, provider)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListFavorites(ctx context.Context, user domain.UserID) ([]domain.FavoriteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, provider_id, created_at FROM favorites
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FavoriteRecord
	for rows.Next() {
		var f domain.FavoriteRecord
		if err := rows.Scan(&f.UserID, &f.ProviderID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetFavorite(ctx context.Context, user domain.UserID, provider domain.ProviderID) (domain.FavoriteRecord, error) {
	var f domain.FavoriteRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, provider_id, created_at FROM favorites WHERE user_id = ? AND provider_id = ?`,
		user, provider,
	).Scan(&f.UserID, &f.ProviderID, &f.CreatedAt)
	if err != nil {
		return domain.FavoriteRecord{}, notFound(err, fmt.Sprintf("favorite %d/%d", user, provider))
	}
	return f, nil
}

// --- contatos ---

// AppendContact grava um contato com id ULID (ordenado pelo instante do contato).
func (s *SQLiteStore) AppendContact(ctx context.Context, user domain.UserID, provider domain.ProviderID, at time.Time) (domain.ContactRecord, error) {
	at = at.UTC()
	rec := domain.ContactRecord{
		ID:          ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		UserID:      user,
		ProviderID:  provider,
		ContactedAt: at,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, user_id, provider_id, contacted_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ProviderID, rec.ContactedAt); err != nil {
		return domain.ContactRecord{}, fmt.Errorf("append contact: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) IncrementContactCount(ctx context.Context, provider domain.ProviderID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET contact_count = contact_count + 1 WHERE id = ?`, provider)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Sprintf("provider %d", provider))
}

func (s *SQLiteStore) IncrementViewCount(ctx context.Context, provider domain.ProviderID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET view_count = view_count + 1 WHERE id = ?`, provider)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Sprintf("provider %d", provider))
}

// MostContacted conta direto no ledger; o campo contact_count é só cache de exibição.
func (s *SQLiteStore) MostContacted(ctx context.Context, limit int) ([]domain.ContactCount, error) {
	defer s.observe("most contacted", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT provider_id, COUNT(*) AS n FROM contacts
		GROUP BY provider_id ORDER BY n DESC, provider_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ContactCount
	for rows.Next() {
		var c domain.ContactCount
		if err := rows.Scan(&c.ProviderID, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountContactsSince(ctx context.Context, user domain.UserID, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = ? AND contacted_at >= ?`, user, since.UTC(),
	).Scan(&n)
	return n, err
}
