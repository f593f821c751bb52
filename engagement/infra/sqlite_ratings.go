package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-engine/engagement/domain"
)

const ratingColumns = `id, user_id, provider_id, value, comment, is_moderated, created_at, updated_at`

func scanRating(row rowScanner) (domain.RatingRecord, error) {
	var (
		r       domain.RatingRecord
		comment sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.ProviderID, &r.Value, &comment, &r.Moderated, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return domain.RatingRecord{}, err
	}
	if comment.Valid {
		c := comment.String
		r.Comment = &c
	}
	return r, nil
}

func (s *SQLiteStore) GetRating(ctx context.Context, user domain.UserID, provider domain.ProviderID) (domain.RatingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ratingColumns+` FROM ratings WHERE user_id = ? AND provider_id = ?`, user, provider)
	r, err := scanRating(row)
	if err != nil {
		return domain.RatingRecord{}, notFound(err, fmt.Sprintf("rating %d/%d", user, provider))
	}
	return r, nil
}

// UpsertRating mantém uma linha por (usuário, prestador): a segunda nota
// sobrescreve valor/comentário e updated_at na mesma linha.
func (s *SQLiteStore) UpsertRating(ctx context.Context, user domain.UserID, provider domain.ProviderID, value int, comment *string, now time.Time) (domain.RatingRecord, bool, error) {
	defer s.observe("upsert rating", time.Now())
	now = now.UTC()

	var c sql.NullString
	if comment != nil {
		c = sql.NullString{String: *comment, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.RatingRecord{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE ratings SET value = ?, comment = ?, updated_at = ? WHERE user_id = ? AND provider_id = ?`,
		value, c, now, user, provider)
	if err != nil {
		return domain.RatingRecord{}, false, fmt.Errorf("update rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.RatingRecord{}, false, err
	}
	wasNew := n == 0
	if wasNew {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ratings (user_id, provider_id, value, comment, is_moderated, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?)`,
			user, provider, value, c, now, now); err != nil {
			return domain.RatingRecord{}, false, fmt.Errorf("insert rating: %w", err)
		}
	}

	rec, err := scanRating(tx.QueryRowContext(ctx,
		`SELECT `+ratingColumns+` FROM ratings WHERE user_id = ? AND provider_id = ?`, user, provider))
	if err != nil {
		return domain.RatingRecord{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RatingRecord{}, false, fmt.Errorf("commit rating: %w", err)
	}
	return rec, wasNew, nil
}

func (s *SQLiteStore) SetRatingModerated(ctx context.Context, user domain.UserID, provider domain.ProviderID, moderated bool, now time.Time) (domain.RatingRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ratings SET is_moderated = ?, updated_at = ? WHERE user_id = ? AND provider_id = ?`,
		moderated, now.UTC(), user, provider)
	if err != nil {
		return domain.RatingRecord{}, err
	}
	if err := expectRow(res, fmt.Sprintf("rating %d/%d", user, provider)); err != nil {
		return domain.RatingRecord{}, err
	}
	return s.GetRating(ctx, user, provider)
}

func (s *SQLiteStore) ListModeratedRatings(ctx context.Context, provider domain.ProviderID, limit int) ([]domain.RatingRecord, error) {
	defer s.observe("list ratings", time.Now())
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 = sem limite
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+ratingColumns+` FROM ratings
		WHERE provider_id = ? AND is_moderated = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RatingRecord
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountRatingsSince(ctx context.Context, user domain.UserID, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratings WHERE user_id = ? AND created_at >= ?`, user, since.UTC(),
	).Scan(&n)
	return n, err
}

// WriteAggregate grava média e contagem em um único UPDATE (tudo ou nada).
func (s *SQLiteStore) WriteAggregate(ctx context.Context, provider domain.ProviderID, average float64, count int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET average_rating = ?, rating_count = ?, updated_at = ? WHERE id = ?`,
		average, count, s.now().UTC(), provider)
	if err != nil {
		return fmt.Errorf("write aggregate: %w", err)
	}
	return expectRow(res, fmt.Sprintf("provider %d", provider))
}
