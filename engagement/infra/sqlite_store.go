package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace-engine/engagement/domain"
)

// SQLiteStore implementa domain.ProviderStore, CatalogReader, UserStore e
// StatsReader sobre um banco SQLite já migrado (ver MigrationRunner).
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
	slow   time.Duration
}

type SQLiteOption func(*SQLiteStore)

func WithStoreClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

func WithStoreLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// WithSlowQuery registra em WARN consultas mais lentas que d (0 desliga).
func WithSlowQuery(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) { s.slow = d }
}

func NewSQLiteStore(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{
		db:     db,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
		slow:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) observe(op string, start time.Time) {
	if s.slow <= 0 {
		return
	}
	if d := time.Since(start); d > s.slow {
		s.logger.Warn("slow query", "op", op, "duration", d)
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

// --- prestadores ---

const providerColumns = `id, name, description, phone, telegram_username, price_min, price_max, currency,
	location_id, category_id, is_active, is_approved, is_available,
	average_rating, rating_count, view_count, contact_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (domain.Provider, error) {
	var (
		p                  domain.Provider
		phone, tg          sql.NullString
		priceMin, priceMax sql.NullFloat64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &phone, &tg, &priceMin, &priceMax, &p.Currency,
		&p.LocationID, &p.CategoryID, &p.Active, &p.Approved, &p.Available,
		&p.AverageRating, &p.RatingCount, &p.ViewCount, &p.ContactCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Provider{}, err
	}
	p.Phone = phone.String
	p.TelegramUsername = tg.String
	if priceMin.Valid {
		v := priceMin.Float64
		p.PriceMin = &v
	}
	if priceMax.Valid {
		v := priceMax.Float64
		p.PriceMax = &v
	}
	return p, nil
}

func (s *SQLiteStore) GetProvider(ctx context.Context, id domain.ProviderID) (domain.Provider, error) {
	defer s.observe("get provider", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)
	p, err := scanProvider(row)
	if err != nil {
		return domain.Provider{}, notFound(err, fmt.Sprintf("provider %d", id))
	}
	return p, nil
}

// ListProviders devolve prestadores ativos e aprovados do filtro, já na ordem de navegação.
func (s *SQLiteStore) ListProviders(ctx context.Context, f domain.Filter) ([]domain.Provider, error) {
	defer s.observe("list providers", time.Now())

	conds := []string{"is_active = 1", "is_approved = 1", "location_id = ?", "category_id = ?"}
	args := []any{f.LocationID, f.CategoryID}
	if f.MinRating > 0 {
		conds = append(conds, "average_rating >= ?")
		args = append(args, f.MinRating)
	}
	if f.PriceMin != nil {
		conds = append(conds, "price_min >= ?")
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		conds = append(conds, "price_max <= ?")
		args = append(args, *f.PriceMax)
	}
	if f.AvailableOnly {
		conds = append(conds, "is_available = 1")
	}

	q := `SELECT ` + providerColumns + ` FROM providers WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY average_rating DESC, contact_count DESC, id ASC`
	return s.queryProviders(ctx, q, args...)
}

func (s *SQLiteStore) queryProviders(ctx context.Context, q string, args ...any) ([]domain.Provider, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// SaveProvider cria (ID zero) ou atualiza os dados cadastrais de um prestador.
// Os campos derivados (ProviderAggregate) nunca são escritos aqui.
func (s *SQLiteStore) SaveProvider(ctx context.Context, p domain.Provider) (domain.ProviderID, error) {
	now := s.now().UTC()
	if p.Currency == "" {
		p.Currency = "UZS"
	}
	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO providers (name, description, phone, telegram_username, price_min, price_max, currency,
				location_id, category_id, is_active, is_approved, is_available, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Description, nullString(p.Phone), nullString(p.TelegramUsername),
			nullFloat(p.PriceMin), nullFloat(p.PriceMax), p.Currency,
			p.LocationID, p.CategoryID, p.Active, p.Approved, p.Available, now, now)
		if err != nil {
			return 0, fmt.Errorf("insert provider: %w", err)
		}
		id, err := res.LastInsertId()
		return domain.ProviderID(id), err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET name = ?, description = ?, phone = ?, telegram_username = ?, price_min = ?,
			price_max = ?, currency = ?, location_id = ?, category_id = ?, is_active = ?, is_approved = ?,
			is_available = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, nullString(p.Phone), nullString(p.TelegramUsername),
		nullFloat(p.PriceMin), nullFloat(p.PriceMax), p.Currency,
		p.LocationID, p.CategoryID, p.Active, p.Approved, p.Available, now, p.ID)
	if err != nil {
		return 0, fmt.Errorf("update provider: %w", err)
	}
	if err := expectRow(res, fmt.Sprintf("provider %d", p.ID)); err != nil {
		return 0, err
	}
	return p.ID, nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

// --- catálogo ---

func (s *SQLiteStore) GetLocation(ctx context.Context, id domain.LocationID) (domain.Location, error) {
	var l domain.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name_en, name_ru, name_uz, is_active FROM locations WHERE id = ?`, id,
	).Scan(&l.ID, &l.Names.EN, &l.Names.RU, &l.Names.UZ, &l.Active)
	if err != nil {
		return domain.Location{}, notFound(err, fmt.Sprintf("location %d", id))
	}
	return l, nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id domain.CategoryID) (domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name_en, name_ru, name_uz, description_en, description_ru, description_uz, icon, is_active
		FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Names.EN, &c.Names.RU, &c.Names.UZ,
		&c.Descriptions.EN, &c.Descriptions.RU, &c.Descriptions.UZ, &c.Icon, &c.Active)
	if err != nil {
		return domain.Category{}, notFound(err, fmt.Sprintf("category %d", id))
	}
	return c, nil
}

func (s *SQLiteStore) SaveLocation(ctx context.Context, l domain.Location) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name_en, name_ru, name_uz, is_active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name_en = excluded.name_en, name_ru = excluded.name_ru,
			name_uz = excluded.name_uz, is_active = excluded.is_active`,
		l.ID, l.Names.EN, l.Names.RU, l.Names.UZ, l.Active)
	return err
}

func (s *SQLiteStore) SaveCategory(ctx context.Context, c domain.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name_en, name_ru, name_uz, description_en, description_ru, description_uz, icon, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name_en = excluded.name_en, name_ru = excluded.name_ru,
			name_uz = excluded.name_uz, description_en = excluded.description_en,
			description_ru = excluded.description_ru, description_uz = excluded.description_uz,
			icon = excluded.icon, is_active = excluded.is_active`,
		c.ID, c.Names.EN, c.Names.RU, c.Names.UZ,
		c.Descriptions.EN, c.Descriptions.RU, c.Descriptions.UZ, c.Icon, c.Active)
	return err
}

// --- usuários ---

// UpdateProfile grava o perfil do cadastro (cria o usuário se preciso).
func (s *SQLiteStore) UpdateProfile(ctx context.Context, user domain.UserID, p domain.Profile) error {
	now := s.now().UTC()
	var loc any
	if p.LocationID > 0 {
		loc = p.LocationID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, phone, location_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name,
			phone = excluded.phone, location_id = excluded.location_id, updated_at = excluded.updated_at`,
		user, p.FirstName, p.LastName, p.Phone, loc, now, now)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// GetProfile lê o perfil gravado pelo cadastro.
func (s *SQLiteStore) GetProfile(ctx context.Context, user domain.UserID) (domain.Profile, error) {
	var (
		p   domain.Profile
		loc sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT first_name, last_name, phone, location_id FROM users WHERE id = ?`, user,
	).Scan(&p.FirstName, &p.LastName, &p.Phone, &loc)
	if err != nil {
		return domain.Profile{}, notFound(err, fmt.Sprintf("user %d", user))
	}
	p.LocationID = domain.LocationID(loc.Int64)
	return p, nil
}

// --- estatísticas do operador ---

func (s *SQLiteStore) Overview(ctx context.Context) (domain.Overview, error) {
	defer s.observe("overview", time.Now())
	var ov domain.Overview
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_active = 1),
			(SELECT COUNT(*) FROM providers),
			(SELECT COUNT(*) FROM providers WHERE is_active = 1),
			(SELECT COUNT(*) FROM providers WHERE is_approved = 0)`,
	).Scan(&ov.TotalUsers, &ov.ActiveUsers, &ov.TotalProviders, &ov.ActiveProviders, &ov.PendingProviders)
	if err != nil {
		return domain.Overview{}, err
	}
	return ov, nil
}

func (s *SQLiteStore) TopRated(ctx context.Context, limit int) ([]domain.Provider, error) {
	defer s.observe("top rated", time.Now())
	return s.queryProviders(ctx, `SELECT `+providerColumns+` FROM providers
		WHERE is_active = 1 AND is_approved = 1
		ORDER BY average_rating DESC, contact_count DESC, id ASC
		LIMIT ?`, limit)
}
