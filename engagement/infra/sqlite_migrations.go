package infra

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite abre o arquivo com chaves estrangeiras e busy timeout.
// Uma única conexão: SQLite tem um escritor só, e ":memory:" precisa
// ver sempre o mesmo banco.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

type migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// MigrationRunner aplica as migrações pendentes em ordem, cada uma em sua transação.
type MigrationRunner struct {
	db         *sql.DB
	migrations []migration
}

func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{
		db: db,
		migrations: []migration{
			{Version: 1, Name: "initial_schema", Apply: migrateV001},
			{Version: 2, Name: "ledger_indexes", Apply: migrateV002},
		},
	}
}

// Run habilita WAL e chaves estrangeiras, cria schema_migrations e aplica o que falta.
// Devolve quantas migrações foram aplicadas.
func (r *MigrationRunner) Run() (int, error) {
	if _, err := r.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return 0, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := r.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return 0, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied := 0
	for _, m := range r.migrations {
		done, err := r.isApplied(m.Version)
		if err != nil {
			return applied, fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if done {
			continue
		}
		if err := r.apply(m); err != nil {
			return applied, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		applied++
	}
	return applied, nil
}

// Version devolve a maior versão aplicada (0 se nenhuma).
func (r *MigrationRunner) Version() (int, error) {
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func (r *MigrationRunner) isApplied(version int) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MigrationRunner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func execAll(tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateV001 cria o esquema do marketplace. Todo comando usa IF NOT EXISTS.
func migrateV001(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id        INTEGER PRIMARY KEY,
			name_en   TEXT NOT NULL,
			name_ru   TEXT NOT NULL DEFAULT '',
			name_uz   TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS categories (
			id             INTEGER PRIMARY KEY,
			name_en        TEXT NOT NULL,
			name_ru        TEXT NOT NULL DEFAULT '',
			name_uz        TEXT NOT NULL DEFAULT '',
			description_en TEXT NOT NULL DEFAULT '',
			description_ru TEXT NOT NULL DEFAULT '',
			description_uz TEXT NOT NULL DEFAULT '',
			icon           TEXT NOT NULL DEFAULT '',
			is_active      BOOLEAN NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id          INTEGER PRIMARY KEY,
			first_name  TEXT NOT NULL DEFAULT '',
			last_name   TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			location_id INTEGER REFERENCES locations(id),
			language    TEXT NOT NULL DEFAULT 'ru',
			is_active   BOOLEAN NOT NULL DEFAULT 1,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS providers (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			name              TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			phone             TEXT,
			telegram_username TEXT,
			price_min         REAL CHECK (price_min IS NULL OR price_min >= 0),
			price_max         REAL,
			currency          TEXT NOT NULL DEFAULT 'UZS',
			location_id       INTEGER NOT NULL REFERENCES locations(id),
			category_id       INTEGER NOT NULL REFERENCES categories(id),
			is_active         BOOLEAN NOT NULL DEFAULT 1,
			is_approved       BOOLEAN NOT NULL DEFAULT 0,
			is_available      BOOLEAN NOT NULL DEFAULT 1,
			average_rating    REAL NOT NULL DEFAULT 0 CHECK (average_rating >= 0 AND average_rating <= 5),
			rating_count      INTEGER NOT NULL DEFAULT 0,
			view_count        INTEGER NOT NULL DEFAULT 0,
			contact_count     INTEGER NOT NULL DEFAULT 0,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (price_max IS NULL OR price_min IS NULL OR price_max >= price_min)
		)`,

		`CREATE TABLE IF NOT EXISTS ratings (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      INTEGER NOT NULL,
			provider_id  INTEGER NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
			value        INTEGER NOT NULL CHECK (value BETWEEN 1 AND 5),
			comment      TEXT,
			is_moderated BOOLEAN NOT NULL DEFAULT 1,
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL,
			UNIQUE (user_id, provider_id)
		)`,

		`CREATE TABLE IF NOT EXISTS favorites (
			user_id     INTEGER NOT NULL,
			provider_id INTEGER NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
			created_at  DATETIME NOT NULL,
			PRIMARY KEY (user_id, provider_id)
		)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id           TEXT PRIMARY KEY,
			user_id      INTEGER NOT NULL,
			provider_id  INTEGER NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
			contacted_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_providers_browse ON providers(location_id, category_id, is_active, is_approved)`,
		`CREATE INDEX IF NOT EXISTS idx_providers_rank ON providers(average_rating DESC, contact_count DESC)`,
	})
}

// migrateV002 adiciona os índices das consultas por janela e por prestador.
func migrateV002(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE INDEX IF NOT EXISTS idx_ratings_provider ON ratings(provider_id, is_moderated)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_user_created ON ratings(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_favorites_user_created ON favorites(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_user_time ON contacts(user_id, contacted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_provider ON contacts(provider_id)`,
	})
}
