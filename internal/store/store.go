// Package store persists couple registrations and per-conversation mediation
// state in a local sqlite database. Schema lives in embedded migrations.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Couple binds two partners to a WhatsApp group conversation. Supplied by
// onboarding; consulted here to personalize triggers and mediation text.
type Couple struct {
	ID           int64
	UserName     string
	UserPhone    string // international format: 5511999999999
	PartnerName  string
	PartnerPhone string
	GroupJID     string // WhatsApp group ID (e.g. 12345@g.us)
	Status       string // pending, active, archived
	CreatedAt    time.Time
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LookupCouple returns the active couple bound to a group JID, or nil when
// none is registered.
func (s *Store) LookupCouple(ctx context.Context, groupJID string) (*Couple, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, user_phone, partner_name, partner_phone, group_jid, status, created_at
		FROM couples
		WHERE group_jid = ? AND status = 'active'`, groupJID)

	var c Couple
	err := row.Scan(&c.ID, &c.UserName, &c.UserPhone, &c.PartnerName, &c.PartnerPhone,
		&c.GroupJID, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup couple: %w", err)
	}
	return &c, nil
}

// SaveCouple inserts a couple registration (status defaults to pending).
func (s *Store) SaveCouple(ctx context.Context, c Couple) (int64, error) {
	if c.Status == "" {
		c.Status = "pending"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO couples (user_name, user_phone, partner_name, partner_phone, group_jid, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.UserName, c.UserPhone, c.PartnerName, c.PartnerPhone, c.GroupJID, c.Status)
	if err != nil {
		return 0, fmt.Errorf("save couple: %w", err)
	}
	return res.LastInsertId()
}

// ActivateCouple binds a couple to its group JID and marks it active.
func (s *Store) ActivateCouple(ctx context.Context, id int64, groupJID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE couples SET group_jid = ?, status = 'active' WHERE id = ?`, groupJID, id)
	if err != nil {
		return fmt.Errorf("activate couple: %w", err)
	}
	return nil
}

// MediationState returns the last mediation time (zero when never mediated)
// and the cumulative mediation count for a conversation.
func (s *Store) MediationState(ctx context.Context, chatID string) (time.Time, int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT last_mediation_at, mediation_count FROM mediation_state WHERE chat_id = ?`, chatID)

	var last time.Time
	var count int
	err := row.Scan(&last, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, 0, nil
	}
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("mediation state: %w", err)
	}
	return last, count, nil
}

// RecordMediation stores a mediation event: last_mediation_at is overwritten
// and the counter incremented in one statement, so a cooldown check that
// follows a successful record always sees the new timestamp.
func (s *Store) RecordMediation(ctx context.Context, chatID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mediation_state (chat_id, last_mediation_at, mediation_count)
		VALUES (?, ?, 1)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_mediation_at = excluded.last_mediation_at,
			mediation_count = mediation_count + 1`,
		chatID, at)
	if err != nil {
		return fmt.Errorf("record mediation: %w", err)
	}
	return nil
}
