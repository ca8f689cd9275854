package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS client_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS payment_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			amount_minor INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			expires_at DATETIME NOT NULL,
			cached INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)
	`)
	return err
}

func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO client_state (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RecordPaymentRequest(ctx context.Context, rec *PaymentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (user_id, offer_id, payment_method, amount_minor, currency, expires_at, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.UserID, rec.OfferID, rec.PaymentMethod, rec.AmountMinor, rec.Currency, rec.ExpiresAt.UTC(), rec.Cached, rec.CreatedAt)
	if err != nil {
		return err
	}
	rec.ID, err = result.LastInsertId()
	return err
}

func (s *SQLiteStore) ListPaymentRequests(ctx context.Context, limit int) ([]*PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, offer_id, payment_method, amount_minor, currency, expires_at, cached, created_at
		FROM payment_requests ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		var cached int
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.OfferID, &rec.PaymentMethod, &rec.AmountMinor,
			&rec.Currency, &rec.ExpiresAt, &cached, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Cached = cached == 1
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(amount_minor), 0) as total_amount,
			COALESCE(SUM(CASE WHEN cached = 1 THEN 1 ELSE 0 END), 0) as cached_count,
			COALESCE(MIN(created_at), '') as oldest,
			COALESCE(MAX(created_at), '') as newest
		FROM payment_requests
	`)

	var oldest, newest string
	if err := row.Scan(&stats.TotalRequests, &stats.TotalAmount, &stats.CachedInvoices, &oldest, &newest); err != nil {
		return nil, err
	}
	stats.Oldest = parseSQLiteTime(oldest)
	stats.Newest = parseSQLiteTime(newest)

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(amount_minor), 0)
		FROM payment_requests GROUP BY payment_method ORDER BY COUNT(*) DESC, payment_method
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ms MethodStats
		if err := rows.Scan(&ms.Method, &ms.Requests, &ms.Amount); err != nil {
			return nil, err
		}
		stats.ByMethod = append(stats.ByMethod, ms)
	}
	return stats, rows.Err()
}

func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02T15:04:05Z",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
