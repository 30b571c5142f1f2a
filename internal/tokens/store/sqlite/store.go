// Package sqlite is the durable token store driver, backed by an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/store"
	_ "modernc.org/sqlite"
)

// Token is the native row type. readStatus is the status the row carried
// when it was loaded; Update uses it for the conditional write.
type Token struct {
	id         string
	format     string
	subject    string
	purpose    string
	status     string
	expiresAt  sql.NullTime
	payload    map[string]string
	readStatus string
}

type Store struct {
	db  *sql.DB
	dsn string
}

var _ store.Store[*Token] = (*Store)(nil)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs; harmless here but keeps the driver consistent with any
	// future related tables.
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) New(ctx context.Context, info domain.TokenInfo) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok := &Token{
		id:         info.ID,
		format:     string(info.Format),
		subject:    info.Subject,
		purpose:    string(info.Purpose),
		status:     string(info.Status),
		readStatus: string(info.Status),
	}
	if !info.ExpiresAt.IsZero() {
		tok.expiresAt = sql.NullTime{Time: info.ExpiresAt.UTC(), Valid: true}
	}
	if len(info.Payload) > 0 {
		tok.payload = make(map[string]string, len(info.Payload))
		for k, v := range info.Payload {
			tok.payload[k] = v
		}
	}
	return tok, nil
}

func (s *Store) Create(ctx context.Context, tok *Token) error {
	payload, err := marshalPayload(tok.payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, format, subject, purpose, status, expires_at, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tok.id, tok.format, tok.subject, tok.purpose, tok.status, tok.expiresAt, payload, now, now,
	)
	return err
}

// Update writes status/expiry/payload conditionally on the status the row
// had when read. Zero rows affected means either the row vanished or a
// concurrent writer changed its status first.
func (s *Store) Update(ctx context.Context, tok *Token) error {
	payload, err := marshalPayload(tok.payload)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tokens
		SET status = ?, expires_at = ?, payload = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		tok.status, tok.expiresAt, payload, time.Now().UTC(), tok.id, tok.readStatus,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tokens WHERE id = ?`, tok.id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return store.ErrConflict
	}

	tok.readStatus = tok.status
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, format, subject, purpose, status, expires_at, payload
		FROM tokens WHERE id = ?`, id)
	return scanToken(row)
}

func (s *Store) Find(ctx context.Context, f store.Filter) ([]string, error) {
	query := `SELECT id FROM tokens`
	var (
		clauses []string
		args    []any
	)
	if f.Purpose != "" {
		clauses = append(clauses, "purpose = ?")
		args = append(args, string(f.Purpose))
	}
	if f.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, f.Subject)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.ExpiredBefore.IsZero() {
		clauses = append(clauses, "expires_at IS NOT NULL AND expires_at < ?")
		args = append(args, f.ExpiredBefore.UTC())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at < ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) TokenInfo(ctx context.Context, tok *Token) (domain.TokenInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenInfo{}, err
	}

	info := domain.TokenInfo{
		ID:      tok.id,
		Format:  domain.Format(tok.format),
		Subject: tok.subject,
		Purpose: domain.Purpose(tok.purpose),
		Status:  domain.Status(tok.status),
	}
	if tok.expiresAt.Valid {
		info.ExpiresAt = tok.expiresAt.Time
	}
	if len(tok.payload) > 0 {
		info.Payload = make(map[string]string, len(tok.payload))
		for k, v := range tok.payload {
			info.Payload[k] = v
		}
	}
	return info, nil
}

func (s *Store) Status(ctx context.Context, tok *Token) (domain.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return domain.Status(tok.status), nil
}

func (s *Store) SetStatus(ctx context.Context, tok *Token, status domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok.status = string(status)
	return nil
}

func (s *Store) Expiration(ctx context.Context, tok *Token) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if !tok.expiresAt.Valid {
		return time.Time{}, nil
	}
	return tok.expiresAt.Time, nil
}

func (s *Store) Subject(ctx context.Context, tok *Token) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tok.subject, nil
}

func scanToken(row *sql.Row) (*Token, error) {
	var (
		tok     Token
		payload sql.NullString
	)
	err := row.Scan(&tok.id, &tok.format, &tok.subject, &tok.purpose, &tok.status, &tok.expiresAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &tok.payload); err != nil {
			return nil, fmt.Errorf("sqlite: corrupt payload for token %s: %w", tok.id, err)
		}
	}
	tok.readStatus = tok.status
	return &tok, nil
}

func marshalPayload(payload map[string]string) (sql.NullString, error) {
	if len(payload) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
