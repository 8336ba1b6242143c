package idp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLinkNotFound is returned when no account is linked to a provider subject.
var ErrLinkNotFound = errors.New("identity link not found")

// Link binds a provider subject to a local account. Token fields hold
// envelope payloads, never plaintext.
type Link struct {
	Provider        string
	Subject         string
	UserID          string
	AccessTokenEnc  string
	RefreshTokenEnc string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LinkRepository persists provider links.
type LinkRepository interface {
	Get(ctx context.Context, provider, subject string) (*Link, error)
	ListByUser(ctx context.Context, userID string) ([]Link, error)
	Upsert(ctx context.Context, link *Link) error
}

// SQLiteLinkRepository implements LinkRepository using SQLite.
type SQLiteLinkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new SQLite-backed link repository.
func NewLinkRepository(db *sql.DB) *SQLiteLinkRepository {
	return &SQLiteLinkRepository{db: db}
}

const linkColumns = "provider, subject, user_id, access_token_enc, refresh_token_enc, expires_at, created_at, updated_at"

// Get returns the link for a provider subject.
func (r *SQLiteLinkRepository) Get(ctx context.Context, provider, subject string) (*Link, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+linkColumns+" FROM idp_links WHERE provider = ? AND subject = ?", provider, subject)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting link: %w", err)
	}
	return l, nil
}

// ListByUser returns every provider link of an account.
func (r *SQLiteLinkRepository) ListByUser(ctx context.Context, userID string) ([]Link, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+linkColumns+" FROM idp_links WHERE user_id = ? ORDER BY provider", userID)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}
	return links, nil
}

// Upsert inserts a link or replaces its tokens. The owning account of an
// existing link is never changed.
func (r *SQLiteLinkRepository) Upsert(ctx context.Context, link *Link) error {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)
	var expiresAt sql.NullString
	if !link.ExpiresAt.IsZero() {
		expiresAt = sql.NullString{String: link.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	var refresh sql.NullString
	if link.RefreshTokenEnc != "" {
		refresh = sql.NullString{String: link.RefreshTokenEnc, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idp_links (`+linkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, subject) DO UPDATE SET
		   access_token_enc = excluded.access_token_enc,
		   refresh_token_enc = excluded.refresh_token_enc,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		link.Provider, link.Subject, link.UserID, link.AccessTokenEnc, refresh, expiresAt, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("upserting link: %w", err)
	}
	link.UpdatedAt = now.Truncate(time.Second)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (*Link, error) {
	var l Link
	var refresh, expiresAt sql.NullString
	var createdAt, updatedAt string
	if err := s.Scan(&l.Provider, &l.Subject, &l.UserID, &l.AccessTokenEnc, &refresh,
		&expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	l.RefreshTokenEnc = refresh.String
	if expiresAt.Valid {
		l.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt.String) //nolint:errcheck // format is controlled
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &l, nil
}
