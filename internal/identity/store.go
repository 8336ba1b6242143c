package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Store is the backing profile, membership and organization store.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	SetProfileActive(ctx context.Context, userID string, active bool) error
	LinkOrganization(ctx context.Context, userID, orgID string, role MembershipRole) error

	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, id string) (*Membership, error)
	ActiveMembership(ctx context.Context, userID, orgID string) (*Membership, error)
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)
	ListOrganizationMemberships(ctx context.Context, orgID string) ([]Membership, error)
	RevokeMembership(ctx context.Context, id string) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed identity store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func now() (string, time.Time) {
	s := time.Now().UTC().Format(time.RFC3339)
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // format is controlled
	return s, t
}

const profileColumns = "user_id, email, display_name, role, organization_id, membership_role, is_active, created_at, updated_at"

// GetProfile returns the profile for an account.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	var role string
	var orgID, membershipRole sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE user_id = ?", userID,
	).Scan(&p.UserID, &p.Email, &p.DisplayName, &role, &orgID, &membershipRole, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	p.Role = Role(role)
	p.OrganizationID = orgID.String
	p.MembershipRole = MembershipRole(membershipRole.String)
	p.IsActive = isActive != 0
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &p, nil
}

// CreateProfile inserts a profile. OrganizationID may be empty.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *Profile) error {
	if !p.Role.IsValid() {
		return ErrInvalidRole
	}
	ts, t := now()
	p.CreatedAt, p.UpdatedAt = t, t

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Email, p.DisplayName, string(p.Role),
		nullString(p.OrganizationID), nullString(string(p.MembershipRole)),
		boolToInt(p.IsActive), ts, ts,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return ErrProfileExists
		}
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// SetProfileActive activates or deactivates a profile.
func (s *SQLiteStore) SetProfileActive(ctx context.Context, userID string, active bool) error {
	ts, _ := now()
	return s.updateOne(ctx, ErrProfileNotFound,
		"UPDATE profiles SET is_active = ?, updated_at = ? WHERE user_id = ?",
		boolToInt(active), ts, userID)
}

// LinkOrganization sets the profile's effective organization.
func (s *SQLiteStore) LinkOrganization(ctx context.Context, userID, orgID string, role MembershipRole) error {
	ts, _ := now()
	return s.updateOne(ctx, ErrProfileNotFound,
		"UPDATE profiles SET organization_id = ?, membership_role = ?, updated_at = ? WHERE user_id = ?",
		orgID, string(role), ts, userID)
}

// CreateOrganization inserts an organization. The ID is generated if empty.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = "org-" + uuid.NewString()[:8]
	}
	ts, t := now()
	org.CreatedAt = t

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)",
		org.ID, org.Name, ts); err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	return nil
}

// GetOrganization returns an organization by ID.
func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM organizations WHERE id = ?", id,
	).Scan(&org.ID, &org.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	org.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &org, nil
}

// CreateMembership inserts a membership. The ID is generated if empty and
// the status defaults to active.
func (s *SQLiteStore) CreateMembership(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = "mem-" + uuid.NewString()[:8]
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	ts, t := now()
	m.CreatedAt, m.UpdatedAt = t, t

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (id, user_id, organization_id, role, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.OrganizationID, string(m.Role), string(m.Status), ts, ts); err != nil {
		return fmt.Errorf("creating membership: %w", err)
	}
	return nil
}

const membershipSelect = `SELECT m.id, m.user_id, m.organization_id, o.name, m.role, m.status, m.created_at, m.updated_at
	FROM memberships m JOIN organizations o ON o.id = m.organization_id`

// GetMembership returns a membership by ID.
func (s *SQLiteStore) GetMembership(ctx context.Context, id string) (*Membership, error) {
	return s.oneMembership(ctx, membershipSelect+" WHERE m.id = ?", id)
}

// ActiveMembership returns the user's active membership in orgID, or
// ErrMembershipNotFound when none is active.
func (s *SQLiteStore) ActiveMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	return s.oneMembership(ctx,
		membershipSelect+" WHERE m.user_id = ? AND m.organization_id = ? AND m.status = 'active'",
		userID, orgID)
}

// ListMemberships returns every membership of a user, active first.
func (s *SQLiteStore) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	return s.listMemberships(ctx,
		membershipSelect+" WHERE m.user_id = ? ORDER BY m.status ASC, o.name ASC", userID)
}

// ListOrganizationMemberships returns every membership in an organization.
func (s *SQLiteStore) ListOrganizationMemberships(ctx context.Context, orgID string) ([]Membership, error) {
	return s.listMemberships(ctx,
		membershipSelect+" WHERE m.organization_id = ? ORDER BY m.created_at ASC", orgID)
}

// RevokeMembership marks a membership revoked. Revoking twice is not an error.
func (s *SQLiteStore) RevokeMembership(ctx context.Context, id string) error {
	ts, _ := now()
	return s.updateOne(ctx, ErrMembershipNotFound,
		"UPDATE memberships SET status = 'revoked', updated_at = ? WHERE id = ?", ts, id)
}

func (s *SQLiteStore) oneMembership(ctx context.Context, query string, args ...any) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting membership: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) listMemberships(ctx context.Context, query string, args ...any) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	list := []Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		list = append(list, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}
	return list, nil
}

func (s *SQLiteStore) updateOne(ctx context.Context, notFound error, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return notFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(s scanner) (*Membership, error) {
	var m Membership
	var role, status, createdAt, updatedAt string
	if err := s.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.OrganizationName,
		&role, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Role = MembershipRole(role)
	m.Status = MembershipStatus(status)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &m, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
