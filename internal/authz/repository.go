package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lexgate-core/internal/identity"
)

// CaseRepository reads case-scoped resources. Every method takes the
// caller's organization and filters on it in SQL; a row from another
// organization is indistinguishable from an absent one.
type CaseRepository interface {
	GetCase(ctx context.Context, orgID, caseID string) (*Case, error)
	ListForIdentity(ctx context.Context, id *identity.Identity) ([]Case, error)
	GetDocument(ctx context.Context, orgID, documentID string) (*Document, error)
	ListDocuments(ctx context.Context, orgID, caseID string) ([]Document, error)
	GetMessage(ctx context.Context, orgID, messageID string) (*Message, error)
	ListMessages(ctx context.Context, orgID, caseID string) ([]Message, error)
}

// AssignmentRepository manages lawyer and analyst case assignments.
type AssignmentRepository interface {
	SetAssignments(ctx context.Context, caseID string, userIDs []string, createdBy string) error
	GetAssignments(ctx context.Context, caseID string) ([]Assignment, error)
	IsAssigned(ctx context.Context, userID, caseID string) (bool, error)
	GetAssignedCaseIDs(ctx context.Context, userID string) ([]string, error)
}

// SQLiteCaseRepository implements CaseRepository using SQLite.
type SQLiteCaseRepository struct {
	db *sql.DB
}

// NewCaseRepository creates a new SQLite-backed case repository.
func NewCaseRepository(db *sql.DB) *SQLiteCaseRepository {
	return &SQLiteCaseRepository{db: db}
}

const caseColumns = "c.id, c.organization_id, c.title, c.client_user_id, c.created_at"

// GetCase returns a case in orgID, or ErrNotFound.
func (r *SQLiteCaseRepository) GetCase(ctx context.Context, orgID, caseID string) (*Case, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+caseColumns+" FROM cases c WHERE c.id = ? AND c.organization_id = ?", caseID, orgID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting case: %w", err)
	}
	return c, nil
}

// ListForIdentity returns the cases the identity may read, applying the same
// role scope as Engine.CanAccessCase.
func (r *SQLiteCaseRepository) ListForIdentity(ctx context.Context, id *identity.Identity) ([]Case, error) {
	orgID := id.OrganizationID()
	if orgID == "" {
		return nil, ErrNoOrganization
	}

	var query string
	args := []any{orgID}
	switch CaseScope(id.Role()) {
	case ScopeOrganization:
		query = "SELECT " + caseColumns + " FROM cases c WHERE c.organization_id = ?"
	case ScopeAssigned:
		query = "SELECT " + caseColumns + ` FROM cases c
			JOIN case_assignments a ON a.case_id = c.id
			WHERE c.organization_id = ? AND a.user_id = ?`
		args = append(args, id.UserID)
	case ScopeNamedParty:
		query = "SELECT " + caseColumns + " FROM cases c WHERE c.organization_id = ? AND c.client_user_id = ?"
		args = append(args, id.UserID)
	default:
		return []Case{}, nil
	}

	rows, err := r.db.QueryContext(ctx, query+" ORDER BY c.created_at DESC, c.id", args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	cases := []Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cases: %w", err)
	}
	return cases, nil
}

// GetDocument returns a document in orgID, or ErrNotFound.
func (r *SQLiteCaseRepository) GetDocument(ctx context.Context, orgID, documentID string) (*Document, error) {
	var d Document
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, case_id, organization_id, title, created_at FROM documents
		 WHERE id = ? AND organization_id = ?`, documentID, orgID,
	).Scan(&d.ID, &d.CaseID, &d.OrganizationID, &d.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &d, nil
}

// ListDocuments returns the documents of a case in orgID.
func (r *SQLiteCaseRepository) ListDocuments(ctx context.Context, orgID, caseID string) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, case_id, organization_id, title, created_at FROM documents
		 WHERE case_id = ? AND organization_id = ? ORDER BY created_at, id`, caseID, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.CaseID, &d.OrganizationID, &d.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// GetMessage returns a message in orgID, or ErrNotFound.
func (r *SQLiteCaseRepository) GetMessage(ctx context.Context, orgID, messageID string) (*Message, error) {
	var m Message
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, case_id, organization_id, body, created_at FROM messages
		 WHERE id = ? AND organization_id = ?`, messageID, orgID,
	).Scan(&m.ID, &m.CaseID, &m.OrganizationID, &m.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &m, nil
}

// ListMessages returns the messages of a case in orgID.
func (r *SQLiteCaseRepository) ListMessages(ctx context.Context, orgID, caseID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, case_id, organization_id, body, created_at FROM messages
		 WHERE case_id = ? AND organization_id = ? ORDER BY created_at, id`, caseID, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.CaseID, &m.OrganizationID, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(s scanner) (*Case, error) {
	var c Case
	var clientUserID sql.NullString
	var createdAt string
	if err := s.Scan(&c.ID, &c.OrganizationID, &c.Title, &clientUserID, &createdAt); err != nil {
		return nil, err
	}
	c.ClientUserID = clientUserID.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &c, nil
}

// SQLiteAssignmentRepository implements AssignmentRepository using SQLite.
type SQLiteAssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository creates a new SQLite-backed assignment repository.
func NewAssignmentRepository(db *sql.DB) *SQLiteAssignmentRepository {
	return &SQLiteAssignmentRepository{db: db}
}

// SetAssignments replaces every assignment on a case. An empty slice
// unassigns everyone.
func (r *SQLiteAssignmentRepository) SetAssignments(ctx context.Context, caseID string, userIDs []string, createdBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM case_assignments WHERE case_id = ?", caseID); err != nil {
		return fmt.Errorf("clearing assignments: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO case_assignments (user_id, case_id, created_by, created_at) VALUES (?, ?, ?, ?)",
			userID, caseID, nullString(createdBy), now); err != nil {
			return fmt.Errorf("assigning %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignments: %w", err)
	}
	return nil
}

// GetAssignments returns all assignments on a case.
func (r *SQLiteAssignmentRepository) GetAssignments(ctx context.Context, caseID string) ([]Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, case_id, created_by, created_at
		 FROM case_assignments WHERE case_id = ? ORDER BY user_id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("getting assignments: %w", err)
	}
	defer rows.Close()

	list := []Assignment{}
	for rows.Next() {
		var a Assignment
		var createdBy sql.NullString
		var createdAt string
		if err := rows.Scan(&a.UserID, &a.CaseID, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		a.CreatedBy = createdBy.String
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return list, nil
}

// IsAssigned reports whether userID is assigned to caseID.
func (r *SQLiteAssignmentRepository) IsAssigned(ctx context.Context, userID, caseID string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM case_assignments WHERE user_id = ? AND case_id = ?", userID, caseID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("checking assignment: %w", err)
	}
	return n > 0, nil
}

// GetAssignedCaseIDs returns the IDs of every case assigned to a user.
func (r *SQLiteAssignmentRepository) GetAssignedCaseIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT case_id FROM case_assignments WHERE user_id = ? ORDER BY case_id", userID)
	if err != nil {
		return nil, fmt.Errorf("getting assigned cases: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning case ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating case IDs: %w", err)
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
