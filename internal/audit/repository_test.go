package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/lexgate-core/internal/testutil"
)

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []*AuditLog{
		{Action: ActionLogin, EntityType: EntitySession, UserID: "acc-1", OrganizationID: "org-a", Source: "api", CreatedAt: base},
		{Action: ActionAccessDenied, EntityType: EntityCase, EntityID: "case-1", UserID: "acc-1", OrganizationID: "org-a", Source: "api",
			Details: map[string]any{"decision": "denied"}, CreatedAt: base.Add(time.Minute)},
		{Action: ActionLogin, EntityType: EntitySession, UserID: "acc-2", OrganizationID: "org-b", Source: "api", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() should assign an ID")
		}
	}

	result, err := repo.List(ctx, Filter{OrganizationID: "org-a"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 || len(result.Logs) != 2 {
		t.Fatalf("List(org-a) total = %d, len = %d, want 2", result.Total, len(result.Logs))
	}
	if result.Logs[0].Action != ActionAccessDenied {
		t.Errorf("first log action = %q, want most recent %q", result.Logs[0].Action, ActionAccessDenied)
	}
	if result.Logs[0].Details["decision"] != "denied" {
		t.Errorf("details = %v", result.Logs[0].Details)
	}
	if result.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", result.Limit, defaultLimit)
	}

	result, err = repo.List(ctx, Filter{Action: ActionLogin, Limit: 1000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("List(action=login) total = %d, want 2", result.Total)
	}
	if result.Limit != maxLimit {
		t.Errorf("Limit = %d, want clamp to %d", result.Limit, maxLimit)
	}
}

func TestSQLiteRepository_CreateInvalid(t *testing.T) {
	repo := NewSQLiteRepository(testutil.OpenDB(t))

	err := repo.Create(context.Background(), &AuditLog{Action: ActionLogin})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Create() error = %v, want ErrInvalidEntry", err)
	}
}

func TestSQLiteRepository_ListEmpty(t *testing.T) {
	repo := NewSQLiteRepository(testutil.OpenDB(t))

	result, err := repo.List(context.Background(), Filter{OrganizationID: "none"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Logs == nil || len(result.Logs) != 0 {
		t.Errorf("Logs = %v, want empty non-nil slice", result.Logs)
	}
}

func TestSQLiteRepository_StoreErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))
	if err := repo.Create(ctx, &AuditLog{Action: ActionLogin, EntityType: EntitySession, Source: "api"}); err == nil {
		t.Error("Create() expected error")
	}

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("locked"))
	if _, err := repo.List(ctx, Filter{}); err == nil {
		t.Error("List() expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
