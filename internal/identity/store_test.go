package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/lexgate-core/internal/testutil"
)

func TestSQLiteStore_ProfileLifecycle(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedAccount(t, db, "usr-1", "ana@example.test")
	testutil.SeedOrganization(t, db, "org-a", "Alpha Legal")
	store := NewSQLiteStore(db)
	ctx := context.Background()

	p := &Profile{UserID: "usr-1", Email: "ana@example.test", DisplayName: "Ana", Role: RoleLawyer, IsActive: true}
	if err := store.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if err := store.CreateProfile(ctx, p); !errors.Is(err, ErrProfileExists) {
		t.Errorf("CreateProfile(duplicate) error = %v, want ErrProfileExists", err)
	}
	if err := store.CreateProfile(ctx, &Profile{UserID: "usr-1", Role: "paralegal"}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("CreateProfile(bad role) error = %v, want ErrInvalidRole", err)
	}

	if err := store.LinkOrganization(ctx, "usr-1", "org-a", MembershipMember); err != nil {
		t.Fatalf("LinkOrganization() error = %v", err)
	}
	if err := store.SetProfileActive(ctx, "usr-1", false); err != nil {
		t.Fatalf("SetProfileActive() error = %v", err)
	}

	got, err := store.GetProfile(ctx, "usr-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.OrganizationID != "org-a" || got.MembershipRole != MembershipMember || got.IsActive {
		t.Errorf("profile = %+v", got)
	}

	if _, err := store.GetProfile(ctx, "usr-missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("GetProfile(missing) error = %v", err)
	}
	if err := store.SetProfileActive(ctx, "usr-missing", true); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("SetProfileActive(missing) error = %v", err)
	}
}

func TestSQLiteStore_Memberships(t *testing.T) {
	db := testutil.OpenDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	org := &Organization{Name: "Alpha Legal"}
	if err := store.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	gotOrg, err := store.GetOrganization(ctx, org.ID)
	if err != nil || gotOrg.Name != "Alpha Legal" {
		t.Fatalf("GetOrganization() = %+v, %v", gotOrg, err)
	}

	testutil.SeedAccount(t, db, "usr-1", "ana@example.test")
	m := &Membership{UserID: "usr-1", OrganizationID: org.ID, Role: MembershipOwner}
	if err := store.CreateMembership(ctx, m); err != nil {
		t.Fatalf("CreateMembership() error = %v", err)
	}
	if m.Status != StatusActive {
		t.Errorf("Status = %q, want active", m.Status)
	}

	active, err := store.ActiveMembership(ctx, "usr-1", org.ID)
	if err != nil || active.OrganizationName != "Alpha Legal" {
		t.Fatalf("ActiveMembership() = %+v, %v", active, err)
	}

	if err := store.RevokeMembership(ctx, m.ID); err != nil {
		t.Fatalf("RevokeMembership() error = %v", err)
	}
	if err := store.RevokeMembership(ctx, m.ID); err != nil {
		t.Errorf("second RevokeMembership() error = %v", err)
	}
	if _, err := store.ActiveMembership(ctx, "usr-1", org.ID); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("ActiveMembership() after revoke error = %v", err)
	}

	list, err := store.ListOrganizationMemberships(ctx, org.ID)
	if err != nil || len(list) != 1 || list[0].Status != StatusRevoked {
		t.Errorf("ListOrganizationMemberships() = %+v, %v", list, err)
	}

	if _, err := store.GetOrganization(ctx, "org-missing"); !errors.Is(err, ErrOrganizationNotFound) {
		t.Errorf("GetOrganization(missing) error = %v", err)
	}
	if err := store.RevokeMembership(ctx, "mem-missing"); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("RevokeMembership(missing) error = %v", err)
	}
}

func TestSQLiteStore_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM profiles").WillReturnError(errors.New("database is locked"))

	_, err = NewSQLiteStore(db).GetProfile(context.Background(), "usr-1")
	if err == nil || errors.Is(err, ErrProfileNotFound) {
		t.Errorf("GetProfile() error = %v, want wrapped driver error", err)
	}
}
