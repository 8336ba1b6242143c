package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/logging"
)

// bootstrapOwner seeds the first owner on an empty database: the account,
// its organization, an owner-admin profile linked to it and the owner
// membership. The generated password is written to out, never to the log.
func bootstrapOwner(ctx context.Context, accounts auth.AccountRepository, store identity.Store,
	cfg config.BootstrapConfig, log *logging.Logger, out io.Writer) error {
	owner, password, err := auth.SeedOwner(ctx, accounts, cfg.OwnerEmail, log.Logger)
	if err != nil {
		return err
	}
	if owner == nil {
		return nil
	}

	org := &identity.Organization{Name: cfg.OrganizationName}
	if err := store.CreateOrganization(ctx, org); err != nil {
		return err
	}
	if err := store.CreateProfile(ctx, &identity.Profile{
		UserID:         owner.ID,
		Email:          owner.Email,
		DisplayName:    owner.Email,
		Role:           identity.RoleOwnerAdmin,
		OrganizationID: org.ID,
		MembershipRole: identity.MembershipOwner,
		IsActive:       true,
	}); err != nil {
		return fmt.Errorf("creating owner profile: %w", err)
	}
	if err := store.CreateMembership(ctx, &identity.Membership{
		UserID:         owner.ID,
		OrganizationID: org.ID,
		Role:           identity.MembershipOwner,
	}); err != nil {
		return err
	}

	log.Info("bootstrap organization created", "organization_id", org.ID, "name", org.Name)
	fmt.Fprintf(out, "\nLexGate owner account created\n  email:    %s\n  password: %s\nChange this password immediately.\n\n",
		owner.Email, password)
	return nil
}
