// Package database provides SQLite database connectivity for LexGate Core.
//
// One DB is shared by the account, token, identity, authz, idp and audit
// repositories. With WAL enabled the pool keeps several connections so
// per-request profile reads do not queue behind refresh-token writes;
// transactions begin IMMEDIATE so writers serialise on busy_timeout.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600
//   - Refresh tokens are stored hashed; IdP tokens are stored encrypted
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be NULLable or have defaults,
// and every .up.sql has a matching .down.sql.
package database
