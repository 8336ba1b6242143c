// LexGate Core - session and multi-tenant authorization for a legal practice platform
//
// This is the main entry point for the LexGate Core service. It owns:
//   - the edge gatekeeper and HTTP-only session cookies
//   - profile, organization and membership resolution
//   - the case, document and message authorization engine
//   - the external identity provider flow (OAuth2 with PKCE)
//
// Configuration is read from LEXGATE_CONFIG (default configs/config.yaml)
// with LEXGATE_* environment overrides for secrets.
//
// "lexgate migrate-down" reverts the latest schema migration and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/lexgate-core/internal/api"
	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/authz"
	"github.com/nerrad567/lexgate-core/internal/envelope"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/idp"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/database"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/metrics"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lexgate-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		err = migrateDown(ctx, os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LexGate Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	status, err := db.MigrationStatus(ctx, migrations.Source())
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, m := range status.Pending {
		log.Info("applying migration", "version", m.Version, "name", m.Name)
	}
	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete", "applied", len(status.Applied)+len(status.Pending))

	m := metrics.New(version)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Credential backend
	accounts := auth.NewAccountRepository(db.DB)
	authSvc := auth.NewService(accounts, auth.NewTokenRepository(db.DB), auth.ServiceConfig{
		Secret:     cfg.Security.JWT.Secret,
		AccessTTL:  cfg.Security.JWT.AccessTTL(),
		RefreshTTL: cfg.Security.JWT.RefreshTTL(),
	})

	store := identity.NewSQLiteStore(db.DB)
	if err := bootstrapOwner(ctx, accounts, store, cfg.Bootstrap, log, os.Stderr); err != nil {
		return fmt.Errorf("bootstrapping owner: %w", err)
	}

	resolver := identity.NewResolver(authSvc, store, identity.Config{
		Timeout:  cfg.Identity.ResolveTimeout,
		Retries:  cfg.Identity.LookupRetries,
		Recorder: m,
		Logger:   log.With("component", "identity").Logger,
	})

	engineCfg := authz.Config{
		Recorder: m,
		Logger:   log.With("component", "authz").Logger,
	}
	if influxClient != nil {
		engineCfg.Sink = influxClient
	}
	engine := authz.NewEngine(authz.NewCaseRepository(db.DB), authz.NewAssignmentRepository(db.DB), store, engineCfg)

	var flow *idp.Flow
	if cfg.IdP.Enabled {
		flow = idp.NewFlow(idp.Config{
			Provider:     cfg.IdP.Provider,
			ClientID:     cfg.IdP.ClientID,
			ClientSecret: cfg.IdP.ClientSecret,
			AuthURL:      cfg.IdP.AuthURL,
			TokenURL:     cfg.IdP.TokenURL,
			UserInfoURL:  cfg.IdP.UserInfoURL,
			RedirectURL:  cfg.IdP.RedirectURL,
			Scopes:       cfg.IdP.Scopes,
			Timeout:      cfg.IdP.Timeout,
			Recorder:     m,
			Logger:       log.With("component", "idp").Logger,
		}, idp.Deps{
			Accounts: accounts,
			Profiles: store,
			Links:    idp.NewLinkRepository(db.DB),
			Sessions: authSvc,
			Sealer:   envelope.NewKeySource(cfg.Security.EncryptionKey),
		})
		log.Info("identity provider enabled", "provider", flow.Provider())
	} else {
		log.Info("identity provider disabled")
	}

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		Session:   cfg.Session,
		Security:  cfg.Security,
		Logger:    log,
		Auth:      authSvc,
		Resolver:  resolver,
		Engine:    engine,
		IdP:       flow,
		AuditRepo: audit.NewSQLiteRepository(db.DB),
		Metrics:   m,
		Influx:    influxClient,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if mqttClient != nil {
		if err := mqttClient.SubscribeRevocations(srv.HandleRevokeCommand); err != nil {
			return fmt.Errorf("subscribing to revocations: %w", err)
		}
		log.Info("listening for membership revocations", "topic", mqtt.Topics{}.MembershipRevoke())
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains the audit queue)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("LexGate Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LEXGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LEXGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
