package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/tabletalk/tabletalk/internal/analytics"
	"github.com/tabletalk/tabletalk/internal/cache"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/execute"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/producer"
	"github.com/tabletalk/tabletalk/internal/service"
	"github.com/tabletalk/tabletalk/internal/store"
)

// app bundles everything a command needs once the config is wired. Close
// releases the database handles.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	catalog  *catalog.Catalog
	policy   *policy.Policy
	pipeline *pipeline.Pipeline
	store    *store.Store
	auth     *service.AuthService
	tracker  *analytics.Tracker
	logger   *slog.Logger
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// loadConfig reads the config file named by --config (or the default search
// path), then layers TABLETALK_* environment overrides for the secrets.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if used := viper.ConfigFileUsed(); used != "" {
			path = used
		}
	}

	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if s := viper.GetString("auth.jwt_secret"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if s := viper.GetString("llm.api_key"); s != "" {
		cfg.LLM.APIKey = s
	}
	if s := viper.GetString("database.dsn"); s != "" {
		cfg.Database.DSN = s
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Logging.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openDatabase connects to the warehouse named in the config. The dialect
// string it returns feeds catalog introspection and executor session setup.
func openDatabase(cfg *config.Config) (*sqlx.DB, string, error) {
	driver := strings.ToLower(cfg.Database.Driver)

	var driverName string
	switch driver {
	case "postgres", "postgresql":
		driverName, driver = "pgx", "postgres"
	case "mysql":
		driverName = "mysql"
	case "sqlserver", "mssql":
		driverName, driver = "sqlserver", "sqlserver"
	case "sqlite", "sqlite3":
		driverName, driver = "sqlite", "sqlite"
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := sqlx.Connect(driverName, cfg.Database.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("connect %s: %w", driver, err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(config.Duration(cfg.Database.ConnMaxLifetime, 5*time.Minute))

	return db, driver, nil
}

// buildApp wires the full pipeline from the config.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = home + "/.tabletalk"
	}
	st, err := store.New(dataDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	cat := catalog.New(db, dialect, cfg.Database.Schema,
		config.Duration(cfg.Pipeline.CatalogTTL, 10*time.Minute), logger)

	var engine llm.Client
	var explainer llm.Explainer
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		client := llm.NewHTTPClient(
			cfg.LLM.BaseURL,
			cfg.LLM.APIKey,
			cfg.LLM.Model,
			cfg.LLM.MaxTokens,
			cfg.LLM.Temperature,
			config.Duration(cfg.LLM.Timeout, 10*time.Second),
		)
		engine = client
		if cfg.LLM.Explanations {
			explainer = client
		}
		logger.Info("generation engine enabled", "model", cfg.LLM.Model)
	} else {
		logger.Info("generation engine disabled, template matching only")
	}

	tracker := analytics.New(cfg.Pipeline.AnalyticsWindow)

	pipe := pipeline.New(pipeline.Deps{
		Catalog:  cat,
		Policy:   pol,
		Producer: producer.New(engine, logger),
		Executor: execute.New(db, dialect,
			config.Duration(cfg.Pipeline.StatementTimeout, 15*time.Second),
			cfg.Pipeline.MaxLimit, logger),
		Cache: cache.New(cfg.Pipeline.CacheMaxEntries,
			config.Duration(cfg.Pipeline.CacheTTL, 5*time.Minute)),
		Explainer:    explainer,
		Tracker:      tracker,
		Audit:        st,
		MaxLimit:     cfg.Pipeline.MaxLimit,
		DefaultLimit: cfg.Pipeline.DefaultLimit,
		Logger:       logger,
	})

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "tabletalk-dev-secret-change-me"
		logger.Warn("no auth.jwt_secret configured, using the development secret")
	}
	auth := service.NewAuthService(jwtSecret, config.Duration(cfg.Auth.JWTExpiry, 24*time.Hour))

	return &app{
		cfg:      cfg,
		db:       db,
		catalog:  cat,
		policy:   pol,
		pipeline: pipe,
		store:    st,
		auth:     auth,
		tracker:  tracker,
		logger:   logger,
	}, nil
}

func loadPolicy(cfg *config.Config) (*policy.Policy, error) {
	if cfg.Policy.File == "" {
		return policy.Default(), nil
	}
	pol, err := policy.Load(cfg.Policy.File)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return pol, nil
}
