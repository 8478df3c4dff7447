package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TableTalk API server",
		Long:  "Start the HTTP server that answers natural-language questions over the configured database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dev {
		cfg.Logging.Level = "debug"
	}

	logger := newLogger(cfg)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Warm the catalog so the first question does not pay for introspection.
	warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := a.catalog.Snapshot(warmCtx); err != nil {
		logger.Warn("initial schema introspection failed", "error", err)
	}
	cancel()
	go a.catalog.Start(context.Background())

	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:     cfg.Server.CORS.Origins,
		RatePerMinute:   cfg.Server.RatePerMinute,
	}

	srv := server.New(srvCfg, server.Deps{
		DB:       a.db,
		Catalog:  a.catalog,
		Policy:   a.policy,
		Pipeline: a.pipeline,
		Store:    a.store,
		Auth:     a.auth,
		Tracker:  a.tracker,
		Logger:   logger,
	})

	fmt.Printf("→ TableTalk\n")
	fmt.Printf("→ Database:   %s\n", cfg.Database.Driver)
	fmt.Printf("→ Listening:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
