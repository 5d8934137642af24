package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"helpdesk-mail-go/internal/config"
	"helpdesk-mail-go/internal/db"
	"helpdesk-mail-go/internal/fetcher"
	"helpdesk-mail-go/internal/handlers"
	"helpdesk-mail-go/internal/metrics"
	"helpdesk-mail-go/internal/repository"
	"helpdesk-mail-go/internal/scheduler"
	"helpdesk-mail-go/internal/sender"
	"helpdesk-mail-go/internal/server"
	"helpdesk-mail-go/internal/service"
)

// NewRootCommand builds the helpdesk-mail command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "helpdesk-mail",
		Short:         "Help desk mail reconciliation service",
		Long:          "Polls company mailboxes and threads customer mail into help desk conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the reconcile scheduler",
			RunE: func(cmd *cobra.Command, args []string) error {
				return Run()
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Poll the discovery mailbox once and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return reconcileOnce(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate()
			},
		},
		newGmailTokenCommand(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	return cfg, nil
}

// build wires the database, mail transports and the reconcile service.
func build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*gorm.DB, *service.Service, error) {
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailbox := fetcher.NewIMAPMailbox(cfg.Reconcile)

	var discovery service.UnreadSource
	switch cfg.Discovery.Provider {
	case config.ProviderGmail:
		src, err := fetcher.NewGmailSource(ctx, cfg.Discovery, cfg.Reconcile.MarkSeen)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gmail discovery source: %w", err)
		}
		discovery = src
		logrus.Info("Using Gmail API for the discovery mailbox")
	default:
		discovery = fetcher.NewIMAPSource(mailbox, cfg.Discovery)
		logrus.Info("Using IMAP for the discovery mailbox")
	}

	svc := service.New(repository.New(dbConn), discovery, mailbox, sender.NewSMTPSender(), m, cfg.Reconcile)
	return dbConn, svc, nil
}

// Run initializes and starts the application
func Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logrus.Info("Starting help desk mail service")

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	dbConn, svc, err := build(context.Background(), cfg, m)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(&cfg.Scheduler, svc)

	h := handlers.NewHandlers(dbConn, svc, sched)
	router := server.SetupRouter(h, m)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		logrus.Errorf("HTTP server error: %v", serveErr)
	}

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if sqlDB, err := dbConn.DB(); err == nil {
		sqlDB.Close()
	}

	logrus.Info("Server stopped gracefully")
	return serveErr
}

func reconcileOnce(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, svc, err := build(ctx, cfg, metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	return svc.ReconcileNewMail(ctx)
}

func migrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := dbConn.DB(); err == nil {
		sqlDB.Close()
	}
	logrus.Info("Migrations applied")
	return nil
}
