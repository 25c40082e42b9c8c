/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the time and attendance server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Open the store (sqlite, postgres or memory)
  3. Build the notifier, policy cache, authorizer and services
  4. Configure HTTP router
  5. Start the scheduler and the server, with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -driver  Store driver: sqlite, postgres or memory
  -db      SQLite database path ("file::memory:" for a throwaway database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Drain queued notifications
  5. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/hrmis.db"

  # Run against Postgres
  DATABASE_URL=postgres://hr:hr@localhost:5432/hr ./server -driver=postgres

  # Run with nothing persisted
  ./server -driver=memory

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Background jobs
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"
	"github.com/solomon-wilson/hrmis-sub002/api"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/config"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/notify"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/solomon-wilson/hrmis-sub002/report"
	"github.com/solomon-wilson/hrmis-sub002/store/memory"
	"github.com/solomon-wilson/hrmis-sub002/store/postgres"
	"github.com/solomon-wilson/hrmis-sub002/store/sqlite"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

const devJWTSecret = "dev-only-secret-change-me"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	driver := flag.String("driver", cfg.Database.Driver, "Store driver: sqlite, postgres or memory")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	flag.Parse()
	cfg.App.Port = *port
	cfg.Database.Driver = *driver
	cfg.Database.Path = *dbPath

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, level := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger, level); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, slog.Level) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logFormat := httplog.SchemaECS.Concise(!cfg.IsProduction())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "hrmis"),
		slog.String("env", cfg.App.Env),
	)
	return logger, level
}

type policyBackend interface {
	api.PolicyStore
	policy.Repository
}

type employeeBackend interface {
	api.EmployeeStore
	generic.Directory
	notify.AddressBook
}

type holidayBackend interface {
	api.HolidayStore
	generic.HolidayCalendar
}

// backend bundles the stores of one driver. The SQL drivers implement every
// role on one value.
type backend struct {
	leave     leave.TxStore
	time      timetracking.TxStore
	policies  policyBackend
	employees employeeBackend
	holidays  holidayBackend
	close     func() error
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig) (*backend, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return &backend{leave: s, time: s, policies: s, employees: s, holidays: s, close: s.Close}, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &backend{leave: s, time: s, policies: s, employees: s, holidays: s, close: s.Close}, nil
	case "memory":
		return &backend{
			leave:     memory.NewLeaveStore(),
			time:      memory.NewTimeStore(),
			policies:  memory.NewPolicyStore(),
			employees: memory.NewEmployeeStore(),
			holidays:  memory.NewHolidays(),
			close:     func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func newNotifier(cfg config.SMTPConfig, book notify.AddressBook, logger *slog.Logger) (notify.Dispatcher, func()) {
	if !cfg.Enabled() {
		return notify.NewLogDispatcher(logger), func() {}
	}
	email := notify.NewSMTPDispatcher(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.From, book)
	async := notify.NewAsyncDispatcher(email, logger, notify.AsyncConfig{})
	return async, async.Close
}

func run(cfg *config.Config, logger *slog.Logger, level slog.Level) error {
	ctx := context.Background()

	store, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.close()

	notifier, closeNotifier := newNotifier(cfg.SMTP, store.employees, logger)
	defer closeNotifier()

	policies := policy.NewCachedRepository(store.policies, 30*time.Second)
	authorizer := authz.NewRoleAuthorizer(store.employees)

	leaveManager := leave.NewManager(leave.Deps{
		Store:      store.leave,
		Policies:   policy.NewEngine(policies),
		Directory:  store.employees,
		Holidays:   store.holidays,
		Notifier:   notifier,
		Authorizer: authorizer,
		Logger:     logger.With(slog.String("component", "leave")),
	}, leave.Config{LowBalanceThreshold: cfg.Leave.LowBalanceThreshold})

	trackingCfg := timetracking.DefaultConfig()
	trackingCfg.AllowFutureClockIn = cfg.Tracking.AllowFutureClockIn
	trackingCfg.FutureSkew = cfg.Tracking.FutureSkew
	trackingCfg.MaxDailyHours = cfg.Tracking.MaxDailyHours
	trackingCfg.ManualEntryMaxAge = cfg.Tracking.ManualEntryMaxAge
	trackingCfg.ManualEntryRequiresApproval = cfg.Tracking.ManualEntryRequiresApproval
	trackingCfg.MaxShiftDuration = cfg.Tracking.MaxShiftDuration
	timeService := timetracking.NewService(timetracking.Deps{
		Store:      store.time,
		Policies:   policies,
		Directory:  store.employees,
		Notifier:   notifier,
		Authorizer: authorizer,
		Logger:     logger.With(slog.String("component", "timetracking")),
	}, trackingCfg)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET_KEY not set, using the development secret")
		secret = devJWTSecret
	}

	handler := api.NewHandler(api.Deps{
		Leave: leaveManager,
		Time:  timeService,
		Reports: report.NewService(report.Deps{
			Leave:      leaveManager,
			Time:       timeService,
			Authorizer: authorizer,
		}),
		Employees:   store.employees,
		Policies:    store.policies,
		Holidays:    store.holidays,
		PolicyCache: policies,
		Authorizer:  authorizer,
		JWT:         authz.NewJWTAuth(secret),
		TokenTTL:    cfg.Auth.TokenTTL,
		DevTokens:   !cfg.IsProduction(),
		Logger:      logger,
	})

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.App.CORSOrigins,
		Logger:      logger,
		LogLevel:    level,
	})

	scheduler := api.NewScheduler(leaveManager, timeService, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.AccrualInterval = cfg.Scheduler.AccrualInterval
	scheduler.SweepInterval = cfg.Scheduler.SweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.Int("port", cfg.App.Port),
			slog.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
