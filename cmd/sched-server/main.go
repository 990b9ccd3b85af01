package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medisched/medisched/internal/config"
	"github.com/medisched/medisched/internal/domain/affiliation"
	"github.com/medisched/medisched/internal/domain/appointment"
	"github.com/medisched/medisched/internal/domain/schedule"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/db"
	"github.com/medisched/medisched/internal/platform/middleware"
	"github.com/medisched/medisched/internal/platform/notification"
)

// AppointmentCancellerAdapter adapts the appointment service to the
// affiliation.AppointmentCanceller interface. The inner service is bound after
// construction because the two services reference each other.
type AppointmentCancellerAdapter struct {
	svc *appointment.Service
}

func (a *AppointmentCancellerAdapter) CancelFutureForPair(ctx context.Context, doctorID, hospitalID uuid.UUID, reason string) ([]affiliation.CancelledAppointment, error) {
	cancelled, err := a.svc.CancelFutureForPair(ctx, doctorID, hospitalID, reason)
	if err != nil {
		return nil, err
	}
	out := make([]affiliation.CancelledAppointment, 0, len(cancelled))
	for _, c := range cancelled {
		out = append(out, affiliation.CancelledAppointment{
			ID:        c.ID,
			PatientID: c.PatientID,
			VisitDate: c.VisitDate,
		})
	}
	return out, nil
}

// NotifierAdapter adapts the notification manager to the domain Notifier
// interfaces. Delivery failures are logged and swallowed; notices never fail a
// scheduling operation.
type NotifierAdapter struct {
	manager *notification.Manager
	logger  zerolog.Logger
}

func (n *NotifierAdapter) Notify(ctx context.Context, recipientID uuid.UUID, templateID string, data map[string]string) {
	if _, err := n.manager.SendFromTemplate(ctx, templateID, data, recipientID.String()); err != nil {
		n.logger.Warn().Err(err).
			Str("template_id", templateID).
			Str("recipient", recipientID.String()).
			Msg("notification delivery failed")
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sched-server",
		Short: "Clinic affiliation and appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	txm := db.NewTxManager(pool)

	// Notifications use log-backed senders until a gateway is configured.
	templates := notification.NewTemplateEngine()
	manager := notification.NewManager(
		&notification.LogEmailSender{Logger: logger},
		&notification.LogSMSSender{Logger: logger},
		templates,
	)
	notifier := &NotifierAdapter{manager: manager, logger: logger}

	// Domain services. The affiliation and appointment services reference each
	// other, so the canceller adapter is bound after both exist.
	canceller := &AppointmentCancellerAdapter{}

	affRepo := affiliation.NewRepoPG(pool)
	tplRepo := schedule.NewTemplateRepoPG(pool)
	hoursRepo := schedule.NewHoursRepoPG(pool)
	apptRepo := appointment.NewRepoPG(pool)
	flagRepo := appointment.NewWalkInFlagRepoPG(pool)

	schedSvc := schedule.NewService(tplRepo, hoursRepo, nil, txm)
	affSvc := affiliation.NewService(affRepo, txm, canceller, schedSvc, notifier)
	schedSvc.SetApprovalChecker(affSvc)
	apptSvc := appointment.NewService(apptRepo, flagRepo, affSvc, schedSvc, txm, notifier)
	canceller.svc = apptSvc

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Domain handlers
	affiliation.NewHandler(affSvc).RegisterRoutes(apiV1)
	schedule.NewHandler(schedSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)

	// Overdue-appointment reaper. Marks stale BOOKED appointments as SKIPPED
	// once the configured grace period has passed.
	reaperCtx, reaperCancel := context.WithCancel(ctx)
	defer reaperCancel()
	go func() {
		grace := time.Duration(cfg.SkipGraceMinutes) * time.Minute
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-reaperCtx.Done():
				return
			case <-ticker.C:
				n, err := apptSvc.SkipOverdue(reaperCtx, grace)
				if err != nil {
					logger.Error().Err(err).Msg("overdue appointment sweep failed")
					continue
				}
				if n > 0 {
					logger.Info().Int("skipped", n).Msg("marked overdue appointments as skipped")
				}
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
