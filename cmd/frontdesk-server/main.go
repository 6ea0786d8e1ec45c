package main

import (
	"context"
	"errors"
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

	"github.com/frontdesk/frontdesk/internal/config"
	"github.com/frontdesk/frontdesk/internal/domain/directory"
	"github.com/frontdesk/frontdesk/internal/domain/patient"
	"github.com/frontdesk/frontdesk/internal/domain/queue"
	"github.com/frontdesk/frontdesk/internal/platform/auth"
	"github.com/frontdesk/frontdesk/internal/platform/db"
	"github.com/frontdesk/frontdesk/internal/platform/middleware"
	"github.com/frontdesk/frontdesk/internal/platform/notification"
)

// DoctorDirectoryAdapter adapts the directory service to the
// queue.DoctorDirectory interface, avoiding circular imports between the
// queue and directory packages.
type DoctorDirectoryAdapter struct {
	svc *directory.Service
}

func NewDoctorDirectoryAdapter(svc *directory.Service) *DoctorDirectoryAdapter {
	return &DoctorDirectoryAdapter{svc: svc}
}

// Doctor implements queue.DoctorDirectory.
func (a *DoctorDirectoryAdapter) Doctor(ctx context.Context, id uuid.UUID) (*queue.DoctorInfo, error) {
	d, err := a.svc.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, queue.ErrNotFound
		}
		return nil, err
	}
	return doctorInfo(d), nil
}

// ActiveDoctors implements queue.DoctorDirectory.
func (a *DoctorDirectoryAdapter) ActiveDoctors(ctx context.Context, departmentID uuid.UUID) ([]*queue.DoctorInfo, error) {
	doctors, err := a.svc.ListDoctorsByDepartment(ctx, departmentID, true)
	if err != nil {
		return nil, err
	}
	infos := make([]*queue.DoctorInfo, 0, len(doctors))
	for _, d := range doctors {
		infos = append(infos, doctorInfo(d))
	}
	return infos, nil
}

func doctorInfo(d *directory.Doctor) *queue.DoctorInfo {
	return &queue.DoctorInfo{
		ID:                d.ID,
		DepartmentID:      d.DepartmentID,
		Active:            d.Active,
		MaxPatientsPerDay: d.MaxPatientsPerDay,
		ConsultMinutes:    d.ConsultMinutes,
		ShiftStart:        d.ShiftStart,
	}
}

// PatientRegistryAdapter adapts the patient service to the
// queue.PatientDirectory interface.
type PatientRegistryAdapter struct {
	svc *patient.Service
}

func NewPatientRegistryAdapter(svc *patient.Service) *PatientRegistryAdapter {
	return &PatientRegistryAdapter{svc: svc}
}

// Exists implements queue.PatientDirectory.
func (a *PatientRegistryAdapter) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return a.svc.Exists(ctx, id)
}

// RecipientResolverAdapter resolves a patient id to a deliverable address for
// the notification dispatcher. Email wins over SMS when both are on file.
type RecipientResolverAdapter struct {
	svc *patient.Service
}

func NewRecipientResolverAdapter(svc *patient.Service) *RecipientResolverAdapter {
	return &RecipientResolverAdapter{svc: svc}
}

// Recipient implements notification.RecipientResolver.
func (a *RecipientResolverAdapter) Recipient(ctx context.Context, userID uuid.UUID) (string, notification.NotificationType, error) {
	p, err := a.svc.Get(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if p.Email != nil && *p.Email != "" {
		return *p.Email, notification.TypeEmail, nil
	}
	if p.Phone != nil && *p.Phone != "" {
		return *p.Phone, notification.TypeSMS, nil
	}
	return "", "", fmt.Errorf("patient %s has no email or phone on file", userID)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "frontdesk-server",
		Short: "Hospital front-desk booking API server",
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
		Short: "Start the booking API server",
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

	// migrate up
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

	// migrate status
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
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

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
			Secret: cfg.JWTSecret,
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Directory domain
	deptRepo := directory.NewDepartmentRepoPG(pool)
	doctorRepo := directory.NewDoctorRepoPG(pool)
	directorySvc := directory.NewService(deptRepo, doctorRepo)
	directoryHandler := directory.NewHandler(directorySvc)
	directoryHandler.RegisterRoutes(apiV1)

	// Patient registry
	patientRepo := patient.NewPatientRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterRoutes(apiV1)

	// Notifications
	notifMgr := notification.NewManager(
		notification.NewLogSender(logger),
		notification.NewLogSender(logger),
		notification.NewTemplateEngine(),
	)
	dispatcher := notification.NewDispatcher(notifMgr, NewRecipientResolverAdapter(patientSvc), logger)
	notifHandler := notification.NewHandler(notifMgr)
	notifHandler.RegisterRoutes(apiV1)

	// Appointment queue domain
	queueSvc := queue.NewService(
		queue.NewAppointmentRepoPG(pool),
		NewDoctorDirectoryAdapter(directorySvc),
		NewPatientRegistryAdapter(patientSvc),
		db.NewManager(pool),
		dispatcher,
		logger,
		queue.Config{
			ShiftStart:            cfg.ShiftStart,
			ConsultMinutes:        cfg.ConsultMinutes,
			MaxPatientsPerDay:     cfg.MaxPatientsPerDay,
			RescheduleHorizonDays: cfg.RescheduleHorizonDays,
			ConflictRetries:       cfg.BookingRetries,
		},
	)
	queueHandler := queue.NewHandler(queueSvc)
	queueHandler.RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	dispatcher.Wait()

	return nil
}
