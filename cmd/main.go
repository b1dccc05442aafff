package main

import (
	"context"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/openmeet/scheduler/internal/api"
	"github.com/openmeet/scheduler/internal/config"
	"github.com/openmeet/scheduler/internal/db"
	"github.com/openmeet/scheduler/internal/repository"
	"github.com/openmeet/scheduler/internal/service"
	"github.com/openmeet/scheduler/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting application")

	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err = pool.Ping(context.Background()); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	logger.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	userRepo := repository.NewPgxUserRepository(pool)
	availabilityRepo := repository.NewPgxAvailabilityRepository(pool)
	meetingRepo := repository.NewPgxMeetingRepository(pool)
	teamRepo := repository.NewPgxTeamRepository(pool)

	schedule := service.NewScheduleService().
		WithUserRepo(userRepo).
		WithAvailabilityRepo(availabilityRepo).
		WithMeetingRepo(meetingRepo).
		WithTeamRepo(teamRepo).
		WithParallelism(cfg.ComputeParallelism)
	availability := service.NewAvailabilityService().WithAvailabilityRepo(availabilityRepo)
	meetings := service.NewMeetingService(transactor).WithMeetingRepo(meetingRepo)

	healthChecker := api.MustNewHealthChecker(health.Config{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	e := echo.New()

	handler := api.NewHandler(logger).
		WithHealthChecker(healthChecker).
		WithScheduleService(schedule).
		WithAvailabilityService(availability).
		WithMeetingService(meetings).
		WithRequestTimeout(cfg.RequestTimeout)

	handler.RegisterRoutes(e)

	logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
	if err = e.Start(cfg.HTTPAddr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
