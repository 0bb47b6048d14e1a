package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/database"
	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/routes"
	"github.com/example/cyclebees/internal/services"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Log

	db, err := database.Open(cfg.DatabaseURL, cfg.DBLogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := database.SeedAdmin(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin")
	}

	events, err := services.NewEventPublisher(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.EventsDriver).Msg("failed to start event publisher")
	}
	defer events.Close()

	var otpStore services.OTPStore = services.NewGormOTPStore(db)
	if cfg.OTPStore == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		otpStore = services.NewRedisOTPStore(rdb)
	}

	var sms services.SMSSender = services.LogSender{}
	if cfg.SMSGateway != "" {
		sms = services.NewGatewaySender(cfg.SMSGateway, cfg.SMSUsername, cfg.SMSPassword)
	}

	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	notifier := services.NewNotifier(telegram, events)
	svc := routes.NewServices(db, cfg, notifier, otpStore, sms)

	app := routes.NewApp(cfg)
	routes.Register(app, db, cfg, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := services.NewExpirySweeper(db, notifier, cfg.ExpirySweepInterval)
	go sweeper.Run(ctx)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("fiber.Listen error")
	}
}
