package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema-ticketing/internal/auth"
	"cinema-ticketing/internal/config"
	"cinema-ticketing/internal/database/migrations"
	"cinema-ticketing/internal/kafka"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/notifier"
	"cinema-ticketing/internal/order"
	orderdb "cinema-ticketing/internal/order/db"
	"cinema-ticketing/internal/order/order_api"
	rediswrap "cinema-ticketing/internal/order/redis"
	"cinema-ticketing/internal/payment/liqpay"
	"cinema-ticketing/internal/sweeper"

	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("PostgreSQL unavailable after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting booking service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	log.Info("DATABASE", "Schema migrations applied")

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()
	holds := rediswrap.NewSeatHolds(redisClient, cfg.Redis.HoldTTL)

	var events order.EventPublisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		events = producer
		log.Info("KAFKA", "Kafka producer initialized")
	} else {
		log.Warn("KAFKA", "Kafka disabled, order events will not be published")
	}

	gateway := liqpay.New(cfg.LiqPay.PublicKey, cfg.LiqPay.PrivateKey, cfg.LiqPay.Sandbox)

	store := &orderdb.DB{Bun: bunDB}

	mailer, err := notifier.New(cfg.SMTP, store, log)
	if err != nil {
		log.Fatal("MAIL", fmt.Sprintf("SMTP client setup failed: %v", err))
	}
	var orderNotifier order.Notifier
	if mailer != nil {
		orderNotifier = mailer
	} else {
		log.Warn("MAIL", "SMTP not configured, ticket emails disabled")
	}

	service := order.NewOrderService(store, holds, gateway, events, orderNotifier, cfg.LiqPay.Currency, log)
	handler := order_api.NewHandler(service, log)

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("SWEEPER", fmt.Sprintf("Scheduler setup failed: %v", err))
	}
	sw := sweeper.New(store, service, cfg.Sweeper.PendingTimeout, log)
	if _, err := sw.Schedule(sched, cfg.Sweeper.Interval); err != nil {
		log.Fatal("SWEEPER", fmt.Sprintf("Sweep job setup failed: %v", err))
	}
	sched.Start()
	log.Info("SWEEPER", fmt.Sprintf("Stale order sweeper running every %s (timeout %s)", cfg.Sweeper.Interval, cfg.Sweeper.PendingTimeout))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		// The gateway authenticates with its payload signature.
		r.Post("/payments/callback", handler.PaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware())
			handler.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	if err := sched.Shutdown(); err != nil {
		log.Error("SWEEPER", fmt.Sprintf("Scheduler shutdown failed: %v", err))
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking service shutdown complete")
	}
}
