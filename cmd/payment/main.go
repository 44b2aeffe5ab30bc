package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
	"github.com/ariefcatur/go-booking-saga.git/internal/config"
	kafkax "github.com/ariefcatur/go-booking-saga.git/internal/kafka"
	"github.com/ariefcatur/go-booking-saga.git/internal/logx"
	"github.com/ariefcatur/go-booking-saga.git/internal/payment"
	"github.com/ariefcatur/go-booking-saga.git/internal/postgres"
	"github.com/ariefcatur/go-booking-saga.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	service := cfg.ServiceName + "-payment"
	logg := logx.New(service)
	defer logg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	repo := &payment.Repo{DB: db}
	if err := repo.InitSchema(ctx); err != nil {
		logg.Fatal("init schema", zap.Error(err))
	}

	pub := kafkax.NewPublisher(kafkax.PublisherConfig{
		Brokers:     cfg.KafkaBrokers,
		Producer:    service,
		MaxAttempts: cfg.PublishMaxAttempts,
		BaseBackoff: cfg.PublishBaseBackoff,
		MaxBackoff:  cfg.PublishMaxBackoff,
	}, logg)

	svc := &payment.Service{
		Repo:    repo,
		Bus:     pub,
		Gateway: payment.SimulatedGateway,
		Dedup:   &redisx.Deduper{RDB: rdb, Service: service},
		Log:     logg,
	}

	group := getenv("PAYMENT_GROUP", "payment-svc")
	workers := mustAtoi(os.Getenv("PAYMENT_WORKERS"), "8")
	topics := []string{booking.EventPaymentProcess, booking.EventPaymentRefund}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers, cfg.ConsumeMaxBackoff, logg)

	go func() {
		logg.Info("payment consumer started",
			zap.String("group", group),
			zap.Strings("topics", topics),
			zap.Int("workers", workers),
		)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			logg.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logg.Info("shutting down...")
	cancel()
	_ = pub.Close()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
