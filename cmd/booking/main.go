package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
	"github.com/ariefcatur/go-booking-saga.git/internal/config"
	"github.com/ariefcatur/go-booking-saga.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-booking-saga.git/internal/kafka"
	"github.com/ariefcatur/go-booking-saga.git/internal/logx"
	"github.com/ariefcatur/go-booking-saga.git/internal/postgres"
	"github.com/ariefcatur/go-booking-saga.git/internal/redisx"
	"github.com/ariefcatur/go-booking-saga.git/internal/saga"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logg := logx.New(cfg.ServiceName)
	defer logg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Repos & schema
	repo := &booking.Repo{DB: db}
	sagaRepo := &booking.SagaRepo{DB: db}
	if err := repo.InitSchema(ctx); err != nil {
		logg.Fatal("init schema", zap.Error(err))
	}

	// Kafka publisher (sync + retry)
	pub := kafkax.NewPublisher(kafkax.PublisherConfig{
		Brokers:     cfg.KafkaBrokers,
		Producer:    cfg.ServiceName,
		MaxAttempts: cfg.PublishMaxAttempts,
		BaseBackoff: cfg.PublishBaseBackoff,
		MaxBackoff:  cfg.PublishMaxBackoff,
	}, logg)

	// Orchestrator + sweeper
	orch := saga.NewOrchestrator(repo, sagaRepo, pub, logg)
	sweeper := saga.NewSweeper(orch, cfg.StepTimeout, cfg.SweepInterval, cfg.SweepLimit, logg)
	go sweeper.Run(ctx)

	// Consumer untuk outcome events dari semua collaborator.
	dedup := &redisx.Deduper{RDB: rdb, Service: cfg.ServiceName}
	group := getenv("BOOKING_GROUP", "booking-orchestrator")
	workers := mustAtoi(os.Getenv("BOOKING_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, booking.OutcomeTopics(), workers, cfg.ConsumeMaxBackoff, logg)

	go func() {
		logg.Info("outcome consumer started",
			zap.String("group", group),
			zap.Strings("topics", booking.OutcomeTopics()),
			zap.Int("workers", workers),
		)
		err := cons.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
			var env booking.Envelope
			if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
				logg.Warn("malformed outcome dropped", zap.Error(err))
				return nil
			}
			if dedup.Seen(ctx, env.EventID) {
				return nil
			}
			return orch.HandleOutcome(ctx, env)
		})
		if err != nil {
			logg.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// HTTP
	router := httpx.NewRouter()
	bh := &httpx.BookingsHandler{
		Sagas:    orch,
		Bookings: repo,
		Redis:    rdb,
	}
	bh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logg.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logg.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // consumer & sweeper berhenti lewat ctx
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
