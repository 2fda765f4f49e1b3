package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/xavierca1/lead-relay/internal/config"
	"github.com/xavierca1/lead-relay/internal/infra/database"
	"github.com/xavierca1/lead-relay/internal/infra/http/handlers"
	"github.com/xavierca1/lead-relay/internal/infra/integration/telegram"
	"github.com/xavierca1/lead-relay/internal/infra/notify"
	"github.com/xavierca1/lead-relay/internal/infra/queue"
	"github.com/xavierca1/lead-relay/internal/infra/worker"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialect := database.Dialect(cfg.DatabaseDriver)
	db, err := database.NewDBConnection(dialect, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, dialect, "up"); err != nil {
		log.Fatalf("❌ migrations: %v", err)
	}

	// 1. Repositories
	leadRepo := database.NewLeadRepository(db, dialect, cfg.MaxAttempts)

	// 2. Staff queue (only when staff messages go through RabbitMQ)
	var broker handlers.BrokerHealth
	var publisher queue.Publisher
	if cfg.StaffTransport == config.StaffTransportAMQP {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("❌ rabbitmq: %v", err)
		}
		defer rabbitMQ.Close()

		broker = rabbitMQ
		publisher = rabbitMQ.Ch

		if tg := notify.Telegram(cfg); tg != nil {
			consumer := queue.NewWorker(rabbitMQ.Ch, func(ctx context.Context, n queue.StaffNotification) error {
				return tg.SendMessage(ctx, telegram.StaffMessage(n.Lead()))
			})
			go func() {
				if err := consumer.Start(ctx, queue.QueueName); err != nil {
					log.Printf("[QUEUE] ❌ %v", err)
				}
			}()
		} else {
			log.Println("[QUEUE] ⚠️ no Telegram bot configured, staff queue is not drained here")
		}
	}

	// 3. Adapters
	senders := notify.Senders(cfg, publisher)

	// 4. UseCases
	dispatcher := usecase.NewDispatchLeadUseCase(leadRepo, senders, cfg.SendTimeout())
	createLeadUC := usecase.NewCreateLeadUseCase(leadRepo, dispatcher)
	retryUC := usecase.NewRetryDeliveryUseCase(leadRepo, dispatcher, cfg.MaxAttempts)
	queryUC := usecase.NewDeliveryQueryUseCase(leadRepo)

	// 5. Retry worker
	retryWorker := worker.NewRetryWorker(leadRepo, dispatcher, cfg.RetryEvery(), cfg.SweepDeadline(), cfg.Backoff())
	retryWorker.PendingGrace = cfg.PendingGracePeriod()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		retryWorker.Start(ctx)
	}()

	// 6. Handlers
	limiter := handlers.NewRateLimiter(10, time.Minute)
	go limiter.Cleanup(ctx, 5*time.Minute)

	router := newRouter(routes{
		Leads:          handlers.NewLeadHandler(createLeadUC, queryUC, limiter),
		Deliveries:     handlers.NewDeliveryHandler(queryUC, retryUC, dispatcher),
		Health:         handlers.NewHealthHandler(leadRepo, broker, version),
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🔥 Lead relay running on %s (db=%s, staff=%s)", cfg.HTTPAddr, dialect, cfg.StaffTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("⚠️ shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ http shutdown: %v", err)
	}
	<-workerDone
}
