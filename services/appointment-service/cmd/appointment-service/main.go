package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/docbook/libs/config"
	"github.com/md-rashed-zaman/docbook/libs/db"
	"github.com/md-rashed-zaman/docbook/libs/grpcx"
	"github.com/md-rashed-zaman/docbook/libs/httpx"
	"github.com/md-rashed-zaman/docbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/docbook/libs/otel"
	"github.com/md-rashed-zaman/docbook/libs/runtime"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/consumer"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/handlers"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/inbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/metrics"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/payment"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	m := metrics.New(nil)
	outboxRepo := outbox.NewRepository()
	store := storage.NewPostgres(pool, outboxRepo)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	var rdb *redis.Client
	var cache availability.Cache
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		cache = availability.NewRedisCache(rdb, cfg.CacheTTL, logger)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	avail := availability.NewService(store, cache, logger, availability.ServiceConfig{Location: cfg.Location})
	guard := booking.NewGuard(store, logger, m, booking.Config{
		Location:         cfg.Location,
		IncrementMinutes: cfg.IncrementMinutes,
		Defaults: booking.Defaults{
			ConsultationFee:    cfg.DefaultFee,
			Currency:           cfg.DefaultCurrency,
			AppointmentMinutes: cfg.AppointmentMinutes,
		},
	})
	machine := lifecycle.NewMachine(store, notify.NewDispatcher(cfg.NotifyMaxAttempts), logger, m, nil)
	gate := payment.NewGate(store, machine, payment.NewHMACVerifier(cfg.PaymentSecret), logger, m)

	// Delivery
	var mailer notify.Mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	if sg := notify.NewSendGridMailer(notify.SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.SendGridFrom}, logger); sg != nil {
		mailer = sg
		logger.Info("email via sendgrid")
	}
	var inApp notify.Sender = notify.SenderFunc(func(context.Context, model.Delivery) error { return nil })
	if rdb != nil {
		inApp = notify.NewInAppPublisher(rdb)
	}
	worker := notify.NewWorker(store, map[model.Channel]notify.Sender{
		model.ChannelEmail: notify.NewEmailSender(store, mailer),
		model.ChannelInApp: inApp,
	}, logger, m, notify.WorkerConfig{
		Interval: cfg.NotifyInterval,
		Backoff:  cfg.NotifyBackoff,
		MaxDelay: cfg.NotifyMaxDelay,
	})
	go worker.Run(ctx)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:     cfg.KafkaBrokers,
		PollEvery:   2 * time.Second,
		BatchSize:   50,
		OnPublished: m.ObservePublished,
	})
	go publisher.Run(ctx)

	if cfg.KafkaBrokers != "" && cfg.PaymentSecret != "" {
		paymentConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.PaymentTopic,
		}, consumer.PaymentHandler(gate, logger))
		go paymentConsumer.Run(ctx)
	} else {
		logger.Warn("payment event consumer disabled (needs KAFKA_BROKERS and PAYMENT_SIGNING_SECRET)")
	}

	if cfg.PaymentExpiry > 0 {
		sweeper := lifecycle.NewExpirySweeper(store, machine, logger, m, lifecycle.ExpiryConfig{TTL: cfg.PaymentExpiry})
		go sweeper.Run(ctx)
		logger.Info("payment expiry enabled", "ttl", cfg.PaymentExpiry.String())
	}

	api := handlers.New(handlers.Config{
		Store:            store,
		Availability:     avail,
		Guard:            guard,
		Machine:          machine,
		Gate:             gate,
		Stripe:           payment.NewStripeWebhook(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance),
		Logger:           logger,
		IncrementMinutes: cfg.IncrementMinutes,
	})

	var rateLimit httpx.Middleware
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:appointments").Middleware(logger, cfg.RateLimitFailOpen)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	}

	router := chi.NewRouter()
	router.Get("/healthz", runtime.HealthHandler)
	router.Get("/readyz", runtime.ReadyHandler(checks...))
	router.Handle("/metrics", m.Handler())
	router.Mount("/", httpx.Chain(api.Routes(),
		rateLimit,
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	))

	httpHandler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", httpx.UserIDHeader, httpx.RoleHeader, httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointments")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	grpcHealth := grpcx.NewHealthServer(logger, cfg.Service, 10*time.Second, checks...)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		if err := grpcHealth.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
