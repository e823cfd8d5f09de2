package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/config"
)

type appConfig struct {
	Service     string
	Port        string
	GRPCPort    string
	DatabaseURL string
	Location    *time.Location

	KafkaBrokers  string
	KafkaGroupID  string
	PaymentTopic  string
	PaymentSecret string

	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	IncrementMinutes   int
	DefaultFee         int64
	DefaultCurrency    string
	AppointmentMinutes int

	NotifyMaxAttempts int
	NotifyInterval    time.Duration
	NotifyBackoff     time.Duration
	NotifyMaxDelay    time.Duration

	SMTPHost       string
	SMTPPort       string
	SMTPFrom       string
	SendGridAPIKey string
	SendGridFrom   string

	// PaymentExpiry of zero leaves awaiting_payment appointments alone.
	PaymentExpiry time.Duration

	RateLimitPerMinute int
	RateLimitFailOpen  bool
	BodyLimitBytes     int64
	RequestTimeout     time.Duration

	CORSOrigins []string
}

func loadConfig() (appConfig, error) {
	var (
		cfg appConfig
		err error
	)
	cfg.Service = config.String("SERVICE_NAME", "appointment-service")
	if cfg.Port, err = config.Port("PORT", "8085"); err != nil {
		return cfg, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9085"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	tz := config.String("CLINIC_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return cfg, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}

	cfg.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	cfg.KafkaGroupID = config.String("KAFKA_GROUP_ID", "appointment-service")
	cfg.PaymentTopic = config.String("KAFKA_PAYMENT_TOPIC", "payments.payment.confirmed.v1")
	cfg.PaymentSecret = config.String("PAYMENT_SIGNING_SECRET", "")

	cfg.StripeWebhookSecret = config.String("STRIPE_WEBHOOK_SECRET", "")
	if cfg.StripeWebhookTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return cfg, err
	}

	cfg.RedisAddr = strings.TrimSpace(config.String("REDIS_ADDR", ""))
	cfg.RedisPassword = config.String("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.CacheTTL, err = config.Duration("AVAILABILITY_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}

	if cfg.IncrementMinutes, err = config.Int("SLOT_INCREMENT_MINUTES", 30); err != nil {
		return cfg, err
	}
	if cfg.IncrementMinutes <= 0 || cfg.IncrementMinutes > 240 {
		return cfg, fmt.Errorf("SLOT_INCREMENT_MINUTES must be between 1 and 240 (got %d)", cfg.IncrementMinutes)
	}
	if cfg.DefaultFee, err = config.Int64("DEFAULT_CONSULTATION_FEE", 5000); err != nil {
		return cfg, err
	}
	cfg.DefaultCurrency = strings.ToUpper(config.String("DEFAULT_CURRENCY", "USD"))
	if cfg.AppointmentMinutes, err = config.Int("DEFAULT_APPOINTMENT_MINUTES", cfg.IncrementMinutes); err != nil {
		return cfg, err
	}

	if cfg.NotifyMaxAttempts, err = config.Int("NOTIFY_MAX_ATTEMPTS", 5); err != nil {
		return cfg, err
	}
	if cfg.NotifyInterval, err = config.Duration("NOTIFY_POLL_INTERVAL", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.NotifyBackoff, err = config.Duration("NOTIFY_BACKOFF", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.NotifyMaxDelay, err = config.Duration("NOTIFY_MAX_DELAY", 30*time.Minute); err != nil {
		return cfg, err
	}

	cfg.SMTPHost = config.String("SMTP_HOST", "mailpit")
	cfg.SMTPPort = config.String("SMTP_PORT", "1025")
	cfg.SMTPFrom = config.String("SMTP_FROM", "no-reply@docbook.local")
	cfg.SendGridAPIKey = config.String("SENDGRID_API_KEY", "")
	cfg.SendGridFrom = config.String("SENDGRID_FROM_EMAIL", cfg.SMTPFrom)

	if cfg.PaymentExpiry, err = config.Duration("PAYMENT_EXPIRY", 0); err != nil {
		return cfg, err
	}

	if cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return cfg, err
	}
	cfg.RateLimitFailOpen = config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	if cfg.BodyLimitBytes, err = config.Int64("REQUEST_BODY_LIMIT_BYTES", 1<<20); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	cfg.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")
	return cfg, nil
}
