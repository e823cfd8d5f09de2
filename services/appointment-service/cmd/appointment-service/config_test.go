package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docbook")
	t.Setenv("CLINIC_TIMEZONE", "Europe/Berlin")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8085" || cfg.IncrementMinutes != 30 || cfg.AppointmentMinutes != 30 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Location.String() != "Europe/Berlin" {
		t.Fatalf("expected Europe/Berlin, got %s", cfg.Location)
	}
	if cfg.PaymentExpiry != 0 {
		t.Fatalf("payment expiry must default to disabled, got %s", cfg.PaymentExpiry)
	}
	if cfg.PaymentTopic != "payments.payment.confirmed.v1" {
		t.Fatalf("unexpected payment topic %q", cfg.PaymentTopic)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docbook")
	t.Setenv("SLOT_INCREMENT_MINUTES", "15")
	t.Setenv("PAYMENT_EXPIRY", "48h")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.docbook.local, ,https://admin.docbook.local")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.IncrementMinutes != 15 || cfg.AppointmentMinutes != 15 {
		t.Fatalf("appointment length should follow the increment, got %+v", cfg)
	}
	if cfg.PaymentExpiry != 48*time.Hour || cfg.DefaultCurrency != "EUR" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.docbook.local" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected DATABASE_URL to be required")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/docbook")
	t.Setenv("SLOT_INCREMENT_MINUTES", "0")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected increment validation error")
	}

	t.Setenv("SLOT_INCREMENT_MINUTES", "30")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected unknown timezone error")
	}
}
