package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/metrics"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

// SystemExpiryActor is recorded as the canceller of appointments whose payment window lapsed.
const SystemExpiryActor = "system:payment-expiry"

type AwaitingPaymentLister interface {
	AwaitingPaymentSince(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// ExpirySweeper cancels appointments that stayed in awaiting_payment longer than TTL.
type ExpirySweeper struct {
	lister    AwaitingPaymentLister
	machine   *Machine
	logger    *slog.Logger
	metrics   *metrics.Metrics
	ttl       time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type ExpiryConfig struct {
	TTL       time.Duration
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewExpirySweeper(lister AwaitingPaymentLister, machine *Machine, logger *slog.Logger, m *metrics.Metrics, cfg ExpiryConfig) *ExpirySweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExpirySweeper{
		lister:    lister,
		machine:   machine,
		logger:    logger,
		metrics:   m,
		ttl:       cfg.TTL,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
	}
}

func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("payment expiry sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce cancels one batch of expired appointments and returns how many it cancelled.
// Appointments that moved on in the meantime are skipped.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.lister.AwaitingPaymentSince(ctx, s.now().Add(-s.ttl), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	actor := model.Actor{ID: SystemExpiryActor, Role: model.RoleAdmin}
	cancelled := 0
	for _, id := range ids {
		_, err := s.machine.Transition(ctx, Request{
			AppointmentID: id,
			To:            model.StatusCancelled,
			Actor:         actor,
			Reason:        "payment not received in time",
		})
		if errors.Is(err, model.ErrIllegalTransition) || errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return cancelled, fmt.Errorf("expire %s: %w", id, err)
		}
		s.metrics.ObserveExpired()
		cancelled++
	}
	if cancelled > 0 {
		s.logger.Info("expired unpaid appointments", "count", cancelled)
	}
	return cancelled, nil
}
