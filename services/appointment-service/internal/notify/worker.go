package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/metrics"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Worker delivers pending notification deliveries. Each channel row is retried on
// its own: a few quick in-process attempts, then persistent rescheduling with an
// exponential delay until MaxAttempts, after which the row is marked failed.
type Worker struct {
	store     TxRunner
	senders   map[model.Channel]Sender
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	lease     time.Duration
	tries     uint
	quick     time.Duration
	backoff   time.Duration
	maxDelay  time.Duration
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int

	// Lease is how long a claimed row stays invisible to other workers.
	Lease time.Duration

	// QuickTries and QuickInterval bound the in-process retry of a single attempt.
	QuickTries    uint
	QuickInterval time.Duration

	// Backoff is the first persistent retry delay; it doubles per attempt up to MaxDelay.
	Backoff  time.Duration
	MaxDelay time.Duration

	Now func() time.Time
}

func NewWorker(store TxRunner, senders map[model.Channel]Sender, logger *slog.Logger, m *metrics.Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.QuickTries == 0 {
		cfg.QuickTries = 3
	}
	if cfg.QuickInterval <= 0 {
		cfg.QuickInterval = 200 * time.Millisecond
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 30 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		store:     store,
		senders:   senders,
		logger:    logger,
		metrics:   m,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		lease:     cfg.Lease,
		tries:     cfg.QuickTries,
		quick:     cfg.QuickInterval,
		backoff:   cfg.Backoff,
		maxDelay:  cfg.MaxDelay,
		now:       cfg.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("notification delivery batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch claims due deliveries, sends them outside any transaction and
// records each outcome. It returns the number of deliveries attempted.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	now := w.now()
	var claimed []model.Delivery
	err := w.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		claimed, err = tx.ClaimDueDeliveries(ctx, now, now.Add(w.lease), w.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("claim deliveries: %w", err)
	}

	for _, d := range claimed {
		sendErr := w.deliver(ctx, d)
		if err := w.record(ctx, d, sendErr); err != nil {
			return 0, fmt.Errorf("record delivery %d: %w", d.ID, err)
		}
	}
	return len(claimed), nil
}

func (w *Worker) deliver(ctx context.Context, d model.Delivery) error {
	sender, ok := w.senders[d.Channel]
	if !ok {
		return fmt.Errorf("%w: no sender for channel %q", ErrUndeliverable, d.Channel)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.quick
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := sender.Send(ctx, d)
		if errors.Is(err, ErrUndeliverable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.tries))
	return err
}

func (w *Worker) record(ctx context.Context, d model.Delivery, sendErr error) error {
	attempts := d.Attempts + 1
	log := w.logger.With(
		"delivery_id", d.ID,
		"notification_id", d.NotificationID,
		"recipient_id", d.RecipientID,
		"channel", string(d.Channel),
		"kind", string(d.Kind),
		"attempts", attempts,
	)
	return w.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if sendErr == nil {
			w.metrics.ObserveDelivery(string(d.Channel), "delivered")
			log.Info("notification delivered")
			return tx.MarkDelivered(ctx, d.ID, attempts)
		}
		if attempts >= d.MaxAttempts || errors.Is(sendErr, ErrUndeliverable) {
			w.metrics.ObserveDelivery(string(d.Channel), "failed")
			log.Error("notification delivery failed permanently", "err", sendErr)
			return tx.MarkDeliveryFailed(ctx, d.ID, attempts, model.DeliveryFailed, w.now(), sendErr.Error())
		}
		next := w.now().Add(w.delay(attempts))
		w.metrics.ObserveDelivery(string(d.Channel), "retry")
		log.Warn("notification delivery rescheduled", "err", sendErr, "next_run_at", next.UTC().Format(time.RFC3339))
		return tx.MarkDeliveryFailed(ctx, d.ID, attempts, model.DeliveryPending, next, sendErr.Error())
	})
}

func (w *Worker) delay(attempts int) time.Duration {
	d := w.backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.maxDelay {
			return w.maxDelay
		}
	}
	return d
}
