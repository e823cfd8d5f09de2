package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/docbook/libs/runtime"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingSender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingSender) Send(context.Context, model.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *countingSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func seedNotification(t *testing.T, store *memstore.Store, maxAttempts int, channels ...model.Channel) {
	t.Helper()
	d := NewDispatcher(maxAttempts)
	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := d.Enqueue(ctx, tx, Request{
			RecipientID: "pat-1", AppointmentID: "appt-1", Kind: model.KindAppointmentCancelled, Channels: channels,
		})
		return err
	})
	require.NoError(t, err)
}

func newTestWorker(store *memstore.Store, c *clock, senders map[model.Channel]Sender) *Worker {
	return NewWorker(store, senders, runtime.DiscardLogger(), nil, WorkerConfig{
		QuickTries:    2,
		QuickInterval: time.Millisecond,
		Backoff:       time.Minute,
		MaxDelay:      10 * time.Minute,
		Lease:         30 * time.Second,
		Now:           c.Now,
	})
}

func deliveryByChannel(store *memstore.Store, ch model.Channel) model.Delivery {
	for _, d := range store.Deliveries() {
		if d.Channel == ch {
			return d
		}
	}
	return model.Delivery{}
}

func TestWorkerDeliversEachChannelIndependently(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.SetClock(c.Now)
	seedNotification(t, store, 3, model.ChannelEmail, model.ChannelInApp)

	email := &countingSender{err: errors.New("smtp timeout")}
	inApp := &countingSender{}
	w := newTestWorker(store, c, map[model.Channel]Sender{model.ChannelEmail: email, model.ChannelInApp: inApp})

	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, email.Calls(), "quick retries per attempt")
	require.Equal(t, 1, inApp.Calls())

	require.Equal(t, model.DeliveryDelivered, deliveryByChannel(store, model.ChannelInApp).Status)
	failed := deliveryByChannel(store, model.ChannelEmail)
	require.Equal(t, model.DeliveryPending, failed.Status)
	require.Equal(t, 1, failed.Attempts)
	require.Equal(t, c.Now().Add(time.Minute), failed.NextRunAt)
	require.Equal(t, "smtp timeout", failed.LastError)

	// Not due yet.
	n, err = w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWorkerMarksFailedAfterMaxAttempts(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.SetClock(c.Now)
	seedNotification(t, store, 3, model.ChannelEmail)

	email := &countingSender{err: errors.New("relay down")}
	w := newTestWorker(store, c, map[model.Channel]Sender{model.ChannelEmail: email})

	for i := 0; i < 3; i++ {
		_, err := w.ProcessBatch(context.Background())
		require.NoError(t, err)
		c.Advance(time.Hour)
	}
	d := deliveryByChannel(store, model.ChannelEmail)
	require.Equal(t, model.DeliveryFailed, d.Status)
	require.Equal(t, 3, d.Attempts)

	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n, "failed deliveries are not retried")
}

func TestWorkerRecoversOnLaterAttempt(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.SetClock(c.Now)
	seedNotification(t, store, 5, model.ChannelEmail)

	email := &countingSender{err: errors.New("try later")}
	w := newTestWorker(store, c, map[model.Channel]Sender{model.ChannelEmail: email})

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)

	email.mu.Lock()
	email.err = nil
	email.mu.Unlock()
	c.Advance(2 * time.Minute)

	_, err = w.ProcessBatch(context.Background())
	require.NoError(t, err)
	d := deliveryByChannel(store, model.ChannelEmail)
	require.Equal(t, model.DeliveryDelivered, d.Status)
	require.Equal(t, 2, d.Attempts)
}

func TestWorkerUndeliverableFailsImmediately(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.SetClock(c.Now)
	seedNotification(t, store, 5, model.ChannelEmail)

	sender := NewEmailSender(store, MailerFunc(func(context.Context, string, string, string) error {
		t.Fatal("mailer must not be called without an address")
		return nil
	}))
	w := newTestWorker(store, c, map[model.Channel]Sender{model.ChannelEmail: sender})

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	d := deliveryByChannel(store, model.ChannelEmail)
	require.Equal(t, model.DeliveryFailed, d.Status)
	require.Equal(t, 1, d.Attempts)
}

func TestWorkerDelayIsCapped(t *testing.T) {
	w := NewWorker(nil, nil, runtime.DiscardLogger(), nil, WorkerConfig{Backoff: time.Minute, MaxDelay: 5 * time.Minute})
	require.Equal(t, time.Minute, w.delay(1))
	require.Equal(t, 2*time.Minute, w.delay(2))
	require.Equal(t, 4*time.Minute, w.delay(3))
	require.Equal(t, 5*time.Minute, w.delay(4))
	require.Equal(t, 5*time.Minute, w.delay(20))
}
