package availability

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

// Store persists windows. Weekday arguments use the internal numbering.
type Store interface {
	ActiveWindows(ctx context.Context, doctorID string, weekday time.Weekday) ([]Window, error)
	ListWindows(ctx context.Context, doctorID string) ([]Window, error)
	CreateWindow(ctx context.Context, w *Window) error
	UpdateWindow(ctx context.Context, w Window) error
	DeleteWindow(ctx context.Context, doctorID, windowID string) error
}

// Cache is a read-through view of active windows; it is never consulted for booking.
// Get reports the cache version it looked at; Set must write under that version so an
// Invalidate in between discards the write.
type Cache interface {
	Get(ctx context.Context, doctorID string, weekday Weekday) ([]Window, int64, bool)
	Set(ctx context.Context, doctorID string, weekday Weekday, version int64, windows []Window)
	Invalidate(ctx context.Context, doctorID string)
}

type Service struct {
	store  Store
	cache  Cache
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

type ServiceConfig struct {
	Location *time.Location
	Now      func() time.Time
}

func NewService(store Store, cache Cache, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: store, cache: cache, loc: cfg.Location, now: cfg.Now, logger: logger}
}

func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current instant in the clinic location.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// GetWindows returns the doctor's active windows for an ISO weekday, ordered by start.
func (s *Service) GetWindows(ctx context.Context, doctorID string, weekday Weekday) ([]Window, error) {
	internal, err := ToInternal(weekday)
	if err != nil {
		return nil, model.Invalid("weekday", err.Error())
	}
	version := int64(-1)
	if s.cache != nil {
		cached, v, ok := s.cache.Get(ctx, doctorID, weekday)
		if ok {
			return cached, nil
		}
		version = v
	}
	windows, err := s.store.ActiveWindows(ctx, doctorID, internal)
	if err != nil {
		return nil, err
	}
	SortWindows(windows)
	if s.cache != nil {
		s.cache.Set(ctx, doctorID, weekday, version, windows)
	}
	return windows, nil
}

// ListSlots returns bookable start times for the doctor on date.
func (s *Service) ListSlots(ctx context.Context, doctorID string, date Date, increment int) ([]TimeOfDay, error) {
	windows, err := s.GetWindows(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, err
	}
	return GenerateSlots(windows, date, increment, s.Now()), nil
}

func (s *Service) ListWindows(ctx context.Context, doctorID string) ([]Window, error) {
	windows, err := s.store.ListWindows(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(windows, func(a, b Window) int {
		if c := cmp.Compare(a.Weekday, b.Weekday); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	return windows, nil
}

func (s *Service) CreateWindow(ctx context.Context, w Window) (Window, error) {
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if err := s.store.CreateWindow(ctx, &w); err != nil {
		return Window{}, err
	}
	s.invalidate(ctx, w.DoctorID)
	s.logger.Info("availability window created", "doctor_id", w.DoctorID, "window_id", w.ID, "weekday", int(w.Weekday))
	return w, nil
}

// UpdateWindow replaces a window. Existing appointments are not re-validated.
func (s *Service) UpdateWindow(ctx context.Context, w Window) (Window, error) {
	if w.ID == "" {
		return Window{}, model.Invalid("window_id", "required")
	}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	if err := s.store.UpdateWindow(ctx, w); err != nil {
		return Window{}, err
	}
	s.invalidate(ctx, w.DoctorID)
	return w, nil
}

func (s *Service) DeleteWindow(ctx context.Context, doctorID, windowID string) error {
	if err := s.store.DeleteWindow(ctx, doctorID, windowID); err != nil {
		return err
	}
	s.invalidate(ctx, doctorID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, doctorID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, doctorID)
	}
}

func SortWindows(windows []Window) {
	slices.SortStableFunc(windows, func(a, b Window) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
}
