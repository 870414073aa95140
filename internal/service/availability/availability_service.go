// Package availability derives the merged disabled day ranges of each asset
// from its active bookings. The result is advisory: reservations are accepted
// or rejected by the overlap check inside the creation transaction.
package availability

import (
	"context"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/sirupsen/logrus"
)

type AvailabilityUseCase interface {
	DisabledRanges(ctx context.Context, assetID int64) ([]daterange.Range, error)
	DisabledRangesByAsset(ctx context.Context) (map[int64][]daterange.Range, error)
	Invalidate(ctx context.Context, assetID int64)
}

type Store interface {
	ActiveRanges(ctx context.Context, assetID int64, from time.Time) ([]daterange.Range, error)
	ActiveRangesByAsset(ctx context.Context, from time.Time) (map[int64][]daterange.Range, error)
}

type Cache interface {
	GetRanges(ctx context.Context, assetID int64, today time.Time) ([]daterange.Range, bool, error)
	SetRanges(ctx context.Context, assetID int64, today time.Time, ranges []daterange.Range) error
	GetAll(ctx context.Context, today time.Time) (map[int64][]daterange.Range, bool, error)
	SetAll(ctx context.Context, today time.Time, byAsset map[int64][]daterange.Range) error
	Invalidate(ctx context.Context, assetID int64) error
}

type Service struct {
	store Store
	cache Cache
	loc   *time.Location
	now   func() time.Time
	log   logrus.FieldLogger
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, loc *time.Location, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{store: store, loc: loc, now: time.Now, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current civil day in the business timezone.
func (s *Service) Today() time.Time {
	return daterange.Day(s.now(), s.loc)
}

func (s *Service) DisabledRanges(ctx context.Context, assetID int64) ([]daterange.Range, error) {
	today := s.Today()
	if s.cache != nil {
		ranges, ok, err := s.cache.GetRanges(ctx, assetID, today)
		if err != nil {
			s.log.WithError(err).WithField("asset_id", assetID).Warn("availability cache read failed")
		} else if ok {
			return ranges, nil
		}
	}

	active, err := s.store.ActiveRanges(ctx, assetID, today)
	if err != nil {
		return nil, err
	}
	merged := daterange.Merge(active)

	if s.cache != nil {
		if err := s.cache.SetRanges(ctx, assetID, today, merged); err != nil {
			s.log.WithError(err).WithField("asset_id", assetID).Warn("availability cache write failed")
		}
	}
	return merged, nil
}

func (s *Service) DisabledRangesByAsset(ctx context.Context) (map[int64][]daterange.Range, error) {
	today := s.Today()
	if s.cache != nil {
		all, ok, err := s.cache.GetAll(ctx, today)
		if err != nil {
			s.log.WithError(err).Warn("availability cache read failed")
		} else if ok {
			return all, nil
		}
	}

	byAsset, err := s.store.ActiveRangesByAsset(ctx, today)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]daterange.Range, len(byAsset))
	for assetID, ranges := range byAsset {
		out[assetID] = daterange.Merge(ranges)
	}

	if s.cache != nil {
		if err := s.cache.SetAll(ctx, today, out); err != nil {
			s.log.WithError(err).Warn("availability cache write failed")
		}
	}
	return out, nil
}

// Invalidate drops cached ranges for the asset. Failures are logged only.
func (s *Service) Invalidate(ctx context.Context, assetID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, assetID); err != nil {
		s.log.WithError(err).WithField("asset_id", assetID).Warn("availability cache invalidation failed")
	}
}

var _ AvailabilityUseCase = (*Service)(nil)
