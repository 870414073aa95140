// Package repotest provides an in-memory implementation of the repository
// interfaces with the same transactional guarantees as the Postgres one.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
)

// Store keeps every table in memory. Transactions run one at a time and work
// on a copy that replaces the committed state only when fn returns nil.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	assets   map[int64]domain.Asset
	catalog  map[int64]domain.CatalogItem
	bookings map[int64]domain.Booking
	events   map[string]domain.ProcessedPaymentEvent

	failSave    []error
	failSession []error
}

func New() *Store {
	return &Store{
		assets:   make(map[int64]domain.Asset),
		catalog:  make(map[int64]domain.CatalogItem),
		bookings: make(map[int64]domain.Booking),
		events:   make(map[string]domain.ProcessedPaymentEvent),
	}
}

func (s *Store) AddAsset(a domain.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a
}

func (s *Store) AddCatalogItem(it domain.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[it.ID] = it
}

// Put stores a booking as is, assigning an id when it has none.
func (s *Store) Put(b domain.Booking) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		s.nextID++
		b.ID = s.nextID
	} else if b.ID > s.nextID {
		s.nextID = b.ID
	}
	s.bookings[b.ID] = cloneBooking(b)
	return b.ID
}

// Booking returns a copy of the committed booking.
func (s *Store) Booking(id int64) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return cloneBooking(b), ok
}

// Events returns the committed dedup log.
func (s *Store) Events() []domain.ProcessedPaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ProcessedPaymentEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out
}

// FailNextSave makes the next SaveBooking call return err.
func (s *Store) FailNextSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = append(s.failSave, err)
}

// FailNextCheckoutSession makes the next SetCheckoutSession call return err.
func (s *Store) FailNextCheckoutSession(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSession = append(s.failSession, err)
}

func (s *Store) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	c := cloneBooking(b)
	return &c, nil
}

func (s *Store) CreatePending(_ context.Context, b *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[b.AssetID]; !ok {
		return domain.ErrAssetNotFound
	}
	want := daterange.Range{From: b.StartDate, To: b.EndDate}
	for _, other := range s.bookings {
		if other.AssetID != b.AssetID || !active(other) {
			continue
		}
		if daterange.Overlaps(want, daterange.Range{From: other.StartDate, To: other.EndDate}) {
			return domain.ErrDatesUnavailable
		}
	}

	s.nextID++
	now := time.Now()
	b.ID = s.nextID
	b.Status = domain.BookingStatusPending
	b.CreatedAt, b.UpdatedAt = now, now
	for i := range b.Items {
		b.Items[i].ID = int64(i + 1)
		b.Items[i].BookingID = b.ID
	}
	s.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (s *Store) SetCheckoutSession(_ context.Context, bookingID int64, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failSession) > 0 {
		err := s.failSession[0]
		s.failSession = s.failSession[1:]
		return err
	}
	b, ok := s.bookings[bookingID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.CheckoutSessionID != nil {
		return fmt.Errorf("booking %d already has a checkout session", bookingID)
	}
	b.CheckoutSessionID = &sessionID
	s.bookings[bookingID] = b
	return nil
}

func (s *Store) ActiveRanges(_ context.Context, assetID int64, from time.Time) ([]daterange.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ranges := make([]daterange.Range, 0)
	for _, b := range s.bookings {
		if b.AssetID == assetID && active(b) && !b.EndDate.Before(from) {
			ranges = append(ranges, daterange.Range{From: b.StartDate, To: b.EndDate})
		}
	}
	return ranges, nil
}

func (s *Store) ActiveRangesByAsset(_ context.Context, from time.Time) (map[int64][]daterange.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]daterange.Range)
	for _, b := range s.bookings {
		if active(b) && !b.EndDate.Before(from) {
			out[b.AssetID] = append(out[b.AssetID], daterange.Range{From: b.StartDate, To: b.EndDate})
		}
	}
	return out, nil
}

func (s *Store) ExpiredHolds(_ context.Context, now time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, b := range s.bookings {
		if b.Status == domain.BookingStatusPending && b.HoldExpiresAt != nil && !b.HoldExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) ClaimNotification(_ context.Context, bookingID int64, kind domain.NotificationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, nil
	}
	now := time.Now()
	switch kind {
	case domain.NotificationCustomerConfirmation:
		if b.CustomerNotifiedAt != nil {
			return false, nil
		}
		b.CustomerNotifiedAt = &now
	case domain.NotificationInternalAlert:
		if b.InternalNotifiedAt != nil {
			return false, nil
		}
		b.InternalNotifiedAt = &now
	default:
		return false, fmt.Errorf("unknown notification kind %q", kind)
	}
	s.bookings[bookingID] = b
	return true, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		store:    s,
		bookings: make(map[int64]domain.Booking, len(s.bookings)),
		events:   make(map[string]domain.ProcessedPaymentEvent, len(s.events)),
	}
	for id, b := range s.bookings {
		tx.bookings[id] = cloneBooking(b)
	}
	for id, e := range s.events {
		tx.events[id] = e
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.bookings = tx.bookings
	s.events = tx.events
	return nil
}

// Assets exposes the asset and catalog tables as a repository.AssetRepository.
func (s *Store) Assets() repository.AssetRepository {
	return assetView{s}
}

type assetView struct{ s *Store }

func (v assetView) GetByID(_ context.Context, id int64) (*domain.Asset, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	a, ok := v.s.assets[id]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	return &a, nil
}

func (v assetView) CatalogItems(_ context.Context, ids []int64) (map[int64]domain.CatalogItem, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make(map[int64]domain.CatalogItem, len(ids))
	for _, id := range ids {
		if it, ok := v.s.catalog[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

type storeTx struct {
	store    *Store
	bookings map[int64]domain.Booking
	events   map[string]domain.ProcessedPaymentEvent
}

func (t *storeTx) RecordEvent(_ context.Context, e domain.ProcessedPaymentEvent) (bool, error) {
	if _, ok := t.events[e.EventID]; ok {
		return false, nil
	}
	e.ProcessedAt = time.Now()
	t.events[e.EventID] = e
	return true, nil
}

func (t *storeTx) LockBooking(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := t.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	c := cloneBooking(b)
	return &c, nil
}

func (t *storeTx) LockBookingByPaymentIntent(_ context.Context, paymentIntentID string) (*domain.Booking, error) {
	for _, b := range t.bookings {
		if b.PaymentIntentID != nil && *b.PaymentIntentID == paymentIntentID {
			c := cloneBooking(b)
			return &c, nil
		}
	}
	for _, b := range t.bookings {
		if b.BalanceAuthorizationID != nil && *b.BalanceAuthorizationID == paymentIntentID {
			c := cloneBooking(b)
			return &c, nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

func (t *storeTx) SaveBooking(_ context.Context, b *domain.Booking) error {
	if len(t.store.failSave) > 0 {
		err := t.store.failSave[0]
		t.store.failSave = t.store.failSave[1:]
		return err
	}
	if _, ok := t.bookings[b.ID]; !ok {
		return domain.ErrBookingNotFound
	}
	if err := b.CheckInvariants(); err != nil {
		return err
	}
	b.UpdatedAt = time.Now()
	t.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func active(b domain.Booking) bool {
	return b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusConfirmed
}

func cloneBooking(b domain.Booking) domain.Booking {
	if b.Items != nil {
		b.Items = append([]domain.BookingItem(nil), b.Items...)
	}
	return b
}

var (
	_ repository.BookingRepository = (*Store)(nil)
	_ repository.BookingTx         = (*storeTx)(nil)
)
