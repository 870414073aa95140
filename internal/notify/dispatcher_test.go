package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/kafka"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository/repotest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendBookingConfirmation(ctx context.Context, to string, view BookingView) error {
	args := m.Called(ctx, to, view)
	return args.Error(0)
}

func (m *MockMailer) SendInternalAlert(ctx context.Context, to string, view BookingView) error {
	args := m.Called(ctx, to, view)
	return args.Error(0)
}

func confirmedBooking(store *repotest.Store) int64 {
	total := int64(36900)
	return store.Put(domain.Booking{
		AssetID:       1,
		Flow:          domain.FlowCart,
		StartDate:     time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC),
		Status:        domain.BookingStatusConfirmed,
		Paid:          true,
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Quote:         domain.Quote{RentalDays: 3, NetCents: 30000, TaxCents: 6900, GrossCents: 36900},
		TotalCents:    &total,
	})
}

func TestBookingConfirmed_SendsEachOnce(t *testing.T) {
	store := repotest.New()
	id := confirmedBooking(store)
	mailer := &MockMailer{}
	mailer.On("SendBookingConfirmation", mock.Anything, "ana@example.com", mock.AnythingOfType("notify.BookingView")).Return(nil).Once()
	mailer.On("SendInternalAlert", mock.Anything, "ops@example.com", mock.AnythingOfType("notify.BookingView")).Return(nil).Once()

	log, _ := test.NewNullLogger()
	d := NewDispatcher(store, mailer, "ops@example.com", log)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.BookingConfirmed(context.Background(), id))
		}()
	}
	wg.Wait()

	mailer.AssertExpectations(t)
	b, _ := store.Booking(id)
	assert.NotNil(t, b.CustomerNotifiedAt)
	assert.NotNil(t, b.InternalNotifiedAt)
}

func TestBookingConfirmed_FailedSendIsNotRetried(t *testing.T) {
	store := repotest.New()
	id := confirmedBooking(store)
	mailer := &MockMailer{}
	mailer.On("SendBookingConfirmation", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	log, hook := test.NewNullLogger()
	d := NewDispatcher(store, mailer, "", log)

	require.NoError(t, d.BookingConfirmed(context.Background(), id))
	require.NoError(t, d.BookingConfirmed(context.Background(), id))

	mailer.AssertNumberOfCalls(t, "SendBookingConfirmation", 1)
	mailer.AssertNotCalled(t, "SendInternalAlert", mock.Anything, mock.Anything, mock.Anything)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestBookingConfirmed_SkipsPending(t *testing.T) {
	store := repotest.New()
	hold := time.Now().Add(time.Hour)
	id := store.Put(domain.Booking{AssetID: 1, Status: domain.BookingStatusPending, HoldExpiresAt: &hold, CustomerEmail: "a@b.c"})
	mailer := &MockMailer{}

	log, _ := test.NewNullLogger()
	d := NewDispatcher(store, mailer, "ops@example.com", log)

	require.NoError(t, d.BookingConfirmed(context.Background(), id))
	mailer.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent(t *testing.T) {
	store := repotest.New()
	mailer := &MockMailer{}
	log, _ := test.NewNullLogger()
	d := NewDispatcher(store, mailer, "", log)

	err := d.HandleEvent(context.Background(), kafka.BookingEvent{Type: kafka.EventBookingCancelled, BookingID: 9})
	assert.NoError(t, err)

	err = d.HandleEvent(context.Background(), kafka.BookingEvent{Type: kafka.EventBookingConfirmed, BookingID: 9})
	assert.NoError(t, err)
	mailer.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything, mock.Anything)
}

type unreachableClaims struct {
	*repotest.Store
}

func (unreachableClaims) ClaimNotification(context.Context, int64, domain.NotificationKind) (bool, error) {
	return false, errors.New("connection refused")
}

func TestBookingConfirmed_ClaimErrorIsReturned(t *testing.T) {
	store := repotest.New()
	id := confirmedBooking(store)
	mailer := &MockMailer{}
	log, _ := test.NewNullLogger()
	d := NewDispatcher(unreachableClaims{store}, mailer, "ops@example.com", log)

	err := d.HandleEvent(context.Background(), kafka.BookingEvent{Type: kafka.EventBookingConfirmed, BookingID: id})
	assert.Error(t, err)
	mailer.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewBookingView_PrefersSettledTotals(t *testing.T) {
	total, sub, tax := int64(20000), int64(16260), int64(3740)
	orig, disc := int64(18067), int64(16260)
	pct := 10.0
	b := &domain.Booking{
		ID:                           5,
		StartDate:                    time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:                      time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC),
		Quote:                        domain.Quote{RentalDays: 3, GrossCents: 36900},
		TotalCents:                   &total,
		SubtotalExVatCents:           &sub,
		TaxCents:                     &tax,
		DiscountPercentage:           &pct,
		OriginalSubtotalExVatCents:   &orig,
		DiscountedSubtotalExVatCents: &disc,
		Items:                        []domain.BookingItem{{Name: "Excavator", Quantity: 1, LineTotalCents: 29700}},
	}

	v := NewBookingView(b)
	assert.Equal(t, "2025-09-01", v.StartDate)
	assert.Equal(t, int64(20000), v.TotalCents)
	assert.Equal(t, int64(1807), v.DiscountCents)
	assert.Equal(t, int64(16900), v.RemainingBalanceCents)
	assert.Len(t, v.Items, 1)
}
