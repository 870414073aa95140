package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository/repotest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBalanceGateway struct {
	mock.Mock
}

func (m *MockBalanceGateway) PaymentIdentity(ctx context.Context, paymentIntentID string) (gateway.Identity, error) {
	args := m.Called(ctx, paymentIntentID)
	return args.Get(0).(gateway.Identity), args.Error(1)
}

func (m *MockBalanceGateway) AuthorizeOffSession(ctx context.Context, req gateway.AuthorizationRequest) (*gateway.Authorization, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Authorization), args.Error(1)
}

func (m *MockBalanceGateway) CreateAuthorizationCheckout(ctx context.Context, req gateway.AuthorizationCheckoutRequest) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func newAuthorizer(t *testing.T) (*BalanceAuthorizer, *repotest.Store, *MockBalanceGateway) {
	t.Helper()
	store := repotest.New()
	gw := &MockBalanceGateway{}
	log, _ := test.NewNullLogger()
	return NewBalanceAuthorizer(store, gw, log), store, gw
}

// depositPaid is a legacy booking whose 50.00 deposit was charged on a
// 297.00 quote.
func depositPaid(store *repotest.Store) int64 {
	pi := "pi_dep"
	total := int64(5000)
	day := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	return store.Put(domain.Booking{
		AssetID:         1,
		Flow:            domain.FlowLegacyDeposit,
		StartDate:       day,
		EndDate:         day.AddDate(0, 0, 2),
		Status:          domain.BookingStatusConfirmed,
		Paid:            true,
		PaymentIntentID: &pi,
		Quote:           domain.Quote{RentalDays: 3, NetCents: 29700, GrossCents: 29700, DueNowCents: 5000},
		TotalCents:      &total,
	})
}

var storedCard = gateway.Identity{CustomerID: "cus_1", PaymentMethodID: "pm_1"}

func TestAuthorize_OffSession(t *testing.T) {
	authorizer, store, gw := newAuthorizer(t)
	id := depositPaid(store)

	gw.On("PaymentIdentity", mock.Anything, "pi_dep").Return(storedCard, nil)
	gw.On("AuthorizeOffSession", mock.Anything, gateway.AuthorizationRequest{
		BookingID: id, AmountCents: 24700, CustomerID: "cus_1", PaymentMethodID: "pm_1",
	}).Return(&gateway.Authorization{ID: "pi_hold", Status: "requires_capture", AmountCapturableCents: 24700}, nil)

	res, err := authorizer.Authorize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, AuthorizationAuthorized, res.Status)
	assert.Equal(t, "pi_hold", res.AuthorizationID)
	assert.Equal(t, int64(24700), res.AmountCents)

	b, _ := store.Booking(id)
	require.NotNil(t, b.BalanceAuthorizationID)
	assert.Equal(t, "pi_hold", *b.BalanceAuthorizationID)
	assert.Equal(t, int64(24700), *b.BalanceAuthorizedCents)

	res, err = authorizer.Authorize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, AuthorizationSkipped, res.Status)
	assert.Equal(t, SkipAlreadyAuthorized, res.Reason)
	gw.AssertNumberOfCalls(t, "AuthorizeOffSession", 1)
	gw.AssertNotCalled(t, "CreateAuthorizationCheckout", mock.Anything, mock.Anything)
}

func TestAuthorize_Skips(t *testing.T) {
	testCases := []struct {
		name    string
		booking func() domain.Booking
		reason  string
	}{
		{
			name: "pending booking",
			booking: func() domain.Booking {
				hold := time.Now().Add(time.Hour)
				return domain.Booking{Status: domain.BookingStatusPending, HoldExpiresAt: &hold, Quote: domain.Quote{GrossCents: 100}}
			},
			reason: SkipNotConfirmed,
		},
		{
			name: "fully paid cart",
			booking: func() domain.Booking {
				pi, total := "pi_1", int64(36900)
				return domain.Booking{Status: domain.BookingStatusConfirmed, Paid: true, PaymentIntentID: &pi, TotalCents: &total, Quote: domain.Quote{GrossCents: 36900}}
			},
			reason: SkipNoBalance,
		},
		{
			name: "no payment intent",
			booking: func() domain.Booking {
				total := int64(5000)
				return domain.Booking{Status: domain.BookingStatusConfirmed, Paid: true, TotalCents: &total, Quote: domain.Quote{GrossCents: 29700}}
			},
			reason: SkipNoIdentity,
		},
		{
			name: "already authorized",
			booking: func() domain.Booking {
				pi, total, auth, amount := "pi_1", int64(5000), "pi_hold", int64(24700)
				return domain.Booking{Status: domain.BookingStatusConfirmed, Paid: true, PaymentIntentID: &pi, TotalCents: &total,
					BalanceAuthorizationID: &auth, BalanceAuthorizedCents: &amount, Quote: domain.Quote{GrossCents: 29700}}
			},
			reason: SkipAlreadyAuthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			authorizer, store, gw := newAuthorizer(t)
			id := store.Put(tc.booking())

			res, err := authorizer.Authorize(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, AuthorizationSkipped, res.Status)
			assert.Equal(t, tc.reason, res.Reason)
			gw.AssertNotCalled(t, "AuthorizeOffSession", mock.Anything, mock.Anything)
		})
	}
}

func TestAuthorize_SkipsWithoutCustomer(t *testing.T) {
	authorizer, store, gw := newAuthorizer(t)
	id := depositPaid(store)
	gw.On("PaymentIdentity", mock.Anything, "pi_dep").Return(gateway.Identity{}, nil)

	res, err := authorizer.Authorize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, AuthorizationSkipped, res.Status)
	assert.Equal(t, SkipNoIdentity, res.Reason)
}

func TestAuthorize_FallsBackToCheckout(t *testing.T) {
	testCases := []struct {
		name     string
		identity gateway.Identity
		auth     *gateway.Authorization
		err      error
	}{
		{name: "authentication required", identity: storedCard, err: gateway.ErrAuthenticationRequired},
		{name: "declined", identity: storedCard, err: gateway.ErrCardDeclined},
		{name: "payment method detached", identity: storedCard, err: gateway.ErrNoPaymentMethod},
		{name: "unexpected status", identity: storedCard, auth: &gateway.Authorization{ID: "pi_x", Status: "requires_action"}},
		{name: "no stored payment method", identity: gateway.Identity{CustomerID: "cus_1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			authorizer, store, gw := newAuthorizer(t)
			id := depositPaid(store)

			gw.On("PaymentIdentity", mock.Anything, "pi_dep").Return(tc.identity, nil)
			if tc.identity.PaymentMethodID != "" {
				if tc.auth != nil {
					gw.On("AuthorizeOffSession", mock.Anything, mock.Anything).Return(tc.auth, nil)
				} else {
					gw.On("AuthorizeOffSession", mock.Anything, mock.Anything).Return(nil, tc.err)
				}
			}
			gw.On("CreateAuthorizationCheckout", mock.Anything, gateway.AuthorizationCheckoutRequest{
				BookingID: id, CustomerID: "cus_1", AmountCents: 24700,
			}).Return(&gateway.CheckoutSession{ID: "cs_bal", URL: "https://checkout.example/cs_bal"}, nil)

			res, err := authorizer.Authorize(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, AuthorizationCheckoutRequired, res.Status)
			assert.Equal(t, "https://checkout.example/cs_bal", res.CheckoutURL)
			assert.Equal(t, int64(24700), res.AmountCents)

			b, _ := store.Booking(id)
			assert.Nil(t, b.BalanceAuthorizationID)
			gw.AssertExpectations(t)
		})
	}
}

func TestAuthorize_TransientGatewayError(t *testing.T) {
	authorizer, store, gw := newAuthorizer(t)
	id := depositPaid(store)

	gw.On("PaymentIdentity", mock.Anything, "pi_dep").Return(storedCard, nil)
	gw.On("AuthorizeOffSession", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := authorizer.Authorize(context.Background(), id)
	assert.Error(t, err)
	gw.AssertNotCalled(t, "CreateAuthorizationCheckout", mock.Anything, mock.Anything)
}

func TestAuthorize_UnknownBooking(t *testing.T) {
	authorizer, _, _ := newAuthorizer(t)

	_, err := authorizer.Authorize(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}
