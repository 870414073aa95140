package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/pricing"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/booking"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/payments"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, input booking.CreateBookingInput) (*booking.CreateBookingResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.CreateBookingResult), args.Error(1)
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ExpireHolds(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockBalanceUseCase struct {
	mock.Mock
}

func (m *MockBalanceUseCase) Authorize(ctx context.Context, bookingID int64) (*payments.AuthorizationResult, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.AuthorizationResult), args.Error(1)
}

type MockAvailabilityUseCase struct {
	mock.Mock
}

func (m *MockAvailabilityUseCase) DisabledRanges(ctx context.Context, assetID int64) ([]daterange.Range, error) {
	args := m.Called(ctx, assetID)
	ranges, _ := args.Get(0).([]daterange.Range)
	return ranges, args.Error(1)
}

func (m *MockAvailabilityUseCase) DisabledRangesByAsset(ctx context.Context) (map[int64][]daterange.Range, error) {
	args := m.Called(ctx)
	all, _ := args.Get(0).(map[int64][]daterange.Range)
	return all, args.Error(1)
}

func (m *MockAvailabilityUseCase) Invalidate(ctx context.Context, assetID int64) {
	m.Called(ctx, assetID)
}

type MockPaymentsUseCase struct {
	mock.Mock
}

func (m *MockPaymentsUseCase) Process(ctx context.Context, event gateway.Event) (payments.Outcome, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(payments.Outcome), args.Error(1)
}

const webhookSecret = "whsec_api_test"

type routerFixture struct {
	bookings     *MockBookingUseCase
	balance      *MockBalanceUseCase
	availability *MockAvailabilityUseCase
	payments     *MockPaymentsUseCase
	router       *gin.Engine
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	f := &routerFixture{
		bookings:     &MockBookingUseCase{},
		balance:      &MockBalanceUseCase{},
		availability: &MockAvailabilityUseCase{},
		payments:     &MockPaymentsUseCase{},
	}
	f.router = NewRouter(Handlers{
		Bookings:     NewBookingHandler(f.bookings, f.balance, log),
		Availability: NewAvailabilityHandler(f.availability, log),
		Webhooks:     NewWebhookHandler(gateway.NewVerifier(webhookSecret), f.payments, time.Second, log),
	}, []string{"https://shop.example"}, log)
	return f
}

func (f *routerFixture) do(method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func day(s string) time.Time {
	d, _ := daterange.ParseDay(s)
	return d
}

func TestBookingHandler_create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	log, _ := test.NewNullLogger()
	handler := NewBookingHandler(mockService, &MockBalanceUseCase{}, log)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	input := booking.CreateBookingInput{
		AssetID:       1,
		Flow:          "CART",
		StartDate:     "2025-09-10",
		EndDate:       "2025-09-12",
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Items:         []booking.ItemInput{{CatalogItemID: 10, Quantity: 2}},
	}
	body, _ := json.Marshal(input)
	c.Request = httptest.NewRequest("POST", "/bookings", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	hold := time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)
	created := &domain.Booking{
		ID:            7,
		AssetID:       1,
		Flow:          domain.FlowCart,
		StartDate:     day("2025-09-10"),
		EndDate:       day("2025-09-12"),
		Status:        domain.BookingStatusPending,
		HoldExpiresAt: &hold,
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Quote:         domain.Quote{RentalDays: 3, NetCents: 111000, GrossCents: 111000, DueNowCents: 111000},
		Items: []domain.BookingItem{{
			CatalogItemID: 10, Name: "Excavator", Quantity: 2, ChargeModel: domain.ChargePerUnit,
			TimeUnit: domain.TimeUnitDay, UnitPriceCents: 18500, LineTotalCents: 111000,
		}},
	}
	mockService.On("CreateBooking", c.Request.Context(), input).Return(&booking.CreateBookingResult{
		Booking:     created,
		Breakdown:   pricing.Breakdown{GrossTotalCents: 111000},
		CheckoutURL: "https://checkout.example/cs_1",
	}, nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "2025-09-10", resp.StartDate)
	assert.Equal(t, "2025-09-12", resp.EndDate)
	require.NotNil(t, resp.HoldExpiresAt)
	assert.Equal(t, "2025-08-01T09:30:00Z", *resp.HoldExpiresAt)
	assert.Equal(t, "https://checkout.example/cs_1", resp.CheckoutURL)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(111000), resp.Items[0].LineTotalCents)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_createErrors(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: fmt.Errorf("%w: start date in the past", domain.ErrValidation), wantStatus: http.StatusBadRequest},
		{name: "dates taken", err: domain.ErrDatesUnavailable, wantStatus: http.StatusConflict},
		{name: "unknown asset", err: domain.ErrAssetNotFound, wantStatus: http.StatusNotFound},
		{name: "gateway down", err: errors.New("create checkout: timeout"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture(t)
			f.bookings.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, tc.err)

			w := f.do(http.MethodPost, "/bookings", []byte(`{"asset_id":1,"flow":"CART"}`), nil)
			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestBookingHandler_createMalformedBody(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/bookings", []byte(`{"asset_id":`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.bookings.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingHandler_get(t *testing.T) {
	f := newRouterFixture(t)
	lost := domain.DisputeStatusLost
	f.bookings.On("GetBooking", mock.Anything, int64(7)).Return(&domain.Booking{
		ID: 7, Status: domain.BookingStatusConfirmed, Paid: true, DisputeStatus: &lost,
		StartDate: day("2025-09-10"), EndDate: day("2025-09-10"),
	}, nil)
	f.bookings.On("GetBooking", mock.Anything, int64(8)).Return(nil, domain.ErrBookingNotFound)

	w := f.do(http.MethodGet, "/bookings/7", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CONFIRMED", resp.Status)
	assert.True(t, resp.Paid)
	assert.Nil(t, resp.HoldExpiresAt)
	require.NotNil(t, resp.DisputeStatus)
	assert.Equal(t, "LOST", *resp.DisputeStatus)
	assert.NotNil(t, resp.Items)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/bookings/8", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/bookings/abc", nil, nil).Code)
}

func TestBookingHandler_authorizeBalance(t *testing.T) {
	f := newRouterFixture(t)
	f.balance.On("Authorize", mock.Anything, int64(7)).Return(&payments.AuthorizationResult{
		Status:      payments.AuthorizationCheckoutRequired,
		AmountCents: 24700,
		CheckoutURL: "https://checkout.example/cs_bal",
	}, nil)

	w := f.do(http.MethodPost, "/bookings/7/balance-authorization", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"checkout_required","amount_cents":24700,"checkout_url":"https://checkout.example/cs_bal"}`, w.Body.String())
}

func TestAvailabilityHandler(t *testing.T) {
	f := newRouterFixture(t)
	f.availability.On("DisabledRanges", mock.Anything, int64(1)).Return([]daterange.Range{
		{From: day("2025-09-01"), To: day("2025-09-03")},
		{From: day("2025-09-05"), To: day("2025-09-06")},
	}, nil)
	f.availability.On("DisabledRanges", mock.Anything, int64(2)).Return([]daterange.Range{}, nil)
	f.availability.On("DisabledRangesByAsset", mock.Anything).Return(map[int64][]daterange.Range{
		1: {{From: day("2025-09-01"), To: day("2025-09-03")}},
	}, nil)

	w := f.do(http.MethodGet, "/availability/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"from":"2025-09-01","to":"2025-09-03"},{"from":"2025-09-05","to":"2025-09-06"}]`, w.Body.String())

	w = f.do(http.MethodGet, "/availability/2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(http.MethodGet, "/availability", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"1":[{"from":"2025-09-01","to":"2025-09-03"}]}`, w.Body.String())
}

func signedWebhook(payload string, secret string) map[string]string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return map[string]string{"Stripe-Signature": signed.Header}
}

const refundPayload = `{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_1","amount_refunded":2000}}}`

func TestWebhookHandler(t *testing.T) {
	f := newRouterFixture(t)
	f.payments.On("Process", mock.Anything, mock.MatchedBy(func(e gateway.Event) bool {
		return e.ID == "evt_1"
	})).Return(payments.OutcomeProcessed, nil)

	w := f.do(http.MethodPost, "/webhooks/payments", []byte(refundPayload), signedWebhook(refundPayload, webhookSecret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"outcome":"processed"}`, w.Body.String())

	f.payments.AssertCalled(t, "Process", mock.Anything, mock.MatchedBy(func(e gateway.Event) bool {
		r, ok := e.Payload.(gateway.ChargeRefunded)
		return ok && r.AmountRefundedCents == 2000
	}))
}

func TestWebhookHandler_BadSignature(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/webhooks/payments", []byte(refundPayload), signedWebhook(refundPayload, "whsec_other"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/webhooks/payments", []byte(refundPayload), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.payments.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestWebhookHandler_ProcessingFailureIsRetried(t *testing.T) {
	f := newRouterFixture(t)
	f.payments.On("Process", mock.Anything, mock.Anything).Return(payments.Outcome(""), context.DeadlineExceeded)

	w := f.do(http.MethodPost, "/webhooks/payments", []byte(refundPayload), signedWebhook(refundPayload, webhookSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookHandler_AppliesTimeout(t *testing.T) {
	f := newRouterFixture(t)
	f.payments.On("Process", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(payments.OutcomeDuplicate, nil)

	w := f.do(http.MethodPost, "/webhooks/payments", []byte(refundPayload), signedWebhook(refundPayload, webhookSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "duplicate"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rental_http_requests_total")
}

func TestRouter_CORS(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodOptions, "/bookings", nil, map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
}
