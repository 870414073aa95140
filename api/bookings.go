package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/daterange"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/booking"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/payments"
	"github.com/sirupsen/logrus"
)

type BookingHandler struct {
	service booking.BookingUseCase
	balance payments.BalanceUseCase
	log     logrus.FieldLogger
}

type itemResponse struct {
	CatalogItemID  int64  `json:"catalog_item_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	ChargeModel    string `json:"charge_model"`
	TimeUnit       string `json:"time_unit"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type bookingResponse struct {
	ID            int64          `json:"id"`
	AssetID       int64          `json:"asset_id"`
	Flow          string         `json:"flow"`
	Status        string         `json:"status"`
	StartDate     string         `json:"start_date"`
	EndDate       string         `json:"end_date"`
	HoldExpiresAt *string        `json:"hold_expires_at,omitempty"`
	CustomerName  string         `json:"customer_name"`
	CustomerEmail string         `json:"customer_email"`
	RentalDays    int            `json:"rental_days"`
	NetCents      int64          `json:"net_cents"`
	TaxCents      int64          `json:"tax_cents"`
	GrossCents    int64          `json:"gross_cents"`
	DueNowCents   int64          `json:"due_now_cents"`
	Paid          bool           `json:"paid"`
	DisputeStatus *string        `json:"dispute_status,omitempty"`
	Items         []itemResponse `json:"items"`
	CheckoutURL   string         `json:"checkout_url,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase, balance payments.BalanceUseCase, log logrus.FieldLogger) *BookingHandler {
	return &BookingHandler{service: service, balance: balance, log: log}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/balance-authorization", h.authorizeBalance)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.CreateBooking(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	resp := newBookingResponse(res.Booking)
	resp.CheckoutURL = res.CheckoutURL
	c.JSON(http.StatusCreated, resp)
}

func (h *BookingHandler) get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(b))
}

func (h *BookingHandler) authorizeBalance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.balance.Authorize(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func newBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:            b.ID,
		AssetID:       b.AssetID,
		Flow:          string(b.Flow),
		Status:        string(b.Status),
		StartDate:     daterange.FormatDay(b.StartDate),
		EndDate:       daterange.FormatDay(b.EndDate),
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		RentalDays:    b.Quote.RentalDays,
		NetCents:      b.Quote.NetCents,
		TaxCents:      b.Quote.TaxCents,
		GrossCents:    b.Quote.GrossCents,
		DueNowCents:   b.Quote.DueNowCents,
		Paid:          b.Paid,
		Items:         make([]itemResponse, 0, len(b.Items)),
	}
	if b.HoldExpiresAt != nil {
		s := b.HoldExpiresAt.UTC().Format(time.RFC3339)
		resp.HoldExpiresAt = &s
	}
	if b.DisputeStatus != nil {
		s := string(*b.DisputeStatus)
		resp.DisputeStatus = &s
	}
	for _, it := range b.Items {
		resp.Items = append(resp.Items, itemResponse{
			CatalogItemID:  it.CatalogItemID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			ChargeModel:    string(it.ChargeModel),
			TimeUnit:       string(it.TimeUnit),
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return resp
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
