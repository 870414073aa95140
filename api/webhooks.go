package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/payments"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 64 << 10

// EventParser verifies a raw delivery and converts it into an event.
type EventParser interface {
	Parse(payload []byte, signature string) (gateway.Event, error)
}

type WebhookHandler struct {
	parser    EventParser
	processor payments.PaymentsUseCase
	timeout   time.Duration
	log       logrus.FieldLogger
}

func NewWebhookHandler(parser EventParser, processor payments.PaymentsUseCase, timeout time.Duration, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{parser: parser, processor: processor, timeout: timeout, log: log}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments", h.payments)
}

// payments answers 2xx only when the event is handled or safe to drop; the
// provider retries anything else.
func (h *WebhookHandler) payments(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := h.parser.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.WithError(err).Warn("rejected payment webhook")
		status := http.StatusBadRequest
		if !errors.Is(err, gateway.ErrInvalidSignature) && !errors.Is(err, gateway.ErrMalformedEvent) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	outcome, err := h.processor.Process(ctx, event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
