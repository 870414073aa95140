package email

import (
	"context"
	"testing"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/notify"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBookingConfirmation(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := NewSender(log)
	var got []Message
	s.sent = func(m Message) { got = append(got, m) }

	view := notify.BookingView{
		BookingID:          42,
		CustomerName:       "Ana",
		StartDate:          "2025-06-10",
		EndDate:            "2025-06-12",
		RentalDays:         3,
		Items:              []notify.ItemView{{Name: "Excavator", Quantity: 1, LineTotalCents: 29700}},
		SubtotalExVatCents: 29700,
		TaxCents:           6831,
		TotalCents:         36531,
	}

	err := s.SendBookingConfirmation(context.Background(), "ana@example.com", view)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ana@example.com", got[0].To)
	assert.Contains(t, got[0].Subject, "#42")
	assert.Contains(t, got[0].Body, "1 x Excavator: 297.00 EUR")
	assert.Contains(t, got[0].Body, "Total paid: 365.31 EUR")
	assert.NotContains(t, got[0].Body, "Balance due")
	assert.Len(t, hook.Entries, 1)
}

func TestSend_EmptyRecipient(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewSender(log)

	err := s.Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "5.70 EUR", formatCents(570))
	assert.Equal(t, "-0.05 EUR", formatCents(-5))
}
