package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	retryBackoff    = time.Second
	maxRetryBackoff = 30 * time.Second
)

type Handler func(context.Context, BookingEvent) error

type Consumer struct {
	reader     *kafka.Reader
	log        logrus.FieldLogger
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, groupID, topic string, log logrus.FieldLogger) *Consumer {
	return &Consumer{
		log:        log,
		backoff:    retryBackoff,
		maxBackoff: maxRetryBackoff,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume delivers decoded events until ctx is cancelled. A failing handler is
// retried with backoff and its offset is committed only once it succeeds.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		event, err := Decode(msg.Value)
		if err != nil {
			// Poison message: skip it rather than block the partition.
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := c.deliver(ctx, event, handler); err != nil {
			// Shutting down; the uncommitted message is redelivered later.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// deliver runs handler until it succeeds or ctx ends.
func (c *Consumer) deliver(ctx context.Context, event BookingEvent, handler Handler) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}
		c.log.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.ID,
			"booking_id": event.BookingID,
			"attempt":    attempt,
			"retry_in":   wait.String(),
		}).Warn("booking event handler failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func Decode(data []byte) (BookingEvent, error) {
	var event BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return BookingEvent{}, fmt.Errorf("decode booking event: %w", err)
	}
	if event.BookingID <= 0 || event.Type == "" {
		return BookingEvent{}, fmt.Errorf("decode booking event: missing type or booking id")
	}
	return event, nil
}
