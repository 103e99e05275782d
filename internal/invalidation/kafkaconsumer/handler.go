package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/invalidation"
)

// rejectedError marks a refresh message that can never be applied.
type rejectedError struct {
	kind string
	err  error
}

func (e *rejectedError) Error() string { return e.kind + ": " + e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

// decodeRefresh parses and validates one message value.
func decodeRefresh(raw []byte) (invalidation.Event, error) {
	var ev invalidation.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, &rejectedError{kind: "decode", err: err}
	}
	if err := ev.Validate(); err != nil {
		return ev, &rejectedError{kind: "validate", err: err}
	}
	return ev, nil
}

// refreshHandler feeds the claims of one group session into the consumer.
// An offset is marked once its refresh was applied or rejected; a cache
// failure ends the claim so the message is redelivered after the rebalance.
type refreshHandler struct {
	c *Consumer
}

func (h refreshHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.c.logger.Info("refresh partitions assigned",
		"member", sess.MemberID(), "generation", sess.GenerationID(), "claims", sess.Claims())
	return nil
}

func (h refreshHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.c.logger.Info("refresh partitions released", "member", sess.MemberID(), "generation", sess.GenerationID())
	return nil
}

func (h refreshHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	log := h.c.logger.With("topic", claim.Topic(), "partition", claim.Partition())
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.c.handle(ctx, log.With("offset", msg.Offset), msg.Value); err != nil {
				return fmt.Errorf("offset %d: %w", msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}

// ProcessOne applies a single refresh message. Malformed and already applied
// events are acknowledged without effect; cache failures are returned so the
// message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return c.handle(ctx, c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset), msg.Value)
}

func (c *Consumer) handle(ctx context.Context, log *slog.Logger, raw []byte) error {
	ev, err := decodeRefresh(raw)
	if err != nil {
		var rej *rejectedError
		if errors.As(err, &rej) {
			obs.IncKafkaConsumerError(rej.kind)
		}
		obs.ObserveInvalidation("rejected", 0)
		log.Warn("dropping refresh event", "err", err)
		return nil
	}
	log = log.With("dataset", ev.Dataset, "revision", ev.Revision)
	if err := c.Apply(ctx, log, ev); err != nil {
		log.Error("refresh not applied", "err", err)
		return err
	}
	return nil
}
