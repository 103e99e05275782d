// Package kafkaconsumer applies dataset refresh events to the shared query
// cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/invalidation"
)

// Invalidator drops the cached payloads of one dataset year.
type Invalidator interface {
	Invalidate(ctx context.Context, year int) (int, error)
}

// catalogYear indexes the calls that list years and units. Every refresh
// may add a year, so it is always dropped.
const catalogYear = 0

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	inv    Invalidator
	seen   *revisions
}

func New(cfg Config, logger *slog.Logger, inv Invalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:    cfg,
		logger: logger.With("component", "kafka_consumer"),
		inv:    inv,
		seen:   newRevisions(cfg.DedupeSize),
	}
}

// Start joins the consumer group and processes refresh events until ctx is
// done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: missing invalidator")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("kafkaconsumer: no brokers")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := refreshHandler{c: c}

	c.logger.Info("refresh consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			obs.IncKafkaConsumerError("session")
			c.logger.Error("consumer error", "err", err)
		}
		select {
		case <-ctx.Done():
			c.logger.Info("refresh consumer shutting down")
			return nil
		case <-time.After(c.cfg.RetryBackoff):
		}
	}
}

// Apply invalidates the years of one refresh event followed by the catalog.
// A revision at or below the last applied one for its dataset is skipped. It
// is recorded only once every year was dropped.
func (c *Consumer) Apply(ctx context.Context, log *slog.Logger, ev invalidation.Event) error {
	if c.seen.stale(ev.Dataset, ev.Revision) {
		obs.ObserveInvalidation("duplicate", 0)
		log.Debug("refresh event already applied")
		return nil
	}

	total := 0
	for _, year := range yearsOf(ev) {
		n, err := c.inv.Invalidate(ctx, year)
		total += n
		if err != nil {
			obs.IncKafkaConsumerError("invalidate")
			obs.ObserveInvalidation("error", total)
			return fmt.Errorf("invalidate %s year %d: %w", ev.Dataset, year, err)
		}
	}
	c.seen.record(ev.Dataset, ev.Revision)
	obs.ObserveInvalidation("ok", total)
	log.Info("refresh applied", "years", ev.Years, "keys", total)
	return nil
}

// yearsOf returns the distinct event years in ascending order followed by
// the catalog.
func yearsOf(ev invalidation.Event) []int {
	seen := make(map[int]struct{}, len(ev.Years))
	out := make([]int, 0, len(ev.Years)+1)
	for _, y := range ev.Years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Ints(out)
	return append(out, catalogYear)
}
