// Package hitevents publishes dashboard transitions to Kafka.
package hitevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Event is one applied dashboard transition.
type Event struct {
	Session string    `json:"session"`
	Trigger string    `json:"trigger"`
	Year    int       `json:"year"`
	Element string    `json:"element"`
	Chart   string    `json:"chart_type"`
	Country string    `json:"country,omitempty"`
	State   string    `json:"state,omitempty"`
	Station string    `json:"station,omitempty"`
	Query   string    `json:"query"`
	TS      time.Time `json:"ts"`
}

const defaultQueue = 1024

type Publisher struct {
	topic  string
	prod   sarama.AsyncProducer
	log    *slog.Logger
	events chan Event

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
	drained chan struct{}
}

// NewPublisher connects an async producer to brokers.
func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("hitevents: create async producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, queueSize, log), nil
}

// NewPublisherWithProducer wraps an existing producer. The publisher owns it
// and closes it on Close.
func NewPublisherWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueue
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		prod:    prod,
		log:     log.With("component", "hitevents", "topic", topic),
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}
	go p.run()
	go p.errors()
	return p
}

func (p *Publisher) run() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			p.log.Warn("marshal event failed", "error", err)
			continue
		}
		// keyed by session so one session's events stay ordered
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.Session),
			Value: sarama.ByteEncoder(b),
		}
	}
}

func (p *Publisher) errors() {
	defer close(p.drained)
	for err := range p.prod.Errors() {
		if err != nil {
			p.log.Warn("producer error", "error", err)
		}
	}
}

// Publish enqueues ev. It never blocks: when the queue is full or the
// publisher is closed the event is dropped.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.log.Debug("event queue full, dropping", "trigger", ev.Trigger)
	}
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("hitevents: close producer: %w", err)
	}
	<-p.drained
	return nil
}
