package kafkaconsumer

import "time"

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// RetryBackoff is the pause between failed consume sessions.
	RetryBackoff time.Duration
	// DedupeSize bounds the number of datasets whose last revision is kept.
	DedupeSize int
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "dataset-refresh"
	}
	if c.GroupID == "" {
		c.GroupID = "dashboard-cache-invalidator"
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	return c
}
