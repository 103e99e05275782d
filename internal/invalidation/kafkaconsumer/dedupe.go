package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type revisions struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newRevisions(size int) *revisions {
	if size <= 0 {
		size = 256
	}
	c, _ := lru.New[string, uint64](size)
	return &revisions{lru: c}
}

// stale reports whether rev was already applied for dataset.
func (r *revisions) stale(dataset string, rev uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lru.Get(dataset)
	return ok && rev <= last
}

func (r *revisions) record(dataset string, rev uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lru.Get(dataset); ok && rev <= last {
		return
	}
	r.lru.Add(dataset, rev)
}
