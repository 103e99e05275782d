package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/invalidation"
)

type fakeInvalidator struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	years     []int
}

func (f *fakeInvalidator) Invalidate(_ context.Context, year int) (int, error) {
	f.mu.Lock()
	f.years = append(f.years, year)
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return 0, errors.New("boom")
	}
	return 2, nil
}

func (f *fakeInvalidator) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.years...)
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "dataset-refresh" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func refresh(rev uint64, years ...int) []byte {
	b, _ := json.Marshal(invalidation.Event{
		Version: 1, Dataset: invalidation.DatasetGHCND, Revision: rev, Years: years, TS: time.Now().UTC(),
	})
	return b
}

func newConsumerForTest(inv Invalidator) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "dataset-refresh", GroupID: "g"}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), inv)
}

func TestProcessOne_InvalidatesYearsThenCatalog(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	msg := &sarama.ConsumerMessage{Topic: "dataset-refresh", Offset: 1, Value: refresh(3, 2024, 2023, 2024)}
	if err := c.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	got := inv.seen()
	want := []int{2023, 2024, 0}
	if len(got) != len(want) {
		t.Fatalf("years=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("years=%v want %v", got, want)
		}
	}
}

func TestProcessOne_SkipsStaleRevisions(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	ctx := context.Background()

	for i, rev := range []uint64{5, 5, 4, 6} {
		msg := &sarama.ConsumerMessage{Offset: int64(i), Value: refresh(rev, 2024)}
		if err := c.ProcessOne(ctx, msg); err != nil {
			t.Fatalf("ProcessOne rev %d: %v", rev, err)
		}
	}
	// revisions 5 and 6 apply, each touching 2024 and the catalog
	if got := inv.seen(); len(got) != 4 {
		t.Fatalf("invalidations=%v want 4", got)
	}
}

func TestProcessOne_MalformedIsAcknowledged(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	ctx := context.Background()

	for _, v := range [][]byte{[]byte("{not json"), refresh(1)} {
		if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Value: v}); err != nil {
			t.Fatalf("malformed event must not block the partition: %v", err)
		}
	}
	if got := inv.seen(); len(got) != 0 {
		t.Fatalf("unexpected invalidations %v", got)
	}
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	c := newConsumerForTest(&fakeInvalidator{})

	g := refreshHandler{c: c}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)

	ch <- &sarama.ConsumerMessage{Topic: "dataset-refresh", Offset: 10, Value: refresh(1, 2024)}
	ch <- &sarama.ConsumerMessage{Topic: "dataset-refresh", Offset: 11, Value: refresh(2, 2024)}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	inv := &fakeInvalidator{}
	inv.failFirst.Store(true)
	c := newConsumerForTest(inv)
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Topic: "dataset-refresh", Offset: 5, Value: refresh(9, 2024)}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	// the failed attempt must not count the revision as applied
	s := &sess{ctx: ctx}
	g := refreshHandler{c: c}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
	if got := inv.seen(); len(got) != 3 {
		t.Fatalf("invalidations=%v want failed 2024 then 2024 and catalog", got)
	}
}

func TestConsumeClaim_RejectedAreMarkedFailuresStop(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	g := refreshHandler{c: c}
	s := &sess{ctx: t.Context()}
	if err := g.Setup(s); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	ch := make(chan *sarama.ConsumerMessage, 4)
	ch <- &sarama.ConsumerMessage{Offset: 20, Value: []byte("{not json")}
	ch <- &sarama.ConsumerMessage{Offset: 21, Value: refresh(0, 2024)}
	ch <- &sarama.ConsumerMessage{Offset: 22, Value: refresh(1, 2024)}
	ch <- &sarama.ConsumerMessage{Offset: 23, Value: refresh(2, 2023)}
	close(ch)

	c.inv = failOnYear{inner: inv, year: 2023}
	err := g.ConsumeClaim(s, &claim{msgs: ch})
	if err == nil || !strings.Contains(err.Error(), "offset 23") {
		t.Fatalf("ConsumeClaim err=%v want failure at offset 23", err)
	}
	if len(s.marked) != 3 || s.marked[2] != 22 {
		t.Fatalf("marked offsets=%v want [20 21 22]", s.marked)
	}
	if err := g.Cleanup(s); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

type failOnYear struct {
	inner Invalidator
	year  int
}

func (f failOnYear) Invalidate(ctx context.Context, year int) (int, error) {
	if year == f.year {
		return 0, errors.New("cache down")
	}
	return f.inner.Invalidate(ctx, year)
}

func TestDecodeRefresh_RejectKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		kind string
	}{
		{"not json", []byte("{"), "decode"},
		{"zero revision", refresh(0, 2024), "validate"},
		{"ok", refresh(3, 2024), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeRefresh(tc.raw)
			var rej *rejectedError
			switch {
			case tc.kind == "" && err != nil:
				t.Fatalf("unexpected error %v", err)
			case tc.kind != "" && (!errors.As(err, &rej) || rej.kind != tc.kind):
				t.Fatalf("err=%v want %s rejection", err, tc.kind)
			}
		})
	}
}

func TestStart_RequiresBrokers(t *testing.T) {
	c := New(Config{}, nil, &fakeInvalidator{})
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
