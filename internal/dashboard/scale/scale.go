// Package scale maps data domains onto pixel ranges and back.
package scale

import (
	"math"
	"time"
)

// Linear is a continuous scale from [D0,D1] onto [R0,R1].
type Linear struct {
	D0, D1 float64
	R0, R1 float64
}

// NewLinear builds a linear scale. A degenerate domain is padded
// symmetrically so a single value lands in the middle of the range.
func NewLinear(d0, d1, r0, r1 float64) Linear {
	if d0 > d1 {
		d0, d1 = d1, d0
	}
	if d0 == d1 {
		pad := math.Abs(d0) * 0.1
		if pad == 0 {
			pad = 1
		}
		d0, d1 = d0-pad, d1+pad
	}
	return Linear{D0: d0, D1: d1, R0: r0, R1: r1}
}

// Map projects v into the range.
func (s Linear) Map(v float64) float64 {
	if s.D1 == s.D0 {
		return (s.R0 + s.R1) / 2
	}
	return s.R0 + (v-s.D0)/(s.D1-s.D0)*(s.R1-s.R0)
}

// Invert projects a range position back into the domain.
func (s Linear) Invert(px float64) float64 {
	if s.R1 == s.R0 {
		return s.D0
	}
	return s.D0 + (px-s.R0)/(s.R1-s.R0)*(s.D1-s.D0)
}

// Nice extends the domain to round tick boundaries.
func (s Linear) Nice(count int) Linear {
	step := TickStep(s.D0, s.D1, count)
	if step == 0 {
		return s
	}
	s.D0 = math.Floor(s.D0/step) * step
	s.D1 = math.Ceil(s.D1/step) * step
	return s
}

// Ticks returns roughly count round values inside the domain.
func (s Linear) Ticks(count int) []float64 {
	step := TickStep(s.D0, s.D1, count)
	if step == 0 {
		return nil
	}
	start := math.Ceil(s.D0/step) * step
	var out []float64
	for v := start; v <= s.D1+step*1e-9; v += step {
		out = append(out, math.Round(v/step)*step)
	}
	return out
}

// TickStep picks a 1/2/5 x 10^k step giving about count intervals.
func TickStep(d0, d1 float64, count int) float64 {
	if count <= 0 {
		count = 10
	}
	span := math.Abs(d1 - d0)
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return 0
	}
	raw := span / float64(count)
	step := math.Pow(10, math.Floor(math.Log10(raw)))
	switch e := raw / step; {
	case e >= math.Sqrt(50):
		step *= 10
	case e >= math.Sqrt(10):
		step *= 5
	case e >= math.Sqrt(2):
		step *= 2
	}
	return step
}

// Time is a linear scale over instants.
type Time struct {
	lin Linear
}

// NewTime builds a time scale. A single instant is padded by one day on each
// side.
func NewTime(t0, t1 time.Time, r0, r1 float64) Time {
	if t1.Before(t0) {
		t0, t1 = t1, t0
	}
	if t0.Equal(t1) {
		t0 = t0.AddDate(0, 0, -1)
		t1 = t1.AddDate(0, 0, 1)
	}
	return Time{lin: Linear{D0: unix(t0), D1: unix(t1), R0: r0, R1: r1}}
}

func (s Time) Map(t time.Time) float64 { return s.lin.Map(unix(t)) }

func (s Time) Invert(px float64) time.Time {
	sec := s.lin.Invert(px)
	return time.Unix(int64(math.Round(sec)), 0).UTC()
}

func (s Time) Domain() (time.Time, time.Time) {
	return time.Unix(int64(s.lin.D0), 0).UTC(), time.Unix(int64(s.lin.D1), 0).UTC()
}

// Ticks returns day-aligned instants spread over the domain.
func (s Time) Ticks(count int) []time.Time {
	if count <= 0 {
		count = 10
	}
	t0, t1 := s.Domain()
	days := t1.Sub(t0).Hours() / 24
	step := 1
	for _, c := range []int{1, 2, 7, 14, 30, 61, 91, 182, 365} {
		step = c
		if days/float64(c) <= float64(count) {
			break
		}
	}
	start := time.Date(t0.Year(), t0.Month(), t0.Day(), 0, 0, 0, 0, time.UTC)
	if start.Before(t0) {
		start = start.AddDate(0, 0, 1)
	}
	var out []time.Time
	for t := start; !t.After(t1); t = t.AddDate(0, 0, step) {
		out = append(out, t)
	}
	return out
}

func unix(t time.Time) float64 { return float64(t.Unix()) }

// Band splits a range into equal bands, one per domain key, with padding
// applied both between bands and at the outer edges.
type Band struct {
	keys    []string
	index   map[string]int
	r0, r1  float64
	padding float64
}

func NewBand(keys []string, r0, r1, padding float64) Band {
	idx := make(map[string]int, len(keys))
	for i, k := range keys {
		idx[k] = i
	}
	return Band{keys: keys, index: idx, r0: r0, r1: r1, padding: padding}
}

func (b Band) step() float64 {
	n := float64(len(b.keys))
	if n == 0 {
		return 0
	}
	return (b.r1 - b.r0) / (n + b.padding)
}

// Bandwidth is the drawn width of one band.
func (b Band) Bandwidth() float64 { return b.step() * (1 - b.padding) }

// Pos returns the start of the band for key.
func (b Band) Pos(key string) (float64, bool) {
	i, ok := b.index[key]
	if !ok {
		return 0, false
	}
	return b.r0 + b.step()*(b.padding+float64(i)), true
}

// At returns the index of the band under px, clamped to the domain.
func (b Band) At(px float64) int {
	if len(b.keys) == 0 {
		return -1
	}
	i := int(math.Floor((px - b.r0 - b.step()*b.padding/2) / b.step()))
	return max(0, min(len(b.keys)-1, i))
}

func (b Band) Keys() []string { return b.keys }
