// Package history keeps the bounded heart-rate trend shown next to the live
// reading.
package history

import (
	"sort"

	"caregiver-companion/internal/models"
)

// MaxSamples is the trend length kept in memory.
const MaxSamples = 20

// Buffer is a fixed-capacity ring ordered oldest to newest. It is not safe
// for concurrent use.
type Buffer struct {
	ring  []models.HistorySample
	start int
	size  int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = MaxSamples
	}
	return &Buffer{ring: make([]models.HistorySample, capacity)}
}

func (b *Buffer) Len() int {
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Append adds a sample at the end, evicting the oldest when full.
func (b *Buffer) Append(sample models.HistorySample) {
	idx := (b.start + b.size) % len(b.ring)
	b.ring[idx] = sample
	if b.size < len(b.ring) {
		b.size++
		return
	}
	b.start = (b.start + 1) % len(b.ring)
}

// Hydrate replaces the contents with samples loaded from storage. Storage
// returns newest first; the buffer keeps oldest first and only the most
// recent Cap() samples. Samples with an unparsable timestamp sort as oldest.
func (b *Buffer) Hydrate(samples []models.HistorySample) {
	ordered := make([]models.HistorySample, len(samples))
	for i, s := range samples {
		ordered[len(samples)-1-i] = s
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time().Before(ordered[j].Time())
	})
	if len(ordered) > len(b.ring) {
		ordered = ordered[len(ordered)-len(b.ring):]
	}

	b.start = 0
	b.size = 0
	for _, s := range ordered {
		b.Append(s)
	}
}

// Samples returns a copy of the buffer, oldest first.
func (b *Buffer) Samples() []models.HistorySample {
	out := make([]models.HistorySample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}
