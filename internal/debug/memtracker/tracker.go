// Package memtracker aggregates the per-image arena statistics of a batch.
package memtracker

import (
	"sort"
	"sync"
	"time"

	"backdrop-cutout/internal/opencv/memory"
)

// ImageRecord is what one image's arena saw over its lifetime.
type ImageRecord struct {
	Tag         string
	PeakBytes   int64
	Allocated   int64
	ClosedOnEnd int
	RecordedAt  time.Time
}

type MemoryStats struct {
	Images         int
	TotalAllocated int64
	PeakBytes      int64
	PeakTag        string
	ClosedOnEnd    int
	ScratchHits    int64
	ScratchMisses  int64
}

type Tracker struct {
	records []ImageRecord
	stats   MemoryStats
	enabled bool
	mu      sync.Mutex
}

func NewTracker() *Tracker {
	return &Tracker{enabled: true}
}

// Observe records the final state of an arena. closed is the number of
// Mats its Release call had to close.
func (mt *Tracker) Observe(tag string, stats memory.Stats, closed int) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if !mt.enabled {
		return
	}

	mt.records = append(mt.records, ImageRecord{
		Tag:         tag,
		PeakBytes:   stats.PeakBytes,
		Allocated:   stats.TotalAllocated,
		ClosedOnEnd: closed,
		RecordedAt:  time.Now(),
	})

	mt.stats.Images++
	mt.stats.TotalAllocated += stats.TotalAllocated
	mt.stats.ClosedOnEnd += closed
	mt.stats.ScratchHits += stats.ScratchHits
	mt.stats.ScratchMisses += stats.ScratchMisses
	if stats.PeakBytes > mt.stats.PeakBytes {
		mt.stats.PeakBytes = stats.PeakBytes
		mt.stats.PeakTag = tag
	}
}

func (mt *Tracker) GetStats() MemoryStats {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.stats
}

// Heaviest returns up to n records with the largest peak, largest first.
func (mt *Tracker) Heaviest(n int) []ImageRecord {
	mt.mu.Lock()
	records := make([]ImageRecord, len(mt.records))
	copy(records, mt.records)
	mt.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PeakBytes > records[j].PeakBytes
	})
	if n >= 0 && n < len(records) {
		records = records[:n]
	}
	return records
}

func (mt *Tracker) SetEnabled(enabled bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.enabled = enabled
}
