package memtracker

import (
	"testing"

	"backdrop-cutout/internal/opencv/memory"

	"github.com/stretchr/testify/assert"
)

func TestObserveAggregates(t *testing.T) {
	mt := NewTracker()
	mt.Observe("a.png", memory.Stats{TotalAllocated: 300, PeakBytes: 200, ScratchHits: 2, ScratchMisses: 5}, 4)
	mt.Observe("b.png", memory.Stats{TotalAllocated: 900, PeakBytes: 700, ScratchMisses: 3}, 6)
	mt.Observe("c.png", memory.Stats{TotalAllocated: 100, PeakBytes: 50}, 1)

	stats := mt.GetStats()
	assert.Equal(t, 3, stats.Images)
	assert.Equal(t, int64(1300), stats.TotalAllocated)
	assert.Equal(t, int64(700), stats.PeakBytes)
	assert.Equal(t, "b.png", stats.PeakTag)
	assert.Equal(t, 11, stats.ClosedOnEnd)
	assert.Equal(t, int64(2), stats.ScratchHits)
	assert.Equal(t, int64(8), stats.ScratchMisses)

	heavy := mt.Heaviest(2)
	if assert.Len(t, heavy, 2) {
		assert.Equal(t, "b.png", heavy[0].Tag)
		assert.Equal(t, "a.png", heavy[1].Tag)
	}
	assert.Len(t, mt.Heaviest(10), 3)
}

func TestDisabledTrackerIgnoresObservations(t *testing.T) {
	mt := NewTracker()
	mt.SetEnabled(false)
	mt.Observe("a.png", memory.Stats{PeakBytes: 10}, 1)
	assert.Zero(t, mt.GetStats().Images)
	assert.Empty(t, mt.Heaviest(1))
}
