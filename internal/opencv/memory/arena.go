// Package memory scopes OpenCV allocations to the lifetime of one image.
//
// Every Mat created for an image comes from that image's Arena; Release
// closes whatever is still live, so a failed image leaves nothing behind.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"backdrop-cutout/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const scratchPerShape = 4

// DefaultLimit caps live bytes per arena.
const DefaultLimit int64 = 2 * 1024 * 1024 * 1024

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PeakBytes      int64
	ScratchHits    int64
	ScratchMisses  int64
}

type liveMat struct {
	mat  *safe.Mat
	size int64
}

type Arena struct {
	tag     string
	limit   int64
	live    map[uint64]liveMat
	scratch map[PoolKey][]*safe.Mat
	stats   Stats
	closed  bool
	mu      sync.Mutex
}

func NewArena(tag string, limit int64) *Arena {
	if limit <= 0 {
		limit = DefaultLimit
	}

	return &Arena{
		tag:     tag,
		limit:   limit,
		live:    make(map[uint64]liveMat),
		scratch: make(map[PoolKey][]*safe.Mat),
	}
}

// TrackAllocation implements safe.MemoryTracker.
func (a *Arena) TrackAllocation(mat *safe.Mat, size int64, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live[mat.ID()] = liveMat{mat: mat, size: size}
	a.stats.TotalAllocated += size
	a.stats.ActiveMats++
	if inUse := a.stats.TotalAllocated - a.stats.TotalReleased; inUse > a.stats.PeakBytes {
		a.stats.PeakBytes = inUse
	}
}

// TrackDeallocation implements safe.MemoryTracker.
func (a *Arena) TrackDeallocation(mat *safe.Mat, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.live[mat.ID()]
	if !ok {
		return
	}
	delete(a.live, mat.ID())
	a.stats.TotalReleased += entry.size
	a.stats.ActiveMats--
}

// GetMat returns a zero-filled Mat owned by the arena, reusing a recycled
// Mat of the same shape when one is available.
func (a *Arena) GetMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error) {
	if err := safe.ValidateDimensions(cols, rows, tag); err != nil {
		return nil, err
	}

	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("arena %s already released", a.tag)
	}
	if inUse := a.stats.TotalAllocated - a.stats.TotalReleased; inUse > a.limit {
		a.mu.Unlock()
		return nil, fmt.Errorf("memory limit exceeded: %d bytes allocated", inUse)
	}
	if mats := a.scratch[key]; len(mats) > 0 {
		mat := mats[len(mats)-1]
		a.scratch[key] = mats[:len(mats)-1]
		a.stats.ScratchHits++
		a.mu.Unlock()

		if err := mat.Fill(0); err != nil {
			mat.Close()
			return nil, err
		}
		return mat, nil
	}
	a.stats.ScratchMisses++
	a.mu.Unlock()

	mat, err := safe.NewMatWithTracker(rows, cols, matType, a, a.tag+"/"+tag)
	if err != nil {
		return nil, err
	}
	if err := mat.Fill(0); err != nil {
		mat.Close()
		return nil, err
	}

	return mat, nil
}

// Adopt hands ownership of a gocv.Mat produced by an OpenCV call to the arena.
func (a *Arena) Adopt(mat gocv.Mat, tag string) (*safe.Mat, error) {
	if err := a.open(); err != nil {
		mat.Close()
		return nil, err
	}
	return safe.Wrap(mat, a, a.tag+"/"+tag)
}

// FromBytes builds an arena-owned Mat from a pixel buffer.
func (a *Arena) FromBytes(rows, cols int, matType gocv.MatType, data []byte, tag string) (*safe.Mat, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	return safe.NewMatFromBytes(rows, cols, matType, data, a, a.tag+"/"+tag)
}

// Clone copies src into a new arena-owned Mat.
func (a *Arena) Clone(src *safe.Mat, tag string) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "clone"); err != nil {
		return nil, err
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	return safe.NewMatFromMatWithTracker(src.GetMat(), a, a.tag+"/"+tag)
}

// Recycle returns a scratch Mat for reuse by later GetMat calls.
func (a *Arena) Recycle(mat *safe.Mat) {
	if mat == nil || !mat.IsValid() || mat.Empty() {
		return
	}

	key := PoolKey{Rows: mat.Rows(), Cols: mat.Cols(), MatType: mat.Type()}

	a.mu.Lock()
	if !a.closed && len(a.scratch[key]) < scratchPerShape {
		a.scratch[key] = append(a.scratch[key], mat)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	mat.Close()
}

// Release closes every Mat the arena still tracks. The arena cannot be
// used afterwards.
func (a *Arena) Release() int {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return 0
	}
	a.closed = true
	a.scratch = make(map[PoolKey][]*safe.Mat)
	a.mu.Unlock()

	// Mats unregister themselves through TrackDeallocation; closing happens
	// outside the lock for that reason.
	closed := 0
	for _, mat := range a.liveMats() {
		mat.Close()
		closed++
	}

	return closed
}

func (a *Arena) open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("arena %s already released", a.tag)
	}
	return nil
}

func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Arena) liveMats() []*safe.Mat {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]uint64, 0, len(a.live))
	for id := range a.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	mats := make([]*safe.Mat, 0, len(ids))
	for _, id := range ids {
		mats = append(mats, a.live[id].mat)
	}
	return mats
}
