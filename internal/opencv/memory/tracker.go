package memory

import (
	"sort"
	"sync"
	"time"

	"pano-calib/internal/logger"
)

type AllocationRecord struct {
	Tag       string
	Size      int64
	CreatedAt time.Time
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PeakBytes      int64
}

// Tracker records Mat allocations made through safe.Mat.
type Tracker struct {
	mu          sync.Mutex
	allocations map[uint64]AllocationRecord
	stats       Stats
	logger      logger.Logger
}

func NewTracker(log logger.Logger) *Tracker {
	return &Tracker{
		allocations: make(map[uint64]AllocationRecord),
		logger:      log,
	}
}

func (t *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allocations[id] = AllocationRecord{Tag: tag, Size: size, CreatedAt: time.Now()}
	t.stats.TotalAllocated += size
	t.stats.ActiveMats++

	if live := t.stats.TotalAllocated - t.stats.TotalReleased; live > t.stats.PeakBytes {
		t.stats.PeakBytes = live
	}
}

func (t *Tracker) TrackDeallocation(id uint64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.allocations[id]
	if !ok {
		t.logger.Warning("MemoryTracker", "release of untracked Mat", map[string]interface{}{"tag": tag})
		return
	}

	delete(t.allocations, id)
	t.stats.TotalReleased += record.Size
	t.stats.ActiveMats--
}

func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Outstanding lists tags of Mats that were never released, sorted.
func (t *Tracker) Outstanding() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	tags := make([]string, 0, len(t.allocations))
	for _, record := range t.allocations {
		tags = append(tags, record.Tag)
	}
	sort.Strings(tags)
	return tags
}

// Report logs the final statistics and any leaked Mats.
func (t *Tracker) Report() {
	stats := t.GetStats()
	fields := map[string]interface{}{
		"allocated_mb": stats.TotalAllocated / 1024 / 1024,
		"peak_mb":      stats.PeakBytes / 1024 / 1024,
		"active_mats":  stats.ActiveMats,
	}

	if leaked := t.Outstanding(); len(leaked) > 0 {
		fields["leaked"] = leaked
		t.logger.Warning("MemoryTracker", "Mats still allocated", fields)
		return
	}

	t.logger.Debug("MemoryTracker", "memory summary", fields)
}
