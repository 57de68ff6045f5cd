package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pano-calib/internal/logger"
)

func TestTrackerBalancesAllocations(t *testing.T) {
	tr := NewTracker(logger.Nop())

	tr.TrackAllocation(1, 300, "left")
	tr.TrackAllocation(2, 500, "right")
	tr.TrackDeallocation(1, "left")

	stats := tr.GetStats()
	assert.EqualValues(t, 800, stats.TotalAllocated)
	assert.EqualValues(t, 300, stats.TotalReleased)
	assert.EqualValues(t, 1, stats.ActiveMats)
	assert.EqualValues(t, 800, stats.PeakBytes)
	assert.Equal(t, []string{"right"}, tr.Outstanding())
}

func TestTrackerIgnoresUnknownRelease(t *testing.T) {
	tr := NewTracker(logger.Nop())
	tr.TrackDeallocation(42, "ghost")

	stats := tr.GetStats()
	assert.Zero(t, stats.TotalReleased)
	assert.Zero(t, stats.ActiveMats)
}
