package increquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevisionCounterAdvanceIsMonotonic(t *testing.T) {
	var c RevisionCounter
	require.Equal(t, RevisionZero, c.Current())

	r1 := c.Advance()
	r2 := c.Advance()
	r3 := c.Advance()

	assert.Equal(t, Revision(1), r1)
	assert.Equal(t, Revision(2), r2)
	assert.Equal(t, Revision(3), r3)
	assert.Equal(t, r3, c.Current())
}

func TestDurabilityTrackerHighChangeBumpsAllLevels(t *testing.T) {
	var tr DurabilityTracker
	tr.NoteChange(High, 5)

	assert.Equal(t, Revision(5), tr.LastChanged(Low))
	assert.Equal(t, Revision(5), tr.LastChanged(Medium))
	assert.Equal(t, Revision(5), tr.LastChanged(High))
}

func TestDurabilityTrackerLowChangeDoesNotBumpHigherLevels(t *testing.T) {
	var tr DurabilityTracker
	tr.NoteChange(Low, 5)

	assert.Equal(t, Revision(5), tr.LastChanged(Low))
	assert.Equal(t, Revision(0), tr.LastChanged(Medium))
	assert.Equal(t, Revision(0), tr.LastChanged(High))
}

func TestDurabilityTrackerNeverGoesBackwards(t *testing.T) {
	var tr DurabilityTracker
	tr.NoteChange(Low, 10)
	tr.NoteChange(Low, 3)

	assert.Equal(t, Revision(10), tr.LastChanged(Low))
}

func TestDurabilityString(t *testing.T) {
	assert.Equal(t, "Low", Low.String())
	assert.Equal(t, "Medium", Medium.String())
	assert.Equal(t, "High", High.String())
}
