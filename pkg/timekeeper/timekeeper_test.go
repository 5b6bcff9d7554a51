package timekeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsing(t *testing.T) {
	elapse := NewElapsing()
	time.Sleep(50 * time.Millisecond)

	assert.GreaterOrEqual(t, elapse.Report(), 50*time.Millisecond)

	// a report resets the slice
	assert.Less(t, elapse.Report(), 10*time.Millisecond)
}

func TestPauseCarriesTimeOver(t *testing.T) {
	elapse := NewElapsing()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, elapse.Pause())

	time.Sleep(50 * time.Millisecond)
	d := elapse.Report()
	assert.GreaterOrEqual(t, d, 20*time.Millisecond)
	assert.Less(t, d, 50*time.Millisecond)

	// nothing accrues while paused
	assert.Equal(t, time.Duration(0), elapse.Report())

	require.NoError(t, elapse.Resume())
	assert.Equal(t, Running, elapse.Status())
}

func TestPauseResumeErrors(t *testing.T) {
	elapse := NewPausedElapsing()
	assert.Equal(t, Pause, elapse.Status())
	assert.ErrorIs(t, elapse.Pause(), ErrAlreadyPaused)

	require.NoError(t, elapse.Resume())
	assert.ErrorIs(t, elapse.Resume(), ErrNotPaused)
}
