package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayedRestarterFiresOnce(t *testing.T) {
	var exits atomic.Int32
	r := NewDelayedRestarter(10*time.Millisecond, func() { exits.Add(1) })

	r.ScheduleRestart("restore")
	r.ScheduleRestart("restore again")

	assert.Eventually(t, func() bool { return exits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), exits.Load())
	assert.True(t, r.Fired())
	assert.NotZero(t, RestartExitCode)
}

func TestDelayedRestarterWaits(t *testing.T) {
	var exits atomic.Int32
	r := NewDelayedRestarter(time.Hour, func() { exits.Add(1) })
	r.ScheduleRestart("restore")
	assert.Zero(t, exits.Load())
	assert.False(t, r.Fired())
}
