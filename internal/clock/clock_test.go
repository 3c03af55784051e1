package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	late := c.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	c.Advance(3 * time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(3*time.Second), c.Now())
	assert.Equal(t, 1, c.Pending())
	assert.True(t, late.Stop())
	assert.False(t, late.Stop())
	assert.Equal(t, 0, c.Pending())
}

func TestFake_CallbackSeesDueTimeAndCanReschedule(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var seen []time.Time
	var tick func()
	tick = func() {
		seen = append(seen, c.Now())
		if len(seen) < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)

	assert.Equal(t, []time.Time{
		start.Add(1 * time.Second),
		start.Add(2 * time.Second),
		start.Add(3 * time.Second),
	}, seen)
}

func TestFake_StoppedTimerDoesNotFire(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	timer.Stop()
	c.Advance(time.Minute)
	assert.False(t, fired)
}
