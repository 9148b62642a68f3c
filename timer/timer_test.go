package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTimerManager_OneShot(t *testing.T) {
	clock := quartz.NewMock(t)
	m := NewTimerManager(clock)

	var fired atomic.Int32
	id := m.AddTimer(time.Second, 0, func() { fired.Add(1) })
	assert.True(t, m.Pending(id))

	clock.Advance(time.Second).MustWait(testContext(t))
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, m.Pending(id))
	assert.Equal(t, 0, m.Len())
}

func TestTimerManager_Interval(t *testing.T) {
	clock := quartz.NewMock(t)
	m := NewTimerManager(clock)

	var fired atomic.Int32
	id := m.AddTimer(time.Second, time.Second, func() { fired.Add(1) })

	ctx := testContext(t)
	for i := 0; i < 3; i++ {
		_, w := clock.AdvanceNext()
		w.MustWait(ctx)
	}
	assert.Equal(t, int32(3), fired.Load())
	assert.True(t, m.Pending(id))

	m.RemoveTimer(id)
	assert.False(t, m.Pending(id))
}

func TestTimerManager_RemoveBeforeFire(t *testing.T) {
	clock := quartz.NewMock(t)
	m := NewTimerManager(clock)

	var fired atomic.Int32
	id := m.AddTimer(time.Second, 0, func() { fired.Add(1) })
	m.RemoveTimer(id)
	m.RemoveTimer(id)

	clock.Advance(2 * time.Second).MustWait(testContext(t))
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimerManager_StopAll(t *testing.T) {
	clock := quartz.NewMock(t)
	m := NewTimerManager(clock)

	var fired atomic.Int32
	a := m.AddTimer(time.Second, 0, func() { fired.Add(1) })
	b := m.AddTimer(time.Second, time.Second, func() { fired.Add(1) })
	require.NotEqual(t, a, b)

	m.StopAll()
	assert.Equal(t, 0, m.Len())

	clock.Advance(3 * time.Second).MustWait(testContext(t))
	assert.Equal(t, int32(0), fired.Load())
}
