package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushOrdersByTimeFIFOOnTies(t *testing.T) {
	s := New()
	s.Push(TimerOverflow, 10, 0)
	s.Push(TimerOverflow, 5, 1)
	s.Push(TimerOverflow, 5, 2) // same absolute time as ctx=1, pushed after it
	s.Push(DmaActivate, 20, 3)

	s.Advance(20)

	var order []int
	for {
		ev, ok := s.PopDue()
		if !ok {
			break
		}
		order = append(order, ev.Ctx)
	}
	assert.Equal(t, []int{1, 2, 0, 3}, order)
}

func TestPopDueRespectsNotYetDue(t *testing.T) {
	s := New()
	s.Push(FrameEnd, 100, -1)
	_, ok := s.PopDue()
	assert.False(t, ok)

	s.Advance(99)
	_, ok = s.PopDue()
	assert.False(t, ok)

	s.Advance(1)
	ev, ok := s.PopDue()
	require.True(t, ok)
	assert.Equal(t, FrameEnd, ev.Kind)
}

func TestCancelRemovesExactMatch(t *testing.T) {
	s := New()
	s.Push(TimerOverflow, 5, 0)
	s.Push(TimerOverflow, 5, 1)
	s.Cancel(TimerOverflow, 0)
	s.Advance(5)

	ev, ok := s.PopDue()
	require.True(t, ok)
	assert.Equal(t, 1, ev.Ctx)

	_, ok = s.PopDue()
	assert.False(t, ok)
}

func TestAdvanceNeverDispatches(t *testing.T) {
	s := New()
	s.Push(FrameEnd, 0, -1)
	s.Advance(1000)
	assert.Equal(t, 1, s.Pending())
}

func TestWrapSafeComparison(t *testing.T) {
	s := New()
	s.now = 0xFFFFFFF0
	s.Push(FrameEnd, 0x20, -1) // When wraps to 0x10
	s.Advance(0x30)            // now wraps to 0x20, past the event
	ev, ok := s.PopDue()
	require.True(t, ok)
	assert.Equal(t, FrameEnd, ev.Kind)
}

func TestNextTimeAndPeek(t *testing.T) {
	s := New()
	_, ok := s.NextTime()
	assert.False(t, ok)

	s.Push(HBlankStart, 50, -1)
	when, ok := s.NextTime()
	require.True(t, ok)
	assert.Equal(t, uint32(50), when)

	ev, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, HBlankStart, ev.Kind)
	assert.Equal(t, 1, s.Pending())
}
