package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
)

func TestDeliverableRequiresImeIeIfAndNotCpsrI(t *testing.T) {
	sched := scheduler.New()
	c := New(sched)

	assert.False(t, c.Deliverable(false))

	c.WriteIME(1)
	c.WriteIE(1 << Timer0)
	assert.False(t, c.Deliverable(false)) // IF still clear

	c.Raise(Timer0)
	assert.True(t, c.Deliverable(false))
	assert.False(t, c.Deliverable(true)) // CPSR.I masks it
}

func TestRaiseSchedulesIrqEvent(t *testing.T) {
	sched := scheduler.New()
	c := New(sched)
	c.Raise(VBlank)
	ev, ok := sched.PopDue()
	if !ok {
		t.Fatal("expected scheduled Irq event")
	}
	assert.Equal(t, scheduler.Irq, ev.Kind)
}

func TestWriteIFClearIsWriteOneToClear(t *testing.T) {
	sched := scheduler.New()
	c := New(sched)
	c.Raise(Dma0)
	c.Raise(Dma1)
	c.WriteIFClear(1 << Dma0)
	assert.Equal(t, uint16(1<<Dma1), c.IF())
}

func TestNextPendingPicksLowestBit(t *testing.T) {
	sched := scheduler.New()
	c := New(sched)
	c.WriteIE(0xFFFF)
	c.Raise(Dma2)
	c.Raise(VBlank)
	bit, ok := c.NextPending()
	if !ok {
		t.Fatal("expected a pending interrupt")
	}
	assert.Equal(t, VBlank, bit)
}
