// Package system owns every core component and drives the frame loop
// described by the console's control-flow model: schedule a frame-end
// sentinel, then alternately drain due scheduler events and advance the
// CPU, fast-forwarding the clock while halted.
package system

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/arm7tdmi-core/gbacore/internal/bus"
	"github.com/arm7tdmi-core/gbacore/internal/cart"
	"github.com/arm7tdmi-core/gbacore/internal/cpu"
	"github.com/arm7tdmi-core/gbacore/internal/dma"
	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/keypad"
	"github.com/arm7tdmi-core/gbacore/internal/ppu"
	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
	"github.com/arm7tdmi-core/gbacore/internal/timer"
)

// cyclesPerFrame is 228 scanlines of 1232 cycles each, matching the
// PPU's own HBlankStart/HBlankEnd cadence exactly so a frame boundary
// always lands on a scheduled PPU event rather than splitting one.
const cyclesPerFrame = 228 * 1232

// BIOSSize is the expected size of a firmware image.
const BIOSSize = 0x4000

// Machine wires the scheduler, interrupt controller, timers, DMA
// controller, PPU, bus, and CPU into one runnable console core.
type Machine struct {
	log *zap.SugaredLogger

	sched  *scheduler.Scheduler
	irqc   *irq.Controller
	timers *timer.Manager
	dma    *dma.Controller
	ppu    *ppu.PPU
	cart   *cart.Image
	bus    *bus.Bus
	cpu    *cpu.CPU
	keys   *keypad.Keypad

	frame uint64
}

// New constructs a Machine around a loaded cartridge ROM: the cartridge
// is parsed first, then the rest is built leaves-first: scheduler,
// interrupt controller, timers, DMA (bus wired back in once it exists),
// PPU, keypad, bus, CPU. log may
// be nil, in which case lifecycle events are discarded.
func New(rom []byte, log *zap.SugaredLogger) (*Machine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	img, err := cart.Load(rom)
	if err != nil {
		return nil, fmt.Errorf("load cartridge: %w", err)
	}
	log.Infow("cartridge loaded",
		"title", img.Header.Title, "code", img.Header.Code,
		"maker", img.Header.Maker, "bytes", len(img.ROM))

	sched := scheduler.New()
	irqc := irq.New(sched)
	timers := timer.New(sched, irqc)
	dmac := dma.New(sched, irqc)
	p := ppu.New(sched, irqc)
	kp := keypad.New()

	b := bus.New(img, p, dmac, timers, irqc, kp)
	dmac.SetBus(b)

	c := cpu.New(b, irqc)
	b.SetCPU(c)

	m := &Machine{
		log: log, sched: sched, irqc: irqc, timers: timers, dma: dmac,
		ppu: p, cart: img, bus: b, cpu: c, keys: kp,
	}
	p.Start()
	return m, nil
}

// LoadBIOS installs firmware into the bus's fixed BIOS region. Per the
// external interface, it is validated only by size; a short or long image
// is logged but still installed verbatim.
func (m *Machine) LoadBIOS(img []byte) {
	if len(img) != BIOSSize {
		m.log.Warnw("BIOS image is not the expected size", "got", len(img), "want", BIOSSize)
	}
	m.bus.LoadBIOS(img)
}

// TraceUnimplemented registers a hook invoked on every UND exception,
// logging the faulting address at warn level. Intended for
// cmd/gbaheadless's --trace-unimplemented flag; per-instruction tracing
// beyond this is out of scope.
func (m *Machine) TraceUnimplemented() {
	m.cpu.SetUnimplementedHook(func(pc uint32) {
		m.log.Warnw("executed undefined instruction", "pc", fmt.Sprintf("0x%08X", pc), "frame", m.frame)
	})
}

// SetButton updates one keypad button's pressed state (see the keypad
// package's button constants). The host calls this between frames; the
// keypad input shim itself is an external collaborator.
func (m *Machine) SetButton(button int, pressed bool) {
	m.keys.SetPressed(button, pressed)
}

// Framebuffer returns the most recently rendered frame, row-major
// ARGB8888, 240x160.
func (m *Machine) Framebuffer() []uint32 { return m.ppu.Framebuffer() }

// FrameCount returns the number of frames completed so far.
func (m *Machine) FrameCount() uint64 { return m.frame }

// RunFrame advances the core through exactly one 240x160 frame.
func (m *Machine) RunFrame() {
	target := m.sched.Now() + cyclesPerFrame
	m.sched.Push(scheduler.FrameEnd, cyclesPerFrame, -1)

	for {
		if ev, ok := m.sched.PopDue(); ok {
			if ev.Kind == scheduler.FrameEnd {
				break
			}
			m.dispatch(ev)
			continue
		}

		if m.cpu.Halted() {
			if _, ok := m.irqc.NextPending(); ok {
				m.cpu.SetHalted(false)
				continue
			}
			next, ok := m.sched.NextTime()
			if !ok {
				m.sched.Advance(target - m.sched.Now())
				continue
			}
			m.sched.Advance(next - m.sched.Now())
			continue
		}

		m.sched.Advance(m.cpu.Step())
	}

	m.frame++
}

// dispatch routes one popped scheduler event to the component that owns
// its handling. The scheduler itself never interprets Kind; this is the
// "owner that pops the event" the scheduler package's doc comment defers
// to.
func (m *Machine) dispatch(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.HBlankStart:
		m.ppu.OnHBlankStart()
		m.dma.OnHBlank()
	case scheduler.HBlankEnd:
		m.ppu.OnHBlankEnd()
		if m.ppu.VCount() == ppu.ScreenHeight {
			m.dma.OnVBlank()
		}
	case scheduler.TimerOverflow:
		m.timers.OnOverflow(ev.Ctx)
	case scheduler.DmaActivate:
		m.dma.OnActivate(ev.Ctx)
	case scheduler.Irq:
		// No-op: CPU.Step checks NextPending/Deliverable itself at every
		// instruction boundary. This event only exists to stop a halted
		// CPU's fast-forward exactly when IE/IF changes make some
		// interrupt pending, so RunFrame can clear the halt.
	case scheduler.VBlankLineStart, scheduler.VBlankLineEnd:
		// Unused: this PPU folds the VBlank-line bookkeeping spec.md §4.7
		// describes as a separate event pair into the same
		// HBlankStart/HBlankEnd handlers used for visible lines, since
		// the two pairs differ only in whether a scanline is rendered,
		// which OnHBlankStart already branches on via VCount.
	}
}
