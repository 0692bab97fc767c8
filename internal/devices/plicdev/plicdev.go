// Package plicdev simulates a RISC-V Platform Level Interrupt Controller at
// the register level. It reproduces the hardware side of the claim/complete
// handshake so the driver in internal/plic can run without real hardware.
package plicdev

import (
	"fmt"
	"sync"

	"github.com/tinyrange/plic/internal/plic"
)

// State is the controller's view of one source from one hart.
type State int

const (
	Idle      State = iota // nothing latched
	Pending                // latched by the gateway, waiting for a claim
	InService              // claimed, waiting for a completion
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case InService:
		return "in-service"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const priorityMask = 7

// Device is a simulated PLIC. It implements plic.Registers over the absolute
// addresses described by its layout.
type Device struct {
	mu     sync.Mutex
	layout plic.Layout
	words  uint32

	priority  []uint32
	pending   []uint32
	level     []uint32 // line is held high
	held      []uint32 // assertion arrived while in service
	enable    [][]uint32
	threshold []uint32
	inService [][]uint32

	external   []bool
	onExternal func(hart plic.HartID, pending bool)
}

// New creates a controller with every register at its reset value. Enable
// and context registers of a layout with a zero stride are unmapped.
func New(layout plic.Layout) *Device {
	words := (layout.Sources + 31) / 32
	d := &Device{
		layout:    layout,
		words:     words,
		priority:  make([]uint32, layout.Sources),
		pending:   make([]uint32, words),
		level:     make([]uint32, words),
		held:      make([]uint32, words),
		enable:    make([][]uint32, layout.Harts),
		threshold: make([]uint32, layout.Harts),
		inService: make([][]uint32, layout.Harts),
		external:  make([]bool, layout.Harts),
	}
	for h := range d.enable {
		d.enable[h] = make([]uint32, words)
		d.inService[h] = make([]uint32, words)
	}
	return d
}

func (d *Device) Layout() plic.Layout { return d.layout }

// OnExternal installs the callback that mirrors each hart's machine external
// interrupt pending line (mip.MEIP). It is called with the device lock held
// and must not call back into the device.
func (d *Device) OnExternal(fn func(hart plic.HartID, pending bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onExternal = fn
	for h := range d.external {
		d.external[h] = false
	}
	d.update()
}

// Read32 implements plic.Registers.
func (d *Device) Read32(addr uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset, ok := d.offset(addr)
	if !ok {
		return 0
	}
	l := d.layout

	switch {
	case offset < l.PendingBase:
		src := (offset - l.PriorityBase) / 4
		if src < uint64(l.Sources) {
			return d.priority[src]
		}

	case offset < l.EnableBase:
		word := (offset - l.PendingBase) / 4
		if word < uint64(d.words) {
			return d.pending[word]
		}

	case offset < l.ContextBase:
		hart, word, ok := d.enableIndex(offset)
		if ok {
			return d.enable[hart][word]
		}

	default:
		hart, reg, ok := d.contextIndex(offset)
		if !ok {
			return 0
		}
		switch reg {
		case 0:
			return d.threshold[hart]
		case 4:
			src := d.claim(hart)
			d.update()
			return uint32(src)
		}
	}

	return 0
}

// Write32 implements plic.Registers.
func (d *Device) Write32(addr uint64, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset, ok := d.offset(addr)
	if !ok {
		return
	}
	l := d.layout

	switch {
	case offset < l.PendingBase:
		src := (offset - l.PriorityBase) / 4
		// Source 0 is reserved.
		if src > 0 && src < uint64(l.Sources) {
			d.priority[src] = value & priorityMask
		}

	case offset < l.EnableBase:
		// Pending bits are read-only.

	case offset < l.ContextBase:
		hart, word, ok := d.enableIndex(offset)
		if ok {
			if word == 0 {
				value &^= 1 // source 0 cannot be enabled
			}
			d.enable[hart][word] = value
		}

	default:
		hart, reg, ok := d.contextIndex(offset)
		if !ok {
			return
		}
		switch reg {
		case 0:
			d.threshold[hart] = value & priorityMask
		case 4:
			d.complete(hart, plic.SourceID(value))
		}
	}

	d.update()
}

func (d *Device) offset(addr uint64) (uint64, bool) {
	if addr < d.layout.Base || addr-d.layout.Base >= d.layout.Size() || addr%4 != 0 {
		return 0, false
	}
	return addr - d.layout.Base, true
}

func (d *Device) enableIndex(offset uint64) (int, int, bool) {
	if d.layout.EnableStride == 0 {
		return 0, 0, false
	}
	rel := offset - d.layout.EnableBase
	hart := rel / d.layout.EnableStride
	word := (rel % d.layout.EnableStride) / 4
	if hart >= uint64(d.layout.Harts) || word >= uint64(d.words) {
		return 0, 0, false
	}
	return int(hart), int(word), true
}

func (d *Device) contextIndex(offset uint64) (int, uint64, bool) {
	if d.layout.ContextStride == 0 {
		return 0, 0, false
	}
	rel := offset - d.layout.ContextBase
	hart := rel / d.layout.ContextStride
	if hart >= uint64(d.layout.Harts) {
		return 0, 0, false
	}
	return int(hart), rel % d.layout.ContextStride, true
}

func (d *Device) valid(src plic.SourceID) bool {
	return src > 0 && uint32(src) < d.layout.Sources
}

func testBit(words []uint32, src plic.SourceID) bool {
	return words[plic.Word(src)]&plic.Bit(src) != 0
}

func setBit(words []uint32, src plic.SourceID) {
	words[plic.Word(src)] |= plic.Bit(src)
}

func clearBit(words []uint32, src plic.SourceID) {
	words[plic.Word(src)] &^= plic.Bit(src)
}

// best returns the source hart would claim right now, or 0.
func (d *Device) best(hart int) plic.SourceID {
	var (
		bestSource   plic.SourceID
		bestPriority uint32
	)

	for word := range d.pending {
		candidates := d.pending[word] & d.enable[hart][word]
		if candidates == 0 {
			continue
		}
		for bit := 0; bit < 32; bit++ {
			if candidates&(1<<bit) == 0 {
				continue
			}
			src := plic.SourceID(word*32 + bit)
			priority := d.priority[src]
			if priority <= d.threshold[hart] {
				continue
			}
			// Strictly greater keeps the lowest id on ties.
			if priority > bestPriority {
				bestPriority = priority
				bestSource = src
			}
		}
	}

	return bestSource
}

func (d *Device) claim(hart int) plic.SourceID {
	src := d.best(hart)
	if src == 0 {
		return 0
	}
	clearBit(d.pending, src)
	setBit(d.inService[hart], src)
	return src
}

func (d *Device) complete(hart int, src plic.SourceID) {
	if !d.valid(src) {
		return
	}
	if !testBit(d.enable[hart], src) || !testBit(d.inService[hart], src) {
		return
	}
	clearBit(d.inService[hart], src)

	if d.servicing(src) {
		return
	}
	if testBit(d.held, src) || testBit(d.level, src) {
		clearBit(d.held, src)
		setBit(d.pending, src)
	}
}

// servicing reports whether any hart holds src in service.
func (d *Device) servicing(src plic.SourceID) bool {
	for h := range d.inService {
		if testBit(d.inService[h], src) {
			return true
		}
	}
	return false
}

// gateway latches an assertion of src, or holds it while src is in service.
func (d *Device) gateway(src plic.SourceID) {
	if d.servicing(src) {
		setBit(d.held, src)
		return
	}
	setBit(d.pending, src)
}

// SetIRQ drives the level of the interrupt line of src.
func (d *Device) SetIRQ(line uint32, high bool) {
	src := plic.SourceID(line)
	if !d.valid(src) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if high {
		rising := !testBit(d.level, src)
		setBit(d.level, src)
		if rising {
			d.gateway(src)
		}
	} else {
		clearBit(d.level, src)
	}
	d.update()
}

// Raise drives the line of src high.
func (d *Device) Raise(src plic.SourceID) { d.SetIRQ(uint32(src), true) }

// Lower drives the line of src low. A request already latched stays pending.
func (d *Device) Lower(src plic.SourceID) { d.SetIRQ(uint32(src), false) }

// Pulse signals a single edge on src.
func (d *Device) Pulse(src plic.SourceID) {
	if !d.valid(src) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.gateway(src)
	d.update()
}

// State reports the state of src as seen by hart.
func (d *Device) State(hart plic.HartID, src plic.SourceID) State {
	if !d.valid(src) || uint32(hart) >= d.layout.Harts {
		return Idle
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case testBit(d.inService[hart], src):
		return InService
	case testBit(d.pending, src):
		return Pending
	default:
		return Idle
	}
}

// ExternalPending reports whether hart has a claimable source.
func (d *Device) ExternalPending(hart plic.HartID) bool {
	if uint32(hart) >= d.layout.Harts {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.best(int(hart)) != 0
}

// update recomputes every hart's external interrupt line.
func (d *Device) update() {
	for h := range d.external {
		pending := d.best(h) != 0
		if pending == d.external[h] {
			continue
		}
		d.external[h] = pending
		if d.onExternal != nil {
			d.onExternal(plic.HartID(h), pending)
		}
	}
}

var _ plic.Registers = (*Device)(nil)
