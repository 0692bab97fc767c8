// Package hart models the machine-mode interrupt CSRs of a single RISC-V
// hart: mstatus, mie and mip.
package hart

import (
	"sync/atomic"

	"github.com/tinyrange/plic/internal/plic"
)

// mip bits
const (
	MipMTIP uint64 = 1 << 7  // machine timer interrupt pending
	MipMEIP uint64 = 1 << 11 // machine external interrupt pending
)

// Hart holds the CSRs the interrupt path reads and writes. Another hart or a
// device may set mip concurrently, so every field is atomic.
type Hart struct {
	id plic.HartID

	mstatus atomic.Uint64
	mie     atomic.Uint64
	mip     atomic.Uint64
}

// New returns a hart with mhartid set to id and every interrupt masked.
func New(id plic.HartID) *Hart {
	return &Hart{id: id}
}

// ID implements plic.CPU.
func (h *Hart) ID() plic.HartID { return h.id }

func (h *Hart) ReadMstatus() uint64       { return h.mstatus.Load() }
func (h *Hart) WriteMstatus(value uint64) { h.mstatus.Store(value) }
func (h *Hart) ReadMie() uint64           { return h.mie.Load() }
func (h *Hart) WriteMie(value uint64)     { h.mie.Store(value) }
func (h *Hart) ReadMip() uint64           { return h.mip.Load() }

// SetExternal drives mip.MEIP. The controller calls it when the hart's
// external interrupt line changes.
func (h *Hart) SetExternal(pending bool) {
	for {
		old := h.mip.Load()
		next := old &^ MipMEIP
		if pending {
			next |= MipMEIP
		}
		if h.mip.CompareAndSwap(old, next) {
			return
		}
	}
}

// ExternalPending reports whether a machine external interrupt would be taken
// now: mstatus.MIE, mie.MEIE and mip.MEIP are all set.
func (h *Hart) ExternalPending() bool {
	return h.mstatus.Load()&plic.MstatusMIE != 0 &&
		h.mie.Load()&plic.MieMEIE != 0 &&
		h.mip.Load()&MipMEIP != 0
}

var _ plic.CPU = (*Hart)(nil)
