package kernel

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/tinyrange/plic/internal/board"
	"github.com/tinyrange/plic/internal/hart"
	"github.com/tinyrange/plic/internal/plic"
)

// Stats counts what a hart's trap loop has seen.
type Stats struct {
	Traps    uint64 // external traps taken
	Spurious uint64 // traps that claimed nothing
	Errors   uint64 // handler failures and unhandled sources
}

// Hart is the interrupt side of one hart: its CSRs, its controller context
// and its trap dispatcher.
type Hart struct {
	cpu   *hart.Hart
	ctl   *plic.Controller
	disp  *plic.Dispatcher
	sched Scheduler
	log   *slog.Logger

	traps    atomic.Uint64
	spurious atomic.Uint64
	failures atomic.Uint64
}

// NewHart binds cpu to its controller context.
func NewHart(cpu *hart.Hart, regs plic.Registers, layout plic.Layout, sched Scheduler, log *slog.Logger) *Hart {
	if log == nil {
		log = slog.Default()
	}
	if sched == nil {
		sched = GoScheduler{}
	}
	log = log.With("hart", cpu.ID())

	ctl := plic.New(regs, layout, cpu)
	ctl.SetLogger(log)

	return &Hart{
		cpu:   cpu,
		ctl:   ctl,
		disp:  plic.NewDispatcher(ctl, log),
		sched: sched,
		log:   log,
	}
}

func (h *Hart) ID() plic.HartID              { return h.cpu.ID() }
func (h *Hart) CPU() *hart.Hart              { return h.cpu }
func (h *Hart) Controller() *plic.Controller { return h.ctl }
func (h *Hart) Dispatcher() *plic.Dispatcher { return h.disp }

// Boot configures every source the board routes to this hart, in board
// order. Global interrupts stay masked until the last controller write:
// priorities and enable bits first, then the threshold, then mie.MEIE and
// mstatus.MIE.
func (h *Hart) Boot(b board.Board) {
	desc, _ := b.Hart(uint32(h.ID()))
	threshold := plic.Threshold(desc.Threshold)

	h.ctl.DisableGlobal()

	sources := b.SourcesFor(uint32(h.ID()))
	for _, s := range sources {
		h.ctl.SetPriority(plic.SourceID(s.ID), plic.Priority(s.Priority))
		h.ctl.Enable(plic.SourceID(s.ID))
	}
	h.ctl.SetThreshold(threshold)

	if len(sources) == 0 {
		h.log.Info("kernel: hart has no sources routed")
		return
	}

	h.ctl.EnableExternal()
	h.ctl.EnableGlobal()
	h.log.Info("kernel: hart booted", "sources", len(sources), "threshold", threshold)
}

// Step takes at most one machine external trap. It reports whether a trap
// was taken.
func (h *Hart) Step() (bool, error) {
	if !h.cpu.ExternalPending() {
		return false, nil
	}
	h.traps.Add(1)

	_, err := h.disp.HandleExternal()
	switch {
	case err == nil:
	case errors.Is(err, plic.ErrSpurious):
		h.spurious.Add(1)
		return true, nil
	default:
		h.failures.Add(1)
	}
	return true, err
}

// Run services traps until ctx is done. Handler errors are logged and do not
// stop the loop.
func (h *Hart) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		took, err := h.Step()
		if err != nil {
			h.log.Warn("kernel: external interrupt", "err", err)
		}
		if !took {
			h.sched.Yield()
		}
	}
}

func (h *Hart) Stats() Stats {
	return Stats{
		Traps:    h.traps.Load(),
		Spurious: h.spurious.Load(),
		Errors:   h.failures.Load(),
	}
}
