package plic

import (
	"log/slog"
)

// Controller drives the controller context of a single hart. A hart owns its
// Controller; Claim and Complete never touch another hart's registers.
//
// The priority registers are shared by every hart. Callers must not
// configure the same source from two harts at once.
type Controller struct {
	regs   Registers
	layout Layout
	cpu    CPU
	hart   HartID
	log    *slog.Logger
}

// New returns the controller for the hart cpu runs on. The hart identity is
// read once, here.
func New(regs Registers, layout Layout, cpu CPU) *Controller {
	return &Controller{
		regs:   regs,
		layout: layout,
		cpu:    cpu,
		hart:   cpu.ID(),
		log:    slog.Default(),
	}
}

// SetLogger replaces the logger. A nil logger restores slog.Default.
func (c *Controller) SetLogger(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	c.log = log
}

func (c *Controller) Hart() HartID   { return c.hart }
func (c *Controller) Layout() Layout { return c.layout }

func (c *Controller) reg(addr uint64) Register {
	return Register{regs: c.regs, addr: addr}
}

// Configure routes src to this hart and unmasks machine external interrupts.
// The steps run in a fixed order: priority, enable bit, threshold, mie.MEIE,
// then mstatus.MIE. Global enable must be the last write so that no interrupt
// is taken against a half-configured context.
//
// Priority and threshold are written as given; values above 7 are the
// caller's problem. Calling Configure twice with the same arguments leaves
// the registers unchanged.
func (c *Controller) Configure(src SourceID, priority Priority, threshold Threshold) {
	c.SetPriority(src, priority)
	c.Enable(src)
	c.SetThreshold(threshold)
	c.EnableExternal()
	c.EnableGlobal()

	c.log.Debug("plic: configured source",
		"hart", c.hart, "source", src, "priority", priority, "threshold", threshold)
}

// SetPriority writes the controller-wide priority of src.
func (c *Controller) SetPriority(src SourceID, priority Priority) {
	c.reg(c.layout.Priority(src)).Write(uint32(priority))
}

// Priority reads back the priority of src.
func (c *Controller) Priority(src SourceID) Priority {
	return Priority(c.reg(c.layout.Priority(src)).Read())
}

// Enable sets the enable bit of src for this hart. Other sources sharing the
// enable word keep their bits.
func (c *Controller) Enable(src SourceID) {
	r := c.reg(c.layout.Enable(c.hart, src))
	r.Write(uint32(EnableBitmap(r.Read()).Set(src)))
}

// Disable clears the enable bit of src for this hart. Other sources sharing
// the enable word keep their bits.
func (c *Controller) Disable(src SourceID) {
	r := c.reg(c.layout.Enable(c.hart, src))
	r.Write(uint32(EnableBitmap(r.Read()).Clear(src)))
}

// Enabled reports whether src is enabled for this hart.
func (c *Controller) Enabled(src SourceID) bool {
	return EnableBitmap(c.reg(c.layout.Enable(c.hart, src)).Read()).Has(src)
}

// SetThreshold writes this hart's priority threshold.
func (c *Controller) SetThreshold(threshold Threshold) {
	c.reg(c.layout.Threshold(c.hart)).Write(uint32(threshold))
}

// Threshold reads back this hart's priority threshold.
func (c *Controller) Threshold() Threshold {
	return Threshold(c.reg(c.layout.Threshold(c.hart)).Read())
}

// EnableExternal sets mie.MEIE.
func (c *Controller) EnableExternal() {
	c.cpu.WriteMie(c.cpu.ReadMie() | MieMEIE)
}

// EnableGlobal sets mstatus.MIE.
func (c *Controller) EnableGlobal() {
	c.cpu.WriteMstatus(c.cpu.ReadMstatus() | MstatusMIE)
}

// DisableGlobal clears mstatus.MIE.
func (c *Controller) DisableGlobal() {
	c.cpu.WriteMstatus(c.cpu.ReadMstatus() &^ MstatusMIE)
}

// Claim asks the controller for the highest priority pending source that is
// enabled for this hart and above its threshold. It returns 0 when there is
// none.
//
// The read has side effects: the controller clears the pending bit of the
// returned source and holds it in service until Complete. Call Claim once per
// interrupt.
func (c *Controller) Claim() SourceID {
	return SourceID(c.reg(c.layout.Claim(c.hart)).Read())
}

// Complete tells the controller that src has been serviced. It is a single
// write to the completion register and is not checked in any way: an id that
// is not enabled for this hart is silently dropped by the controller, and an
// id that was never claimed is accepted. Pass back exactly what Claim
// returned.
func (c *Controller) Complete(src SourceID) {
	c.reg(c.layout.Complete(c.hart)).Write(uint32(src))
}
