// Package plic drives a RISC-V Platform Level Interrupt Controller.
//
// The package never touches memory directly. All register traffic goes
// through a Registers implementation, which may be a simulated controller
// or a real MMIO window.
package plic

// SourceID identifies an interrupt source. Source 0 is reserved and doubles
// as the "nothing pending" claim result.
type SourceID uint32

// HartID identifies a hart (hardware thread). Each hart maps to one
// machine-mode context of the controller.
type HartID uint32

// Priority is a source priority. Only bits [2:0] are meaningful:
// 0 never interrupts, 7 is the highest.
type Priority uint32

// Threshold masks every source whose priority is less than or equal to it.
type Threshold uint32

const (
	PriorityDisabled Priority  = 0
	PriorityMax      Priority  = 7
	ThresholdMax     Threshold = 7
)

// Layout describes where the controller registers live.
type Layout struct {
	Base uint64 // controller base address

	PriorityBase  uint64 // offset of the priority array
	PendingBase   uint64 // offset of the pending bit array
	EnableBase    uint64 // offset of the first context's enable words
	EnableStride  uint64 // distance between two contexts' enable words
	ContextBase   uint64 // offset of the first context's threshold register
	ContextStride uint64 // distance between two contexts' threshold registers

	Sources uint32 // number of sources, including reserved source 0
	Harts   uint32 // number of machine-mode contexts
}

// QEMUVirt is the controller layout of the QEMU virt machine with one
// machine-mode context per hart.
var QEMUVirt = Layout{
	Base:          0x0c00_0000,
	PriorityBase:  0x00_0000,
	PendingBase:   0x00_1000,
	EnableBase:    0x00_2000,
	EnableStride:  0x80,
	ContextBase:   0x20_0000,
	ContextStride: 0x1000,
	Sources:       1024,
	Harts:         8,
}

// Size returns the size of the register window.
func (l Layout) Size() uint64 {
	return l.ContextBase + l.ContextStride*uint64(l.Harts)
}

// Priority returns the address of the priority register of src.
func (l Layout) Priority(src SourceID) uint64 {
	return l.Base + l.PriorityBase + 4*uint64(src)
}

// Pending returns the address of the pending word holding src.
func (l Layout) Pending(src SourceID) uint64 {
	return l.Base + l.PendingBase + 4*uint64(src/32)
}

// Enable returns the address of the enable word holding src for hart.
func (l Layout) Enable(hart HartID, src SourceID) uint64 {
	return l.Base + l.EnableBase + l.EnableStride*uint64(hart) + 4*uint64(src/32)
}

// Threshold returns the address of the threshold register of hart.
func (l Layout) Threshold(hart HartID) uint64 {
	return l.Base + l.ContextBase + l.ContextStride*uint64(hart)
}

// Claim returns the address of the claim register of hart.
func (l Layout) Claim(hart HartID) uint64 {
	return l.Threshold(hart) + 4
}

// Complete returns the address of the completion register of hart. It
// shares its address with the claim register.
func (l Layout) Complete(hart HartID) uint64 {
	return l.Claim(hart)
}
