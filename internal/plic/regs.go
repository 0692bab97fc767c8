package plic

// Registers is a window of memory-mapped 32-bit registers. Every access is a
// single side-effecting load or store and must not be cached, merged or
// reordered by the implementation.
type Registers interface {
	Read32(addr uint64) uint32
	Write32(addr uint64, value uint32)
}

// Register is one 32-bit register at a fixed address.
type Register struct {
	regs Registers
	addr uint64
}

func (r Register) Read() uint32       { return r.regs.Read32(r.addr) }
func (r Register) Write(value uint32) { r.regs.Write32(r.addr, value) }
