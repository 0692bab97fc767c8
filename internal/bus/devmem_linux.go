//go:build linux

package bus

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is a plic.Registers window over physical memory mapped from
// /dev/mem. Each access is a single aligned 32-bit load or store.
type DevMem struct {
	base uint64
	mem  []byte
}

// OpenDevMem maps size bytes of physical memory starting at base. base must be
// page aligned.
func OpenDevMem(base, size uint64) (*DevMem, error) {
	if base%uint64(unix.Getpagesize()) != 0 {
		return nil, fmt.Errorf("devmem: base 0x%x is not page aligned", base)
	}

	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("devmem: open /dev/mem: %w", err)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, int64(base), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("devmem: mmap 0x%x+0x%x: %w", base, size, err)
	}

	return &DevMem{base: base, mem: mem}, nil
}

// word returns the mapped word at addr, or nil when addr is unaligned or
// outside the window.
func (d *DevMem) word(addr uint64) *uint32 {
	if addr < d.base || addr%4 != 0 || addr-d.base+4 > uint64(len(d.mem)) {
		return nil
	}
	off := addr - d.base
	return (*uint32)(unsafe.Pointer(&d.mem[off]))
}

// Read32 implements plic.Registers. Addresses outside the window read as 0.
func (d *DevMem) Read32(addr uint64) uint32 {
	p := d.word(addr)
	if p == nil {
		return 0
	}
	return atomic.LoadUint32(p)
}

// Write32 implements plic.Registers. Writes outside the window are dropped.
func (d *DevMem) Write32(addr uint64, value uint32) {
	if p := d.word(addr); p != nil {
		atomic.StoreUint32(p, value)
	}
}

// Close unmaps the window.
func (d *DevMem) Close() error {
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	return err
}
