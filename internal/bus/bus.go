// Package bus decodes physical addresses to memory-mapped devices.
package bus

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/plic/internal/plic"
)

// Device represents a memory-mapped device
type Device interface {
	// Read reads from the device at the given offset
	Read(offset uint64, size int) (uint64, error)
	// Write writes to the device at the given offset
	Write(offset uint64, size int, value uint64) error
	// Size returns the size of the device's address space
	Size() uint64
}

// DeviceMapping maps a device to an address range
type DeviceMapping struct {
	Base   uint64
	Size   uint64
	Device Device
}

// Bus connects harts to devices. Mappings are fixed before the first access.
type Bus struct {
	Devices []DeviceMapping
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// AddDevice adds a device mapping to the bus
func (bus *Bus) AddDevice(base uint64, dev Device) error {
	size := dev.Size()
	for _, m := range bus.Devices {
		if base < m.Base+m.Size && m.Base < base+size {
			return fmt.Errorf("bus: device at 0x%x overlaps mapping at 0x%x", base, m.Base)
		}
	}
	bus.Devices = append(bus.Devices, DeviceMapping{
		Base:   base,
		Size:   size,
		Device: dev,
	})
	return nil
}

// findDevice finds a device at the given address
func (bus *Bus) findDevice(addr uint64) (Device, uint64, error) {
	for _, mapping := range bus.Devices {
		if addr >= mapping.Base && addr < mapping.Base+mapping.Size {
			return mapping.Device, addr - mapping.Base, nil
		}
	}

	return nil, 0, fmt.Errorf("no device at address 0x%x", addr)
}

// Read reads from the bus
func (bus *Bus) Read(addr uint64, size int) (uint64, error) {
	dev, offset, err := bus.findDevice(addr)
	if err != nil {
		return 0, err
	}
	return dev.Read(offset, size)
}

// Write writes to the bus
func (bus *Bus) Write(addr uint64, size int, value uint64) error {
	dev, offset, err := bus.findDevice(addr)
	if err != nil {
		return err
	}
	return dev.Write(offset, size, value)
}

// Read8 reads a byte from the bus
func (bus *Bus) Read8(addr uint64) (uint8, error) {
	val, err := bus.Read(addr, 1)
	return uint8(val), err
}

// Read32 reads a word from the bus
func (bus *Bus) Read32(addr uint64) (uint32, error) {
	val, err := bus.Read(addr, 4)
	return uint32(val), err
}

// Write8 writes a byte to the bus
func (bus *Bus) Write8(addr uint64, value uint8) error {
	return bus.Write(addr, 1, uint64(value))
}

// Write32 writes a word to the bus
func (bus *Bus) Write32(addr uint64, value uint32) error {
	return bus.Write(addr, 4, uint64(value))
}

// Registers adapts the bus to plic.Registers. Decode faults read as zero,
// drop the write and are logged.
func (bus *Bus) Registers(log *slog.Logger) plic.Registers {
	if log == nil {
		log = slog.Default()
	}
	return busRegisters{bus: bus, log: log}
}

type busRegisters struct {
	bus *Bus
	log *slog.Logger
}

func (r busRegisters) Read32(addr uint64) uint32 {
	val, err := r.bus.Read32(addr)
	if err != nil {
		r.log.Warn("bus: register read", "addr", fmt.Sprintf("0x%x", addr), "err", err)
		return 0
	}
	return val
}

func (r busRegisters) Write32(addr uint64, value uint32) {
	if err := r.bus.Write32(addr, value); err != nil {
		r.log.Warn("bus: register write", "addr", fmt.Sprintf("0x%x", addr), "err", err)
	}
}

// Window mounts a plic.Registers implementation that decodes absolute
// addresses as a bus Device covering [base, base+size).
type Window struct {
	base uint64
	size uint64
	regs plic.Registers
}

func NewWindow(base, size uint64, regs plic.Registers) *Window {
	return &Window{base: base, size: size, regs: regs}
}

// Size implements Device
func (w *Window) Size() uint64 { return w.size }

// Read implements Device
func (w *Window) Read(offset uint64, size int) (uint64, error) {
	if size != 4 {
		return 0, fmt.Errorf("invalid register read size %d at offset 0x%x", size, offset)
	}
	return uint64(w.regs.Read32(w.base + offset)), nil
}

// Write implements Device
func (w *Window) Write(offset uint64, size int, value uint64) error {
	if size != 4 {
		return fmt.Errorf("invalid register write size %d at offset 0x%x", size, offset)
	}
	w.regs.Write32(w.base+offset, uint32(value))
	return nil
}

var (
	_ Device         = (*Window)(nil)
	_ plic.Registers = busRegisters{}
)
