// Package uart implements the subset of a 16550 UART that matters to the
// interrupt path: a receive FIFO that raises its interrupt line while data is
// waiting and received-data interrupts are enabled.
package uart

import (
	"io"
	"sync"

	"github.com/tinyrange/plic/internal/chipset"
)

// Size is the size of the UART register window.
const Size uint64 = 0x100

// Register offsets (16550 compatible)
const (
	RegRBR = 0 // Receive Buffer Register (read)
	RegTHR = 0 // Transmit Holding Register (write)
	RegIER = 1 // Interrupt Enable Register
	RegIIR = 2 // Interrupt Identification Register (read)
	RegFCR = 2 // FIFO Control Register (write)
	RegLCR = 3 // Line Control Register
	RegLSR = 5 // Line Status Register
	RegSCR = 7 // Scratch Register
)

// IER bits
const (
	IERReceivedData = 1 << 0
)

// IIR values
const (
	IIRNoInterrupt  = 0x01
	IIRReceivedData = 0x04
)

// LSR bits
const (
	LSRDataReady = 1 << 0
	LSRTHREmpty  = 1 << 5
	LSRTxEmpty   = 1 << 6
)

// UART is a receive-interrupt capable 16550 subset.
type UART struct {
	mu sync.Mutex

	out io.Writer
	irq chipset.LineInterrupt

	ier uint8
	lcr uint8
	scr uint8

	rx []byte
}

// New creates a UART that writes transmitted bytes to out and signals irq
// while received data is waiting.
func New(out io.Writer, irq chipset.LineInterrupt) *UART {
	if out == nil {
		out = io.Discard
	}
	if irq == nil {
		irq = chipset.LineInterruptDetached()
	}
	return &UART{out: out, irq: irq}
}

// Size implements bus.Device.
func (u *UART) Size() uint64 { return Size }

// Read implements bus.Device.
func (u *UART) Read(offset uint64, size int) (uint64, error) {
	if size != 1 {
		return 0, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case RegRBR:
		if len(u.rx) == 0 {
			return 0, nil
		}
		data := u.rx[0]
		u.rx = u.rx[1:]
		u.updateInterrupt()
		return uint64(data), nil
	case RegIER:
		return uint64(u.ier), nil
	case RegIIR:
		if u.interruptPending() {
			return IIRReceivedData, nil
		}
		return IIRNoInterrupt, nil
	case RegLCR:
		return uint64(u.lcr), nil
	case RegLSR:
		lsr := uint64(LSRTHREmpty | LSRTxEmpty)
		if len(u.rx) > 0 {
			lsr |= LSRDataReady
		}
		return lsr, nil
	case RegSCR:
		return uint64(u.scr), nil
	}
	return 0, nil
}

// Write implements bus.Device.
func (u *UART) Write(offset uint64, size int, value uint64) error {
	if size != 1 {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	data := uint8(value)
	switch offset {
	case RegTHR:
		if _, err := u.out.Write([]byte{data}); err != nil {
			return err
		}
	case RegIER:
		u.ier = data
		u.updateInterrupt()
	case RegFCR:
		// Bit 1 clears the receive FIFO.
		if data&0x02 != 0 {
			u.rx = nil
			u.updateInterrupt()
		}
	case RegLCR:
		u.lcr = data
	case RegSCR:
		u.scr = data
	}
	return nil
}

// EnqueueInput appends bytes to the receive FIFO.
func (u *UART) EnqueueInput(data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rx = append(u.rx, data...)
	u.updateInterrupt()
}

func (u *UART) interruptPending() bool {
	return u.ier&IERReceivedData != 0 && len(u.rx) > 0
}

func (u *UART) updateInterrupt() {
	u.irq.SetLevel(u.interruptPending())
}
