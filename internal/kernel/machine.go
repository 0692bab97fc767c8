// Package kernel boots the interrupt side of a simulated multi-hart RISC-V
// machine and runs each hart's external trap loop.
package kernel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/plic/internal/board"
	"github.com/tinyrange/plic/internal/bus"
	"github.com/tinyrange/plic/internal/chipset"
	"github.com/tinyrange/plic/internal/devices/plicdev"
	"github.com/tinyrange/plic/internal/devices/uart"
	"github.com/tinyrange/plic/internal/hart"
	"github.com/tinyrange/plic/internal/plic"
	"github.com/tinyrange/plic/internal/trace"
)

// UARTSource is the board source name of the console UART.
const UARTSource = "uart0"

// Config describes a Machine.
type Config struct {
	Board  board.Board
	Output io.Writer // UART transmit side
	Logger *slog.Logger

	Scheduler Scheduler

	// Optional register tracing of every hart's controller accesses.
	TraceLog    *trace.Log
	TraceWriter *trace.Writer
}

// Machine is a board with a simulated controller, a UART and one Hart per
// board hart.
type Machine struct {
	board  board.Board
	layout plic.Layout
	log    *slog.Logger

	bus   *bus.Bus
	plic  *plicdev.Device
	lines *chipset.LineSet
	uart  *uart.UART
	harts []*Hart

	mu       sync.Mutex
	received []byte
}

// NewMachine builds the machine described by cfg.Board.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Board.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Machine{
		board:  cfg.Board,
		layout: cfg.Board.Layout(),
		log:    log,
		bus:    bus.New(),
	}

	m.plic = plicdev.New(m.layout)
	m.lines = chipset.NewLineSet(m.plic)
	if err := m.bus.AddDevice(m.layout.Base, bus.NewWindow(m.layout.Base, m.layout.Size(), m.plic)); err != nil {
		return nil, fmt.Errorf("map plic: %w", err)
	}

	uartSrc, hasUART := cfg.Board.Source(UARTSource)
	if hasUART {
		m.uart = uart.New(cfg.Output, m.lines.AllocateLine(uartSrc.ID))
		if err := m.bus.AddDevice(cfg.Board.UART, m.uart); err != nil {
			return nil, fmt.Errorf("map uart: %w", err)
		}
	}

	var regs plic.Registers = m.bus.Registers(log)
	if cfg.TraceLog != nil || cfg.TraceWriter != nil {
		regs = trace.Wrap(regs, cfg.TraceLog, cfg.TraceWriter)
	}

	byID := make(map[plic.HartID]*hart.Hart)
	for _, desc := range cfg.Board.Harts {
		cpu := hart.New(plic.HartID(desc.ID))
		byID[cpu.ID()] = cpu
		h := NewHart(cpu, regs, m.layout, cfg.Scheduler, log)
		if hasUART {
			h.Dispatcher().Register(plic.SourceID(uartSrc.ID), m.serviceUART)
		}
		m.harts = append(m.harts, h)
	}

	m.plic.OnExternal(func(id plic.HartID, pending bool) {
		if cpu, ok := byID[id]; ok {
			cpu.SetExternal(pending)
		}
	})

	return m, nil
}

func (m *Machine) Board() board.Board      { return m.board }
func (m *Machine) Layout() plic.Layout     { return m.layout }
func (m *Machine) PLIC() *plicdev.Device   { return m.plic }
func (m *Machine) Lines() *chipset.LineSet { return m.lines }
func (m *Machine) Harts() []*Hart          { return m.harts }
func (m *Machine) Bus() *bus.Bus           { return m.bus }

// UART returns the console UART, or nil when the board has none.
func (m *Machine) UART() *uart.UART { return m.uart }

// Hart returns the hart with the given id.
func (m *Machine) Hart(id plic.HartID) (*Hart, bool) {
	for _, h := range m.harts {
		if h.ID() == id {
			return h, true
		}
	}
	return nil, false
}

// Boot initializes the devices and then configures every hart in board
// order. Harts are booted one after another so that each shared priority
// register has a single writer.
func (m *Machine) Boot() error {
	if m.uart != nil {
		if err := m.bus.Write8(m.board.UART+uart.RegIER, uart.IERReceivedData); err != nil {
			return fmt.Errorf("init uart: %w", err)
		}
	}
	for _, h := range m.harts {
		h.Boot(m.board)
	}
	return nil
}

// Run runs every hart's trap loop until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, h := range m.harts {
		g.Go(func() error {
			return h.Run(ctx)
		})
	}
	return g.Wait()
}

// Received returns every byte the UART handler has drained so far.
func (m *Machine) Received() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.received...)
}

// serviceUART drains the receive FIFO and echoes each byte back.
func (m *Machine) serviceUART(src plic.SourceID) error {
	base := m.board.UART
	for {
		lsr, err := m.bus.Read8(base + uart.RegLSR)
		if err != nil {
			return err
		}
		if lsr&uart.LSRDataReady == 0 {
			return nil
		}
		c, err := m.bus.Read8(base + uart.RegRBR)
		if err != nil {
			return err
		}

		m.mu.Lock()
		m.received = append(m.received, c)
		m.mu.Unlock()

		if err := m.bus.Write8(base+uart.RegTHR, c); err != nil {
			return err
		}
	}
}
