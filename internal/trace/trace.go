// Package trace records controller register traffic.
//
// Registers wraps any plic.Registers and reports every access to an
// in-memory Log, a binary Writer, or both. The binary stream starts with a
// header and the JSON encoded controller layout so that a reader can name
// each register.
package trace

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tinyrange/plic/internal/plic"
)

const (
	Magic   uint32 = 0x52544c50 // "PLTR"
	Version uint32 = 1
)

var ErrBadMagic = errors.New("trace: invalid magic")

// Op is the kind of register access.
type Op uint32

const (
	OpRead Op = iota + 1
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("Op(%d)", uint32(o))
	}
}

// Event is one register access.
type Event struct {
	Op    Op
	Value uint32
	Addr  uint64
}

var eventSize = binary.Size(Event{})

type header struct {
	Magic        uint32
	Version      uint32
	LayoutLength uint32
}

// Log keeps events in memory.
type Log struct {
	mu     sync.Mutex
	events []Event
}

func (l *Log) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Events returns a copy of the recorded events.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Reset drops every recorded event.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Registers is a plic.Registers that reports every access.
type Registers struct {
	regs plic.Registers
	log  *Log
	w    *Writer
}

// Wrap returns regs with tracing. log and w may each be nil.
func Wrap(regs plic.Registers, log *Log, w *Writer) *Registers {
	return &Registers{regs: regs, log: log, w: w}
}

func (r *Registers) record(ev Event) {
	if r.log != nil {
		r.log.add(ev)
	}
	if r.w != nil {
		r.w.Record(ev)
	}
}

// Read32 implements plic.Registers.
func (r *Registers) Read32(addr uint64) uint32 {
	value := r.regs.Read32(addr)
	r.record(Event{Op: OpRead, Addr: addr, Value: value})
	return value
}

// Write32 implements plic.Registers.
func (r *Registers) Write32(addr uint64, value uint32) {
	r.regs.Write32(addr, value)
	r.record(Event{Op: OpWrite, Addr: addr, Value: value})
}

// Writer streams events to an io.Writer from a background goroutine.
type Writer struct {
	w        io.Writer
	events   chan Event
	complete chan error

	mu     sync.RWMutex
	closed bool
}

// StartRecording writes the stream header and starts the writer goroutine.
func StartRecording(w io.Writer, layout plic.Layout) (*Writer, error) {
	meta, err := json.Marshal(layout)
	if err != nil {
		return nil, fmt.Errorf("trace: marshal layout: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, header{
		Magic:        Magic,
		Version:      Version,
		LayoutLength: uint32(len(meta)),
	}); err != nil {
		return nil, fmt.Errorf("trace: write header: %w", err)
	}
	if _, err := w.Write(meta); err != nil {
		return nil, fmt.Errorf("trace: write layout: %w", err)
	}

	writer := &Writer{
		w:        w,
		events:   make(chan Event, 4096),
		complete: make(chan error, 1),
	}
	go writer.run()

	return writer, nil
}

func (w *Writer) run() {
	buf := make([]byte, 0, 4096)

	// write records to the buffer flushing to the writer when the buffer is full
	for ev := range w.events {
		if len(buf)+eventSize > cap(buf) {
			if _, err := w.w.Write(buf); err != nil {
				w.complete <- err
				for range w.events {
				}
				return
			}
			buf = buf[:0]
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(ev.Op))
		buf = binary.LittleEndian.AppendUint32(buf, ev.Value)
		buf = binary.LittleEndian.AppendUint64(buf, ev.Addr)
	}

	if len(buf) > 0 {
		if _, err := w.w.Write(buf); err != nil {
			w.complete <- err
			return
		}
	}

	w.complete <- nil
}

// Record queues ev. Events recorded after Close are dropped.
func (w *Writer) Record(ev Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	w.events <- ev
}

// Close flushes the queued events and stops the writer goroutine.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("trace: already closed")
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	if err := <-w.complete; err != nil {
		return fmt.Errorf("trace: write thread: %w", err)
	}
	return nil
}

// ReadAll decodes a stream written by a Writer and calls fn for each event.
func ReadAll(r io.Reader, fn func(layout plic.Layout, ev Event) error) error {
	buf := bufio.NewReaderSize(r, 4096)

	var hdr header
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("trace: read header: %w", err)
	}
	if hdr.Magic != Magic {
		return ErrBadMagic
	}
	if hdr.Version != Version {
		return fmt.Errorf("trace: unsupported version %d", hdr.Version)
	}

	var layout plic.Layout
	dec := json.NewDecoder(io.LimitReader(buf, int64(hdr.LayoutLength)))
	if err := dec.Decode(&layout); err != nil {
		return fmt.Errorf("trace: decode layout: %w", err)
	}

	for {
		var ev Event
		if err := binary.Read(buf, binary.LittleEndian, &ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("trace: read event: %w", err)
		}
		if err := fn(layout, ev); err != nil {
			return err
		}
	}
}
