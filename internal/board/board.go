// Package board loads the description of a RISC-V board's interrupt wiring:
// where the controller lives, which harts exist and which sources are routed
// to them.
package board

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/plic/internal/plic"
)

// SchemaVersion is the newest board schema this package understands.
const SchemaVersion = "v1.0.0"

var ErrInvalidBoard = errors.New("invalid board")

// Board describes one machine.
type Board struct {
	Schema  string   `yaml:"schema"`
	Name    string   `yaml:"name"`
	PLIC    PLIC     `yaml:"plic"`
	UART    uint64   `yaml:"uart,omitempty"`
	Harts   []Hart   `yaml:"harts"`
	Sources []Source `yaml:"sources"`
}

// PLIC is the controller layout.
type PLIC struct {
	Base          uint64 `yaml:"base"`
	PriorityBase  uint64 `yaml:"priorityBase"`
	PendingBase   uint64 `yaml:"pendingBase"`
	EnableBase    uint64 `yaml:"enableBase"`
	EnableStride  uint64 `yaml:"enableStride"`
	ContextBase   uint64 `yaml:"contextBase"`
	ContextStride uint64 `yaml:"contextStride"`
	Sources       uint32 `yaml:"sources"`
	Contexts      uint32 `yaml:"contexts"`
}

type Hart struct {
	ID        uint32 `yaml:"id"`
	Threshold uint32 `yaml:"threshold"`
}

// Source is an interrupt source routed to one or more harts.
type Source struct {
	Name     string   `yaml:"name"`
	ID       uint32   `yaml:"id"`
	Priority uint32   `yaml:"priority"`
	Harts    []uint32 `yaml:"harts,omitempty"`
}

// Default returns the QEMU virt board: UART0 on source 10 at priority 1,
// routed to hart 0 with threshold 0.
func Default() Board {
	l := plic.QEMUVirt
	return Board{
		Schema: SchemaVersion,
		Name:   "qemu-virt",
		PLIC: PLIC{
			Base:          l.Base,
			PriorityBase:  l.PriorityBase,
			PendingBase:   l.PendingBase,
			EnableBase:    l.EnableBase,
			EnableStride:  l.EnableStride,
			ContextBase:   l.ContextBase,
			ContextStride: l.ContextStride,
			Sources:       l.Sources,
			Contexts:      l.Harts,
		},
		UART:  0x1000_0000,
		Harts: []Hart{{ID: 0, Threshold: 0}},
		Sources: []Source{
			{Name: "uart0", ID: 10, Priority: 1, Harts: []uint32{0}},
		},
	}
}

// Layout converts the controller description to a plic.Layout.
func (b Board) Layout() plic.Layout {
	return plic.Layout{
		Base:          b.PLIC.Base,
		PriorityBase:  b.PLIC.PriorityBase,
		PendingBase:   b.PLIC.PendingBase,
		EnableBase:    b.PLIC.EnableBase,
		EnableStride:  b.PLIC.EnableStride,
		ContextBase:   b.PLIC.ContextBase,
		ContextStride: b.PLIC.ContextStride,
		Sources:       b.PLIC.Sources,
		Harts:         b.PLIC.Contexts,
	}
}

// Hart returns the description of hart id.
func (b Board) Hart(id uint32) (Hart, bool) {
	for _, h := range b.Harts {
		if h.ID == id {
			return h, true
		}
	}
	return Hart{}, false
}

// SourcesFor returns the sources routed to hart, in board order. A source
// without a hart list is routed to the first hart.
func (b Board) SourcesFor(hart uint32) []Source {
	var out []Source
	for _, s := range b.Sources {
		if len(s.Harts) == 0 {
			if len(b.Harts) > 0 && b.Harts[0].ID == hart {
				out = append(out, s)
			}
			continue
		}
		for _, h := range s.Harts {
			if h == hart {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Source looks up a source by name.
func (b Board) Source(name string) (Source, bool) {
	for _, s := range b.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Validate checks the board for values the controller cannot represent.
// Priorities and thresholds above 7 are rejected here even though the
// driver would write them as given.
func (b Board) Validate() error {
	if !semver.IsValid(b.Schema) {
		return fmt.Errorf("%w: schema %q is not a semantic version", ErrInvalidBoard, b.Schema)
	}
	if semver.Major(b.Schema) != semver.Major(SchemaVersion) {
		return fmt.Errorf("%w: unsupported schema %s", ErrInvalidBoard, b.Schema)
	}

	p := b.PLIC
	if p.Sources == 0 || p.Contexts == 0 {
		return fmt.Errorf("%w: plic needs at least one source and one context", ErrInvalidBoard)
	}
	if p.EnableStride < 4*uint64((p.Sources+31)/32) {
		return fmt.Errorf("%w: enable stride 0x%x too small for %d sources", ErrInvalidBoard, p.EnableStride, p.Sources)
	}
	if p.ContextStride < 8 {
		return fmt.Errorf("%w: context stride 0x%x too small", ErrInvalidBoard, p.ContextStride)
	}
	if !(p.PriorityBase < p.PendingBase && p.PendingBase < p.EnableBase && p.EnableBase < p.ContextBase) {
		return fmt.Errorf("%w: plic regions must be ordered priority < pending < enable < context", ErrInvalidBoard)
	}
	words := uint64((p.Sources + 31) / 32)
	if p.PendingBase-p.PriorityBase < 4*uint64(p.Sources) {
		return fmt.Errorf("%w: priority region too small for %d sources", ErrInvalidBoard, p.Sources)
	}
	if p.EnableBase-p.PendingBase < 4*words {
		return fmt.Errorf("%w: pending region too small for %d sources", ErrInvalidBoard, p.Sources)
	}
	if p.ContextBase-p.EnableBase < p.EnableStride*uint64(p.Contexts) {
		return fmt.Errorf("%w: enable region of %d contexts overlaps the context registers", ErrInvalidBoard, p.Contexts)
	}

	if len(b.Harts) == 0 {
		return fmt.Errorf("%w: no harts", ErrInvalidBoard)
	}
	seenHart := make(map[uint32]bool)
	for _, h := range b.Harts {
		if h.ID >= p.Contexts {
			return fmt.Errorf("%w: hart %d has no controller context", ErrInvalidBoard, h.ID)
		}
		if seenHart[h.ID] {
			return fmt.Errorf("%w: duplicate hart %d", ErrInvalidBoard, h.ID)
		}
		seenHart[h.ID] = true
		if h.Threshold > uint32(plic.ThresholdMax) {
			return fmt.Errorf("%w: hart %d threshold %d out of range", ErrInvalidBoard, h.ID, h.Threshold)
		}
	}

	seenSource := make(map[uint32]bool)
	for _, s := range b.Sources {
		if s.ID == 0 || s.ID >= p.Sources {
			return fmt.Errorf("%w: source %q id %d out of range", ErrInvalidBoard, s.Name, s.ID)
		}
		if seenSource[s.ID] {
			return fmt.Errorf("%w: duplicate source id %d", ErrInvalidBoard, s.ID)
		}
		seenSource[s.ID] = true
		if s.Priority > uint32(plic.PriorityMax) {
			return fmt.Errorf("%w: source %q priority %d out of range", ErrInvalidBoard, s.Name, s.Priority)
		}
		for _, h := range s.Harts {
			if !seenHart[h] {
				return fmt.Errorf("%w: source %q routed to unknown hart %d", ErrInvalidBoard, s.Name, h)
			}
		}
	}

	return nil
}

// Decode reads a YAML board description. Unknown fields are rejected.
func Decode(r io.Reader) (Board, error) {
	var b Board
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return Board{}, fmt.Errorf("parse board: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Board{}, err
	}
	return b, nil
}

// Load reads and validates a board file.
func Load(path string) (Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return Board{}, fmt.Errorf("open board: %w", err)
	}
	defer f.Close()

	b, err := Decode(f)
	if err != nil {
		return Board{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Write encodes b as YAML.
func Write(w io.Writer, b Board) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	return enc.Close()
}
