package board

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/plic/internal/plic"
)

func TestDefaultBoard(t *testing.T) {
	b := Default()
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if b.Layout() != plic.QEMUVirt {
		t.Fatalf("Layout() = %+v, want QEMUVirt", b.Layout())
	}
	uart, ok := b.Source("uart0")
	if !ok || uart.ID != 10 || uart.Priority != 1 {
		t.Fatalf("uart0 = %+v, %t", uart, ok)
	}
	if got := b.SourcesFor(0); len(got) != 1 || got[0].Name != "uart0" {
		t.Fatalf("SourcesFor(0) = %+v", got)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")

	var buf bytes.Buffer
	if err := Write(&buf, Default()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Name != "qemu-virt" || len(b.Sources) != 1 || b.Layout() != plic.QEMUVirt {
		t.Fatalf("loaded %+v", b)
	}
}

const twoHarts = `
schema: v1.2.0
name: two-harts
plic:
  base: 0x0c000000
  priorityBase: 0x0
  pendingBase: 0x1000
  enableBase: 0x2000
  enableStride: 0x80
  contextBase: 0x200000
  contextStride: 0x1000
  sources: 64
  contexts: 2
harts:
  - id: 0
    threshold: 0
  - id: 1
    threshold: 2
sources:
  - name: uart0
    id: 10
    priority: 1
  - name: virtio0
    id: 33
    priority: 3
    harts: [0, 1]
`

func TestDecodeRouting(t *testing.T) {
	b, err := Decode(strings.NewReader(twoHarts))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got := b.SourcesFor(0); len(got) != 2 {
		t.Fatalf("SourcesFor(0) = %+v", got)
	}
	got := b.SourcesFor(1)
	if len(got) != 1 || got[0].Name != "virtio0" {
		t.Fatalf("SourcesFor(1) = %+v", got)
	}
	h, ok := b.Hart(1)
	if !ok || h.Threshold != 2 {
		t.Fatalf("Hart(1) = %+v, %t", h, ok)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
	}{
		{"schema major", [2]string{"schema: v1.2.0", "schema: v2.0.0"}},
		{"schema syntax", [2]string{"schema: v1.2.0", "schema: one"}},
		{"priority", [2]string{"priority: 3", "priority: 8"}},
		{"threshold", [2]string{"threshold: 2", "threshold: 9"}},
		{"source zero", [2]string{"id: 33", "id: 0"}},
		{"source range", [2]string{"id: 33", "id: 64"}},
		{"unknown hart", [2]string{"harts: [0, 1]", "harts: [0, 5]"}},
		{"hart context", [2]string{"contexts: 2", "contexts: 1"}},
		{"priority region", [2]string{"pendingBase: 0x1000", "pendingBase: 0x80"}},
		{"pending region", [2]string{"enableBase: 0x2000", "enableBase: 0x1004"}},
		{"enable region", [2]string{"contextBase: 0x200000", "contextBase: 0x2080"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(twoHarts, tt.replace[0], tt.replace[1], 1)
			_, err := Decode(strings.NewReader(doc))
			if !errors.Is(err, ErrInvalidBoard) {
				t.Fatalf("err = %v, want ErrInvalidBoard", err)
			}
		})
	}
}

func TestDecodeUnknownField(t *testing.T) {
	doc := strings.Replace(twoHarts, "name: two-harts", "name: two-harts\ncolour: red", 1)
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Fatalf("unknown field accepted")
	}
}
