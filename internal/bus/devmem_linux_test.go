//go:build linux

package bus

import "testing"

func TestDevMemBounds(t *testing.T) {
	d := &DevMem{base: 0x1000, mem: make([]byte, 16)}

	d.Write32(0x1004, 0xdeadbeef)
	if got := d.Read32(0x1004); got != 0xdeadbeef {
		t.Fatalf("Read32(0x1004) = %#x", got)
	}

	for _, addr := range []uint64{0x0ffc, 0x1010, 0x1002, 0x2000} {
		d.Write32(addr, 1)
		if got := d.Read32(addr); got != 0 {
			t.Fatalf("Read32(%#x) = %#x, want 0", addr, got)
		}
	}
	if got := d.Read32(0x100c); got != 0 {
		t.Fatalf("out of window write landed in the last word: %#x", got)
	}
}
