//go:build !linux

package bus

import "errors"

// DevMem is only available on linux.
type DevMem struct{}

func OpenDevMem(base, size uint64) (*DevMem, error) {
	return nil, errors.New("devmem: /dev/mem is only supported on linux")
}

func (d *DevMem) Read32(addr uint64) uint32        { return 0 }
func (d *DevMem) Write32(addr uint64, value uint32) {}
func (d *DevMem) Close() error                      { return nil }
