package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/plic/internal/bus"
	"github.com/tinyrange/plic/internal/hart"
	"github.com/tinyrange/plic/internal/plic"
)

// probeCommand reads back priority, enable and threshold registers of a real
// controller. It never reads the claim register, which would consume an
// interrupt.
func probeCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	hartID := fs.Uint("hart", 0, "hart context to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := common.board()
	if err != nil {
		return err
	}
	layout := b.Layout()
	if *hartID >= uint(layout.Harts) {
		return fmt.Errorf("probe: hart %d out of range, board %s has %d contexts", *hartID, b.Name, layout.Harts)
	}

	page := uint64(os.Getpagesize())
	size := (layout.Size() + page - 1) &^ (page - 1)
	mem, err := bus.OpenDevMem(layout.Base, size)
	if err != nil {
		return err
	}
	defer mem.Close()

	// The controller only needs the hart id here; no CSR is written.
	ctl := plic.New(mem, layout, hart.New(plic.HartID(*hartID)))

	fmt.Fprintf(stdout, "board %s hart %d threshold=%d\n", b.Name, ctl.Hart(), ctl.Threshold())
	for _, s := range b.Sources {
		src := plic.SourceID(s.ID)
		fmt.Fprintf(stdout, "%-10s id=%-4d priority=%d enabled=%t\n", s.Name, s.ID, ctl.Priority(src), ctl.Enabled(src))
	}
	return nil
}
