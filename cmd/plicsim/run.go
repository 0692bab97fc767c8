package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/plic/internal/kernel"
	"github.com/tinyrange/plic/internal/trace"
)

func runCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	input := fs.String("input", "hello, plic\n", "bytes to feed into the UART receive FIFO")
	tracePath := fs.String("trace", "", "write a register trace to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := common.board()
	if err != nil {
		return err
	}
	log := common.logger()

	var echo bytes.Buffer
	cfg := kernel.Config{
		Board:  b,
		Output: &echo,
		Logger: log,
	}

	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer f.Close()

		w, err := trace.StartRecording(f, b.Layout())
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Error("close trace", "err", err)
			}
		}()
		cfg.TraceWriter = w
	}

	m, err := kernel.NewMachine(cfg)
	if err != nil {
		return err
	}
	if err := m.Boot(); err != nil {
		return err
	}

	if u := m.UART(); u != nil {
		u.EnqueueInput([]byte(*input))
	} else {
		log.Warn("board has no uart0 source; nothing to feed")
	}

	if err := drain(m); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "board %s: received %q, echoed %q\n", b.Name, m.Received(), echo.String())
	for _, h := range m.Harts() {
		st := h.Stats()
		fmt.Fprintf(stdout, "hart %d: traps=%d spurious=%d errors=%d\n", h.ID(), st.Traps, st.Spurious, st.Errors)
	}
	fmt.Fprintln(stdout)

	return writeStateTable(stdout, m, isTerminal(stdout))
}

// drain steps every hart until none of them takes a trap.
func drain(m *kernel.Machine) error {
	for {
		took := false
		for _, h := range m.Harts() {
			ok, err := h.Step()
			if err != nil {
				return fmt.Errorf("hart %d: %w", h.ID(), err)
			}
			took = took || ok
		}
		if !took {
			return nil
		}
	}
}
