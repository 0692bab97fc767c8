package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/plic/internal/plic"
	"github.com/tinyrange/plic/internal/trace"
)

type registerCount struct {
	Name   string
	Reads  int
	Writes int
}

func dumpCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	sums := fs.Bool("sums", false, "print access counts per register instead of every access")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("dump: expected one trace file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	if !*sums {
		return trace.ReadAll(f, func(layout plic.Layout, ev trace.Event) error {
			_, err := fmt.Fprintf(stdout, "%-5s %-16s 0x%08x\n", ev.Op, trace.Name(layout, ev), ev.Value)
			return err
		})
	}

	counts := map[string]*registerCount{}
	var order []string
	if err := trace.ReadAll(f, func(layout plic.Layout, ev trace.Event) error {
		name := trace.Name(layout, ev)
		c, ok := counts[name]
		if !ok {
			order = append(order, name)
			c = &registerCount{Name: name}
			counts[name] = c
		}
		if ev.Op == trace.OpWrite {
			c.Writes++
		} else {
			c.Reads++
		}
		return nil
	}); err != nil {
		return err
	}

	for _, name := range order {
		c := counts[name]
		fmt.Fprintf(stdout, "%-16s reads=%-6d writes=%-6d\n", c.Name, c.Reads, c.Writes)
	}
	return nil
}
