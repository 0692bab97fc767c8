// Command plicsim boots a simulated RISC-V board and exercises its platform
// interrupt controller through the same driver a kernel would use.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/tinyrange/plic/internal/board"
)

const usage = `usage: plicsim <command> [flags]

commands:
  run    boot the board, feed the UART and service its interrupts
  soak   assert random sources on every hart and check the claim invariants
  dump   print a register trace written by "run -trace"
  probe  read the controller configuration of a real board through /dev/mem
  board  print the default board description
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCommand(args, os.Stdout)
	case "soak":
		err = soakCommand(args, os.Stdout)
	case "dump":
		err = dumpCommand(args, os.Stdout)
	case "probe":
		err = probeCommand(args, os.Stdout)
	case "board":
		err = board.Write(os.Stdout, board.Default())
	case "help", "-h", "-help", "--help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "plicsim: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are shared by every subcommand that boots a board.
type commonFlags struct {
	boardPath string
	verbose   bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.boardPath, "board", "", "board description (YAML); defaults to QEMU virt")
	fs.BoolVar(&c.verbose, "v", false, "enable debug logging")
}

func (c *commonFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (c *commonFlags) board() (board.Board, error) {
	if c.boardPath == "" {
		return board.Default(), nil
	}
	return board.Load(c.boardPath)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
