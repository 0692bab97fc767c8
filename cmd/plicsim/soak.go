package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/plic/internal/board"
	"github.com/tinyrange/plic/internal/devices/plicdev"
	"github.com/tinyrange/plic/internal/kernel"
	"github.com/tinyrange/plic/internal/plic"
)

var errInvariant = errors.New("claim invariant violated")

type soakConfig struct {
	iterations int
	harts      int
	sources    int
	burst      int
	seed       uint64
}

func soakCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("soak", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	var cfg soakConfig
	fs.IntVar(&cfg.iterations, "n", 10000, "number of assertion rounds")
	fs.IntVar(&cfg.harts, "harts", 4, "number of harts")
	fs.IntVar(&cfg.sources, "sources", 48, "number of interrupt sources")
	fs.IntVar(&cfg.burst, "burst", 8, "maximum sources asserted per round")
	fs.Uint64Var(&cfg.seed, "seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if isTerminal(stdout) {
		bar = progressbar.Default(int64(cfg.iterations), "soak")
	} else {
		bar = progressbar.DefaultSilent(int64(cfg.iterations))
	}
	defer bar.Close()

	res, err := soak(context.Background(), cfg, common.logger(), func() { bar.Add(1) })
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "\n%d rounds: %d asserted, %d claimed, %d spurious, %d never routed\n",
		cfg.iterations, res.asserted, res.claimed, res.spurious, res.unrouted)
	return nil
}

type soakResult struct {
	asserted uint64
	claimed  uint64
	spurious uint64
	unrouted uint64
}

// soakBoard builds a random board: every source gets a random priority and
// is routed to a random subset of harts, every hart a random threshold.
func soakBoard(cfg soakConfig, rng *rand.Rand) board.Board {
	b := board.Default()
	b.Name = "soak"
	b.Harts = nil
	b.Sources = nil
	b.PLIC.Contexts = uint32(cfg.harts)

	for h := 0; h < cfg.harts; h++ {
		b.Harts = append(b.Harts, board.Hart{ID: uint32(h), Threshold: uint32(rng.IntN(3))})
	}
	for s := 1; s <= cfg.sources; s++ {
		src := board.Source{
			Name:     fmt.Sprintf("src%d", s),
			ID:       uint32(s),
			Priority: uint32(rng.IntN(int(plic.PriorityMax) + 1)),
		}
		for h := 0; h < cfg.harts; h++ {
			if rng.IntN(2) == 0 {
				src.Harts = append(src.Harts, uint32(h))
			}
		}
		if len(src.Harts) == 0 {
			src.Harts = []uint32{uint32(rng.IntN(cfg.harts))}
		}
		b.Sources = append(b.Sources, src)
	}
	return b
}

// soak asserts random bursts of sources and lets every hart drain them
// concurrently. Each claim is checked against the board: the source must be
// routed to the claiming hart, above its threshold and not already in
// service anywhere.
func soak(ctx context.Context, cfg soakConfig, log *slog.Logger, tick func()) (soakResult, error) {
	if cfg.harts <= 0 || cfg.sources <= 0 {
		return soakResult{}, fmt.Errorf("soak needs at least one hart and one source")
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	b := soakBoard(cfg, rng)

	m, err := kernel.NewMachine(kernel.Config{Board: b, Logger: log})
	if err != nil {
		return soakResult{}, err
	}
	if err := m.Boot(); err != nil {
		return soakResult{}, err
	}

	var (
		mu       sync.Mutex
		inFlight = make(map[plic.SourceID]plic.HartID)
		res      soakResult
	)

	claimable := func(h plic.HartID, s board.Source) bool {
		desc, _ := b.Hart(uint32(h))
		if s.Priority <= desc.Threshold {
			return false
		}
		for _, id := range s.Harts {
			if id == uint32(h) {
				return true
			}
		}
		return false
	}

	for _, h := range m.Harts() {
		id := h.ID()
		for _, s := range b.Sources {
			h.Dispatcher().Register(plic.SourceID(s.ID), func(src plic.SourceID) error {
				if !claimable(id, s) {
					return fmt.Errorf("%w: hart %d claimed %d (priority %d)", errInvariant, id, src, s.Priority)
				}
				mu.Lock()
				owner, busy := inFlight[src]
				if !busy {
					inFlight[src] = id
					res.claimed++
				}
				mu.Unlock()
				if busy {
					return fmt.Errorf("%w: hart %d claimed %d while hart %d holds it", errInvariant, id, src, owner)
				}

				mu.Lock()
				delete(inFlight, src)
				mu.Unlock()
				return nil
			})
		}
	}

	for i := 0; i < cfg.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		burst := 1 + rng.IntN(cfg.burst)
		for range burst {
			s := b.Sources[rng.IntN(len(b.Sources))]
			m.Lines().AllocateLine(s.ID).PulseInterrupt()
			res.asserted++
		}

		g, _ := errgroup.WithContext(ctx)
		for _, h := range m.Harts() {
			g.Go(func() error {
				for {
					took, err := h.Step()
					if err != nil {
						return err
					}
					if !took {
						return nil
					}
				}
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}

		tick()
	}

	for _, h := range m.Harts() {
		res.spurious += h.Stats().Spurious
		if h.CPU().ExternalPending() {
			return res, fmt.Errorf("%w: hart %d still has a claimable source after draining", errInvariant, h.ID())
		}
	}

	// Sources nobody can claim stay latched forever.
	for _, s := range b.Sources {
		routed := false
		for _, h := range m.Harts() {
			routed = routed || claimable(h.ID(), s)
		}
		if !routed {
			res.unrouted++
			continue
		}
		for _, h := range m.Harts() {
			if st := m.PLIC().State(h.ID(), plic.SourceID(s.ID)); st != plicdev.Idle && claimable(h.ID(), s) {
				return res, fmt.Errorf("%w: source %d left %s on hart %d", errInvariant, s.ID, st, h.ID())
			}
		}
	}

	return res, nil
}
