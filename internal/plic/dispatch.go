package plic

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrSpurious is returned when a trap found nothing to claim.
	ErrSpurious = errors.New("plic: spurious external interrupt")
	// ErrNoHandler is returned when a claimed source has no handler.
	ErrNoHandler = errors.New("plic: no handler for source")
)

// Handler services one interrupt of a device.
type Handler func(src SourceID) error

// Claimer is the claim/complete half of a Controller.
type Claimer interface {
	Claim() SourceID
	Complete(src SourceID)
}

var _ Claimer = (*Controller)(nil)

// Dispatcher services machine external interrupts for one hart: claim,
// run the device handler, complete.
type Dispatcher struct {
	ctl Claimer
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[SourceID]Handler
}

func NewDispatcher(ctl Claimer, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		ctl:      ctl,
		log:      log,
		handlers: make(map[SourceID]Handler),
	}
}

// Register installs fn as the handler of src, replacing any previous one.
// A nil fn removes the handler.
func (d *Dispatcher) Register(src SourceID, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.handlers, src)
		return
	}
	d.handlers[src] = fn
}

// HandleExternal services a single external interrupt. It returns the
// claimed source, or ErrSpurious when there was nothing to claim.
//
// A claimed source is always completed, whether its handler returns, fails,
// panics or is missing. A source that is never completed stays masked for
// this hart forever.
func (d *Dispatcher) HandleExternal() (SourceID, error) {
	src := d.ctl.Claim()
	if src == 0 {
		d.log.Debug("plic: spurious external interrupt")
		return 0, ErrSpurious
	}

	return src, d.service(src)
}

func (d *Dispatcher) service(src SourceID) error {
	defer d.ctl.Complete(src)

	d.mu.RLock()
	fn, ok := d.handlers[src]
	d.mu.RUnlock()

	if !ok {
		d.log.Warn("plic: unhandled source", "source", src)
		return fmt.Errorf("%w %d", ErrNoHandler, src)
	}

	if err := fn(src); err != nil {
		return fmt.Errorf("plic: source %d: %w", src, err)
	}
	return nil
}
