package chipset

import "sync"

// LineSet hands out interrupt lines and forwards their level changes to a
// sink. Edges are forwarded only when the level actually changes.
type LineSet struct {
	mu sync.Mutex

	sink InterruptSink

	lines map[uint32]*lineState
}

// NewLineSet builds a LineSet that forwards assertions to the provided sink.
func NewLineSet(sink InterruptSink) *LineSet {
	if sink == nil {
		sink = noopInterruptSink{}
	}
	return &LineSet{
		sink:  sink,
		lines: make(map[uint32]*lineState),
	}
}

// AllocateLine returns a LineInterrupt handle for the given line.
func (l *LineSet) AllocateLine(line uint32) LineInterrupt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.lines[line]; !ok {
		l.lines[line] = &lineState{}
	}
	return &lineHandle{owner: l, line: line}
}

// Level reports the last level driven on line.
func (l *LineSet) Level(line uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.lines[line]
	return state != nil && state.level
}

type lineState struct {
	level bool
}

type lineHandle struct {
	owner *LineSet
	line  uint32
}

func (h *lineHandle) SetLevel(high bool) {
	h.owner.setLevel(h.line, high)
}

func (h *lineHandle) PulseInterrupt() {
	h.owner.pulse(h.line)
}

func (l *LineSet) setLevel(line uint32, high bool) {
	l.mu.Lock()
	state := l.lines[line]
	if state == nil {
		state = &lineState{}
		l.lines[line] = state
	}
	changed := state.level != high
	state.level = high
	l.mu.Unlock()

	if changed {
		l.sink.SetIRQ(line, high)
	}
}

func (l *LineSet) pulse(line uint32) {
	l.mu.Lock()
	state := l.lines[line]
	high := state != nil && state.level
	l.mu.Unlock()

	// A pulse on a line that is already high is not an edge.
	if high {
		return
	}
	l.sink.SetIRQ(line, true)
	l.sink.SetIRQ(line, false)
}

type noopInterruptSink struct{}

func (noopInterruptSink) SetIRQ(uint32, bool) {}
