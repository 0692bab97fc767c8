package plicdev

import (
	"fmt"
	"testing"

	"github.com/tinyrange/plic/internal/hart"
	"github.com/tinyrange/plic/internal/plic"
)

type testBoard struct {
	dev   *Device
	harts []*hart.Hart
	ctls  []*plic.Controller
}

func newTestBoard(t *testing.T, harts int) *testBoard {
	t.Helper()
	layout := plic.QEMUVirt
	b := &testBoard{dev: New(layout)}
	for i := 0; i < harts; i++ {
		cpu := hart.New(plic.HartID(i))
		b.harts = append(b.harts, cpu)
		b.ctls = append(b.ctls, plic.New(b.dev, layout, cpu))
	}
	b.dev.OnExternal(func(id plic.HartID, pending bool) {
		b.harts[id].SetExternal(pending)
	})
	return b
}

func TestClaimAboveThreshold(t *testing.T) {
	for p := plic.Priority(1); p <= plic.PriorityMax; p++ {
		for th := plic.Threshold(0); uint32(th) < uint32(p); th++ {
			t.Run(fmt.Sprintf("p%d_t%d", p, th), func(t *testing.T) {
				b := newTestBoard(t, 1)
				ctl := b.ctls[0]
				ctl.Configure(5, p, th)
				b.dev.Pulse(5)

				if got := ctl.Claim(); got != 5 {
					t.Fatalf("Claim() = %d, want 5", got)
				}
				if got := ctl.Claim(); got != 0 {
					t.Fatalf("second Claim() = %d, want 0", got)
				}
				if st := b.dev.State(0, 5); st != InService {
					t.Fatalf("state = %s, want in-service", st)
				}
			})
		}
	}
}

func TestSecondClaimReturnsNextSource(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(5, 6, 0)
	ctl.Configure(9, 2, 0)
	b.dev.Pulse(5)
	b.dev.Pulse(9)

	if got := ctl.Claim(); got != 5 {
		t.Fatalf("Claim() = %d, want 5", got)
	}
	if got := ctl.Claim(); got != 9 {
		t.Fatalf("second Claim() = %d, want 9", got)
	}
	if got := ctl.Claim(); got != 0 {
		t.Fatalf("third Claim() = %d, want 0", got)
	}
}

func TestThresholdMasks(t *testing.T) {
	for p := plic.Priority(1); p <= plic.PriorityMax; p++ {
		for th := plic.Threshold(p); th <= plic.ThresholdMax; th++ {
			b := newTestBoard(t, 1)
			ctl := b.ctls[0]
			ctl.Configure(5, p, th)
			b.dev.Pulse(5)

			if got := ctl.Claim(); got != 0 {
				t.Fatalf("p=%d t=%d: Claim() = %d, want 0", p, th, got)
			}
			if st := b.dev.State(0, 5); st != Pending {
				t.Fatalf("p=%d t=%d: state = %s, want pending", p, th, st)
			}
		}
	}
}

func TestEqualPriorityLowestIDFirst(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(7, 4, 0)
	ctl.Configure(3, 4, 0)
	b.dev.Pulse(7)
	b.dev.Pulse(3)

	if got := ctl.Claim(); got != 3 {
		t.Fatalf("Claim() = %d, want 3", got)
	}
	if got := ctl.Claim(); got != 7 {
		t.Fatalf("Claim() = %d, want 7", got)
	}
}

func TestHigherPriorityWins(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(3, 1, 0)
	ctl.Configure(40, 7, 0)
	b.dev.Pulse(3)
	b.dev.Pulse(40)

	if got := ctl.Claim(); got != 40 {
		t.Fatalf("Claim() = %d, want 40", got)
	}
}

func TestDisabledSourceUnclaimable(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, 7, 0)
	ctl.Disable(10)
	b.dev.Pulse(10)

	if got := ctl.Claim(); got != 0 {
		t.Fatalf("Claim() = %d, want 0", got)
	}

	ctl.Enable(10)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() after enable = %d, want 10", got)
	}
}

func TestZeroPriorityNeverClaimed(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, plic.PriorityDisabled, 0)
	b.dev.Pulse(10)

	if got := ctl.Claim(); got != 0 {
		t.Fatalf("Claim() = %d, want 0", got)
	}
	if b.harts[0].ExternalPending() {
		t.Fatalf("priority 0 source raised MEIP")
	}
}

func TestCompleteRearmsSource(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, 1, 0)

	b.dev.Pulse(10)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() = %d, want 10", got)
	}

	// Held by the gateway while in service.
	b.dev.Pulse(10)
	if got := ctl.Claim(); got != 0 {
		t.Fatalf("Claim() while in service = %d, want 0", got)
	}

	ctl.Complete(10)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() after complete = %d, want held 10", got)
	}
	ctl.Complete(10)

	if st := b.dev.State(0, 10); st != Idle {
		t.Fatalf("state = %s, want idle", st)
	}
	b.dev.Pulse(10)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() after new assertion = %d, want 10", got)
	}
}

func TestCompleteMismatchedIsIgnored(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, 1, 0)
	b.dev.Pulse(10)

	// 99 is not enabled for this hart.
	ctl.Complete(99)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() = %d, want 10", got)
	}

	ctl.Complete(99)
	ctl.Complete(0)
	if st := b.dev.State(0, 10); st != InService {
		t.Fatalf("state = %s, want in-service", st)
	}

	b.dev.Pulse(10)
	if got := ctl.Claim(); got != 0 {
		t.Fatalf("Claim() = %d, want 0 while 10 is still in service", got)
	}
}

func TestCompleteDisabledSourceIsIgnored(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, 1, 0)
	b.dev.Pulse(10)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() = %d, want 10", got)
	}

	ctl.Disable(10)
	ctl.Complete(10)
	if st := b.dev.State(0, 10); st != InService {
		t.Fatalf("state = %s, want in-service", st)
	}

	ctl.Enable(10)
	ctl.Complete(10)
	if st := b.dev.State(0, 10); st != Idle {
		t.Fatalf("state = %s, want idle", st)
	}
}

func TestCompleteFromOtherHartIsIgnored(t *testing.T) {
	b := newTestBoard(t, 2)
	b.ctls[0].Configure(10, 1, 0)
	b.ctls[1].Configure(10, 1, 0)
	b.dev.Pulse(10)

	if got := b.ctls[0].Claim(); got != 10 {
		t.Fatalf("hart 0 Claim() = %d, want 10", got)
	}
	if got := b.ctls[1].Claim(); got != 0 {
		t.Fatalf("hart 1 Claim() = %d, want 0", got)
	}

	b.ctls[1].Complete(10)
	if st := b.dev.State(0, 10); st != InService {
		t.Fatalf("hart 0 state = %s, want in-service", st)
	}

	b.ctls[0].Complete(10)
	if st := b.dev.State(0, 10); st != Idle {
		t.Fatalf("hart 0 state = %s, want idle", st)
	}
}

func TestLevelSourceRepends(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, 1, 0)

	b.dev.Raise(10)
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() = %d, want 10", got)
	}
	ctl.Complete(10)
	if st := b.dev.State(0, 10); st != Pending {
		t.Fatalf("state with line high = %s, want pending", st)
	}

	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() = %d, want 10", got)
	}
	b.dev.Lower(10)
	ctl.Complete(10)
	if st := b.dev.State(0, 10); st != Idle {
		t.Fatalf("state with line low = %s, want idle", st)
	}
}

func TestExternalLineFollowsClaimable(t *testing.T) {
	b := newTestBoard(t, 2)
	b.ctls[1].Configure(10, 1, 0)

	b.dev.Pulse(10)
	if !b.harts[1].ExternalPending() {
		t.Fatalf("hart 1 should see an external interrupt")
	}
	if b.harts[0].ExternalPending() {
		t.Fatalf("hart 0 has nothing enabled")
	}

	b.ctls[1].Claim()
	if b.harts[1].ExternalPending() || b.dev.ExternalPending(1) {
		t.Fatalf("MEIP still set after claim")
	}
}

func TestPriorityRegister(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]

	ctl.SetPriority(10, 0xff)
	if got := ctl.Priority(10); got != 7 {
		t.Fatalf("Priority(10) = %d, want 7", got)
	}

	ctl.SetPriority(0, 5)
	if got := ctl.Priority(0); got != 0 {
		t.Fatalf("Priority(0) = %d, want 0", got)
	}

	ctl.SetThreshold(9)
	if got := ctl.Threshold(); got != 1 {
		t.Fatalf("Threshold() = %d, want 1", got)
	}
}

func TestEndToEndUART(t *testing.T) {
	b := newTestBoard(t, 1)
	ctl := b.ctls[0]
	ctl.Configure(10, 1, 0)

	b.dev.Pulse(10)
	if !b.harts[0].ExternalPending() {
		t.Fatalf("no external interrupt pending")
	}
	if got := ctl.Claim(); got != 10 {
		t.Fatalf("Claim() = %d, want 10", got)
	}
	ctl.Complete(10)
	if got := ctl.Claim(); got != 0 {
		t.Fatalf("Claim() = %d, want 0", got)
	}
}

func TestOutOfRangeAccesses(t *testing.T) {
	dev := New(plic.QEMUVirt)

	if got := dev.Read32(0); got != 0 {
		t.Fatalf("read below base = %#x", got)
	}
	dev.Write32(plic.QEMUVirt.Base+plic.QEMUVirt.Size(), 1)
	dev.Write32(plic.QEMUVirt.Pending(10), 1<<10)
	if got := dev.Read32(plic.QEMUVirt.Pending(10)); got != 0 {
		t.Fatalf("pending is writable: %#x", got)
	}
}

func TestZeroStrideLayout(t *testing.T) {
	layouts := []plic.Layout{
		{},
		{Sources: 32, Harts: 2, PendingBase: 0x80, EnableBase: 0x100, ContextBase: 0x200},
	}
	for _, layout := range layouts {
		t.Run(fmt.Sprintf("%+v", layout), func(t *testing.T) {
			d := New(layout)
			for addr := layout.Base; addr < layout.Base+0x400; addr += 4 {
				d.Write32(addr, 0xffffffff)
				d.Read32(addr)
			}
			d.Raise(1)
			if d.ExternalPending(0) {
				t.Fatalf("source claimable without an enable register")
			}
		})
	}
}
