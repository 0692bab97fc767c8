package uart

import (
	"bytes"
	"testing"

	"github.com/tinyrange/plic/internal/chipset"
)

func TestReceiveInterrupt(t *testing.T) {
	var level bool
	u := New(nil, chipset.LineInterruptFromFunc(func(high bool) { level = high }))

	u.EnqueueInput([]byte("ab"))
	if level {
		t.Fatalf("line raised with IER clear")
	}

	if err := u.Write(RegIER, 1, IERReceivedData); err != nil {
		t.Fatal(err)
	}
	if !level {
		t.Fatalf("line not raised with data waiting")
	}
	if iir, _ := u.Read(RegIIR, 1); iir != IIRReceivedData {
		t.Fatalf("IIR = %#x", iir)
	}

	for _, want := range []byte("ab") {
		lsr, _ := u.Read(RegLSR, 1)
		if lsr&LSRDataReady == 0 {
			t.Fatalf("LSR = %#x, want data ready", lsr)
		}
		c, _ := u.Read(RegRBR, 1)
		if byte(c) != want {
			t.Fatalf("RBR = %q, want %q", byte(c), want)
		}
	}
	if level {
		t.Fatalf("line still high with empty FIFO")
	}
	if iir, _ := u.Read(RegIIR, 1); iir != IIRNoInterrupt {
		t.Fatalf("IIR = %#x", iir)
	}
}

func TestTransmitAndFIFOClear(t *testing.T) {
	var out bytes.Buffer
	u := New(&out, nil)

	for _, c := range []byte("ok") {
		if err := u.Write(RegTHR, 1, uint64(c)); err != nil {
			t.Fatal(err)
		}
	}
	if out.String() != "ok" {
		t.Fatalf("output = %q", out.String())
	}

	u.EnqueueInput([]byte("xyz"))
	u.Write(RegFCR, 1, 0x03)
	if lsr, _ := u.Read(RegLSR, 1); lsr&LSRDataReady != 0 {
		t.Fatalf("FIFO not cleared")
	}
}
