package trace

import (
	"fmt"

	"github.com/tinyrange/plic/internal/plic"
)

// Name returns a readable name for the register an event touched, such as
// "priority[10]", "enable[h0][0]" or "complete[h1]".
func Name(layout plic.Layout, ev Event) string {
	if ev.Addr < layout.Base || ev.Addr-layout.Base >= layout.Size() {
		return fmt.Sprintf("0x%x", ev.Addr)
	}
	off := ev.Addr - layout.Base

	switch {
	case off < layout.PendingBase:
		return fmt.Sprintf("priority[%d]", (off-layout.PriorityBase)/4)
	case off < layout.EnableBase:
		return fmt.Sprintf("pending[%d]", (off-layout.PendingBase)/4)
	case off < layout.ContextBase:
		if layout.EnableStride == 0 {
			break
		}
		rel := off - layout.EnableBase
		return fmt.Sprintf("enable[h%d][%d]", rel/layout.EnableStride, (rel%layout.EnableStride)/4)
	default:
		if layout.ContextStride == 0 {
			break
		}
		rel := off - layout.ContextBase
		hart := rel / layout.ContextStride
		switch rel % layout.ContextStride {
		case 0:
			return fmt.Sprintf("threshold[h%d]", hart)
		case 4:
			if ev.Op == OpWrite {
				return fmt.Sprintf("complete[h%d]", hart)
			}
			return fmt.Sprintf("claim[h%d]", hart)
		}
	}
	return fmt.Sprintf("0x%x", ev.Addr)
}
