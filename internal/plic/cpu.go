package plic

// mstatus bits
const (
	MstatusMIE uint64 = 1 << 3 // machine global interrupt enable
)

// mie bits
const (
	MieMEIE uint64 = 1 << 11 // machine external interrupt enable
)

// CPU is the hart-local state the controller driver needs: the hart identity
// and the mstatus/mie control registers.
type CPU interface {
	ID() HartID

	ReadMstatus() uint64
	WriteMstatus(value uint64)

	ReadMie() uint64
	WriteMie(value uint64)
}
