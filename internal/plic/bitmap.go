package plic

// EnableBitmap is one 32-bit word of a hart's enable bitmap.
type EnableBitmap uint32

// Word returns the index of the enable word that holds src.
func Word(src SourceID) uint32 { return uint32(src) / 32 }

// Bit returns the mask of src inside its enable word.
func Bit(src SourceID) uint32 { return 1 << (uint32(src) % 32) }

// Set returns b with the bit of src set and every other bit preserved.
func (b EnableBitmap) Set(src SourceID) EnableBitmap {
	return b | EnableBitmap(Bit(src))
}

// Clear returns b with the bit of src cleared and every other bit preserved.
func (b EnableBitmap) Clear(src SourceID) EnableBitmap {
	return b &^ EnableBitmap(Bit(src))
}

// Has reports whether the bit of src is set.
func (b EnableBitmap) Has(src SourceID) bool {
	return uint32(b)&Bit(src) != 0
}
