// Package bitfield manipulates fields packed into 32-bit register words.
//
// Every partial register update must go through ReplaceBits: registers carry fields owned by
// the device, and writing back a derived whole word would clobber them.
package bitfield

// Field locates a value inside a word.
type Field struct {
	Offset uint
	Width  uint
	Value  uint32
}

// Mask returns a right-aligned mask of width bits.
func Mask(width uint) uint32 {
	if width >= 32 {
		return 0xFFFFFFFF
	}
	return 1<<width - 1
}

// Decode extracts the field at [offset, offset+width).
func Decode(word uint32, offset, width uint) uint32 {
	return (word >> offset) & Mask(width)
}

// ReplaceBits sets the field at [offset, offset+width) to value, truncated to width bits.
// Bits outside the field are preserved.
func ReplaceBits(word, value uint32, offset, width uint) uint32 {
	mask := Mask(width)
	return word&^(mask<<offset) | (value&mask)<<offset
}

// Encode packs fields into a zero word.
// Overlapping fields are applied in order, later fields win.
func Encode(fields ...Field) (word uint32) {
	for _, f := range fields {
		word = ReplaceBits(word, f.Value, f.Offset, f.Width)
	}
	return word
}

// Bit reports whether the single bit at offset is set.
func Bit(word uint32, offset uint) bool {
	return Decode(word, offset, 1) != 0
}
