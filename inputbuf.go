package taintcore

// ByteUpdate overlays a single byte of an InputBuffer at Offset with
// Value. A SearchTask's solution and a solver's scratch mutation are both
// expressed as a list of ByteUpdates rather than a full copy of the
// input, expressed as an update-chain overlay on top of a partially
// written array.
type ByteUpdate struct {
	Offset uint
	Value  byte
}

// InputBuffer is the concrete byte array backing one mutation round: the
// bytes the tracer actually read while producing the label graph. Offsets
// referenced by a Read or Load AstNode are always concrete integers
// bounded by the buffer's length, so this type carries no symbolic-index
// case.
type InputBuffer struct {
	base []byte
}

// NewInputBuffer wraps base. The caller retains ownership; InputBuffer
// never mutates it.
func NewInputBuffer(base []byte) *InputBuffer {
	return &InputBuffer{base: base}
}

// Len returns the number of addressable bytes.
func (b *InputBuffer) Len() uint {
	return uint(len(b.base))
}

// Peek returns the byte at offset, or 0 if offset is out of range.
func (b *InputBuffer) Peek(offset uint) byte {
	if offset >= uint(len(b.base)) {
		return 0
	}
	return b.base[offset]
}

// PeekWidth returns width bytes starting at offset, zero-padded if the
// read would run past the end of the buffer.
func (b *InputBuffer) PeekWidth(offset, width uint) []byte {
	out := make([]byte, width)
	for i := uint(0); i < width; i++ {
		out[i] = b.Peek(offset + i)
	}
	return out
}

// Materialize returns a copy of the buffer with updates applied in order,
// later entries for the same offset overriding earlier ones — a
// last-write-wins overlay walked from oldest to newest.
func (b *InputBuffer) Materialize(updates []ByteUpdate) []byte {
	out := make([]byte, len(b.base))
	copy(out, b.base)
	for _, u := range updates {
		if int(u.Offset) >= len(out) {
			grown := make([]byte, u.Offset+1)
			copy(grown, out)
			out = grown
		}
		out[u.Offset] = u.Value
	}
	return out
}
