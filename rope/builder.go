package rope

import "math"

// minTailCap is the smallest capacity a freshly grown tail chunk is given,
// so that a Builder used for many small appends doesn't reallocate on every
// call.
const minTailCap = 64

// Builder accumulates bytes into a growable tail chunk and retains every
// chunk spliced in from another Rope verbatim, so AppendRope never copies.
type Builder struct {
	chunks [][]byte
	tail   []byte
	length int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Len returns the number of bytes appended so far.
func (b *Builder) Len() int { return b.length }

// Rope seals the Builder's accumulated bytes into an immutable Rope. The
// Builder may continue to be used after calling Rope; further appends will
// not retroactively mutate the returned value because Rope seals the tail
// first, so the next append starts a fresh backing array (see sealTail).
func (b *Builder) Rope() Rope {
	b.sealTail()
	chunks := make([][]byte, len(b.chunks))
	copy(chunks, b.chunks)
	return Rope{chunks: chunks, length: b.length}
}

// sealTail moves the current tail chunk into chunks so that a subsequent
// growTail call starts a fresh backing array instead of mutating bytes that
// may already be shared by a Rope returned from a prior call to Rope().
func (b *Builder) sealTail() {
	if len(b.tail) == 0 {
		return
	}
	b.chunks = append(b.chunks, b.tail)
	b.tail = nil
}

func (b *Builder) growTail(n int) []byte {
	if cap(b.tail)-len(b.tail) < n {
		newCap := len(b.tail) + n
		if newCap < minTailCap {
			newCap = minTailCap
		}
		grown := make([]byte, len(b.tail), newCap)
		copy(grown, b.tail)
		b.tail = grown
	}
	start := len(b.tail)
	b.tail = b.tail[:start+n]
	b.length += n
	return b.tail[start : start+n]
}

// AppendByte appends a single byte.
func (b *Builder) AppendByte(v byte) *Builder {
	dst := b.growTail(1)
	dst[0] = v
	return b
}

// AppendBytes appends raw bytes, copying them into the tail chunk.
func (b *Builder) AppendBytes(p []byte) *Builder {
	dst := b.growTail(len(p))
	copy(dst, p)
	return b
}

// AppendI32LE appends a little-endian int32.
func (b *Builder) AppendI32LE(v int32) *Builder {
	dst := b.growTail(4)
	u := uint32(v)
	dst[0], dst[1], dst[2], dst[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	return b
}

// AppendI64LE appends a little-endian int64.
func (b *Builder) AppendI64LE(v int64) *Builder {
	dst := b.growTail(8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		dst[i] = byte(u >> (8 * i))
	}
	return b
}

// AppendF64LE appends a little-endian IEEE-754 float64.
func (b *Builder) AppendF64LE(v float64) *Builder {
	return b.AppendI64LE(int64(math.Float64bits(v)))
}

// ErrNulByteInCString is returned by TryAppendCString when s contains an
// interior 0x00 byte, which would corrupt the cstring framing.
var ErrNulByteInCString = errAppend("rope: cstring must not contain a 0x00 byte")

type errAppend string

func (e errAppend) Error() string { return string(e) }

// TryAppendCString appends s followed by a 0x00 terminator, or returns
// ErrNulByteInCString without mutating the Builder if s contains an
// interior 0x00 byte.
func (b *Builder) TryAppendCString(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			return ErrNulByteInCString
		}
	}
	b.AppendBytes([]byte(s))
	b.AppendByte(0x00)
	return nil
}

// AppendUTF8String appends an int32 length (including the terminator),
// followed by the string bytes and a trailing 0x00, as required for BSON
// string-typed values.
func (b *Builder) AppendUTF8String(s string) *Builder {
	n := int64(len(s)) + 1
	if n > math.MaxInt32 {
		b.AppendI32LE(0)
		return b
	}
	b.AppendI32LE(int32(n))
	b.AppendBytes([]byte(s))
	b.AppendByte(0x00)
	return b
}

// AppendRope splices r into the Builder by retaining its chunks, performing
// no copy.
func (b *Builder) AppendRope(r Rope) *Builder {
	if r.length == 0 {
		return b
	}
	b.sealTail()
	b.chunks = append(b.chunks, r.chunks...)
	b.length += r.length
	return b
}

// ReserveI32 reserves 4 bytes for a length field to be patched later via
// PatchI32LE, and returns a Mark addressing the chunk that holds them (the
// bytes always start at offset 0 of that chunk). The reservation is always made in a fresh tail chunk
// (sealTail is called first) so that later appends, which may also grow the
// tail, can never reallocate the bytes this mark addresses out from under it.
func (b *Builder) ReserveI32() Mark {
	b.sealTail()
	b.growTail(4)
	chunkIdx := len(b.chunks)
	b.sealTail()
	return Mark{chunkIdx: chunkIdx, builder: b}
}

// Mark addresses 4 reserved bytes within a Builder's sealed chunks, so a
// document length can be written after its body has been appended.
type Mark struct {
	chunkIdx int
	builder  *Builder
}

// PatchI32LE writes v into the 4 bytes this Mark addresses.
func (m Mark) PatchI32LE(v int32) {
	dst := m.builder.chunks[m.chunkIdx]
	u := uint32(v)
	dst[0], dst[1], dst[2], dst[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
}
