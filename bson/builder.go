package bson

import "github.com/basinlabs/mongocore/rope"

// Builder constructs a single BSON document by appending one tagged element
// at a time, then sealing the accumulated fields with Build into a
// length-prefixed, null-terminated Rope. Builder has no method for writing a
// bare value outside of a field context: per the data model, only Documents
// (and arrays, which are documents with decimal-string keys) are ever
// serialized at the top level.
type Builder struct {
	rb    *rope.Builder
	start int
	err   error
}

// NewBuilder returns a Builder ready to accept fields for a new document.
func NewBuilder() *Builder {
	b := &Builder{rb: rope.NewBuilder()}
	b.start = b.rb.Len()
	b.rb.AppendI32LE(0) // length placeholder, patched in Build
	return b
}

// Err returns the first encoding error encountered, if any. Once set, every
// further Append call is a no-op.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) header(t Type, name string) bool {
	if b.err != nil {
		return false
	}
	if err := validateFieldName(name); err != nil {
		b.fail(err)
		return false
	}
	b.rb.AppendByte(byte(t))
	_ = b.rb.TryAppendCString(name) // field name already validated above
	return true
}

func validateFieldName(name string) error {
	for i := 0; i < len(name); i++ {
		if name[i] == 0x00 {
			return &InvalidFieldNameError{Name: name}
		}
	}
	return nil
}

// AppendDouble appends a 0x01 double field.
func (b *Builder) AppendDouble(name string, v float64) *Builder {
	if b.header(TypeDouble, name) {
		b.rb.AppendF64LE(v)
	}
	return b
}

// AppendString appends a 0x02 utf8-string field.
func (b *Builder) AppendString(name, v string) *Builder {
	if !b.header(TypeString, name) {
		return b
	}
	if int64(len(v))+1 > maxInt32 {
		return b.fail(&ValueTooLargeError{Field: name, Len: len(v)})
	}
	b.rb.AppendUTF8String(v)
	return b
}

// AppendDocument appends a 0x03 embedded-document field from an
// already-built document Rope (e.g. the result of another Builder's Build).
func (b *Builder) AppendDocument(name string, doc rope.Rope) *Builder {
	if b.header(TypeEmbeddedDocument, name) {
		b.rb.AppendRope(doc)
	}
	return b
}

// AppendArray appends a 0x04 array field from an already-built array Rope
// (see ArrayBuilder).
func (b *Builder) AppendArray(name string, arr rope.Rope) *Builder {
	if b.header(TypeArray, name) {
		b.rb.AppendRope(arr)
	}
	return b
}

// AppendBinary appends a 0x05 binary field.
func (b *Builder) AppendBinary(name string, subtype byte, data []byte) *Builder {
	if !b.header(TypeBinary, name) {
		return b
	}
	b.rb.AppendI32LE(int32(len(data)))
	b.rb.AppendByte(subtype)
	b.rb.AppendBytes(data)
	return b
}

// AppendUndefined appends a 0x06 undefined field.
func (b *Builder) AppendUndefined(name string) *Builder {
	b.header(TypeUndefined, name)
	return b
}

// AppendObjectID appends a 0x07 objectID field.
func (b *Builder) AppendObjectID(name string, id ObjectID) *Builder {
	if b.header(TypeObjectID, name) {
		b.rb.AppendBytes(id[:])
	}
	return b
}

// AppendBoolean appends a 0x08 boolean field.
func (b *Builder) AppendBoolean(name string, v bool) *Builder {
	if !b.header(TypeBoolean, name) {
		return b
	}
	if v {
		b.rb.AppendByte(0x01)
	} else {
		b.rb.AppendByte(0x00)
	}
	return b
}

// AppendDateTime appends a 0x09 UTC-datetime field, ms since the Unix epoch.
func (b *Builder) AppendDateTime(name string, ms int64) *Builder {
	if b.header(TypeDateTime, name) {
		b.rb.AppendI64LE(ms)
	}
	return b
}

// AppendNull appends a 0x0A null field.
func (b *Builder) AppendNull(name string) *Builder {
	b.header(TypeNull, name)
	return b
}

// AppendRegex appends a 0x0B regex field. options must be a subset of
// {i,l,m,s,u,x} in ascending order.
func (b *Builder) AppendRegex(name, pattern, options string) *Builder {
	if !validateRegexOptions(options) {
		return b.fail(&InvalidRegexOptionsError{Options: options})
	}
	if !b.header(TypeRegex, name) {
		return b
	}
	if err := b.rb.TryAppendCString(pattern); err != nil {
		return b.fail(err)
	}
	if err := b.rb.TryAppendCString(options); err != nil {
		return b.fail(err)
	}
	return b
}

// AppendDBPointer appends a 0x0C dbpointer field.
func (b *Builder) AppendDBPointer(name, ns string, id ObjectID) *Builder {
	if !b.header(TypeDBPointer, name) {
		return b
	}
	b.rb.AppendUTF8String(ns)
	b.rb.AppendBytes(id[:])
	return b
}

// AppendJavaScript appends a 0x0D js-code field.
func (b *Builder) AppendJavaScript(name, code string) *Builder {
	if b.header(TypeJavaScript, name) {
		b.rb.AppendUTF8String(code)
	}
	return b
}

// AppendSymbol appends a 0x0E symbol field.
func (b *Builder) AppendSymbol(name, symbol string) *Builder {
	if b.header(TypeSymbol, name) {
		b.rb.AppendUTF8String(symbol)
	}
	return b
}

// AppendCodeWithScope appends a 0x0F scoped-js field.
func (b *Builder) AppendCodeWithScope(name, code string, scope rope.Rope) *Builder {
	if !b.header(TypeCodeWithScope, name) {
		return b
	}
	total := int32(4 + 4 + len(code) + 1 + scope.Len())
	b.rb.AppendI32LE(total)
	b.rb.AppendUTF8String(code)
	b.rb.AppendRope(scope)
	return b
}

// AppendInt32 appends a 0x10 int32 field.
func (b *Builder) AppendInt32(name string, v int32) *Builder {
	if b.header(TypeInt32, name) {
		b.rb.AppendI32LE(v)
	}
	return b
}

// AppendTimestamp appends a 0x11 timestamp field.
func (b *Builder) AppendTimestamp(name string, v int64) *Builder {
	if b.header(TypeTimestamp, name) {
		b.rb.AppendI64LE(v)
	}
	return b
}

// AppendInt64 appends a 0x12 int64 field.
func (b *Builder) AppendInt64(name string, v int64) *Builder {
	if b.header(TypeInt64, name) {
		b.rb.AppendI64LE(v)
	}
	return b
}

const maxInt32 = int64(1)<<31 - 1

// Build seals the document: the trailing 0x00 is appended and the leading
// length (measured including itself and the terminator) is patched in.
// Build may be called only once; it returns the accumulated error, if any,
// alongside the sealed Rope.
func (b *Builder) Build() (rope.Rope, error) {
	if b.err != nil {
		return rope.Rope{}, b.err
	}
	b.rb.AppendByte(0x00)
	r := b.rb.Rope()
	length := r.Len() - b.start
	patchLength(r, b.start, int32(length))
	return r, nil
}

// patchLength overwrites the 4 length bytes at byte offset `at` within r.
// The bytes were written by AppendI32LE(0) at Builder construction time and
// live entirely within the tail chunk that was current then; because
// rope.Builder never mutates a chunk once another chunk has been appended
// after it (see rope.Builder.sealTail), slicing and copying into that chunk
// here is safe even though r has since been handed out as an immutable Rope.
func patchLength(r rope.Rope, at int, v int32) {
	view := r.Slice(at, at+4)
	raw := view.Bytes()
	u := uint32(v)
	raw[0], raw[1], raw[2], raw[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
}
