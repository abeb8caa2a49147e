package bson

import (
	"strconv"

	"github.com/basinlabs/mongocore/rope"
)

// ArrayBuilder builds a BSON array, which is wire-identical to a document
// whose field names are the decimal string indices "0", "1", …, "N-1". It
// wraps a Builder and exposes Append<Kind> helpers that supply the index as
// the field name automatically.
type ArrayBuilder struct {
	doc *Builder
	n   int
}

// NewArrayBuilder returns an empty ArrayBuilder.
func NewArrayBuilder() *ArrayBuilder {
	return &ArrayBuilder{doc: NewBuilder()}
}

func (a *ArrayBuilder) key() string {
	k := strconv.Itoa(a.n)
	a.n++
	return k
}

// Err returns the first encoding error encountered, if any.
func (a *ArrayBuilder) Err() error { return a.doc.Err() }

func (a *ArrayBuilder) AppendDouble(v float64) *ArrayBuilder {
	a.doc.AppendDouble(a.key(), v)
	return a
}
func (a *ArrayBuilder) AppendString(v string) *ArrayBuilder {
	a.doc.AppendString(a.key(), v)
	return a
}
func (a *ArrayBuilder) AppendDocument(doc rope.Rope) *ArrayBuilder {
	a.doc.AppendDocument(a.key(), doc)
	return a
}
func (a *ArrayBuilder) AppendArray(arr rope.Rope) *ArrayBuilder {
	a.doc.AppendArray(a.key(), arr)
	return a
}
func (a *ArrayBuilder) AppendBinary(subtype byte, data []byte) *ArrayBuilder {
	a.doc.AppendBinary(a.key(), subtype, data)
	return a
}
func (a *ArrayBuilder) AppendObjectID(id ObjectID) *ArrayBuilder {
	a.doc.AppendObjectID(a.key(), id)
	return a
}
func (a *ArrayBuilder) AppendBoolean(v bool) *ArrayBuilder {
	a.doc.AppendBoolean(a.key(), v)
	return a
}
func (a *ArrayBuilder) AppendDateTime(ms int64) *ArrayBuilder {
	a.doc.AppendDateTime(a.key(), ms)
	return a
}
func (a *ArrayBuilder) AppendNull() *ArrayBuilder {
	a.doc.AppendNull(a.key())
	return a
}
func (a *ArrayBuilder) AppendInt32(v int32) *ArrayBuilder {
	a.doc.AppendInt32(a.key(), v)
	return a
}
func (a *ArrayBuilder) AppendInt64(v int64) *ArrayBuilder {
	a.doc.AppendInt64(a.key(), v)
	return a
}

// Build seals the array into a length-prefixed, null-terminated Rope — byte
// for byte the same shape as a Document.
func (a *ArrayBuilder) Build() (rope.Rope, error) {
	return a.doc.Build()
}
