package bson_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/basinlabs/mongocore/bson"
)

// Exact encoding vectors. Byte counts here include the leading int32 length
// field itself, per the data model's stated invariant ("total length
// includes the leading int32 and trailing 0x00") and the standard BSON wire
// format; see DESIGN.md for why this resolves a discrepancy with the
// originating narrative description of these same vectors.

func TestBuilder_DoubleFieldVector(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendDouble("double", 42.0)
	r, err := b.Build()
	require.NoError(t, err)

	// 4 (length) + 1 (tag) + 7 ("double\0") + 8 (float64) + 1 (terminator)
	require.Equal(t, 21, r.Len())

	raw := r.Bytes()
	require.Equal(t, byte(0x01), raw[4])
	require.Equal(t, "double\x00", string(raw[5:12]))
	require.Equal(t, byte(0x00), raw[len(raw)-1])

	doc := bson.NewDocument(r)
	v, err := doc.GetDouble("double")
	require.NoError(t, err)
	require.Equal(t, 42.0, v)
}

func TestBuilder_StringFieldVector(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendString("string", "fourty-two")
	r, err := b.Build()
	require.NoError(t, err)

	// 4 (length) + 1 (tag) + 7 ("string\0") + (4 + 11) (string value) + 1 (terminator)
	require.Equal(t, 28, r.Len())

	doc := bson.NewDocument(r)
	v, err := doc.GetUTF8("string")
	require.NoError(t, err)
	require.Equal(t, "fourty-two", v)
}

func TestBuilder_BooleanDocumentVector(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendBoolean("true", true)
	b.AppendBoolean("false", false)
	r, err := b.Build()
	require.NoError(t, err)

	// 4 (length) + 1 (tag) + 5 ("true\0") + 1 (value) + 1 (tag) + 6 ("false\0") + 1 (value) + 1 (terminator)
	require.Equal(t, 20, r.Len())

	doc := bson.NewDocument(r)
	vt, err := doc.GetBool("true")
	require.NoError(t, err)
	require.True(t, vt)

	vf, err := doc.GetBool("false")
	require.NoError(t, err)
	require.False(t, vf)
}

func TestBuilder_RegexVector(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendRegex("regex", "pattern", "ilmsux")
	r, err := b.Build()
	require.NoError(t, err)

	// 4 (length) + 1 (tag) + 6 ("regex\0") + 8 ("pattern\0") + 7 ("ilmsux\0") + 1 (terminator)
	require.Equal(t, 27, r.Len())
}

func TestBuilder_InvalidFieldName(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendInt32("bad\x00name", 1)
	_, err := b.Build()
	require.Error(t, err)
	var fieldErr *bson.InvalidFieldNameError
	require.ErrorAs(t, err, &fieldErr)
}

func TestBuilder_InvalidRegexOptions(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendRegex("r", "p", "fubar")
	_, err := b.Build()
	require.Error(t, err)
	var optErr *bson.InvalidRegexOptionsError
	require.ErrorAs(t, err, &optErr)
}

func TestRoundTrip_AllScalarTypes(t *testing.T) {
	t.Parallel()

	id := bson.NewObjectID()

	b := bson.NewBuilder()
	b.AppendDouble("d", 3.25)
	b.AppendString("s", "hello")
	b.AppendBoolean("bt", true)
	b.AppendBoolean("bf", false)
	b.AppendInt32("i32", -7)
	b.AppendInt64("i64", 1<<40)
	b.AppendDateTime("dt", 1000)
	b.AppendObjectID("oid", id)
	b.AppendNull("n")
	b.AppendBinary("bin", 0x00, []byte{1, 2, 3, 4})
	r, err := b.Build()
	require.NoError(t, err)

	doc := bson.NewDocument(r)

	dv, err := doc.GetDouble("d")
	require.NoError(t, err)
	require.Equal(t, 3.25, dv)

	sv, err := doc.GetUTF8("s")
	require.NoError(t, err)
	require.Equal(t, "hello", sv)

	btv, err := doc.GetBool("bt")
	require.NoError(t, err)
	require.True(t, btv)

	bfv, err := doc.GetBool("bf")
	require.NoError(t, err)
	require.False(t, bfv)

	i32v, err := doc.GetInt32("i32")
	require.NoError(t, err)
	require.EqualValues(t, -7, i32v)

	i64v, err := doc.GetInt64("i64")
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, i64v)

	dtv, err := doc.GetDateTimeMS("dt")
	require.NoError(t, err)
	require.EqualValues(t, 1000, dtv)

	oidv, err := doc.GetObjectID("oid")
	require.NoError(t, err)
	require.True(t, cmp.Equal(id, oidv))

	require.True(t, doc.Contains("n"))
	require.False(t, doc.Contains("missing"))

	subtype, data, err := doc.GetBinary("bin")
	require.NoError(t, err)
	require.Equal(t, byte(0x00), subtype)
	require.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestRoundTrip_EmbeddedDocumentAndArray(t *testing.T) {
	t.Parallel()

	inner := bson.NewBuilder()
	inner.AppendInt32("x", 1)
	innerRope, err := inner.Build()
	require.NoError(t, err)

	arr := bson.NewArrayBuilder()
	arr.AppendInt32(10)
	arr.AppendInt32(20)
	arrRope, err := arr.Build()
	require.NoError(t, err)

	outer := bson.NewBuilder()
	outer.AppendDocument("sub", innerRope)
	outer.AppendArray("list", arrRope)
	r, err := outer.Build()
	require.NoError(t, err)

	doc := bson.NewDocument(r)
	sub, err := doc.GetDocument("sub")
	require.NoError(t, err)
	x, err := sub.GetInt32("x")
	require.NoError(t, err)
	require.EqualValues(t, 1, x)

	list, err := doc.GetArray("list")
	require.NoError(t, err)
	first, err := list.GetInt32("0")
	require.NoError(t, err)
	require.EqualValues(t, 10, first)
	second, err := list.GetInt32("1")
	require.NoError(t, err)
	require.EqualValues(t, 20, second)
}

func TestReader_FieldOrderAndDuplicateFirstMatchWins(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendInt32("k", 1)
	b.AppendInt32("k", 2)
	r, err := b.Build()
	require.NoError(t, err)

	doc := bson.NewDocument(r)
	reader, err := doc.Reader()
	require.NoError(t, err)

	elem, ok, err := reader.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k", elem.Name)

	v, err := doc.GetInt32("k")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestAccessor_TypeMismatch(t *testing.T) {
	t.Parallel()

	b := bson.NewBuilder()
	b.AppendInt32("n", 5)
	r, err := b.Build()
	require.NoError(t, err)

	doc := bson.NewDocument(r)
	_, err = doc.GetUTF8("n")
	require.Error(t, err)
	var mismatch *bson.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}
