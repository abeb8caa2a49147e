package wire

import "github.com/basinlabs/mongocore/rope"

// Update flag bits.
const (
	UpdateUpsert      int32 = 1
	UpdateMultiUpdate int32 = 2
)

// UpdateMessage is the OP_UPDATE (2001) request body.
type UpdateMessage struct {
	FullCollectionName string
	Flags              int32
	Selector           rope.Rope
	Update             rope.Rope
}

// AppendWireMessage writes the header and body of m into b and returns the
// requestID assigned to the frame.
func (m UpdateMessage) AppendWireMessage(b *rope.Builder) int32 {
	reqID := NextRequestID()
	mark, start := beginFrame(b, reqID, 0, OpUpdate)
	b.AppendI32LE(0)
	_ = b.TryAppendCString(m.FullCollectionName)
	b.AppendI32LE(m.Flags)
	b.AppendRope(m.Selector)
	b.AppendRope(m.Update)
	mark.PatchI32LE(int32(b.Len() - start))
	return reqID
}

// Insert flag bits.
const InsertContinueOnError int32 = 1

// InsertMessage is the OP_INSERT (2002) request body.
type InsertMessage struct {
	Flags              int32
	FullCollectionName string
	Documents          []rope.Rope
}

func (m InsertMessage) AppendWireMessage(b *rope.Builder) int32 {
	reqID := NextRequestID()
	mark, start := beginFrame(b, reqID, 0, OpInsert)
	b.AppendI32LE(m.Flags)
	_ = b.TryAppendCString(m.FullCollectionName)
	for _, d := range m.Documents {
		b.AppendRope(d)
	}
	mark.PatchI32LE(int32(b.Len() - start))
	return reqID
}

// Query flag bits.
const (
	QueryTailableCursor  int32 = 2
	QuerySlaveOk         int32 = 4
	QueryNoCursorTimeout int32 = 16
	QueryAwaitData       int32 = 32
	QueryExhaust         int32 = 64
	QueryPartial         int32 = 128
)

// QueryMessage is the OP_QUERY (2004) request body. ReturnFieldsSelector is
// optional; a zero-length Rope omits it.
type QueryMessage struct {
	Flags                int32
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                rope.Rope
	ReturnFieldsSelector rope.Rope
}

func (m QueryMessage) AppendWireMessage(b *rope.Builder) int32 {
	reqID := NextRequestID()
	mark, start := beginFrame(b, reqID, 0, OpQuery)
	b.AppendI32LE(m.Flags)
	_ = b.TryAppendCString(m.FullCollectionName)
	b.AppendI32LE(m.NumberToSkip)
	b.AppendI32LE(m.NumberToReturn)
	b.AppendRope(m.Query)
	if m.ReturnFieldsSelector.Len() > 0 {
		b.AppendRope(m.ReturnFieldsSelector)
	}
	mark.PatchI32LE(int32(b.Len() - start))
	return reqID
}

// GetMoreMessage is the OP_GET_MORE (2005) request body.
type GetMoreMessage struct {
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

func (m GetMoreMessage) AppendWireMessage(b *rope.Builder) int32 {
	reqID := NextRequestID()
	mark, start := beginFrame(b, reqID, 0, OpGetMore)
	b.AppendI32LE(0)
	_ = b.TryAppendCString(m.FullCollectionName)
	b.AppendI32LE(m.NumberToReturn)
	b.AppendI64LE(m.CursorID)
	mark.PatchI32LE(int32(b.Len() - start))
	return reqID
}

// Delete flag bits.
const DeleteSingleRemove int32 = 1

// DeleteMessage is the OP_DELETE (2006) request body.
type DeleteMessage struct {
	FullCollectionName string
	Flags              int32
	Selector           rope.Rope
}

func (m DeleteMessage) AppendWireMessage(b *rope.Builder) int32 {
	reqID := NextRequestID()
	mark, start := beginFrame(b, reqID, 0, OpDelete)
	b.AppendI32LE(0)
	_ = b.TryAppendCString(m.FullCollectionName)
	b.AppendI32LE(m.Flags)
	b.AppendRope(m.Selector)
	mark.PatchI32LE(int32(b.Len() - start))
	return reqID
}

// KillCursorsMessage is the OP_KILL_CURSORS (2007) request body.
type KillCursorsMessage struct {
	CursorIDs []int64
}

func (m KillCursorsMessage) AppendWireMessage(b *rope.Builder) int32 {
	reqID := NextRequestID()
	mark, start := beginFrame(b, reqID, 0, OpKillCursors)
	b.AppendI32LE(0)
	b.AppendI32LE(int32(len(m.CursorIDs)))
	for _, id := range m.CursorIDs {
		b.AppendI64LE(id)
	}
	mark.PatchI32LE(int32(b.Len() - start))
	return reqID
}
