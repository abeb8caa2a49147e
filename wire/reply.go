package wire

import (
	"github.com/basinlabs/mongocore/bson"
	"github.com/basinlabs/mongocore/rope"
)

// Response flag bits, per responseFlags in OP_REPLY.
const (
	ReplyCursorNotFound   int32 = 1
	ReplyQueryFailure     int32 = 2
	ReplyShardConfigStale int32 = 4
	ReplyAwaitCapable     int32 = 8
)

// Reply is a decoded OP_REPLY body. Documents are not materialized eagerly;
// Documents returns a lazily-advancing iterator over the reply's own body
// Rope.
type Reply struct {
	ResponseFlags  int32
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	body           rope.Rope
	docsOffset     int
}

// ExpectReply decodes body as an OP_REPLY, requiring h's opCode to be
// OpReply. When wantRequestID is non-zero it also requires h's responseTo
// to match it, for callers that sent exactly one request and expect
// exactly one matching response rather than correlating through a table
// the way connection.Conn does.
func ExpectReply(h Header, body rope.Rope, wantRequestID int32) (Reply, error) {
	if h.OpCode != OpReply {
		return Reply{}, &UnexpectedOpCodeError{Want: OpReply, Got: h.OpCode}
	}
	if wantRequestID != 0 && h.ResponseTo != wantRequestID {
		return Reply{}, &ResponseToMismatchError{Want: wantRequestID, Got: h.ResponseTo}
	}
	return DecodeReply(body)
}

// DecodeReply parses an OP_REPLY body (the bytes immediately following the
// 16-byte frame header) without copying the document bytes.
func DecodeReply(body rope.Rope) (Reply, error) {
	r := body.Reader()
	flags, err := r.ReadI32LE()
	if err != nil {
		return Reply{}, &TruncatedBodyError{OpCode: OpReply, Context: "responseFlags"}
	}
	cursorID, err := r.ReadI64LE()
	if err != nil {
		return Reply{}, &TruncatedBodyError{OpCode: OpReply, Context: "cursorID"}
	}
	startingFrom, err := r.ReadI32LE()
	if err != nil {
		return Reply{}, &TruncatedBodyError{OpCode: OpReply, Context: "startingFrom"}
	}
	numberReturned, err := r.ReadI32LE()
	if err != nil {
		return Reply{}, &TruncatedBodyError{OpCode: OpReply, Context: "numberReturned"}
	}
	return Reply{
		ResponseFlags:  flags,
		CursorID:       cursorID,
		StartingFrom:   startingFrom,
		NumberReturned: numberReturned,
		body:           body,
		docsOffset:     r.Pos(),
	}, nil
}

// HasFlag reports whether bit is set in r's responseFlags.
func (rep Reply) HasFlag(bit int32) bool { return rep.ResponseFlags&bit != 0 }

// Documents returns a fresh iterator over the reply's NumberReturned
// documents, each sliced from the reply's body without copying.
func (rep Reply) Documents() *DocumentIter {
	r := rep.body.Reader()
	_ = r.Skip(rep.docsOffset)
	return &DocumentIter{r: r, remaining: int(rep.NumberReturned)}
}

// DocumentIter walks the document sequence of a Reply one document at a time.
type DocumentIter struct {
	r         *rope.Reader
	remaining int
}

// Next returns the next document, or ok=false once all NumberReturned
// documents have been consumed.
func (it *DocumentIter) Next() (bson.Document, bool, error) {
	if it.remaining == 0 {
		return bson.Document{}, false, nil
	}
	doc, err := bson.ReadDocument(it.r)
	if err != nil {
		return bson.Document{}, false, err
	}
	it.remaining--
	return doc, true, nil
}
