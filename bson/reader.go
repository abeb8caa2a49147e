package bson

import "github.com/basinlabs/mongocore/rope"

// Document is a parsed view over a serialized BSON document: its bytes are
// held as a Rope and fields are decoded lazily, on demand, as Get/typed
// accessors are called. Document never copies the document's bytes; Get*
// accessors that return another Document or a []byte slice the owning Rope.
type Document struct {
	r rope.Rope
}

// NewDocument wraps a Rope that already holds a complete, length-prefixed,
// null-terminated BSON document (such as the output of Builder.Build).
func NewDocument(r rope.Rope) Document { return Document{r: r} }

// Raw returns the document's underlying Rope.
func (d Document) Raw() rope.Rope { return d.r }

// ReadDocument reads a length-prefixed document starting at the reader's
// current position, advances the reader past it, and returns a Document
// view over those bytes without copying them.
func ReadDocument(r *rope.Reader) (Document, error) {
	save := *r
	length, err := r.ReadI32LE()
	if err != nil {
		return Document{}, &TruncatedError{Context: "document length"}
	}
	if length < 5 {
		return Document{}, &LengthMismatchError{Declared: length, Actual: 0}
	}
	*r = save
	body, err := r.ReadBytes(int(length))
	if err != nil {
		return Document{}, &TruncatedError{Context: "document body"}
	}
	return Document{r: body}, nil
}

// Element is a single decoded (name, tag, payload) triple read from a
// Document in on-wire order. Payload is a Rope view over exactly the bytes
// that encode the value, with the tag and cstring name already consumed.
type Element struct {
	Name    string
	Tag     Type
	Payload rope.Rope
}

// Reader iterates the top-level fields of a Document in on-wire order.
type Reader struct {
	r   *rope.Reader
	end int // absolute position, within r, where the trailing 0x00 lives
}

// Reader returns a field iterator over d. d's own length prefix is consumed
// immediately so Next need only check for the trailing 0x00.
func (d Document) Reader() (*Reader, error) {
	r := d.r.Reader()
	length, err := r.ReadI32LE()
	if err != nil {
		return nil, &TruncatedError{Context: "document length"}
	}
	return &Reader{r: r, end: int(length) - 1}, nil
}

// Next returns the next field, or (Element{}, false, nil) when the document
// is exhausted. A non-nil error indicates malformed input.
func (dr *Reader) Next() (Element, bool, error) {
	if dr.r.Pos() >= dr.end {
		return Element{}, false, nil
	}
	tagByte, err := dr.r.ReadByte()
	if err != nil {
		return Element{}, false, &TruncatedError{Context: "element tag"}
	}
	if tagByte == 0x00 {
		return Element{}, false, nil
	}
	tag := Type(tagByte)
	name, err := dr.r.ReadCString()
	if err != nil {
		return Element{}, false, &TruncatedError{Context: "element field name"}
	}
	payload, err := readValuePayload(dr.r, tag)
	if err != nil {
		return Element{}, false, err
	}
	return Element{Name: name, Tag: tag, Payload: payload}, true, nil
}

// readValuePayload consumes exactly the bytes that encode a value of the
// given tag from r and returns them as a Rope view, without copying.
func readValuePayload(r *rope.Reader, tag Type) (rope.Rope, error) {
	start := r.Pos()
	switch tag {
	case TypeDouble, TypeDateTime, TypeTimestamp, TypeInt64:
		if err := r.Skip(8); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeInt32:
		if err := r.Skip(4); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeBoolean:
		if err := r.Skip(1); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeObjectID:
		if err := r.Skip(12); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeUndefined, TypeNull:
		// zero-width
	case TypeString, TypeJavaScript, TypeSymbol:
		n, err := r.ReadI32LE()
		if err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
		if n < 1 {
			return rope.Rope{}, &LengthMismatchError{Declared: n, Actual: 0}
		}
		if err := r.Skip(int(n)); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeEmbeddedDocument, TypeArray:
		n, err := r.ReadI32LE()
		if err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
		if n < 5 {
			return rope.Rope{}, &LengthMismatchError{Declared: n}
		}
		if err := r.Skip(int(n) - 4); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeBinary:
		n, err := r.ReadI32LE()
		if err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
		if err := r.Skip(1 + int(n)); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeRegex:
		if _, err := r.ReadCString(); err != nil {
			return rope.Rope{}, &TruncatedError{Context: "regex pattern"}
		}
		if _, err := r.ReadCString(); err != nil {
			return rope.Rope{}, &TruncatedError{Context: "regex options"}
		}
	case TypeDBPointer:
		n, err := r.ReadI32LE()
		if err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
		if err := r.Skip(int(n) + 12); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	case TypeCodeWithScope:
		n, err := r.ReadI32LE()
		if err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
		if n < 4 {
			return rope.Rope{}, &LengthMismatchError{Declared: n}
		}
		if err := r.Skip(int(n) - 4); err != nil {
			return rope.Rope{}, &TruncatedError{Context: tag.String()}
		}
	default:
		return rope.Rope{}, &BadTagError{Tag: byte(tag)}
	}
	end := r.Pos()
	return r.Consumed(start, end)
}
