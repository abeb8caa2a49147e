package wire

import (
	"io"

	"github.com/basinlabs/mongocore/rope"
)

// ReadFrame reads one complete length-prefixed wire frame from r: the
// 4-byte messageLength, then the remaining messageLength-4 bytes. It
// enforces maxFrameBytes before attempting to read the body, so a
// corrupted or hostile length field cannot force an unbounded allocation.
func ReadFrame(r io.Reader, maxFrameBytes int32) (Header, rope.Rope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, rope.Rope{}, err
	}
	length := int32(uint32(lenBuf[0]) | uint32(lenBuf[1])<<8 | uint32(lenBuf[2])<<16 | uint32(lenBuf[3])<<24)
	if length < HeaderLen {
		return Header{}, rope.Rope{}, &TruncatedBodyError{Context: "messageLength smaller than header"}
	}
	if maxFrameBytes > 0 && length > maxFrameBytes {
		return Header{}, rope.Rope{}, &FrameTooLargeError{Length: length, MaxSize: maxFrameBytes}
	}
	rest := make([]byte, length-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Header{}, rope.Rope{}, err
	}
	full := make([]byte, 0, length)
	full = append(full, lenBuf[:]...)
	full = append(full, rest...)
	frame := rope.NewBuilder()
	frame.AppendBytes(full)
	fr := frame.Rope()

	h, err := DecodeHeader(fr.Reader())
	if err != nil {
		return Header{}, rope.Rope{}, err
	}
	body := fr.Slice(HeaderLen, int(length))
	return h, body, nil
}
