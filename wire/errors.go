package wire

import "fmt"

// ErrTruncatedHeader is returned when fewer than 16 bytes are available to
// decode a frame header.
var ErrTruncatedHeader = fmt.Errorf("wire: truncated frame header")

// FrameTooLargeError is returned when a frame's declared or actual
// messageLength exceeds the configured max_frame_bytes.
type FrameTooLargeError struct {
	Length  int32
	MaxSize int32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("wire: frame length %d exceeds max_frame_bytes %d", e.Length, e.MaxSize)
}

// ResponseToMismatchError is returned by a Reply decoder helper when a
// caller asserts an expected responseTo that does not match the frame.
type ResponseToMismatchError struct {
	Want, Got int32
}

func (e *ResponseToMismatchError) Error() string {
	return fmt.Sprintf("wire: responseTo %d does not match expected requestID %d", e.Got, e.Want)
}

// UnexpectedOpCodeError is returned when a frame's opCode is not the one the
// caller expected to decode.
type UnexpectedOpCodeError struct {
	Want, Got OpCode
}

func (e *UnexpectedOpCodeError) Error() string {
	return fmt.Sprintf("wire: expected opCode %v, got %v", e.Want, e.Got)
}

// TruncatedBodyError is returned when a frame body ends before a field
// declared by the op-code's layout has been fully read.
type TruncatedBodyError struct {
	OpCode  OpCode
	Context string
}

func (e *TruncatedBodyError) Error() string {
	return fmt.Sprintf("wire: truncated %v body while reading %s", e.OpCode, e.Context)
}
