package bson

import "fmt"

// InvalidFieldNameError is returned when a field name contains a 0x00 byte.
type InvalidFieldNameError struct {
	Name string
}

func (e *InvalidFieldNameError) Error() string {
	return fmt.Sprintf("bson: field name %q contains a 0x00 byte", e.Name)
}

// InvalidRegexOptionsError is returned when regex options are not a subset
// of {i,l,m,s,u,x} in ascending order.
type InvalidRegexOptionsError struct {
	Options string
}

func (e *InvalidRegexOptionsError) Error() string {
	return fmt.Sprintf("bson: invalid regex options %q", e.Options)
}

// ValueTooLargeError is returned when a utf8-string length does not fit in
// an int32.
type ValueTooLargeError struct {
	Field string
	Len   int
}

func (e *ValueTooLargeError) Error() string {
	return fmt.Sprintf("bson: value for field %q is too large to encode (%d bytes)", e.Field, e.Len)
}

// TruncatedError is returned by Reader methods when a document ends before a
// field's declared width has been fully read.
type TruncatedError struct {
	Context string
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("bson: truncated document while reading %s", e.Context)
}

// BadTagError is returned when an element tag byte is not one of the known
// BSON type tags.
type BadTagError struct {
	Tag byte
}

func (e *BadTagError) Error() string {
	return fmt.Sprintf("bson: unknown element tag %#x", e.Tag)
}

// TypeMismatchError is returned by a typed accessor when the stored tag does
// not match the requested type.
type TypeMismatchError struct {
	Field string
	Want  Type
	Got   Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("bson: field %q is %s, not %s", e.Field, e.Got, e.Want)
}

// LengthMismatchError is returned when a document or embedded value's
// declared length does not account for its actual encoded size.
type LengthMismatchError struct {
	Declared int32
	Actual   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("bson: declared length %d does not match actual length %d", e.Declared, e.Actual)
}

var validRegexOptions = "ilmsux"

// validateRegexOptions checks that opts is a subset of {i,l,m,s,u,x} listed
// in ascending order, per the regex option invariant in the data model.
func validateRegexOptions(opts string) bool {
	last := -1
	for i := 0; i < len(opts); i++ {
		idx := indexByte(validRegexOptions, opts[i])
		if idx < 0 || idx <= last {
			return false
		}
		last = idx
	}
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
