package bson

import "github.com/basinlabs/mongocore/rope"

// Value is a decoded (tag, payload) pair returned by Get. Payload retains
// the on-wire encoding of the value; Value has no decoding methods of its
// own, and the typed Get* accessors on Document interpret it instead.
type Value struct {
	Tag     Type
	Payload rope.Rope
}

// find scans d's fields in on-wire order and returns the first element
// named name. Duplicate names tolerate first-match-wins, per the data
// model's field-ordering invariant.
func (d Document) find(name string) (Element, bool, error) {
	r, err := d.Reader()
	if err != nil {
		return Element{}, false, err
	}
	for {
		elem, ok, err := r.Next()
		if err != nil {
			return Element{}, false, err
		}
		if !ok {
			return Element{}, false, nil
		}
		if elem.Name == name {
			return elem, true, nil
		}
	}
}

// Contains reports whether d has a field named name.
func (d Document) Contains(name string) bool {
	_, ok, err := d.find(name)
	return err == nil && ok
}

// Get returns the value of the field named name, or ok=false if absent.
func (d Document) Get(name string) (Value, bool, error) {
	elem, ok, err := d.find(name)
	if err != nil || !ok {
		return Value{}, false, err
	}
	return Value{Tag: elem.Tag, Payload: elem.Payload}, true, nil
}

func wrongType(name string, got, want Type) error {
	return &TypeMismatchError{Field: name, Want: want, Got: got}
}

// GetDouble returns the field's value as a float64; the field must be a
// 0x01 double.
func (d Document) GetDouble(name string) (float64, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &TypeMismatchError{Field: name, Want: TypeDouble}
	}
	if elem.Tag != TypeDouble {
		return 0, wrongType(name, elem.Tag, TypeDouble)
	}
	return elem.Payload.Reader().ReadF64LE()
}

// GetInt32 returns the field's value as an int32; the field must be a 0x10 int32.
func (d Document) GetInt32(name string) (int32, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &TypeMismatchError{Field: name, Want: TypeInt32}
	}
	if elem.Tag != TypeInt32 {
		return 0, wrongType(name, elem.Tag, TypeInt32)
	}
	return elem.Payload.Reader().ReadI32LE()
}

// GetInt64 returns the field's value as an int64; the field must be a 0x12 int64.
func (d Document) GetInt64(name string) (int64, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &TypeMismatchError{Field: name, Want: TypeInt64}
	}
	if elem.Tag != TypeInt64 {
		return 0, wrongType(name, elem.Tag, TypeInt64)
	}
	return elem.Payload.Reader().ReadI64LE()
}

// GetUTF8 returns the field's value as a string; the field must be a 0x02
// utf8-string.
func (d Document) GetUTF8(name string) (string, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &TypeMismatchError{Field: name, Want: TypeString}
	}
	if elem.Tag != TypeString {
		return "", wrongType(name, elem.Tag, TypeString)
	}
	b := elem.Payload.Bytes()
	if len(b) < 4 {
		return "", &TruncatedError{Context: "utf8-string"}
	}
	n := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	if int(n) < 1 || len(b) < int(4+n) {
		return "", &LengthMismatchError{Declared: n, Actual: len(b) - 4}
	}
	return string(b[4 : 4+n-1]), nil
}

// GetBool returns the field's value as a bool; the field must be a 0x08 boolean.
func (d Document) GetBool(name string) (bool, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &TypeMismatchError{Field: name, Want: TypeBoolean}
	}
	if elem.Tag != TypeBoolean {
		return false, wrongType(name, elem.Tag, TypeBoolean)
	}
	b := elem.Payload.Bytes()
	if len(b) < 1 {
		return false, &TruncatedError{Context: "boolean"}
	}
	return b[0] == 0x01, nil
}

// GetDateTimeMS returns the field's value as milliseconds since the Unix
// epoch; the field must be a 0x09 UTC-datetime.
func (d Document) GetDateTimeMS(name string) (int64, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &TypeMismatchError{Field: name, Want: TypeDateTime}
	}
	if elem.Tag != TypeDateTime {
		return 0, wrongType(name, elem.Tag, TypeDateTime)
	}
	return elem.Payload.Reader().ReadI64LE()
}

// GetObjectID returns the field's value as an ObjectID; the field must be a
// 0x07 objectID.
func (d Document) GetObjectID(name string) (ObjectID, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return ObjectID{}, err
	}
	if !ok {
		return ObjectID{}, &TypeMismatchError{Field: name, Want: TypeObjectID}
	}
	if elem.Tag != TypeObjectID {
		return ObjectID{}, wrongType(name, elem.Tag, TypeObjectID)
	}
	b := elem.Payload.Bytes()
	if len(b) < 12 {
		return ObjectID{}, &TruncatedError{Context: "objectID"}
	}
	var id ObjectID
	copy(id[:], b[:12])
	return id, nil
}

// GetBinary returns the field's subtype and payload; the field must be a
// 0x05 binary.
func (d Document) GetBinary(name string) (subtype byte, data []byte, err error) {
	elem, ok, ferr := d.find(name)
	if ferr != nil {
		return 0, nil, ferr
	}
	if !ok {
		return 0, nil, &TypeMismatchError{Field: name, Want: TypeBinary}
	}
	if elem.Tag != TypeBinary {
		return 0, nil, wrongType(name, elem.Tag, TypeBinary)
	}
	b := elem.Payload.Bytes()
	if len(b) < 5 {
		return 0, nil, &TruncatedError{Context: "binary"}
	}
	n := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	if len(b) < int(5+n) {
		return 0, nil, &LengthMismatchError{Declared: n, Actual: len(b) - 5}
	}
	return b[4], b[5 : 5+n], nil
}

// GetArray returns the field's value as a Document (array-shaped); the
// field must be a 0x04 array.
func (d Document) GetArray(name string) (Document, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, &TypeMismatchError{Field: name, Want: TypeArray}
	}
	if elem.Tag != TypeArray {
		return Document{}, wrongType(name, elem.Tag, TypeArray)
	}
	return Document{r: elem.Payload}, nil
}

// GetDocument returns the field's value as an embedded Document; the field
// must be a 0x03 embedded-document.
func (d Document) GetDocument(name string) (Document, error) {
	elem, ok, err := d.find(name)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, &TypeMismatchError{Field: name, Want: TypeEmbeddedDocument}
	}
	if elem.Tag != TypeEmbeddedDocument {
		return Document{}, wrongType(name, elem.Tag, TypeEmbeddedDocument)
	}
	return Document{r: elem.Payload}, nil
}
