// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wire implements the MongoDB wire-protocol frames: the shared
// 16-byte header, the six request op-code bodies, and the OP_REPLY decoder.
// Every Request writes directly into a rope.Builder; Reply is decoded
// in place over a rope.Rope, slicing out its documents rather than copying
// them.
package wire

import (
	"fmt"
	"sync/atomic"

	"github.com/basinlabs/mongocore/rope"
)

// OpCode identifies a MongoDB wire-protocol message type.
type OpCode int32

// Op-code constants, exactly as specified.
const (
	OpReply       OpCode = 1
	OpMsg         OpCode = 1000
	OpUpdate      OpCode = 2001
	OpInsert      OpCode = 2002
	opReserved    OpCode = 2003
	OpQuery       OpCode = 2004
	OpGetMore     OpCode = 2005
	OpDelete      OpCode = 2006
	OpKillCursors OpCode = 2007
)

// String implements fmt.Stringer.
func (oc OpCode) String() string {
	switch oc {
	case OpReply:
		return "OP_REPLY"
	case OpMsg:
		return "OP_MSG"
	case OpUpdate:
		return "OP_UPDATE"
	case OpInsert:
		return "OP_INSERT"
	case OpQuery:
		return "OP_QUERY"
	case OpGetMore:
		return "OP_GET_MORE"
	case OpDelete:
		return "OP_DELETE"
	case OpKillCursors:
		return "OP_KILL_CURSORS"
	default:
		return fmt.Sprintf("OP_CODE(%d)", int32(oc))
	}
}

// HeaderLen is the fixed size, in bytes, of every wire-protocol frame's header.
const HeaderLen = 16

// Header is the 16-byte preamble shared by every wire-protocol frame.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("Header{MessageLength: %d, RequestID: %d, ResponseTo: %d, OpCode: %v}",
		h.MessageLength, h.RequestID, h.ResponseTo, h.OpCode)
}

// beginFrame writes the header's requestID, responseTo and opCode fields
// into b after reserving the leading messageLength field, and returns both
// the Mark addressing that reservation and the byte offset the frame
// started at, so the caller can patch the total frame length once the body
// has been written.
func beginFrame(b *rope.Builder, requestID, responseTo int32, opCode OpCode) (rope.Mark, int) {
	start := b.Len()
	mark := b.ReserveI32()
	b.AppendI32LE(requestID)
	b.AppendI32LE(responseTo)
	b.AppendI32LE(int32(opCode))
	return mark, start
}

// DecodeHeader decodes a Header from the front of r without consuming
// beyond the 16 header bytes.
func DecodeHeader(r *rope.Reader) (Header, error) {
	length, err := r.ReadI32LE()
	if err != nil {
		return Header{}, ErrTruncatedHeader
	}
	reqID, err := r.ReadI32LE()
	if err != nil {
		return Header{}, ErrTruncatedHeader
	}
	respTo, err := r.ReadI32LE()
	if err != nil {
		return Header{}, ErrTruncatedHeader
	}
	op, err := r.ReadI32LE()
	if err != nil {
		return Header{}, ErrTruncatedHeader
	}
	return Header{MessageLength: length, RequestID: reqID, ResponseTo: respTo, OpCode: OpCode(op)}, nil
}

var globalRequestID int32

// NextRequestID returns the next value of the process-global, monotonically
// increasing requestId allocator, skipping zero on wrap so every allocated
// id is strictly positive.
func NextRequestID() int32 {
	for {
		old := atomic.LoadInt32(&globalRequestID)
		next := old + 1
		if next <= 0 {
			// wrapped past math.MaxInt32; restart at 1, skipping zero
			next = 1
		}
		if atomic.CompareAndSwapInt32(&globalRequestID, old, next) {
			return next
		}
	}
}

// Request is implemented by every outbound message variant.
type Request interface {
	// AppendWireMessage writes the complete frame (header + body) into b
	// and returns the requestID that was assigned to it.
	AppendWireMessage(b *rope.Builder) int32
}
