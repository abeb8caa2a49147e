// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wiretest provides an in-process, net.Pipe-backed fake mongod for
// scripting OP_REPLY sequences in tests of the connection and cursor
// packages without a real server. The driver tests use its ReplyFrame
// helper with a TCP-backed fake of their own.
package wiretest

import (
	"net"
	"sync"

	"github.com/basinlabs/mongocore/rope"
	"github.com/basinlabs/mongocore/wire"
)

// Server is a scriptable fake mongod. Handlers are registered per request
// opCode; ServeOne decodes exactly one incoming frame, invokes the matching
// handler, and writes whatever frames the handler returns.
type Server struct {
	Client net.Conn // the end the connection package dials
	server net.Conn

	mu       sync.Mutex
	handlers map[wire.OpCode]HandlerFunc
	seen     []wire.Header
}

// HandlerFunc builds the response frame(s) for one request frame. reqID is
// the requestID of the incoming frame, to be used as responseTo.
type HandlerFunc func(reqID int32, body rope.Rope) []rope.Rope

// New returns a Server with its two net.Pipe ends already connected.
func New() *Server {
	client, server := net.Pipe()
	return &Server{
		Client:   client,
		server:   server,
		handlers: make(map[wire.OpCode]HandlerFunc),
	}
}

// Handle registers fn to answer every request with the given opCode.
func (s *Server) Handle(op wire.OpCode, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[op] = fn
}

// Seen returns the headers of every frame ServeOne/Serve has decoded so
// far, in arrival order.
func (s *Server) Seen() []wire.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Header, len(s.seen))
	copy(out, s.seen)
	return out
}

// ServeOne decodes a single incoming frame and dispatches it to the
// registered handler for its opCode, writing back every frame the handler
// returns. It returns the decoded header for assertions.
func (s *Server) ServeOne() (wire.Header, error) {
	h, body, err := wire.ReadFrame(s.server, 0)
	if err != nil {
		return wire.Header{}, err
	}
	s.mu.Lock()
	s.seen = append(s.seen, h)
	fn := s.handlers[h.OpCode]
	s.mu.Unlock()
	if fn == nil {
		return h, nil
	}
	for _, frame := range fn(h.RequestID, body) {
		if _, err := s.server.Write(frame.Bytes()); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Serve runs ServeOne in a loop until it returns an error (e.g. the client
// end has been closed), delivering each decoded header on headers if
// non-nil.
func (s *Server) Serve(headers chan<- wire.Header) {
	for {
		h, err := s.ServeOne()
		if err != nil {
			return
		}
		if headers != nil {
			headers <- h
		}
	}
}

// WriteFrame writes frame directly to the server side of the pipe, for
// tests that need to script replies (including out-of-order and unsolicited
// ones) outside of the Handle/ServeOne dispatch loop.
func (s *Server) WriteFrame(frame rope.Rope) error {
	_, err := s.server.Write(frame.Bytes())
	return err
}

// Close closes both ends of the pipe.
func (s *Server) Close() error {
	s.server.Close()
	return s.Client.Close()
}

// ReplyFrame builds a single OP_REPLY frame answering requestID with the
// given flags/cursorID/documents, ready to hand back from a HandlerFunc.
func ReplyFrame(requestID int32, flags int32, cursorID int64, startingFrom int32, docs ...rope.Rope) rope.Rope {
	b := rope.NewBuilder()
	mark := b.ReserveI32()
	start := 0 // frame always begins at offset 0 of a fresh builder
	b.AppendI32LE(0) // requestID of this reply frame itself; servers mint their own
	b.AppendI32LE(requestID)
	b.AppendI32LE(int32(wire.OpReply))
	b.AppendI32LE(flags)
	b.AppendI64LE(cursorID)
	b.AppendI32LE(startingFrom)
	b.AppendI32LE(int32(len(docs)))
	for _, d := range docs {
		b.AppendRope(d)
	}
	mark.PatchI32LE(int32(b.Len() - start))
	return b.Rope()
}
