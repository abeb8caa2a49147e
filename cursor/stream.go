// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package cursor implements the demand-pull stream of documents backing a
// QUERY whose Reply carries a live cursorID: GET_MORE is issued only when
// the local buffer empties, and KILL_CURSORS is queued on early abandonment.
package cursor

import (
	"context"
	"sync"
	"time"

	"github.com/basinlabs/mongocore/bson"
	"github.com/basinlabs/mongocore/connection"
	"github.com/basinlabs/mongocore/logctx"
	"github.com/basinlabs/mongocore/mongoerr"
	"github.com/basinlabs/mongocore/wire"
)

// Stream is the (fullCollectionName, cursorID, buffered documents) triple
// described by the data model. It is not safe for concurrent use: it is a
// pull-based sequence meant for one consuming goroutine at a time.
type Stream struct {
	fullCollectionName string
	batchSize          int32
	requestTimeout     time.Duration
	conn               *connection.Conn
	log                logctx.Logger

	release     func()
	releaseOnce sync.Once

	cursorID int64
	buffered []bson.Document
	pos      int

	err error
}

// New builds a Stream from a QUERY's initial Reply. It terminates
// immediately with CursorInvalid on a CursorNotFound flag, or with
// ServerError on a QueryFailure flag. requestTimeout bounds every GET_MORE
// and KILL_CURSORS the Stream issues on its own, independent of the ctx a
// caller passes to HasNext/Next/Close; 0 disables it. release, if non-nil,
// is invoked exactly once: on a CursorNotFound or QueryFailure reply, as
// soon as cursorID reaches 0, or from Close. A failed GET_MORE send does
// not invoke it, and when the initial Reply's documents cannot be decoded
// New returns a nil Stream without invoking it. The caller keeps owning
// conn until then — GET_MORE and KILL_CURSORS must
// reach the same Connection that opened the cursor.
func New(fullCollectionName string, initial wire.Reply, conn *connection.Conn, batchSize int32, requestTimeout time.Duration, release func(), log logctx.Logger) (*Stream, error) {
	s := &Stream{
		fullCollectionName: fullCollectionName,
		batchSize:          batchSize,
		requestTimeout:     requestTimeout,
		conn:               conn,
		release:            release,
		log:                log,
	}
	if initial.HasFlag(wire.ReplyCursorNotFound) {
		s.err = mongoerr.CursorInvalid()
		s.releaseConn()
		return s, s.err
	}
	docs, err := drain(initial)
	if err != nil {
		return nil, err
	}
	if initial.HasFlag(wire.ReplyQueryFailure) {
		var failDoc bson.Document
		if len(docs) > 0 {
			failDoc = docs[0]
		}
		s.err = mongoerr.ServerError(failDoc)
		s.releaseConn()
		return s, s.err
	}
	s.buffered = docs
	s.cursorID = initial.CursorID
	if s.cursorID == 0 {
		s.releaseConn()
	}
	return s, nil
}

// releaseConn hands conn back to whatever owns it (a supervisor.Supervisor,
// in production), exactly once, once the Stream can no longer issue
// GET_MORE or KILL_CURSORS on it.
func (s *Stream) releaseConn() {
	if s.release == nil {
		return
	}
	s.releaseOnce.Do(s.release)
}

// withRequestTimeout derives a child context bounded by the Stream's
// requestTimeout, if one is configured.
func (s *Stream) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

func drain(reply wire.Reply) ([]bson.Document, error) {
	it := reply.Documents()
	var docs []bson.Document
	for {
		doc, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return docs, nil
		}
		docs = append(docs, doc)
	}
}

// HasNext reports whether Next would return a document without error. It
// may issue a GET_MORE when the local buffer is empty and the cursor is
// still live.
func (s *Stream) HasNext(ctx context.Context) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.pos < len(s.buffered) {
		return true, nil
	}
	if s.cursorID == 0 {
		return false, nil
	}
	if err := s.fetchMore(ctx); err != nil {
		s.err = err
		return false, err
	}
	return s.pos < len(s.buffered), nil
}

// Next returns the next buffered document, fetching a new batch via
// GET_MORE first if necessary. Calling Next after the stream is exhausted
// returns CursorInvalid.
func (s *Stream) Next(ctx context.Context) (bson.Document, error) {
	ok, err := s.HasNext(ctx)
	if err != nil {
		return bson.Document{}, err
	}
	if !ok {
		return bson.Document{}, mongoerr.CursorInvalid()
	}
	doc := s.buffered[s.pos]
	s.pos++
	return doc, nil
}

func (s *Stream) fetchMore(ctx context.Context) error {
	s.buffered = nil
	s.pos = 0
	req := wire.GetMoreMessage{
		FullCollectionName: s.fullCollectionName,
		NumberToReturn:     s.batchSize,
		CursorID:           s.cursorID,
	}
	reqCtx, cancel := s.withRequestTimeout(ctx)
	defer cancel()
	reply, err := s.conn.Send(reqCtx, req)
	if err != nil {
		return err
	}
	if reply.HasFlag(wire.ReplyCursorNotFound) {
		s.cursorID = 0
		s.releaseConn()
		return mongoerr.CursorInvalid()
	}
	docs, err := drain(reply)
	if err != nil {
		return err
	}
	if reply.HasFlag(wire.ReplyQueryFailure) {
		s.cursorID = 0
		s.releaseConn()
		var failDoc bson.Document
		if len(docs) > 0 {
			failDoc = docs[0]
		}
		return mongoerr.ServerError(failDoc)
	}
	s.buffered = docs
	s.cursorID = reply.CursorID
	if s.cursorID == 0 {
		s.releaseConn()
	}
	return nil
}

// Close abandons the stream. If the cursor is still live it queues exactly
// one KILL_CURSORS for it; a failure to send is logged, never returned,
// per the supervisor/pool error-propagation rules.
func (s *Stream) Close(ctx context.Context) error {
	defer s.releaseConn()
	if s.cursorID == 0 {
		return nil
	}
	id := s.cursorID
	s.cursorID = 0
	req := wire.KillCursorsMessage{CursorIDs: []int64{id}}
	reqCtx, cancel := s.withRequestTimeout(ctx)
	defer cancel()
	if _, err := s.conn.Send(reqCtx, req); err != nil {
		s.log.WithCursorID(id).WithError(err).Warnf("kill cursors send failed")
	}
	return nil
}
