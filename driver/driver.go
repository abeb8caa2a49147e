// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver assembles the wire, connection, supervisor and cursor
// packages behind the core API surface: driver.New, Driver.Connect,
// Supervisor.Send, Supervisor.Query and Supervisor.Shutdown.
package driver

import (
	"context"
	"sync"

	"github.com/basinlabs/mongocore/cursor"
	"github.com/basinlabs/mongocore/logctx"
	"github.com/basinlabs/mongocore/supervisor"
	"github.com/basinlabs/mongocore/wire"
	"github.com/sirupsen/logrus"
)

// Driver holds configuration shared by every Supervisor it connects.
type Driver struct {
	cfg Config
	log logctx.Logger

	mu          sync.Mutex
	supervisors map[Endpoint]*supervisor.Supervisor
}

// New constructs a Driver from cfg. logger may be nil, in which case
// logrus.StandardLogger() is used.
func New(cfg Config, logger *logrus.Logger) *Driver {
	return &Driver{
		cfg:         cfg,
		log:         logctx.New(logger),
		supervisors: make(map[Endpoint]*supervisor.Supervisor),
	}
}

// Connect returns the Supervisor for endpoint, creating one on first use.
// It does not dial a connection; Supervisor.Acquire does that lazily.
func (d *Driver) Connect(endpoint Endpoint) *Supervisor {
	endpoint = endpoint.Canonicalize()
	d.mu.Lock()
	defer d.mu.Unlock()
	if sup, ok := d.supervisors[endpoint]; ok {
		return &Supervisor{sup: sup, cfg: d.cfg, log: d.log}
	}
	sup := supervisor.New(string(endpoint), d.cfg.supervisorConfig(), d.log)
	d.supervisors[endpoint] = sup
	return &Supervisor{sup: sup, cfg: d.cfg, log: d.log}
}

// Supervisor is the application-facing handle returned by Driver.Connect.
// It composes an internal supervisor.Supervisor with the operations named
// in the core API surface: Send, Query and Shutdown.
type Supervisor struct {
	sup *supervisor.Supervisor
	cfg Config
	log logctx.Logger
}

// Send dispatches a single request and returns its Reply, acquiring and
// releasing a pooled Connection around the call. Once a Connection is
// acquired, the request is bounded by request_timeout_ms even when ctx
// carries no deadline of its own; waiting in Acquire is bounded only by ctx.
func (s *Supervisor) Send(ctx context.Context, req wire.Request) (wire.Reply, error) {
	conn, err := s.sup.Acquire(ctx)
	if err != nil {
		return wire.Reply{}, err
	}
	defer s.sup.Release(conn)
	reqCtx, cancel := s.withRequestTimeout(ctx)
	defer cancel()
	return conn.Send(reqCtx, req)
}

// Query dispatches a QUERY request and wraps its Reply in a Cursor Stream.
// The Connection backing the stream is held until the Stream releases it
// (when its cursorID reaches 0, on a CursorNotFound or QueryFailure reply,
// or on Close), since GET_MORE and KILL_CURSORS must be issued on the same
// Connection that opened the cursor.
func (s *Supervisor) Query(ctx context.Context, q wire.QueryMessage) (*cursor.Stream, error) {
	conn, err := s.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := s.withRequestTimeout(ctx)
	reply, err := conn.Send(reqCtx, q)
	cancel()
	if err != nil {
		s.sup.Release(conn)
		return nil, err
	}
	batchSize := s.cfg.CursorBatchSize
	release := func() { s.sup.Release(conn) }
	stream, streamErr := cursor.New(q.FullCollectionName, reply, conn, batchSize, s.cfg.RequestTimeout, release, s.log)
	if stream == nil {
		// New failed to drain the initial batch before a Stream existed to
		// take ownership of release; nobody else will call it.
		s.sup.Release(conn)
	}
	return stream, streamErr
}

// withRequestTimeout derives a child context bounded by request_timeout_ms,
// if one is configured.
func (s *Supervisor) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// Shutdown terminates the Supervisor; see supervisor.Supervisor.Shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	return s.sup.Shutdown(ctx)
}
