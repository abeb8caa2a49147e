// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package supervisor pools Connections to a single endpoint: it bounds
// concurrent connections with a weighted semaphore, recycles Ready
// connections through an idle channel tagged with a generation counter,
// and reconnects with exponential backoff after a Connection fails.
package supervisor

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/basinlabs/mongocore/connection"
	"github.com/basinlabs/mongocore/logctx"
	"github.com/basinlabs/mongocore/mongoerr"
)

// PoolError is a sentinel error for supervisor-level misuse, distinct from
// the per-request mongoerr taxonomy.
type PoolError string

func (e PoolError) Error() string { return string(e) }

// ErrAlreadyShutdown is returned by every Shutdown call after the first,
// whether or not the first has finished.
const ErrAlreadyShutdown = PoolError("supervisor: already shut down")

// Config bounds a Supervisor's pool sizing and reconnection behavior.
type Config struct {
	MaxConnections         int
	MaxConsecutiveFailures int
	ConnectTimeout         time.Duration
	ShutdownTimeout        time.Duration
	ReconnectBase          time.Duration
	ReconnectCap           time.Duration
	ReconnectJitter        float64
	Connection             connection.Config
}

// DefaultConfig returns the driver's documented external defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections:         10,
		MaxConsecutiveFailures: 5,
		ConnectTimeout:         5 * time.Second,
		ShutdownTimeout:        5 * time.Second,
		ReconnectBase:          100 * time.Millisecond,
		ReconnectCap:           30 * time.Second,
		ReconnectJitter:        0.2,
		Connection:             connection.DefaultConfig(),
	}
}

const (
	stateRunning int32 = iota
	stateDraining
	stateShutdown
)

type pooledConn struct {
	*connection.Conn
	id         uint64
	generation uint64
}

// Supervisor owns every Connection to a single endpoint.
type Supervisor struct {
	endpoint string
	cfg      Config
	log      logctx.Logger

	sem *semaphore.Weighted

	idle chan *pooledConn

	generation uint64 // atomic
	failures   int32  // atomic, consecutive dial failures

	state int32 // atomic, one of state* constants

	mu     sync.Mutex
	live   map[uint64]*pooledConn
	nextID uint64

	wg sync.WaitGroup
}

// New returns a Supervisor for endpoint. No connections are dialed until
// Acquire is called.
func New(endpoint string, cfg Config, log logctx.Logger) *Supervisor {
	return &Supervisor{
		endpoint: endpoint,
		cfg:      cfg,
		log:      log.WithEndpoint(endpoint),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConnections)),
		idle:     make(chan *pooledConn, cfg.MaxConnections),
		live:     make(map[uint64]*pooledConn),
	}
}

// Acquire returns a Ready Connection: a recycled idle one if available,
// otherwise a freshly dialed one if the pool has not reached
// max_connections, otherwise it awaits a release or ctx cancellation.
func (s *Supervisor) Acquire(ctx context.Context) (*connection.Conn, error) {
	if atomic.LoadInt32(&s.state) != stateRunning {
		return nil, mongoerr.Shutdown()
	}
	if int(atomic.LoadInt32(&s.failures)) >= s.cfg.MaxConsecutiveFailures {
		return nil, mongoerr.Unreachable(s.endpoint)
	}

idleLoop:
	for {
		select {
		case pc := <-s.idle:
			if pc.generation != atomic.LoadUint64(&s.generation) || pc.State() != connection.Ready {
				s.discard(pc, false)
				continue idleLoop
			}
			return pc.Conn, nil
		default:
			break idleLoop
		}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, mongoerr.Cancelled()
	}
	pc, err := s.dialOne(ctx)
	if err != nil {
		s.sem.Release(1)
		s.onDialFailure()
		return nil, err
	}
	atomic.StoreInt32(&s.failures, 0)
	return pc.Conn, nil
}

// Release returns a Connection obtained from Acquire back to the pool. If
// the Connection is no longer Ready, it is discarded and its semaphore slot
// freed instead of being recycled.
func (s *Supervisor) Release(c *connection.Conn) {
	s.mu.Lock()
	var pc *pooledConn
	for _, candidate := range s.live {
		if candidate.Conn == c {
			pc = candidate
			break
		}
	}
	s.mu.Unlock()
	if pc == nil {
		return
	}
	st := c.State()
	if atomic.LoadInt32(&s.state) != stateRunning || st != connection.Ready || pc.generation != atomic.LoadUint64(&s.generation) {
		// A failing Connection passes through Failed and settles in Closed.
		// While running, the Supervisor only drains Connections it has
		// already removed from live, so a live one found Failed or Closed
		// has failed on its own.
		failed := atomic.LoadInt32(&s.state) == stateRunning && (st == connection.Failed || st == connection.Closed)
		s.discard(pc, failed)
		if failed {
			s.scheduleReconnect()
		}
		return
	}
	select {
	case s.idle <- pc:
	default:
		s.discard(pc, false)
	}
}

func (s *Supervisor) dialOne(ctx context.Context) (*pooledConn, error) {
	gen := atomic.LoadUint64(&s.generation)
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	c, err := connection.Dial(dialCtx, s.endpoint, s.cfg.Connection, s.log.WithGeneration(gen))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextID++
	pc := &pooledConn{Conn: c, id: s.nextID, generation: gen}
	s.live[pc.id] = pc
	s.mu.Unlock()
	return pc, nil
}

// discard drops pc from the live set and frees its semaphore slot. When
// failed is true, pc was discarded because its Connection failed rather than
// merely going stale or idle; bumping generation invalidates every sibling
// still sitting in the idle channel, so Acquire and Release discard them on
// next touch instead of handing out connections dialed alongside one that
// just proved the endpoint unhealthy.
func (s *Supervisor) discard(pc *pooledConn, failed bool) {
	s.mu.Lock()
	delete(s.live, pc.id)
	s.mu.Unlock()
	pc.Drain()
	s.sem.Release(1)
	if failed {
		s.bumpGeneration()
	}
}

func (s *Supervisor) bumpGeneration() {
	gen := atomic.AddUint64(&s.generation, 1)
	s.log.WithGeneration(gen).Warnf("connection failure invalidated idle pool generation")
}

func (s *Supervisor) onDialFailure() {
	n := atomic.AddInt32(&s.failures, 1)
	s.log.Warnf("dial attempt failed, consecutive failures now %d", n)
	s.bumpGeneration()
	s.scheduleReconnect()
}

// scheduleReconnect retries dialing a replacement connection in the
// background with exponential backoff, stopping once the supervisor is no
// longer running or a dial succeeds.
func (s *Supervisor) scheduleReconnect() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		attempt := 0
		for {
			if atomic.LoadInt32(&s.state) != stateRunning {
				return
			}
			delay := backoff(s.cfg.ReconnectBase, s.cfg.ReconnectCap, s.cfg.ReconnectJitter, attempt)
			time.Sleep(delay)
			if atomic.LoadInt32(&s.state) != stateRunning {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
			if err := s.sem.Acquire(ctx, 1); err != nil {
				cancel()
				return
			}
			pc, err := s.dialOne(ctx)
			cancel()
			if err != nil {
				s.sem.Release(1)
				attempt++
				continue
			}
			atomic.StoreInt32(&s.failures, 0)
			select {
			case s.idle <- pc:
			default:
				s.discard(pc, false)
			}
			return
		}
	}()
}

func backoff(base, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			d = maxDelay
			break
		}
	}
	if d > maxDelay {
		d = maxDelay
	}
	if jitter > 0 {
		j := 1 + (rand.Float64()*2-1)*jitter
		d = time.Duration(float64(d) * j)
	}
	return d
}

// Shutdown drains every live Connection and marks the Supervisor permanently
// unavailable. It is idempotent: calling it more than once after the first
// completes returns ErrAlreadyShutdown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateRunning, stateDraining) {
		return ErrAlreadyShutdown
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	conns := make([]*pooledConn, 0, len(s.live))
	for _, pc := range s.live {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, pc := range conns {
		wg.Add(1)
		go func(pc *pooledConn) {
			defer wg.Done()
			pc.Drain()
		}(pc)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-shutdownCtx.Done():
	}
	atomic.StoreInt32(&s.state, stateShutdown)
	return nil
}
