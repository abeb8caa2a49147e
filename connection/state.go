// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connection drives a single TCP socket to a mongod endpoint: it
// encodes outbound requests from sibling package wire, demultiplexes
// inbound replies by requestId, and exposes the Connecting/Ready/
// Draining/Closed/Failed state machine a Supervisor pool manages.
package connection

import "sync/atomic"

// State is one of the Connection lifecycle states.
type State int32

const (
	Connecting State = iota
	Ready
	Draining
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Ready:
		return "Ready"
	case Draining:
		return "Draining"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type stateBox struct {
	v int32
}

func (b *stateBox) load() State        { return State(atomic.LoadInt32(&b.v)) }
func (b *stateBox) store(s State)      { atomic.StoreInt32(&b.v, int32(s)) }
func (b *stateBox) cas(old, new State) bool {
	return atomic.CompareAndSwapInt32(&b.v, int32(old), int32(new))
}
