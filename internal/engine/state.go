/*
Licensed to the Apache Software Foundation (ASF) under one
or more contributor license agreements.  See the NOTICE file
distributed with this work for additional information
regarding copyright ownership.  The ASF licenses this file
to you under the Apache License, Version 2.0 (the
"License"); you may not use this file except in compliance
with the License.  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing,
software distributed under the License is distributed on an
"AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
KIND, either express or implied.  See the License for the
specific language governing permissions and limitations
under the License.
*/

// Package engine implements the AMQP endpoint state machines (connection,
// session, link, delivery) that the messenger core drives to quiescence on
// every processor pass. It has no knowledge of sockets or wire bytes; those
// belong to internal/driver and internal/wire.
package engine

// State is a bitmask over the three endpoint phases, local and remote,
// packed into a single byte the way qpid.apache.org/proton's cgo State type
// does. An endpoint's current State always has exactly one local bit and one
// remote bit set; callers filtering endpoints (LinkHead, SessionHead, Next)
// pass a State that may OR together several bits to match more than one
// phase at once.
type State byte

const (
	SLocalUninit State = 1 << iota
	SLocalActive
	SLocalClosed
	SRemoteUninit
	SRemoteActive
	SRemoteClosed
)

const (
	localMask  = SLocalUninit | SLocalActive | SLocalClosed
	remoteMask = SRemoteUninit | SRemoteActive | SRemoteClosed
)

// Any matches every local or every remote phase, for use as a Next/Head filter.
const Any State = localMask | remoteMask

// Has reports whether any bit of other is set in s.
func (s State) Has(other State) bool { return s&other != 0 }

// Local returns just the local-phase bits of s.
func (s State) Local() State { return s & localMask }

// Remote returns just the remote-phase bits of s.
func (s State) Remote() State { return s & remoteMask }

func (s State) String() string {
	names := []struct {
		bit  State
		name string
	}{
		{SLocalUninit, "local=uninit"}, {SLocalActive, "local=active"}, {SLocalClosed, "local=closed"},
		{SRemoteUninit, "remote=uninit"}, {SRemoteActive, "remote=active"}, {SRemoteClosed, "remote=closed"},
	}
	out := ""
	for _, n := range names {
		if s.Has(n.bit) {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	return out
}

// Endpoint is the common interface for Connection, Session and Link. Each
// endpoint tracks a local phase, which the local application advances by
// calling Open/Close, and a remote phase, which is advanced only by the
// driver decoding frames from the peer (SetRemoteState).
type Endpoint interface {
	// State returns the fused local|remote State.
	State() State
	// LocalState returns just the local bits.
	LocalState() State
	// RemoteState returns just the remote bits.
	RemoteState() State
	// Open advances the local phase from uninitialized to active.
	Open()
	// Close advances the local phase to closed.
	Close()
	// SetRemoteState is called by the driver when a frame changes the
	// remote phase. Not part of the messenger-facing surface.
	SetRemoteState(State)
}

// endpoint is embedded by connection, session and link to share the state
// bookkeeping every endpoint needs.
type endpoint struct {
	state State
}

func newEndpoint() endpoint {
	return endpoint{state: SLocalUninit | SRemoteUninit}
}

func (e *endpoint) State() State       { return e.state }
func (e *endpoint) LocalState() State  { return e.state.Local() }
func (e *endpoint) RemoteState() State { return e.state.Remote() }

func (e *endpoint) Open() {
	e.state = e.state.Remote() | SLocalActive
}

func (e *endpoint) Close() {
	e.state = e.state.Remote() | SLocalClosed
}

func (e *endpoint) SetRemoteState(s State) {
	e.state = e.state.Local() | s.Remote()
}
