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

package messenger

import (
	"time"

	"qpid.apache.org/messenger/internal/engine"
)

// waitUntil drives the processor until pred holds or timeout elapses.
// timeout < 0 waits forever. Pass A runs once up front; the first Pass B
// never blocks, giving already-available progress a chance to satisfy pred
// before paying for a doWait.
func (m *Messenger) waitUntil(pred func() bool, timeout time.Duration, op string) error {
	m.passA()
	hasDeadline := timeout >= 0
	deadline := time.Now().Add(timeout)

	for first := true; ; first = false {
		m.passB()
		if pred() {
			return nil
		}
		if hasDeadline && !time.Now().Before(deadline) {
			return &TimeoutError{Op: op}
		}
		if first {
			continue
		}
		remaining := time.Duration(-1)
		if hasDeadline {
			remaining = time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
		}
		m.driver.DoWait(remaining)
	}
}

func isTerminal(state uint64) bool {
	switch state {
	case engine.Accepted, engine.Rejected, engine.Released, engine.Modified:
		return true
	}
	return false
}

// sentSettled is true once no active sender still has a frame queued and
// every live outgoing delivery has reached a terminal remote disposition
// (settled as a side effect of the check) or belongs to a connection the
// peer has already closed.
func (m *Messenger) sentSettled() bool {
	for _, conn := range m.registry.connections() {
		for l := conn.LinkHead(engine.SLocalActive, engine.Any); l != nil; l = l.Next(engine.SLocalActive, engine.Any) {
			if l.IsSender() && l.Queued() > 0 {
				return false
			}
		}
	}
	for _, d := range m.outgoing.deliveries() {
		if d.Settled() {
			continue
		}
		if d.Link().Session().Connection().RemoteState().Has(engine.SRemoteClosed) {
			continue
		}
		if isTerminal(d.RemoteState()) || d.RemotelySettled() {
			d.Settle()
			continue
		}
		return false
	}
	return true
}

// messageAvailable is true once some connection's work list holds a
// delivery that can be read in full right now.
func (m *Messenger) messageAvailable() bool {
	for _, conn := range m.registry.connections() {
		for d := conn.WorkHead(); d != nil; d = d.WorkNext() {
			if d.Readable() && !d.Partial() {
				return true
			}
		}
	}
	return false
}

// allClosed is true once the driver has no connectors left at all, and
// always after Stop has released the driver.
func (m *Messenger) allClosed() bool {
	if m.driver == nil {
		return true
	}
	return len(m.driver.Connectors()) == 0
}
