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

import "qpid.apache.org/messenger/internal/engine"

// process runs one full tick: Pass A advances every connector's transport,
// Pass B walks the resulting active set and reacts to it. put and get run
// this once, implicitly, on their way to acquiring a link or a message;
// waitUntil runs it in a loop.
func (m *Messenger) process() {
	m.passA()
	m.passB()
}

// passA advances every connector's I/O without mutating engine state
// beyond what the transport itself produces. Errors are logged, never
// surfaced: a faulting connector degrades on its own toward close.
func (m *Messenger) passA() {
	m.driver.Process()
	for _, e := range m.registry.all() {
		if err := e.connector.Err(); err != nil {
			m.log.Warn("connector I/O error", "peer", e.host+":"+e.port, "error", err)
		}
	}
}

// passB is the active-set walk: adopt newly accepted connectors, then
// drive every known connector through open/mirror/credit/close.
func (m *Messenger) passB() {
	for _, c := range m.driver.Connectors() {
		if !m.registry.contains(c) {
			m.registry.adopt(c)
		}
	}

	for _, e := range m.registry.all() {
		conn := e.connector.Connection()

		e.connector.Process()

		if conn.LocalState().Has(engine.SLocalUninit) {
			conn.Open()
		}

		for d := conn.WorkHead(); d != nil; d = d.WorkNext() {
			if d.Link().IsSender() && d.Updated() {
				d.Disposition(d.RemoteState())
			}
		}

		m.outgoing.slide()

		for s := conn.SessionHead(engine.SLocalUninit, engine.Any); s != nil; s = s.Next(engine.SLocalUninit, engine.Any) {
			s.Open()
		}

		for l := conn.LinkHead(engine.SLocalUninit, engine.Any); l != nil; l = l.Next(engine.SLocalUninit, engine.Any) {
			if l.RemoteSource() != nil {
				l.SetSource(l.RemoteSource())
			}
			if l.RemoteTarget() != nil {
				l.SetTarget(l.RemoteTarget())
			}
			l.Open()
		}

		m.distribute()

		for l := conn.LinkHead(engine.SLocalActive, engine.SRemoteClosed); l != nil; l = l.Next(engine.SLocalActive, engine.SRemoteClosed) {
			l.Close()
		}
		for s := conn.SessionHead(engine.SLocalActive, engine.SRemoteClosed); s != nil; s = s.Next(engine.SLocalActive, engine.SRemoteClosed) {
			s.Close()
		}

		if conn.RemoteState().Has(engine.SRemoteClosed) {
			if conn.LocalState().Has(engine.SLocalActive) {
				conn.Close()
			} else if conn.LocalState().Has(engine.SLocalClosed) {
				_ = e.connector.Close()
			}
		}

		if e.connector.Closed() {
			m.reclaimCredit(conn)
			m.registry.remove(e)
		} else {
			e.connector.Process()
		}
	}
}
