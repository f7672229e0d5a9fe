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

// defaultCreditBatch is the batch size used to size the unlimited-credit
// pool (L * batch), overridable through SetCreditBatch.
const defaultCreditBatch = 10

// activeReceivers walks every registered connection's link list and returns
// every receiver in state (local=ACTIVE, remote=*), in iteration order.
func activeReceivers(conns []engine.Connection) []engine.Receiver {
	var out []engine.Receiver
	for _, c := range conns {
		for l := c.LinkHead(engine.SLocalActive, engine.Any); l != nil; l = l.Next(engine.SLocalActive, engine.Any) {
			if r, ok := l.(engine.Receiver); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

// queuedOn sums Queued() over every active sender (sender==true) or active
// receiver (sender==false) link across conns, mirroring MessengerImpl's
// queued(boolean) walk over (ACTIVE, ANY) links.
func queuedOn(conns []engine.Connection, sender bool) int {
	total := 0
	for _, c := range conns {
		for l := c.LinkHead(engine.SLocalActive, engine.Any); l != nil; l = l.Next(engine.SLocalActive, engine.Any) {
			if l.IsSender() == sender {
				total += l.Queued()
			}
		}
	}
	return total
}

// recv folds an application recv(n) call into the credit pool: n == -1
// requests unlimited credit, otherwise n is added to the pool.
func (m *Messenger) recv(n int) {
	if n == -1 {
		m.unlimited = true
	} else {
		m.credit += n
		m.unlimited = false
	}
	m.distribute()
}

// distribute implements the per-pass credit distribution algorithm: an
// even batch per active receiver, topped up until the pool is exhausted.
func (m *Messenger) distribute() {
	receivers := activeReceivers(m.registry.connections())
	l := len(receivers)
	if l == 0 {
		return
	}
	batch := m.creditBatch
	if batch <= 0 {
		batch = defaultCreditBatch
	}
	if m.unlimited {
		m.credit = l * batch
	}
	if m.credit <= 0 {
		return
	}
	perLink := m.credit / l
	if perLink < 1 {
		perLink = 1
	}
	for _, r := range receivers {
		have := r.Credit()
		if have < perLink {
			amount := perLink - have
			if amount > m.credit {
				amount = m.credit
			}
			if amount <= 0 {
				continue
			}
			r.Flow(amount)
			m.distributed += amount
			m.credit -= amount
		}
		if m.credit <= 0 {
			break
		}
	}
}

// reclaimCredit returns any credit still held by receivers on conn to the
// pool, called when its connector is destroyed.
func (m *Messenger) reclaimCredit(conn engine.Connection) {
	for l := conn.LinkHead(engine.Any, engine.Any); l != nil; l = l.Next(engine.Any, engine.Any) {
		r, ok := l.(engine.Receiver)
		if !ok {
			continue
		}
		if c := r.Credit(); c > 0 {
			m.credit += c
			m.distributed -= c
		}
	}
}
