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
	"testing"

	"qpid.apache.org/messenger/internal/engine"
)

func newTestDelivery(t *testing.T, role func(engine.Session) engine.Link, tag string) engine.Delivery {
	t.Helper()
	conn := engine.NewConnection("test")
	sess, err := conn.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	l := role(sess)
	l.Open()
	if snd, ok := l.(engine.Sender); ok {
		return snd.Delivery(tag)
	}
	rcv := l.(engine.Receiver)
	rcv.Flow(1)
	return rcv.InboundDelivery(tag)
}

func senderRole(s engine.Session) engine.Link { return s.Sender("out") }

// TestTrackerMonotonicity covers invariant 1: sequence numbers assigned by
// add are dense and strictly increasing for the lifetime of the queue.
func TestTrackerMonotonicity(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	var last Tracker
	for i := 0; i < 5; i++ {
		d := newTestDelivery(t, senderRole, string(rune('a'+i)))
		tr := q.add(d)
		if i > 0 && tr.seq != last.seq+1 {
			t.Fatalf("tracker %d: seq = %d, want %d", i, tr.seq, last.seq+1)
		}
		last = tr
	}
}

func TestTrackerDirectionIsolation(t *testing.T) {
	out := newTrackerQueue(Outgoing)
	in := newTrackerQueue(Incoming)
	d := newTestDelivery(t, senderRole, "x")
	tOut := out.add(d)
	if in.index(tOut) != -1 {
		t.Fatalf("an outgoing tracker resolved against the incoming queue")
	}
}

func TestGetStatusReflectsDisposition(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	d := newTestDelivery(t, senderRole, "x")
	tr := q.add(d)

	if s := q.getStatus(tr); s != StatusPending {
		t.Fatalf("initial status = %v, want PENDING", s)
	}
	q.accept(tr, 0)
	if s := q.getStatus(tr); s != StatusAccepted {
		t.Fatalf("status after accept = %v, want ACCEPTED", s)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	d := newTestDelivery(t, senderRole, "x")
	tr := q.add(d)

	q.settle(tr, 0)
	if !d.Settled() {
		t.Fatalf("Settled() = false after settle")
	}
	// A second settle call on an already-settled delivery must not panic or
	// change status.
	q.settle(tr, 0)
	if s := q.getStatus(tr); s != StatusSettled {
		t.Fatalf("status after double settle = %v, want SETTLED", s)
	}
}

func TestCumulativeAcceptAppliesToPrefix(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	var trackers []Tracker
	for i := 0; i < 3; i++ {
		d := newTestDelivery(t, senderRole, string(rune('a'+i)))
		trackers = append(trackers, q.add(d))
	}
	q.accept(trackers[2], Cumulative)
	for i, tr := range trackers {
		if s := q.getStatus(tr); s != StatusAccepted {
			t.Fatalf("delivery %d status = %v, want ACCEPTED under cumulative accept", i, s)
		}
	}
}

// TestSlideRespectsWindow covers invariant: deliveries returns at most
// window entries once the queue has been slid, dropping only settled
// entries off the head.
func TestSlideRespectsWindow(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	q.setWindow(2)
	var trackers []Tracker
	for i := 0; i < 4; i++ {
		d := newTestDelivery(t, senderRole, string(rune('a'+i)))
		trackers = append(trackers, q.add(d))
	}
	for _, tr := range trackers[:3] {
		q.settle(tr, 0)
	}
	q.slide()
	if got := len(q.deliveries()); got > q.window {
		t.Fatalf("deliveries() returned %d entries, window is %d", got, q.window)
	}
}

func TestSlideStopsAtUnsettledEntry(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	q.setWindow(1)
	first := q.add(newTestDelivery(t, senderRole, "a"))
	q.add(newTestDelivery(t, senderRole, "b"))
	q.add(newTestDelivery(t, senderRole, "c"))
	q.slide()
	if got := len(q.deliveries()); got != 3 {
		t.Fatalf("slide dropped an unsettled head entry: len = %d, want 3", got)
	}
	q.settle(first, 0)
	q.slide()
	if got := len(q.deliveries()); got != 2 {
		t.Fatalf("slide did not drop the now-settled head entry: len = %d, want 2", got)
	}
}

func TestGetStatusUnknownForExpiredTracker(t *testing.T) {
	q := newTrackerQueue(Outgoing)
	q.setWindow(1)
	first := q.add(newTestDelivery(t, senderRole, "a"))
	q.settle(first, 0)
	q.add(newTestDelivery(t, senderRole, "b"))
	q.slide()
	if s := q.getStatus(first); s != StatusUnknown {
		t.Fatalf("status of expired tracker = %v, want UNKNOWN", s)
	}
}
