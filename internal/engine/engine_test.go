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

package engine

import "testing"

func TestConnectionLifecycle(t *testing.T) {
	c := NewConnection("client")
	if !c.LocalState().Has(SLocalUninit) {
		t.Fatalf("new connection local state = %v, want uninit", c.LocalState())
	}
	c.Open()
	if !c.LocalState().Has(SLocalActive) {
		t.Fatalf("after Open, local state = %v, want active", c.LocalState())
	}
	c.SetRemoteState(SRemoteActive)
	if !c.RemoteState().Has(SRemoteActive) {
		t.Fatalf("after SetRemoteState, remote state = %v, want active", c.RemoteState())
	}
	c.Close()
	if !c.LocalState().Has(SLocalClosed) {
		t.Fatalf("after Close, local state = %v, want closed", c.LocalState())
	}
	if !c.RemoteState().Has(SRemoteActive) {
		t.Fatalf("Close must not disturb remote state, got %v", c.RemoteState())
	}
}

func TestStateHasLocalRemote(t *testing.T) {
	s := SLocalActive | SRemoteClosed
	if !s.Has(SLocalActive) || !s.Has(SRemoteClosed) {
		t.Fatalf("Has failed on %v", s)
	}
	if s.Has(SLocalClosed) {
		t.Fatalf("Has false positive on %v", s)
	}
	if s.Local() != SLocalActive {
		t.Fatalf("Local() = %v, want %v", s.Local(), SLocalActive)
	}
	if s.Remote() != SRemoteClosed {
		t.Fatalf("Remote() = %v, want %v", s.Remote(), SRemoteClosed)
	}
}

// TestLinkHeadReturnsConcreteRole exercises the bug where connection.links
// stored the bare endpoint struct instead of the Sender/Receiver wrapper it
// was created as: a caller that gets a Link back from LinkHead/Next must be
// able to type-assert it to Sender or Receiver exactly like the value
// Session.Sender/Session.Receiver returned.
func TestLinkHeadReturnsConcreteRole(t *testing.T) {
	c := NewConnection("client")
	s, err := c.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	want := s.Sender("out")
	want.Open()

	got := c.LinkHead(SLocalActive, Any)
	if got == nil {
		t.Fatalf("LinkHead returned nil")
	}
	if _, ok := got.(Sender); !ok {
		t.Fatalf("LinkHead result does not implement Sender: %T", got)
	}
	if got.Name() != "out" {
		t.Fatalf("LinkHead name = %q, want %q", got.Name(), "out")
	}

	r := s.Receiver("in")
	r.Open()
	next := got.Next(SLocalActive, Any)
	if next == nil {
		t.Fatalf("Next returned nil")
	}
	if _, ok := next.(Receiver); !ok {
		t.Fatalf("Next result does not implement Receiver: %T", next)
	}
}

func TestSenderDeliveryAndAdvance(t *testing.T) {
	c := NewConnection("client")
	s, _ := c.Session()
	snd := s.Sender("out")
	snd.Open()

	if snd.Queued() != 0 {
		t.Fatalf("Queued before Delivery = %d, want 0", snd.Queued())
	}
	d := snd.Delivery("tag-1")
	if snd.Queued() != 1 {
		t.Fatalf("Queued after Delivery = %d, want 1", snd.Queued())
	}
	n := snd.Send([]byte("hello"))
	if n != 5 {
		t.Fatalf("Send returned %d, want 5", n)
	}
	if d.Partial() {
		t.Fatalf("delivery still partial after Send")
	}
	if got := c.WorkHead(); got == nil {
		t.Fatalf("WorkHead is nil after Send relists the delivery")
	}
	snd.Advance()
	if snd.Queued() != 0 {
		t.Fatalf("Queued after Advance = %d, want 0", snd.Queued())
	}
}

func TestReceiverCreditConsumedOncePerDelivery(t *testing.T) {
	c := NewConnection("client")
	s, _ := c.Session()
	rcv := s.Receiver("in")
	rcv.Open()
	rcv.Flow(2)
	if rcv.Credit() != 2 {
		t.Fatalf("Credit = %d, want 2", rcv.Credit())
	}

	d := rcv.InboundDelivery("tag-a")
	if rcv.Credit() != 1 {
		t.Fatalf("Credit after first InboundDelivery = %d, want 1", rcv.Credit())
	}
	d.Arrive([]byte("hel"), true)
	d.Arrive([]byte("lo"), false)

	// A second InboundDelivery call for the SAME tag must not consume more
	// credit: it is a lookup of the delivery already accumulating frames.
	same := rcv.InboundDelivery("tag-a")
	if same != d {
		t.Fatalf("InboundDelivery returned a different delivery for the same tag")
	}
	if rcv.Credit() != 1 {
		t.Fatalf("Credit after repeat InboundDelivery = %d, want 1 (unchanged)", rcv.Credit())
	}

	buf := make([]byte, 3)
	n := rcv.Recv(buf)
	if n != 3 || string(buf[:n]) != "hel" {
		t.Fatalf("first Recv = %q, want %q", buf[:n], "hel")
	}
	if rcv.Credit() != 1 {
		t.Fatalf("Recv must not itself consume credit, got %d", rcv.Credit())
	}
	n = rcv.Recv(buf)
	if n != 2 || string(buf[:n]) != "lo" {
		t.Fatalf("second Recv = %q, want %q", buf[:n], "lo")
	}

	rcv.InboundDelivery("tag-b")
	if rcv.Credit() != 0 {
		t.Fatalf("Credit after second distinct delivery = %d, want 0", rcv.Credit())
	}
	// Credit exhausted: a third distinct tag must not go negative.
	rcv.InboundDelivery("tag-c")
	if rcv.Credit() != 0 {
		t.Fatalf("Credit went negative: %d", rcv.Credit())
	}
}

func TestFindDeliveryLookupOnly(t *testing.T) {
	c := NewConnection("client")
	s, _ := c.Session()
	snd := s.Sender("out")
	snd.Open()

	if d := snd.FindDelivery("missing"); d != nil {
		t.Fatalf("FindDelivery found a delivery that was never created")
	}
	created := snd.Delivery("tag-1")
	found := snd.FindDelivery("tag-1")
	if found != created {
		t.Fatalf("FindDelivery returned a different object than Delivery created")
	}
}

func TestApplyFlowIsAbsolute(t *testing.T) {
	c := NewConnection("client")
	s, _ := c.Session()
	snd := s.Sender("out")
	snd.ApplyFlow(5)
	if snd.Credit() != 5 {
		t.Fatalf("Credit = %d, want 5", snd.Credit())
	}
	snd.ApplyFlow(2)
	if snd.Credit() != 2 {
		t.Fatalf("ApplyFlow must set an absolute value, got %d, want 2", snd.Credit())
	}
	snd.ApplyFlow(-1)
	if snd.Credit() != 0 {
		t.Fatalf("negative ApplyFlow must clamp to 0, got %d", snd.Credit())
	}
}

func TestDeliverySettleUnlistsFromWork(t *testing.T) {
	c := NewConnection("client")
	s, _ := c.Session()
	rcv := s.Receiver("in")
	rcv.Open()
	d := rcv.InboundDelivery("tag-1")
	d.Arrive([]byte("x"), false)

	if c.WorkHead() != d {
		t.Fatalf("WorkHead = %v, want the arrived delivery", c.WorkHead())
	}
	d.Settle()
	if c.WorkHead() != nil {
		t.Fatalf("WorkHead after Settle = %v, want nil", c.WorkHead())
	}
	if !d.Settled() {
		t.Fatalf("Settled() = false after Settle")
	}
}

// TestReceiverAdvanceConsumesInboundDelivery is a regression test: get()
// decodes a delivery's payload then calls Link().Advance() to mark it read.
// Before this, receiver Advance() was a no-op (it only handled the sender's
// "current" outbound delivery), so the same inbound delivery stayed
// Readable() and in the work list forever, letting a second read return it
// again.
func TestReceiverAdvanceConsumesInboundDelivery(t *testing.T) {
	c := NewConnection("client")
	s, _ := c.Session()
	rcv := s.Receiver("in")
	rcv.Open()
	d := rcv.InboundDelivery("tag-1")
	d.Arrive([]byte("hello"), false)

	if !d.Readable() {
		t.Fatalf("Readable() = false before Advance, want true")
	}
	rcv.Advance()
	if d.Readable() {
		t.Fatalf("Readable() = true after Advance, want false")
	}
	if c.WorkHead() != nil {
		t.Fatalf("WorkHead after Advance = %v, want nil", c.WorkHead())
	}
	if d.Settled() {
		t.Fatalf("Advance must not settle the delivery, only consume it")
	}

	// A second Advance with nothing new arrived must not panic or touch an
	// unrelated delivery.
	rcv.Advance()

	d2 := rcv.InboundDelivery("tag-2")
	d2.Arrive([]byte("world"), false)
	if !d2.Readable() {
		t.Fatalf("Readable() = false for a later distinct delivery, want true")
	}
	rcv.Advance()
	if d2.Readable() {
		t.Fatalf("Readable() = true for tag-2 after Advance, want false")
	}
}
