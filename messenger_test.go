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
	"fmt"
	"net"
	"testing"
	"time"

	"qpid.apache.org/messenger/amqp"
	"qpid.apache.org/messenger/internal/engine"
)

func newTestMessenger(t *testing.T, name string) *Messenger {
	t.Helper()
	m := New(name, WithTimeout(2*time.Second))
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

// TestPutSendRecvGetRoundTrip covers scenario S2: a message put on a
// listening receiver's address round-trips to Get with an ACCEPTED status
// once the receiver accepts it.
func TestPutSendRecvGetRoundTrip(t *testing.T) {
	receiver := newTestMessenger(t, "receiver")
	if err := receiver.Subscribe("~amqp://127.0.0.1:0/greetings"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	addr := listenerAddr(t, receiver)

	sender := newTestMessenger(t, "sender")
	msg := amqp.NewMessage()
	msg.SetAddress("amqp://" + addr + "/greetings")
	msg.SetBody("hello")

	tr, err := sender.Put(msg)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Put already advanced the delivery off the sender's queue: Outgoing()
	// counts messages still queued on active senders, not tracker history.
	if got := sender.Outgoing(); got != 0 {
		t.Fatalf("Outgoing() after Put+Advance = %d, want 0", got)
	}

	if err := receiver.Recv(1); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	got, err := receiver.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatalf("Get returned no message")
	}
	if got.Body().(string) != "hello" {
		t.Fatalf("Body = %#v, want %q", got.Body(), "hello")
	}
	// Regression: a second Get for the same single message must not return
	// it again or drive the credit pool's distributed count negative.
	distributedBefore := receiver.distributed
	again, err := receiver.Get()
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if again != nil {
		t.Fatalf("second Get returned %#v, want nil", again)
	}
	if receiver.distributed != distributedBefore {
		t.Fatalf("distributed changed from %d to %d on a Get that found nothing", distributedBefore, receiver.distributed)
	}
	receiver.Accept(receiver.IncomingTracker(), 0)
	receiver.process() // flush the Disposition frame to the sender

	if err := sender.Send(); err != nil {
		t.Fatalf("Send after accept: %v", err)
	}
	if status := sender.GetStatus(tr); status != StatusAccepted {
		t.Fatalf("GetStatus = %v, want ACCEPTED", status)
	}
}

// TestInvalidAddressRejected covers scenario S5: Put on an address with no
// host is rejected and the outgoing queue is left unchanged.
func TestInvalidAddressRejected(t *testing.T) {
	m := newTestMessenger(t, "sender")
	before := m.Outgoing()

	msg := amqp.NewMessage()
	msg.SetAddress("amqp:///no-host")
	_, err := m.Put(msg)
	if err == nil {
		t.Fatalf("Put with no host did not return an error")
	}
	if _, ok := err.(*InvalidAddressError); !ok {
		t.Fatalf("error type = %T, want *InvalidAddressError", err)
	}
	if after := m.Outgoing(); after != before {
		t.Fatalf("Outgoing() changed from %d to %d after a rejected Put", before, after)
	}
}

// TestScratchBufferGrowsAndNeverShrinks covers scenario S4 and invariant 5:
// growEncode grows the scratch buffer to fit a large message and never
// shrinks it back down for a smaller one that follows.
func TestScratchBufferGrowsAndNeverShrinks(t *testing.T) {
	m := New("scratch-test")
	m.scratch = make([]byte, 5*1024)

	big := amqp.NewMessageWith(make([]byte, 20*1024))
	if _, err := m.growEncode(big); err != nil {
		t.Fatalf("growEncode: %v", err)
	}
	grown := len(m.scratch)
	if grown < 20*1024 {
		t.Fatalf("scratch len = %d, want at least 20KiB", grown)
	}

	small := amqp.NewMessageWith("tiny")
	if _, err := m.growEncode(small); err != nil {
		t.Fatalf("growEncode: %v", err)
	}
	if len(m.scratch) < grown {
		t.Fatalf("scratch shrank from %d to %d", grown, len(m.scratch))
	}
}

// TestOutgoingWindowRetainsBoundedHistory covers scenario S6: with an
// outgoing window of 2, only settled deliveries older than the window are
// dropped from the tracker queue's retained history.
func TestOutgoingWindowRetainsBoundedHistory(t *testing.T) {
	m := New("window-test")
	m.SetOutgoingWindow(2)
	for i := 0; i < 4; i++ {
		d := newTestDelivery(t, senderRole, string(rune('a'+i)))
		tr := m.outgoing.add(d)
		m.outgoing.settle(tr, 0)
	}
	m.outgoing.slide()
	if got := len(m.outgoing.deliveries()); got > 2 {
		t.Fatalf("deliveries() = %d, want at most 2 after sliding a window-2 queue", got)
	}
}

// TestUnlimitedCreditDistribution covers scenario S3: recv(-1) with three
// active receivers yields each receiver credit >= 10 (one full batch) after
// one distribution pass.
func TestUnlimitedCreditDistribution(t *testing.T) {
	const paths = 3
	receiver := newTestMessenger(t, "receiver")
	sender := newTestMessenger(t, "sender")

	for i := 0; i < paths; i++ {
		path := fmt.Sprintf("work-%d", i)
		if err := receiver.Subscribe("~amqp://127.0.0.1:0/" + path); err != nil {
			t.Fatalf("Subscribe %s: %v", path, err)
		}
		addr := listenerAddrAt(t, receiver, i)
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("SplitHostPort(%q): %v", addr, err)
		}
		if _, err := sender.getLink(host, port, senderFinder{path: path}); err != nil {
			t.Fatalf("getLink %s: %v", path, err)
		}
	}
	sender.process() // flush the Attach for each of the three links above

	receiver.recv(-1)
	var receivers []engine.Receiver
	deadline := time.Now().Add(2 * time.Second)
	for len(receivers) < paths && time.Now().Before(deadline) {
		receiver.process()
		receivers = activeReceivers(receiver.registry.connections())
		if len(receivers) < paths {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if len(receivers) != paths {
		t.Fatalf("active receivers = %d, want %d", len(receivers), paths)
	}
	for _, r := range receivers {
		if r.Credit() < receiver.CreditBatch() {
			t.Fatalf("receiver credit = %d, want at least %d", r.Credit(), receiver.CreditBatch())
		}
	}
}

// TestStopClosesCleanly covers scenario S1: Stop drains to zero connectors
// without error even when nothing was ever put or received.
func TestStopClosesCleanly(t *testing.T) {
	m := New("idle")
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
	if !m.allClosed() {
		t.Fatalf("allClosed() = false after Stop with no connections ever opened")
	}
}

func listenerAddr(t *testing.T, m *Messenger) string {
	t.Helper()
	return listenerAddrAt(t, m, 0)
}

func listenerAddrAt(t *testing.T, m *Messenger, idx int) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.listeners) > idx {
			return m.listeners[idx].Addr().String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("messenger never registered listener %d", idx)
	return ""
}
