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

// Disposition values a delivery can carry, mirroring the outcome codes
// qpid.apache.org/proton exposes as Received/Accepted/Rejected/Released/Modified.
const (
	Received uint64 = iota + 1
	Accepted
	Rejected
	Released
	Modified
)

// Delivery is a single message transfer in flight on a Link, identified by a
// tag unique within that link. The messenger core observes deliveries
// through the connection's work list (WorkHead/WorkNext) and through the
// tracker queues it maintains itself.
type Delivery interface {
	Link() Link
	Tag() string

	// Readable is true for an inbound delivery whose bytes can be read with
	// Receiver.Recv.
	Readable() bool
	// Partial is true while more frames of this transfer are still expected.
	Partial() bool
	// Updated is true if the remote disposition changed since it was last observed.
	Updated() bool

	LocalState() uint64
	RemoteState() uint64
	RemotelySettled() bool
	Settled() bool

	// Disposition sets the local disposition state without settling.
	Disposition(state uint64)
	// Settle marks the delivery settled locally, removing it from the work list.
	Settle()

	// WorkNext returns the next delivery in the owning connection's work
	// list, or nil.
	WorkNext() Delivery

	// SetRemoteDisposition and Arrive are called by internal/driver when
	// decoding Disposition and Transfer frames from the peer.
	SetRemoteDisposition(state uint64, settled bool)
	Arrive(payload []byte, partial bool)

	// Payload is the accumulated bytes of this delivery, read by
	// internal/driver (outbound) or by Receiver.Recv (inbound).
	Payload() []byte
}

type delivery struct {
	link            *link
	tag             string
	localState      uint64
	remoteState     uint64
	remotelySettled bool
	settled         bool
	updated         bool
	partial         bool
	consumed        bool // inbound only: the application has already read this one via Get
	payload         []byte
	conn            *connection
	workIndex       int // position in conn.work, valid only while listed
	listed          bool
}

func newDelivery(l *link, tag string) *delivery {
	return &delivery{link: l, tag: tag, partial: true, conn: l.session.conn}
}

// Link returns the Sender or Receiver wrapper the link was created as, so
// Link().Advance() reaches the receiver's override.
func (d *delivery) Link() Link { return d.link.self }
func (d *delivery) Tag() string { return d.tag }

func (d *delivery) Readable() bool {
	return d.link.role == roleReceiver && !d.settled && !d.consumed
}

func (d *delivery) Partial() bool { return d.partial }
func (d *delivery) Updated() bool { return d.updated }

func (d *delivery) LocalState() uint64      { return d.localState }
func (d *delivery) RemoteState() uint64     { return d.remoteState }
func (d *delivery) RemotelySettled() bool   { return d.remotelySettled }
func (d *delivery) Settled() bool           { return d.settled }

func (d *delivery) Disposition(state uint64) {
	d.localState = state
}

func (d *delivery) Settle() {
	d.settled = true
	d.updated = false
	d.conn.unlist(d)
}

func (d *delivery) WorkNext() Delivery {
	next := d.conn.workNext(d)
	if next == nil {
		return nil
	}
	return next
}

func (d *delivery) Payload() []byte { return d.payload }

func (d *delivery) appendBytes(b []byte) {
	d.payload = append(d.payload, b...)
}

func (d *delivery) consumeBytes(n int) {
	d.payload = d.payload[n:]
}

// consume marks an inbound delivery as handed to the application and drops
// it from the connection's work list: get() calls this once it has decoded
// the delivery's full payload, so the same message is never returned twice.
func (d *delivery) consume() {
	d.consumed = true
	d.conn.unlist(d)
}

// SetRemoteDisposition is called by internal/driver when a Disposition
// frame arrives from the peer.
func (d *delivery) SetRemoteDisposition(state uint64, settled bool) {
	d.remoteState = state
	d.remotelySettled = settled
	d.updated = true
	d.conn.relist(d)
}

// Arrive marks a (possibly partial) inbound transfer ready for the
// application to read.
func (d *delivery) Arrive(payload []byte, partial bool) {
	d.appendBytes(payload)
	d.partial = partial
	d.updated = true
	d.conn.relist(d)
}
