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

// Terminus is the simplified stand-in for AMQP Source/Target: this engine
// only carries the address, since routing and filter sets are out of scope.
type Terminus struct {
	Address string
}

type role int

const (
	roleSender role = iota
	roleReceiver
)

// Link is the common interface for Sender and Receiver, an attached
// half-duplex path for deliveries between a local and remote Terminus.
type Link interface {
	Endpoint
	Session() Session
	Name() string
	IsSender() bool
	IsReceiver() bool

	Source() *Terminus
	SetSource(*Terminus)
	RemoteSource() *Terminus
	SetRemoteSource(*Terminus)
	Target() *Terminus
	SetTarget(*Terminus)
	RemoteTarget() *Terminus
	SetRemoteTarget(*Terminus)

	// Credit is the number of deliveries this link may still send (Sender)
	// or has offered to accept (Receiver).
	Credit() int
	// Queued is, for a Sender, the number of deliveries created and not yet
	// passed by Advance; for a Receiver, the number of fully arrived
	// deliveries the application has not yet consumed.
	Queued() int
	// Advance moves a Sender past its current outbound delivery, or has a
	// Receiver consume its oldest unread inbound delivery.
	Advance()

	// Delivery creates a new local delivery on this link (used by Sender).
	Delivery(tag string) Delivery

	// Next continues a LinkHead/Next walk of the owning connection's links.
	Next(local, remote State) Link

	// InboundDelivery is used by internal/driver decoding a Transfer frame
	// to get-or-create the delivery a partial transfer accumulates into.
	InboundDelivery(tag string) Delivery

	// FindDelivery looks up an existing delivery by tag without creating
	// one, used by internal/driver to resolve incoming Disposition frames
	// against outgoing deliveries.
	FindDelivery(tag string) Delivery
}

// Sender sends application messages; Send appends payload bytes to the
// current outbound delivery.
type Sender interface {
	Link
	Send(payload []byte) int
	// ApplyFlow sets the link's credit to an absolute value, as carried by
	// an incoming Flow frame (unlike Receiver.Flow, which is additive).
	ApplyFlow(credit int)
}

// Receiver issues flow credit and reads inbound message bytes.
type Receiver interface {
	Link
	Flow(n int)
	// Recv copies up to len(buf) bytes from this receiver's oldest unread
	// inbound delivery, returning the count copied.
	Recv(buf []byte) int
}

type link struct {
	endpoint
	session      *session
	name         string
	role         role
	source       *Terminus
	target       *Terminus
	remoteSource *Terminus
	remoteTarget *Terminus
	credit       int
	queued       int
	current      *delivery
	deliveries   map[string]*delivery
	order        []*delivery // insertion order, for receiver-side Recv ordering
	index        int
	// self is the Sender or Receiver wrapper this link was created as. Head
	// and Next return self instead of l itself, so a caller's type assertion
	// to engine.Sender/engine.Receiver sees the same concrete type the link
	// was created with.
	self Link
}

func newLink(s *session, name string, r role) *link {
	return &link{
		endpoint:   newEndpoint(),
		session:    s,
		name:       name,
		role:       r,
		deliveries: make(map[string]*delivery),
	}
}

func (l *link) Session() Session { return l.session }
func (l *link) Name() string     { return l.name }
func (l *link) IsSender() bool   { return l.role == roleSender }
func (l *link) IsReceiver() bool { return l.role == roleReceiver }

func (l *link) Source() *Terminus           { return l.source }
func (l *link) SetSource(t *Terminus)       { l.source = t }
func (l *link) RemoteSource() *Terminus     { return l.remoteSource }
func (l *link) SetRemoteSource(t *Terminus) { l.remoteSource = t }
func (l *link) Target() *Terminus           { return l.target }
func (l *link) SetTarget(t *Terminus)       { l.target = t }
func (l *link) RemoteTarget() *Terminus     { return l.remoteTarget }
func (l *link) SetRemoteTarget(t *Terminus) { l.remoteTarget = t }

func (l *link) Credit() int { return l.credit }
func (l *link) Queued() int { return l.queued }

func (l *link) Delivery(tag string) Delivery {
	d := newDelivery(l, tag)
	l.deliveries[tag] = d
	l.current = d
	l.queued++
	return d
}

func (l *link) InboundDelivery(tag string) Delivery {
	d, ok := l.deliveries[tag]
	if !ok {
		d = newDelivery(l, tag)
		l.deliveries[tag] = d
		l.order = append(l.order, d)
		if l.role == roleReceiver && l.credit > 0 {
			l.credit--
		}
	}
	return d
}

func (l *link) FindDelivery(tag string) Delivery {
	d, ok := l.deliveries[tag]
	if !ok {
		return nil
	}
	return d
}

// Advance moves past the current outbound delivery. In the real proton
// engine this hands the delivery to the transport for framing; here it
// simply marks the local buffer flushed, since internal/wire writes bytes
// synchronously from Connector.Process. Only meaningful for Sender; Receiver
// overrides it below since a receiver has no single outbound "current".
func (l *link) Advance() {
	if l.current != nil {
		if l.queued > 0 {
			l.queued--
		}
		l.current = nil
	}
}

func (l *link) Next(local, remote State) Link {
	links := l.session.conn.links
	for i := l.index + 1; i < len(links); i++ {
		if links[i].matches(local, remote) {
			return links[i].self
		}
	}
	return nil
}

func (l *link) matches(local, remote State) bool {
	return l.LocalState().Has(local) && l.RemoteState().Has(remote)
}

// senderImpl and receiverImpl narrow *link to the Sender/Receiver surface.
type senderImpl struct{ *link }
type receiverImpl struct{ *link }

func (s *senderImpl) Send(payload []byte) int {
	if s.current == nil {
		return 0
	}
	s.current.appendBytes(payload)
	s.current.partial = false
	s.session.conn.relist(s.current)
	return len(payload)
}

func (r *receiverImpl) Flow(n int) {
	if n <= 0 {
		return
	}
	r.credit += n
}

// Advance consumes the oldest unread inbound delivery: get() calls this
// right after decoding one, so it drops out of Readable()/the work list and
// is never handed to the application twice.
func (r *receiverImpl) Advance() {
	for _, d := range r.order {
		if !d.settled && !d.consumed {
			d.consume()
			return
		}
	}
}

// Queued counts inbound deliveries that have fully arrived and have not yet
// been consumed by Advance.
func (r *receiverImpl) Queued() int {
	n := 0
	for _, d := range r.order {
		if !d.settled && !d.consumed && !d.partial {
			n++
		}
	}
	return n
}

func (s *senderImpl) ApplyFlow(credit int) {
	if credit < 0 {
		credit = 0
	}
	s.credit = credit
}

// Recv copies bytes out of the oldest unread inbound delivery. Credit is
// consumed once per delivery, in InboundDelivery, not per Recv call: a large
// delivery read in several calls as the caller's buffer grows must not
// drain more than one credit.
func (r *receiverImpl) Recv(buf []byte) int {
	d := r.currentInbound()
	if d == nil {
		return 0
	}
	n := copy(buf, d.payload)
	d.consumeBytes(n)
	return n
}

// currentInbound returns the oldest unread inbound delivery on this
// receiver, in arrival order.
func (r *receiverImpl) currentInbound() *delivery {
	for _, d := range r.order {
		if !d.settled && !d.consumed && len(d.payload) > 0 {
			return d
		}
	}
	return nil
}
