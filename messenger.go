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

// Package messenger multiplexes many AMQP 1.0 conversations through a
// single user-visible endpoint: it opens connections, sessions and links
// on demand, transfers encoded messages, and tracks delivery outcomes
// through a pair of bounded-window tracker queues. It has no thread of its
// own; every operation runs on whichever goroutine calls it, and none of
// them may be called concurrently from more than one goroutine at a time.
package messenger

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"qpid.apache.org/messenger/amqp"
	"qpid.apache.org/messenger/internal/driver"
	"qpid.apache.org/messenger/internal/engine"
	"qpid.apache.org/messenger/internal/logging"
)

// Messenger is the owner of all state for one messaging endpoint: its
// name, timeout, driver, scratch buffer, tag counter, credit pool and the
// two tracker queues. Every field is touched only by the caller's
// goroutine; there is no internal locking.
type Messenger struct {
	name    string
	timeout time.Duration

	driver   *driver.Driver
	registry *registry
	log      logging.Logger

	scratch    []byte
	tagCounter uint64

	credit      int
	distributed int
	unlimited   bool
	creditBatch int

	outgoing *trackerQueue
	incoming *trackerQueue

	listeners []*driver.Listener

	// pendingSubscriptions is populated by NewFromConfig from
	// Config.Subscriptions and applied by Start, since Subscribe needs the
	// driver Start creates.
	pendingSubscriptions []string
}

// Option configures a Messenger at construction time.
type Option func(*Messenger)

// WithLogger overrides the default discard logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Messenger) { m.log = l }
}

// WithTimeout sets the initial timeout applied to Send, Recv and Stop.
// Negative means wait forever.
func WithTimeout(d time.Duration) Option {
	return func(m *Messenger) { m.timeout = d }
}

// New creates a Messenger. An empty name is replaced with a random UUID,
// matching proton's container-id defaulting.
func New(name string, opts ...Option) *Messenger {
	if name == "" {
		name = uuid.NewString()
	}
	m := &Messenger{
		name:        name,
		timeout:     -1,
		log:         logging.Discard(),
		outgoing:    newTrackerQueue(Outgoing),
		incoming:    newTrackerQueue(Incoming),
		creditBatch: defaultCreditBatch,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Messenger) Name() string { return m.name }

// Start creates the driver backing this messenger, then subscribes it to
// every address queued by NewFromConfig's Config.Subscriptions. Must be
// called before any operation that touches the network.
func (m *Messenger) Start() error {
	m.driver = driver.New(m.name)
	m.registry = newRegistry(m.driver)
	for _, source := range m.pendingSubscriptions {
		if err := m.Subscribe(source); err != nil {
			return fmt.Errorf("messenger: subscribe %s: %w", source, err)
		}
	}
	return nil
}

// Stop closes every connection, flushes each connector's close frame,
// closes every listener, then waits for AllClosed up to the configured
// timeout. A timeout stopping cleanly is logged, not returned, since Stop
// promises to release local resources regardless.
func (m *Messenger) Stop() {
	for _, e := range m.registry.all() {
		e.connector.Connection().Close()
		e.connector.Process()
	}
	for _, l := range m.listeners {
		_ = l.Close()
	}
	if err := m.waitUntil(m.allClosed, m.timeout, "stop"); err != nil {
		m.log.Warn("stop did not observe every connector closing in time", "error", err)
	}
	m.driver = nil
}

func (m *Messenger) nextTag() string {
	return strconv.FormatUint(atomic.AddUint64(&m.tagCounter, 1), 10)
}

// growEncode encodes msg, doubling m.scratch and retrying whenever the
// encoded form didn't fit in the buffer handed to it, so m.scratch only
// ever grows (invariant: never shrinks below the largest message seen).
func (m *Messenger) growEncode(msg amqp.Message) ([]byte, error) {
	if len(m.scratch) == 0 {
		m.scratch = make([]byte, 1024)
	}
	for {
		encoded, err := msg.Encode(m.scratch)
		if err != nil {
			return nil, err
		}
		if len(encoded) <= len(m.scratch) {
			return encoded, nil
		}
		grown := len(m.scratch)
		for grown < len(encoded) {
			grown *= 2
		}
		m.scratch = make([]byte, grown)
	}
}

// growCopy copies payload into m.scratch, growing it first if it's too
// small, and returns the occupied prefix.
func (m *Messenger) growCopy(payload []byte) []byte {
	if len(m.scratch) < len(payload) {
		grown := len(m.scratch)
		if grown == 0 {
			grown = 1024
		}
		for grown < len(payload) {
			grown *= 2
		}
		m.scratch = make([]byte, grown)
	}
	copy(m.scratch, payload)
	return m.scratch[:len(payload)]
}

// Put encodes msg and hands it to a sender for its address, appending the
// resulting delivery to the outgoing tracker queue.
func (m *Messenger) Put(msg amqp.Message) (Tracker, error) {
	host, port, path, err := parseAddress(msg.Address())
	if err != nil {
		return Tracker{}, err
	}

	link, err := m.getLink(host, port, senderFinder{path: path})
	if err != nil {
		return Tracker{}, err
	}
	sender := link.(engine.Sender)

	replyTo := msg.ReplyTo()
	switch {
	case replyTo == "":
		msg.SetReplyTo("amqp://" + m.name)
	case strings.HasPrefix(replyTo, "~/"):
		msg.SetReplyTo("amqp://" + m.name + "/" + replyTo[2:])
	}

	tag := m.nextTag()
	delivery := sender.Delivery(tag)

	encoded, err := m.growEncode(msg)
	if err != nil {
		return Tracker{}, fmt.Errorf("messenger: encode message: %w", err)
	}
	sender.Send(encoded)
	sender.Advance()

	t := m.outgoing.add(delivery)
	m.process()
	return t, nil
}

// Send blocks until every queued outgoing delivery has settled or its
// connection has closed out from under it.
func (m *Messenger) Send() error {
	return m.waitUntil(m.sentSettled, m.timeout, "send")
}

// Recv adds n to the receive credit pool (n == -1 requests unlimited
// credit) and waits for at least one full message to become available.
func (m *Messenger) Recv(n int) error {
	m.recv(n)
	return m.waitUntil(m.messageAvailable, m.timeout, "recv")
}

// Get returns the next fully-arrived, unread message, or nil if none is
// available right now. It never blocks; call Recv first to wait for one.
func (m *Messenger) Get() (amqp.Message, error) {
	m.process()
	for _, conn := range m.registry.connections() {
		for d := conn.WorkHead(); d != nil; d = d.WorkNext() {
			if !d.Readable() || d.Partial() {
				continue
			}
			raw := m.growCopy(d.Payload())
			msg := amqp.NewMessage()
			if err := msg.Decode(raw); err != nil {
				return nil, fmt.Errorf("messenger: decode message: %w", err)
			}
			m.incoming.add(d)
			m.distributed--
			d.Link().Advance()
			return msg, nil
		}
	}
	return nil, nil
}

// Subscribe arranges to receive from source. A source containing '~' is a
// listener bind spec; otherwise it opens (or reuses) a receive link ready
// to be issued credit by Recv.
func (m *Messenger) Subscribe(source string) error {
	if strings.Contains(source, "~") {
		stripped := strings.Replace(source, "~", "", 1)
		host, port, _, err := parseAddress(stripped)
		if err != nil {
			return err
		}
		l, err := m.driver.Listen("tcp", host+":"+port)
		if err != nil {
			return fmt.Errorf("messenger: listen %s:%s: %w", host, port, err)
		}
		m.listeners = append(m.listeners, l)
		return nil
	}
	host, port, path, err := parseAddress(source)
	if err != nil {
		return err
	}
	_, err = m.getLink(host, port, receiverFinder{path: path})
	return err
}

// Accept sets a terminal Accepted disposition on the delivery(ies) t
// selects.
func (m *Messenger) Accept(t Tracker, flags Flags) { m.queueFor(t).accept(t, flags) }

// Reject sets a terminal Rejected disposition on the delivery(ies) t
// selects.
func (m *Messenger) Reject(t Tracker, flags Flags) { m.queueFor(t).reject(t, flags) }

// Settle marks the delivery(ies) t selects as no longer disposition
// pending.
func (m *Messenger) Settle(t Tracker, flags Flags) { m.queueFor(t).settle(t, flags) }

// GetStatus returns the disposition status recorded for t, or
// StatusUnknown if t has expired or was never issued.
func (m *Messenger) GetStatus(t Tracker) Status { return m.queueFor(t).getStatus(t) }

func (m *Messenger) queueFor(t Tracker) *trackerQueue {
	if t.dir == Incoming {
		return m.incoming
	}
	return m.outgoing
}

// OutgoingTracker returns the tracker of the most recently Put message.
func (m *Messenger) OutgoingTracker() Tracker { return m.outgoing.last() }

// IncomingTracker returns the tracker of the most recently Get message.
func (m *Messenger) IncomingTracker() Tracker { return m.incoming.last() }

func (m *Messenger) Timeout() time.Duration     { return m.timeout }
func (m *Messenger) SetTimeout(d time.Duration) { m.timeout = d }

func (m *Messenger) SetIncomingWindow(w int) { m.incoming.setWindow(w) }
func (m *Messenger) SetOutgoingWindow(w int) { m.outgoing.setWindow(w) }

// CreditBatch returns the per-receiver batch size the credit controller
// targets; defaults to 10.
func (m *Messenger) CreditBatch() int { return m.creditBatch }

// SetCreditBatch overrides the credit controller's per-receiver batch
// size.
func (m *Messenger) SetCreditBatch(n int) {
	if n > 0 {
		m.creditBatch = n
	}
}

// Outgoing returns the number of messages queued for delivery across every
// active sender: the sum of Queued() over each (local=ACTIVE, remote=ANY)
// sender link, not the tracker-queue history size.
func (m *Messenger) Outgoing() int { return queuedOn(m.registry.connections(), true) }

// Incoming returns the number of messages queued for the application across
// every active receiver: the sum of Queued() (fully arrived deliveries not
// yet returned by Get) over each (local=ACTIVE, remote=ANY) receiver link,
// not the tracker-queue history size.
func (m *Messenger) Incoming() int { return queuedOn(m.registry.connections(), false) }
