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

package driver

import (
	"io"
	"net"
	"sync"

	"qpid.apache.org/messenger/internal/engine"
	"qpid.apache.org/messenger/internal/sasl"
	"qpid.apache.org/messenger/internal/wire"
)

// Connector pumps internal/wire.Frame values between one net.Conn and one
// internal/engine.Connection. Every field below except the mutex-guarded
// closed flag is touched only from the single owner goroutine that calls
// Driver.Process/DoWait, matching the cooperative, non-reentrant concurrency
// model the messenger core assumes of its connectors.
type Connector struct {
	driver *Driver
	conn   net.Conn
	codec  *wire.Codec
	engine engine.Connection
	sasl   sasl.Sasl
	server bool

	mu       sync.Mutex
	closedFl bool
	err      error

	sentOpen  bool
	sentClose bool

	nextSessionID    int
	sessionID        map[engine.Session]int
	sessionBeginSent map[engine.Session]bool
	sessionEndSent   map[engine.Session]bool
	remoteSessionByID map[int]engine.Session

	linkAttachSent map[engine.Link]bool
	linkDetachSent map[engine.Link]bool
	linksByName    map[string]engine.Link
	creditSent     map[string]int

	// pending tracks every delivery this connector has ever observed, keyed
	// by tag, independent of the engine's own work list: a delivery drops
	// off the work list the instant the application settles it, but the
	// driver still needs one more pass to tell the peer about that
	// settlement, so it must not lose track of the object just because
	// engine.Connection stopped listing it.
	pending          map[string]engine.Delivery
	transferSent     map[string]bool
	dispositionState map[string]uint64
	dispositionSent  map[string]bool
}

func newConnector(d *Driver, conn net.Conn, server bool) *Connector {
	container := d.container
	engineConn, saslNeg := newEngineForRole(container, server)
	c := &Connector{
		driver:            d,
		conn:              conn,
		codec:             wire.NewCodec(conn),
		engine:            engineConn,
		sasl:              saslNeg,
		server:            server,
		sessionID:         make(map[engine.Session]int),
		sessionBeginSent:  make(map[engine.Session]bool),
		sessionEndSent:    make(map[engine.Session]bool),
		remoteSessionByID: make(map[int]engine.Session),
		linkAttachSent:    make(map[engine.Link]bool),
		linkDetachSent:    make(map[engine.Link]bool),
		linksByName:       make(map[string]engine.Link),
		creditSent:        make(map[string]int),
		pending:           make(map[string]engine.Delivery),
		transferSent:      make(map[string]bool),
		dispositionState:  make(map[string]uint64),
		dispositionSent:   make(map[string]bool),
	}
	engineConn.SetContext(conn.RemoteAddr().String())
	return c
}

// Connection returns the engine.Connection this connector drives. The
// messenger core opens sessions and links, and reads deliveries, entirely
// through this object; Connector never exposes wire.Frame values directly.
func (c *Connector) Connection() engine.Connection { return c.engine }

func (c *Connector) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedFl
}

// Closed reports whether this connector's underlying socket has been torn
// down, either by an explicit Close or by an I/O failure.
func (c *Connector) Closed() bool { return c.closed() }

// Err returns the error that closed this connector, if any.
func (c *Connector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears down the underlying socket. Safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedFl {
		return nil
	}
	c.closedFl = true
	return c.codec.Close()
}

func (c *Connector) fail(err error) {
	c.engine.SetRemoteState(engine.SRemoteClosed)
	c.mu.Lock()
	c.closedFl = true
	c.err = err
	c.mu.Unlock()
	_ = c.codec.Close()
}

// Process runs one non-blocking pass: drain whatever frames have already
// arrived, apply them to c.engine, then push out any local state the
// application changed since the previous pass. It reports whether anything
// happened, so Driver.DoWait can tell idle connectors from busy ones.
func (c *Connector) Process() bool {
	if c.closed() {
		return false
	}
	progress := false
	for {
		f, err := c.codec.ReadFrame(0)
		if err == wire.ErrNoFrame {
			break
		}
		if err == io.EOF || err == net.ErrClosed {
			c.fail(err)
			return true
		}
		if err != nil {
			c.fail(err)
			return true
		}
		c.applyIncoming(f)
		progress = true
	}
	if c.syncOutgoing() {
		progress = true
	}
	return progress
}

func (c *Connector) applyIncoming(f wire.Frame) {
	switch f.Type {
	case wire.TypeOpen:
		c.engine.SetRemoteContainer(f.Container)
		c.engine.SetRemoteState(engine.SRemoteActive)

	case wire.TypeClose:
		c.engine.SetRemoteState(engine.SRemoteClosed)

	case wire.TypeBegin:
		s, _ := c.engine.Session()
		s.SetRemoteState(engine.SRemoteActive)
		c.remoteSessionByID[f.SessionID] = s

	case wire.TypeEnd:
		if s, ok := c.remoteSessionByID[f.SessionID]; ok {
			s.SetRemoteState(engine.SRemoteClosed)
		}

	case wire.TypeAttach:
		sess, ok := c.remoteSessionByID[f.SessionID]
		if !ok {
			break // Begin lost or reordered; nothing to attach onto.
		}
		l, ok := c.linksByName[f.LinkName]
		if !ok {
			if f.Role == wire.RoleSender {
				l = sess.Receiver(f.LinkName)
			} else {
				l = sess.Sender(f.LinkName)
			}
			c.linksByName[f.LinkName] = l
		}
		if f.Role == wire.RoleSender {
			l.SetRemoteSource(&engine.Terminus{Address: f.Address})
		} else {
			l.SetRemoteTarget(&engine.Terminus{Address: f.Address})
		}
		l.SetRemoteState(engine.SRemoteActive)

	case wire.TypeDetach:
		if l, ok := c.linksByName[f.LinkName]; ok {
			l.SetRemoteState(engine.SRemoteClosed)
		}

	case wire.TypeFlow:
		if l, ok := c.linksByName[f.LinkName]; ok {
			if snd, ok := l.(engine.Sender); ok {
				snd.ApplyFlow(f.Credit)
			}
		}

	case wire.TypeTransfer:
		if l, ok := c.linksByName[f.LinkName]; ok {
			if _, ok := l.(engine.Receiver); ok {
				d := l.InboundDelivery(f.DeliveryTag)
				d.Arrive(f.Payload, f.More)
				c.pending[f.DeliveryTag] = d
			}
		}

	case wire.TypeDisposition:
		if l, ok := c.linksByName[f.LinkName]; ok {
			if d := l.FindDelivery(f.DeliveryTag); d != nil {
				d.SetRemoteDisposition(f.State, f.Settled)
			}
		}
	}
}

// syncOutgoing walks the engine.Connection's local state and emits whatever
// frames haven't been sent yet. It is a diff against the sent* bookkeeping
// on c, never a re-derivation from wire state, since there is no wire state
// to read back.
func (c *Connector) syncOutgoing() bool {
	sent := false

	if c.engine.LocalState().Has(engine.SLocalActive) && !c.sentOpen {
		c.write(wire.Frame{Type: wire.TypeOpen, Container: c.engine.Container(), Hostname: c.engine.Hostname()})
		c.sentOpen = true
		sent = true
	}

	for s := c.engine.SessionHead(engine.Any, engine.Any); s != nil; s = s.Next(engine.Any, engine.Any) {
		if s.LocalState().Has(engine.SLocalActive) && !c.sessionBeginSent[s] {
			id := c.nextSessionID
			c.nextSessionID++
			c.sessionID[s] = id
			c.write(wire.Frame{Type: wire.TypeBegin, SessionID: id})
			c.sessionBeginSent[s] = true
			sent = true
		}
		if s.LocalState().Has(engine.SLocalClosed) && c.sessionBeginSent[s] && !c.sessionEndSent[s] {
			c.write(wire.Frame{Type: wire.TypeEnd, SessionID: c.sessionID[s]})
			c.sessionEndSent[s] = true
			sent = true
		}
	}

	for l := c.engine.LinkHead(engine.Any, engine.Any); l != nil; l = l.Next(engine.Any, engine.Any) {
		sid, sessionReady := c.sessionID[l.Session()]
		if l.LocalState().Has(engine.SLocalActive) && !c.linkAttachSent[l] && sessionReady {
			role := wire.RoleReceiver
			addr := ""
			if l.IsSender() {
				role = wire.RoleSender
				if t := l.Source(); t != nil {
					addr = t.Address
				}
			} else if t := l.Target(); t != nil {
				addr = t.Address
			}
			c.write(wire.Frame{Type: wire.TypeAttach, SessionID: sid, LinkName: l.Name(), Role: role, Address: addr})
			c.linksByName[l.Name()] = l
			c.linkAttachSent[l] = true
			sent = true
		}
		if l.LocalState().Has(engine.SLocalClosed) && c.linkAttachSent[l] && !c.linkDetachSent[l] {
			c.write(wire.Frame{Type: wire.TypeDetach, LinkName: l.Name()})
			c.linkDetachSent[l] = true
			sent = true
		}
		if r, ok := l.(engine.Receiver); ok {
			if credit := r.Credit(); credit != c.creditSent[l.Name()] {
				c.write(wire.Frame{Type: wire.TypeFlow, LinkName: l.Name(), Credit: credit})
				c.creditSent[l.Name()] = credit
				sent = true
			}
		}
	}

	for d := c.engine.WorkHead(); d != nil; d = d.WorkNext() {
		if _, ok := c.pending[d.Tag()]; !ok {
			c.pending[d.Tag()] = d
		}
	}

	for tag, d := range c.pending {
		link := d.Link()
		if link.IsSender() {
			if !c.transferSent[tag] && !d.Partial() {
				c.write(wire.Frame{Type: wire.TypeTransfer, LinkName: link.Name(), DeliveryTag: tag, Payload: d.Payload(), More: false})
				c.transferSent[tag] = true
				sent = true
			}
		} else {
			if d.LocalState() != 0 && (c.dispositionState[tag] != d.LocalState() || d.Settled() != c.dispositionSent[tag]) {
				c.write(wire.Frame{Type: wire.TypeDisposition, LinkName: link.Name(), DeliveryTag: tag, State: d.LocalState(), Settled: d.Settled()})
				c.dispositionState[tag] = d.LocalState()
				c.dispositionSent[tag] = d.Settled()
				sent = true
			}
		}
		if d.Settled() && (link.IsSender() || d.LocalState() == 0 || c.dispositionSent[tag]) {
			delete(c.pending, tag)
			delete(c.transferSent, tag)
			delete(c.dispositionState, tag)
			delete(c.dispositionSent, tag)
		}
	}

	return sent
}

func (c *Connector) write(f wire.Frame) {
	if err := c.codec.WriteFrame(f); err != nil {
		c.fail(err)
	}
}
