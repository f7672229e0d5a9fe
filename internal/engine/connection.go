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

// Connection is a single AMQP connection's endpoint state: the container
// identities of both ends, its sessions and links, and the work list of
// deliveries with pending local action. internal/driver owns the socket this
// connection is layered over; Connection itself never touches I/O.
type Connection interface {
	Endpoint

	Container() string
	SetContainer(string)
	Hostname() string
	SetHostname(string)
	// Context is an opaque slot the connection registry uses to remember
	// which "host:port" a connector was created for.
	Context() interface{}
	SetContext(interface{})

	RemoteContainer() string
	SetRemoteContainer(string)

	// Session opens (creates) a new session on this connection.
	Session() (Session, error)

	SessionHead(local, remote State) Session
	LinkHead(local, remote State) Link

	// WorkHead is the first delivery with pending local action.
	WorkHead() Delivery
}

type connection struct {
	endpoint
	container       string
	hostname        string
	context         interface{}
	remoteContainer string
	sessions        []*session
	links           []*link
	work            []*delivery
}

// NewConnection creates a Connection with local state UNINITIALIZED. It is
// the sole entry point internal/driver uses to allocate connections, on
// either side of the accept/connect distinction.
func NewConnection(container string) Connection {
	return &connection{endpoint: newEndpoint(), container: container}
}

func (c *connection) Container() string          { return c.container }
func (c *connection) SetContainer(v string)      { c.container = v }
func (c *connection) Hostname() string           { return c.hostname }
func (c *connection) SetHostname(v string)       { c.hostname = v }
func (c *connection) Context() interface{}       { return c.context }
func (c *connection) SetContext(v interface{})   { c.context = v }
func (c *connection) RemoteContainer() string    { return c.remoteContainer }
func (c *connection) SetRemoteContainer(v string) { c.remoteContainer = v }

func (c *connection) Session() (Session, error) {
	s := &session{endpoint: newEndpoint(), conn: c, index: len(c.sessions)}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *connection) SessionHead(local, remote State) Session {
	for _, s := range c.sessions {
		if s.matches(local, remote) {
			return s
		}
	}
	return nil
}

func (c *connection) LinkHead(local, remote State) Link {
	for _, l := range c.links {
		if l.matches(local, remote) {
			return l.self
		}
	}
	return nil
}

func (c *connection) WorkHead() Delivery {
	if len(c.work) == 0 {
		return nil
	}
	return c.work[0]
}

// relist appends d to the work list if it is not already listed.
func (c *connection) relist(d *delivery) {
	if d.listed {
		return
	}
	d.workIndex = len(c.work)
	d.listed = true
	c.work = append(c.work, d)
}

// unlist removes d from the work list, matching Java's TODO-marked
// delivery.clear(): settlement drops a delivery out of the work walk.
func (c *connection) unlist(d *delivery) {
	if !d.listed {
		return
	}
	i := d.workIndex
	c.work = append(c.work[:i], c.work[i+1:]...)
	for j := i; j < len(c.work); j++ {
		c.work[j].workIndex = j
	}
	d.listed = false
}

func (c *connection) workNext(d *delivery) *delivery {
	if !d.listed || d.workIndex+1 >= len(c.work) {
		return nil
	}
	return c.work[d.workIndex+1]
}

func (c *connection) addLink(l *link) {
	l.index = len(c.links)
	c.links = append(c.links, l)
}
