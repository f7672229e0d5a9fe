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
	"qpid.apache.org/messenger/internal/driver"
	"qpid.apache.org/messenger/internal/engine"
)

// connEntry pairs a driver.Connector with the (host, port) key it was
// created for, if any. Server-accepted connectors carry an empty key: the
// local side never chose a host:port for them, so their context is the
// peer's remote address that the driver set, and find matches them by
// remote container or by that address.
type connEntry struct {
	host, port string
	connector  *driver.Connector
}

// registry is the connection lookup-or-create table the link finder
// consults: at most one connector per distinct remote peer, reused across
// every put/subscribe that targets it.
type registry struct {
	drv     *driver.Driver
	entries []*connEntry
}

func newRegistry(d *driver.Driver) *registry {
	return &registry{drv: d}
}

// connections returns the engine.Connection of every live connector,
// registry-tracked or listener-accepted.
func (r *registry) connections() []engine.Connection {
	out := make([]engine.Connection, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.connector.Connection())
	}
	return out
}

// find looks up an existing connector for host, matching either by remote
// container identity or by the "host:port" context string set when a
// connector was created. Per the open question in the component design,
// this dual match can alias a container name with a context string; a
// context-only match would avoid that at the cost of source parity.
func (r *registry) find(host, port string) *connEntry {
	ctx := host + ":" + port
	for _, e := range r.entries {
		conn := e.connector.Connection()
		if conn.RemoteContainer() == host {
			return e
		}
		if s, ok := conn.Context().(string); ok && s == ctx {
			return e
		}
	}
	return nil
}

func (r *registry) add(e *connEntry) {
	r.entries = append(r.entries, e)
}

// all returns every tracked entry, registry-keyed or listener-adopted.
func (r *registry) all() []*connEntry {
	out := make([]*connEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *registry) contains(c *driver.Connector) bool {
	for _, e := range r.entries {
		if e.connector == c {
			return true
		}
	}
	return false
}

// adopt registers a connector accepted by a Listener, with no host/port key.
func (r *registry) adopt(c *driver.Connector) *connEntry {
	e := &connEntry{connector: c}
	r.add(e)
	return e
}

func (r *registry) remove(e *connEntry) {
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}
