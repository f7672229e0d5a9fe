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

// Package driver pumps internal/wire frames between an internal/engine
// Connection graph and a net.Conn, and accepts inbound net.Conns on
// listeners. It is the messenger core's stand-in for the real proton
// engine's transport pump (qpid.apache.org/proton's Transport in the C
// library, driven from Go through electron.Connection); spec.md §1 places
// the wire codec itself out of scope, so this package only needs to move
// internal/wire.Frame values in a way that keeps two internal/engine graphs
// in sync.
package driver

import (
	"fmt"
	"net"
	"sync"
	"time"

	"qpid.apache.org/messenger/internal/engine"
	"qpid.apache.org/messenger/internal/sasl"
)

// Driver owns every Connector and Listener created for one messenger. It has
// no goroutine of its own; DoWait is called from the messenger's single
// owner thread and only blocks the calling goroutine.
type Driver struct {
	mu         sync.Mutex
	container  string
	connectors []*Connector
	listeners  []*Listener
}

// New creates a Driver whose connections identify as container.
func New(container string) *Driver {
	return &Driver{container: container}
}

// Connect dials address and returns a new client-side Connector.
func (d *Driver) Connect(network, address string) (*Connector, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("driver: dial %s: %w", address, err)
	}
	c := newConnector(d, conn, false)
	d.mu.Lock()
	d.connectors = append(d.connectors, c)
	d.mu.Unlock()
	return c, nil
}

// Listen starts accepting server-side Connectors on address.
func (d *Driver) Listen(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("driver: listen %s: %w", address, err)
	}
	l := newListener(d, ln)
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
	return l, nil
}

// Connectors returns a snapshot of every live connector, draining newly
// accepted ones off each Listener first.
func (d *Driver) Connectors() []*Connector {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.listeners {
		for {
			c := l.drain()
			if c == nil {
				break
			}
			d.connectors = append(d.connectors, c)
		}
	}
	live := d.connectors[:0]
	for _, c := range d.connectors {
		if !c.closed() {
			live = append(live, c)
		}
	}
	d.connectors = live
	out := make([]*Connector, len(d.connectors))
	copy(out, d.connectors)
	return out
}

// Listeners returns every Listener registered on this driver.
func (d *Driver) Listeners() []*Listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Listener, len(d.listeners))
	copy(out, d.listeners)
	return out
}

// Process pumps every connector once: reads any frames currently available,
// applies them to the connector's engine.Connection, then writes out
// whatever local state changed since the last pass. It never blocks; DoWait
// is responsible for pacing repeated calls against a deadline.
func (d *Driver) Process() (progress bool) {
	for _, c := range d.Connectors() {
		if c.Process() {
			progress = true
		}
	}
	return progress
}

// DoWait calls Process in a loop, sleeping briefly between empty passes,
// until either progress is made, the deadline elapses, or deadline is
// negative (wait forever until progress).
func (d *Driver) DoWait(deadline time.Duration) bool {
	const pollInterval = 5 * time.Millisecond
	start := time.Now()
	for {
		if d.Process() {
			return true
		}
		if deadline >= 0 && time.Since(start) >= deadline {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func newEngineForRole(container string, isServer bool) (engine.Connection, sasl.Sasl) {
	conn := engine.NewConnection(container)
	var s sasl.Sasl
	if isServer {
		s = sasl.New()
		s.Server([]string{"ANONYMOUS"})
	} else {
		s = sasl.New()
		s.Client([]string{"ANONYMOUS"})
	}
	s.Done(sasl.OutcomeOK)
	return conn, s
}
