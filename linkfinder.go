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
	"strings"

	"qpid.apache.org/messenger/internal/engine"
)

// finder is the match-or-create strategy getLink uses to reuse or allocate
// a link. senderFinder and receiverFinder are the two concrete strategies;
// a tagged-variant dispatcher was considered and rejected in favor of two
// small inline types (see design notes on the polymorphic link finder).
type finder interface {
	test(l engine.Link) (engine.Link, bool)
	create(s engine.Session) engine.Link
}

type senderFinder struct{ path string }

func (f senderFinder) test(l engine.Link) (engine.Link, bool) {
	if !l.IsSender() || !matchAddress(l.Source(), f.path) {
		return nil, false
	}
	return l, true
}

func (f senderFinder) create(s engine.Session) engine.Link {
	l := s.Sender(f.path)
	l.SetSource(&engine.Terminus{Address: f.path})
	return l
}

type receiverFinder struct{ path string }

func (f receiverFinder) test(l engine.Link) (engine.Link, bool) {
	if !l.IsReceiver() || !matchAddress(l.Target(), f.path) {
		return nil, false
	}
	return l, true
}

func (f receiverFinder) create(s engine.Session) engine.Link {
	l := s.Receiver(f.path)
	l.SetTarget(&engine.Terminus{Address: f.path})
	return l
}

// matchAddress reports whether t's address equals path, treating a nil
// Terminus (no source/target set) as matching the empty path.
func matchAddress(t *engine.Terminus, path string) bool {
	if t == nil {
		return path == ""
	}
	return t.Address == path
}

// cleanPath strips a single leading '/' from a URI path, per the link key
// definition: "the URI path with any single leading '/' stripped".
func cleanPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path[1:]
	}
	return path
}

// defaultPort returns the AMQP default port for scheme: 5671 for amqps,
// 5672 for anything else.
func defaultPort(scheme string) string {
	if scheme == "amqps" {
		return "5671"
	}
	return "5672"
}

// getLink resolves the connection for (host, port), reusing a registered
// connector if one already serves that peer, then match-or-creates a link
// on it via f.
func (m *Messenger) getLink(host, port string, f finder) (engine.Link, error) {
	entry := m.registry.find(host, port)
	var conn engine.Connection
	if entry != nil {
		conn = entry.connector.Connection()
	} else {
		connector, err := m.driver.Connect("tcp", host+":"+port)
		if err != nil {
			return nil, fmt.Errorf("messenger: connect %s:%s: %w", host, port, err)
		}
		conn = connector.Connection()
		conn.SetHostname(host)
		conn.SetContext(host + ":" + port)
		conn.Open()
		m.registry.add(&connEntry{host: host, port: port, connector: connector})
	}

	for l := conn.LinkHead(engine.SLocalActive, engine.Any); l != nil; l = l.Next(engine.SLocalActive, engine.Any) {
		if match, ok := f.test(l); ok {
			return match, nil
		}
	}

	session, err := conn.Session()
	if err != nil {
		return nil, fmt.Errorf("messenger: open session: %w", err)
	}
	session.Open()
	l := f.create(session)
	l.Open()
	return l, nil
}
