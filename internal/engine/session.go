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

// Session is an AMQP session: a container for links, opened on a Connection
// before any Sender or Receiver can be attached.
type Session interface {
	Endpoint
	Connection() Connection
	Sender(name string) Sender
	Receiver(name string) Receiver
	Next(local, remote State) Session
}

type session struct {
	endpoint
	conn  *connection
	index int
}

func (s *session) Connection() Connection { return s.conn }

func (s *session) Sender(name string) Sender {
	l := newLink(s, name, roleSender)
	sender := &senderImpl{l}
	l.self = sender
	s.conn.addLink(l)
	return sender
}

func (s *session) Receiver(name string) Receiver {
	l := newLink(s, name, roleReceiver)
	receiver := &receiverImpl{l}
	l.self = receiver
	s.conn.addLink(l)
	return receiver
}

func (s *session) Next(local, remote State) Session {
	sessions := s.conn.sessions
	for i := s.index + 1; i < len(sessions); i++ {
		if sessions[i].matches(local, remote) {
			return sessions[i]
		}
	}
	return nil
}

func (s *session) matches(local, remote State) bool {
	return s.LocalState().Has(local) && s.RemoteState().Has(remote)
}
