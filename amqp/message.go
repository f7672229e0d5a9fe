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

// Package amqp is the messenger module's pure-Go stand-in for
// qpid.apache.org/amqp: it carries the same message field set (see
// go/pkg/amqp/message.go in the proton tree) but encodes with encoding/gob
// instead of the AMQP type system, since a real AMQP 1.0 codec is out of
// scope for this module.
package amqp

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// AnnotationKey is a message- or delivery-annotation key: either a symbolic
// name or a numeric code, mirroring the two forms AMQP 1.0 allows.
type AnnotationKey struct {
	Name string
	Code uint64
}

// gob only knows how to cross the wire for a concrete type stored in an
// interface{} field (Body, MessageId, CorrelationId, and the annotation
// maps) once that type has been registered. These cover the common cases;
// an application storing its own type in one of those fields must register
// it the same way before the first Encode.
func init() {
	gob.Register("")
	gob.Register(int(0))
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register(map[string]interface{}{})
	gob.Register(AnnotationKey{})
}

// Message is the interface to an AMQP message, independent of how it is
// encoded on the wire.
type Message interface {
	Durable() bool
	SetDurable(bool)

	Priority() uint8
	SetPriority(uint8)

	TTL() time.Duration
	SetTTL(time.Duration)

	FirstAcquirer() bool
	SetFirstAcquirer(bool)

	DeliveryCount() uint32
	SetDeliveryCount(uint32)

	MessageId() interface{}
	SetMessageId(interface{})

	UserId() string
	SetUserId(string)

	Address() string
	SetAddress(string)

	Subject() string
	SetSubject(string)

	ReplyTo() string
	SetReplyTo(string)

	CorrelationId() interface{}
	SetCorrelationId(interface{})

	ContentType() string
	SetContentType(string)

	ContentEncoding() string
	SetContentEncoding(string)

	ExpiryTime() time.Time
	SetExpiryTime(time.Time)

	CreationTime() time.Time
	SetCreationTime(time.Time)

	GroupId() string
	SetGroupId(string)

	GroupSequence() int32
	SetGroupSequence(int32)

	ReplyToGroupId() string
	SetReplyToGroupId(string)

	ApplicationProperties() map[string]interface{}
	SetApplicationProperties(map[string]interface{})

	DeliveryAnnotations() map[AnnotationKey]interface{}
	SetDeliveryAnnotations(map[AnnotationKey]interface{})

	MessageAnnotations() map[AnnotationKey]interface{}
	SetMessageAnnotations(map[AnnotationKey]interface{})

	Body() interface{}
	SetBody(interface{})

	// Encode writes the encoded message into buffer's backing array, starting
	// at index 0, and returns the result. If buffer is too small to be reused
	// it is discarded and a new slice is returned, which messenger.Put's
	// grow-and-retry loop detects by length to size its own buffer.
	Encode(buffer []byte) ([]byte, error)
	// Decode overwrites this message's contents by decoding buffer.
	Decode(buffer []byte) error

	// Clear resets every field to its default value.
	Clear()
	// Copy replaces this message's contents with a deep copy of x.
	Copy(x Message) error

	String() string
}

// wireMessage is the gob-serializable projection of message. gob only
// encodes exported fields, so this mirror exists purely to cross the wire;
// message itself keeps the teacher's lowercase field naming.
type wireMessage struct {
	Address               string
	ApplicationProperties map[string]interface{}
	ContentEncoding       string
	ContentType           string
	CorrelationId         interface{}
	CreationTime          time.Time
	DeliveryAnnotations   map[AnnotationKey]interface{}
	DeliveryCount         uint32
	Durable               bool
	ExpiryTime            time.Time
	FirstAcquirer         bool
	GroupId               string
	GroupSequence         int32
	MessageAnnotations    map[AnnotationKey]interface{}
	MessageId             interface{}
	Priority              uint8
	ReplyTo               string
	ReplyToGroupId        string
	Subject               string
	TTL                   time.Duration
	UserId                string
	Body                  interface{}
}

type message struct {
	address               string
	applicationProperties map[string]interface{}
	contentEncoding       string
	contentType           string
	correlationId         interface{}
	creationTime          time.Time
	deliveryAnnotations   map[AnnotationKey]interface{}
	deliveryCount         uint32
	durable               bool
	expiryTime            time.Time
	firstAcquirer         bool
	groupId               string
	groupSequence         int32
	messageAnnotations    map[AnnotationKey]interface{}
	messageId             interface{}
	priority              uint8
	replyTo               string
	replyToGroupId        string
	subject               string
	ttl                   time.Duration
	userId                string
	body                  interface{}
}

// NewMessage creates a message with default field values (priority 4,
// matching the proton default).
func NewMessage() Message {
	m := &message{}
	m.Clear()
	return m
}

// NewMessageWith creates a message with value as its body.
func NewMessageWith(value interface{}) Message {
	m := NewMessage()
	m.SetBody(value)
	return m
}

func (m *message) Clear() { *m = message{priority: 4} }

func (m *message) Copy(x Message) error {
	encoded, err := x.Encode(nil)
	if err != nil {
		return err
	}
	return m.Decode(encoded)
}

func (m *message) Durable() bool                      { return m.durable }
func (m *message) SetDurable(v bool)                  { m.durable = v }
func (m *message) Priority() uint8                    { return m.priority }
func (m *message) SetPriority(v uint8)                { m.priority = v }
func (m *message) TTL() time.Duration                 { return m.ttl }
func (m *message) SetTTL(v time.Duration)             { m.ttl = v }
func (m *message) FirstAcquirer() bool                { return m.firstAcquirer }
func (m *message) SetFirstAcquirer(v bool)            { m.firstAcquirer = v }
func (m *message) DeliveryCount() uint32              { return m.deliveryCount }
func (m *message) SetDeliveryCount(v uint32)          { m.deliveryCount = v }
func (m *message) MessageId() interface{}             { return m.messageId }
func (m *message) SetMessageId(v interface{})         { m.messageId = v }
func (m *message) UserId() string                     { return m.userId }
func (m *message) SetUserId(v string)                 { m.userId = v }
func (m *message) Address() string                    { return m.address }
func (m *message) SetAddress(v string)                { m.address = v }
func (m *message) Subject() string                    { return m.subject }
func (m *message) SetSubject(v string)                { m.subject = v }
func (m *message) ReplyTo() string                    { return m.replyTo }
func (m *message) SetReplyTo(v string)                { m.replyTo = v }
func (m *message) CorrelationId() interface{}         { return m.correlationId }
func (m *message) SetCorrelationId(v interface{})     { m.correlationId = v }
func (m *message) ContentType() string                { return m.contentType }
func (m *message) SetContentType(v string)            { m.contentType = v }
func (m *message) ContentEncoding() string             { return m.contentEncoding }
func (m *message) SetContentEncoding(v string)         { m.contentEncoding = v }
func (m *message) ExpiryTime() time.Time              { return m.expiryTime }
func (m *message) SetExpiryTime(v time.Time)          { m.expiryTime = v }
func (m *message) CreationTime() time.Time            { return m.creationTime }
func (m *message) SetCreationTime(v time.Time)        { m.creationTime = v }
func (m *message) GroupId() string                    { return m.groupId }
func (m *message) SetGroupId(v string)                { m.groupId = v }
func (m *message) GroupSequence() int32               { return m.groupSequence }
func (m *message) SetGroupSequence(v int32)           { m.groupSequence = v }
func (m *message) ReplyToGroupId() string             { return m.replyToGroupId }
func (m *message) SetReplyToGroupId(v string)         { m.replyToGroupId = v }
func (m *message) ApplicationProperties() map[string]interface{} {
	return m.applicationProperties
}
func (m *message) SetApplicationProperties(v map[string]interface{}) { m.applicationProperties = v }
func (m *message) DeliveryAnnotations() map[AnnotationKey]interface{} {
	return m.deliveryAnnotations
}
func (m *message) SetDeliveryAnnotations(v map[AnnotationKey]interface{}) {
	m.deliveryAnnotations = v
}
func (m *message) MessageAnnotations() map[AnnotationKey]interface{} {
	return m.messageAnnotations
}
func (m *message) SetMessageAnnotations(v map[AnnotationKey]interface{}) {
	m.messageAnnotations = v
}
func (m *message) Body() interface{}     { return m.body }
func (m *message) SetBody(v interface{}) { m.body = v }

func (m *message) String() string {
	return fmt.Sprintf("Message{address=%q, subject=%q, body=%v}", m.address, m.subject, m.body)
}

func (m *message) toWire() *wireMessage {
	return &wireMessage{
		Address:               m.address,
		ApplicationProperties: m.applicationProperties,
		ContentEncoding:       m.contentEncoding,
		ContentType:           m.contentType,
		CorrelationId:         m.correlationId,
		CreationTime:          m.creationTime,
		DeliveryAnnotations:   m.deliveryAnnotations,
		DeliveryCount:         m.deliveryCount,
		Durable:               m.durable,
		ExpiryTime:            m.expiryTime,
		FirstAcquirer:         m.firstAcquirer,
		GroupId:               m.groupId,
		GroupSequence:         m.groupSequence,
		MessageAnnotations:    m.messageAnnotations,
		MessageId:             m.messageId,
		Priority:              m.priority,
		ReplyTo:               m.replyTo,
		ReplyToGroupId:        m.replyToGroupId,
		Subject:               m.subject,
		TTL:                   m.ttl,
		UserId:                m.userId,
		Body:                  m.body,
	}
}

func (m *message) fromWire(w *wireMessage) {
	m.address = w.Address
	m.applicationProperties = w.ApplicationProperties
	m.contentEncoding = w.ContentEncoding
	m.contentType = w.ContentType
	m.correlationId = w.CorrelationId
	m.creationTime = w.CreationTime
	m.deliveryAnnotations = w.DeliveryAnnotations
	m.deliveryCount = w.DeliveryCount
	m.durable = w.Durable
	m.expiryTime = w.ExpiryTime
	m.firstAcquirer = w.FirstAcquirer
	m.groupId = w.GroupId
	m.groupSequence = w.GroupSequence
	m.messageAnnotations = w.MessageAnnotations
	m.messageId = w.MessageId
	m.priority = w.Priority
	m.replyTo = w.ReplyTo
	m.replyToGroupId = w.ReplyToGroupId
	m.subject = w.Subject
	m.ttl = w.TTL
	m.userId = w.UserId
	m.body = w.Body
}

// Encode gob-encodes m, reusing buffer's backing array when it is already
// large enough. It never returns a "too small" error and never truncates:
// callers that pre-size buffer (see messenger.Put) compare the returned
// length with their buffer's to decide whether to grow it.
func (m *message) Encode(buffer []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(m.toWire()); err != nil {
		return nil, fmt.Errorf("amqp: encode message: %w", err)
	}
	if buffer != nil && cap(buffer) >= out.Len() {
		buffer = buffer[:out.Len()]
		copy(buffer, out.Bytes())
		return buffer, nil
	}
	return out.Bytes(), nil
}

func (m *message) Decode(buffer []byte) error {
	var w wireMessage
	if err := gob.NewDecoder(bytes.NewReader(buffer)).Decode(&w); err != nil {
		return fmt.Errorf("amqp: decode message: %w", err)
	}
	m.fromWire(&w)
	return nil
}
