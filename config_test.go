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

import "testing"

// TestNewFromConfigAppliesSubscriptions is a regression test: NewFromConfig
// used to parse Config.Subscriptions and then drop it on the floor. Start
// must now actually subscribe to each listed address.
func TestNewFromConfigAppliesSubscriptions(t *testing.T) {
	cfg := &Config{
		Name:    "from-config",
		Timeout: -1,
		Subscriptions: []string{
			"~amqp://127.0.0.1:0/a",
			"~amqp://127.0.0.1:0/b",
		},
	}
	m := NewFromConfig(cfg)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)

	if got := len(m.listeners); got != 2 {
		t.Fatalf("listeners = %d, want 2", got)
	}
}

// TestNewFromConfigWithoutSubscriptionsStartsCleanly covers the common case
// of a config with no Subscriptions field set.
func TestNewFromConfigWithoutSubscriptionsStartsCleanly(t *testing.T) {
	cfg := &Config{Name: "plain", Timeout: -1}
	m := NewFromConfig(cfg)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)

	if got := len(m.listeners); got != 0 {
		t.Fatalf("listeners = %d, want 0", got)
	}
}
