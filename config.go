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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a Messenger, letting deployments
// set the fields New's functional options would otherwise require in code.
type Config struct {
	Name        string        `yaml:"name"`
	Timeout     time.Duration `yaml:"timeout"`
	CreditBatch int           `yaml:"credit_batch"`

	IncomingWindow int `yaml:"incoming_window"`
	OutgoingWindow int `yaml:"outgoing_window"`

	Subscriptions []string `yaml:"subscriptions"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds the name of an hclog level. NewFromConfig does not read
// it: a Messenger built from a Config logs through the default discard
// logger unless a WithLogger option is passed.
type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("messenger: read config %s: %w", path, err)
	}
	cfg := &Config{CreditBatch: defaultCreditBatch, Timeout: -1}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("messenger: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// NewFromConfig builds a Messenger from cfg, queuing it to subscribe to
// every address in cfg.Subscriptions once Start is called.
func NewFromConfig(cfg *Config, opts ...Option) *Messenger {
	m := New(cfg.Name, append([]Option{WithTimeout(cfg.Timeout)}, opts...)...)
	m.SetCreditBatch(cfg.CreditBatch)
	m.SetIncomingWindow(cfg.IncomingWindow)
	m.SetOutgoingWindow(cfg.OutgoingWindow)
	m.pendingSubscriptions = append([]string(nil), cfg.Subscriptions...)
	return m
}
