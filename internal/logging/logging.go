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

// Package logging wires the messenger core's diagnostics onto
// github.com/hashicorp/go-hclog, the leveled logger the broader example
// stack uses for component logging (see absmach-fluxmq's raft transport).
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Logger is the leveled logger every messenger-owned component accepts.
// Re-exporting hclog.Logger keeps the messenger core decoupled from the
// concrete hclog import outside this package.
type Logger = hclog.Logger

// New returns a logger named for one messenger component, writing to
// os.Stderr at the given level.
func New(name string, level hclog.Level) Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: os.Stderr,
	})
}

// Discard returns a logger that drops everything, the default for a
// messenger that hasn't been given an explicit Logger.
func Discard() Logger {
	return hclog.NewNullLogger()
}
