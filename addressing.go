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
	"net/url"
	"strings"
)

// parseAddress splits an AMQP address URI into the pieces getLink needs:
// host, resolved port and a link-key path with any single leading '/'
// stripped. Mirrors qpid.apache.org/amqp's UpdateURL defaulting: missing
// scheme (no "://") defaults to amqp, missing port defaults from the scheme.
func parseAddress(addr string) (host, port, path string, err error) {
	raw := addr
	if !strings.Contains(raw, "://") {
		raw = "amqp://" + raw
	}
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", "", "", &InvalidAddressError{Address: addr, Reason: perr.Error()}
	}
	host = u.Hostname()
	if host == "" {
		return "", "", "", &InvalidAddressError{Address: addr, Reason: "missing host"}
	}
	port = u.Port()
	if port == "" {
		port = defaultPort(u.Scheme)
	}
	path = cleanPath(u.Path)
	return host, port, path, nil
}
