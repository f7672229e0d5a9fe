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

// Command qpid-msg is a small CLI wrapping the messenger package's put,
// subscribe and recv operations, in the spirit of proton's examples/go
// send.go and receive.go but as two subcommands of one binary instead of
// two programs.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"qpid.apache.org/messenger"
	"qpid.apache.org/messenger/amqp"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var name string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "qpid-msg",
		Short: "send and receive AMQP messages through a messenger endpoint",
	}
	cmd.PersistentFlags().StringVar(&name, "name", "", "container name (random if empty)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "operation timeout")

	cmd.AddCommand(newPutCommand(&name, &timeout))
	cmd.AddCommand(newRecvCommand(&name, &timeout))
	return cmd
}

func newPutCommand(name *string, timeout *time.Duration) *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "put <address>",
		Short: "send one message and wait for it to settle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := messenger.New(*name, messenger.WithTimeout(*timeout))
			if err := m.Start(); err != nil {
				return err
			}
			defer m.Stop()

			msg := amqp.NewMessage()
			msg.SetAddress(args[0])
			msg.SetBody(body)
			if _, err := m.Put(msg); err != nil {
				return err
			}
			if err := m.Send(); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "message body text")
	return cmd
}

func newRecvCommand(name *string, timeout *time.Duration) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "recv <source>",
		Short: "subscribe to source and print the next messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := messenger.New(*name, messenger.WithTimeout(*timeout))
			if err := m.Start(); err != nil {
				return err
			}
			defer m.Stop()

			if err := m.Subscribe(args[0]); err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				if err := m.Recv(1); err != nil {
					return err
				}
				msg, err := m.Get()
				if err != nil {
					return err
				}
				if msg == nil {
					continue
				}
				m.Accept(m.IncomingTracker(), 0)
				fmt.Printf("%v\n", msg.Body())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of messages to receive")
	return cmd
}
