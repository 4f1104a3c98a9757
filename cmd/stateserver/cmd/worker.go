// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tochemey/stateserver/internal/validation"
	"github.com/tochemey/stateserver/internal/workerclient"
	"github.com/tochemey/stateserver/protocol"
)

type workerFlags struct {
	addr    string
	name    string
	key     string
	value   string
	timeout time.Duration
}

func newWorkerCommand() *cobra.Command {
	flags := &workerFlags{}
	command := &cobra.Command{
		Use:   "worker",
		Short: "Act as a worker: write one value state entry, read it back and close the handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := validation.New(validation.FailFast()).
				AddCheck(flags.addr != "", errors.New("the [addr] is required")).
				AddCheck(flags.name != "", errors.New("the [name] is required")).
				Validate()
			if err != nil {
				return err
			}
			return runWorker(cmd, flags)
		},
	}

	command.Flags().StringVar(&flags.addr, "addr", "", "address of the state server")
	command.Flags().StringVar(&flags.name, "name", "count", "value state name")
	command.Flags().StringVar(&flags.key, "key", "", "grouping key")
	command.Flags().StringVar(&flags.value, "value", "", "value to store")
	command.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "overall deadline")
	return command
}

func runWorker(cmd *cobra.Command, flags *workerFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	client, err := workerclient.Dial(ctx, flags.addr)
	if err != nil {
		return err
	}
	defer client.Close()

	steps := []protocol.Request{
		&protocol.SetHandleState{State: protocol.HandleInitialized},
		&protocol.RegisterState{Kind: protocol.ValueStateKind, Name: flags.name},
		&protocol.SetGroupingKey{Key: []byte(flags.key)},
		&protocol.ValueStateCall{Name: flags.name, Op: protocol.ValueUpdate{Value: []byte(flags.value)}},
	}
	for _, step := range steps {
		if err := call(ctx, client, step); err != nil {
			return err
		}
	}

	resp, err := client.Call(ctx, &protocol.ValueStateCall{Name: flags.name, Op: protocol.ValueGet{}})
	if err != nil {
		return err
	}
	if resp.Present {
		fmt.Fprintf(cmd.OutOrStdout(), "%s[%s] = %s\n", flags.name, flags.key, resp.Value)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s[%s] is absent\n", flags.name, flags.key)
	}

	return call(ctx, client, &protocol.SetHandleState{State: protocol.HandleClosed})
}

func call(ctx context.Context, client *workerclient.Client, req protocol.Request) error {
	resp, err := client.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.CallName(), err)
	}
	if !resp.Succeeded() {
		return fmt.Errorf("%s: rejected by the server", req.CallName())
	}
	return nil
}
