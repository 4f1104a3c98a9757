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
	"net"
	"time"

	"github.com/spf13/cobra"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/internal/frame"
	"github.com/tochemey/stateserver/internal/validation"
	"github.com/tochemey/stateserver/log"
	"github.com/tochemey/stateserver/partition"
	"github.com/tochemey/stateserver/server"
	"github.com/tochemey/stateserver/statestore"
)

const (
	backendMemory = "memory"
	backendBolt   = "bolt"
	backendBadger = "badger"
)

var errPathRequired = errors.New("the [path] is required for the bolt and badger backends")

type serveFlags struct {
	listen        string
	backend       string
	path          string
	partition     int
	logLevel      string
	idleTimeout   time.Duration
	acceptTimeout time.Duration
	maxFrameSize  uint32
}

func (f *serveFlags) validate() error {
	return validation.New().
		AddValidator(validation.NewListenAddressValidator(f.listen)).
		AddValidator(validation.NewOneOfValidator("backend", f.backend, backendMemory, backendBolt, backendBadger)).
		AddValidator(validation.NewOneOfValidator("log-level", f.logLevel, "debug", "info", "warn", "error")).
		AddCheck(f.backend == backendMemory || f.path != "", errPathRequired).
		AddCheck(f.partition >= 0, gerrors.ErrInvalidPartition).
		AddCheck(f.maxFrameSize > 0, errors.New("the [max-frame-size] must be positive")).
		Validate()
}

func newServeCommand() *cobra.Command {
	flags := &serveFlags{}
	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve one partition task and commit its state when the worker closes the handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			return runServe(cmd, flags)
		},
	}

	command.Flags().StringVar(&flags.listen, "listen", "127.0.0.1:0", "address the worker connects to")
	command.Flags().StringVar(&flags.backend, "backend", backendMemory, "state store backend: memory, bolt or badger")
	command.Flags().StringVar(&flags.path, "path", "", "state store file (bolt) or directory (badger)")
	command.Flags().IntVar(&flags.partition, "partition", 0, "partition id")
	command.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	command.Flags().DurationVar(&flags.idleTimeout, "idle-timeout", 0, "fail when the worker is silent for this long (0 disables)")
	command.Flags().DurationVar(&flags.acceptTimeout, "accept-timeout", time.Minute, "fail when no worker connects in time (0 waits forever)")
	command.Flags().Uint32Var(&flags.maxFrameSize, "max-frame-size", frame.DefaultMaxSize, "largest accepted frame payload in bytes")
	return command
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := log.NewZap(log.ParseLevel(flags.logLevel), cmd.ErrOrStderr())
	defer func() { _ = logger.Flush() }()

	backend, err := openBackend(logger, flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Errorf("failed to close the state store: %v", err)
		}
	}()

	cfg, err := partition.NewConfig(backend, flags.partition,
		partition.WithLogger(logger),
		partition.WithServerOptions(
			server.WithIdleTimeout(flags.idleTimeout),
			server.WithAcceptTimeout(flags.acceptTimeout),
			server.WithMaxFrameSize(flags.maxFrameSize),
		))
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", flags.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", flags.listen, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", listener.Addr())

	result, err := partition.Run(ctx, cfg, listener, nil)
	if result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s ended: %s, committed=%t\n", result.RunID, result.Termination, result.Committed)
	}
	return err
}

func openBackend(logger log.Logger, flags *serveFlags) (statestore.Backend, error) {
	switch flags.backend {
	case backendBolt:
		return statestore.NewBoltBackend(flags.path)
	case backendBadger:
		return statestore.NewBadgerBackend(logger, &flags.path)
	default:
		return statestore.NewMemoryBackend(), nil
	}
}
