// Copyright 2025 elzar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tudinfse/elzar/interp"
	"github.com/tudinfse/elzar/swift"
)

func newRunCommand() *cobra.Command {
	var opts hardenOptions
	var harden bool
	var entry string
	var maxSteps int

	cmd := &cobra.Command{
		Use:   "run FILE [ARG...]",
		Short: "Interpret a module and print the entry function's result",
		Long: `Interpret a module and print the entry function's result.

Arguments after FILE are passed to the entry function as integers. With
--harden the module is transformed first, so a run exercises the lane
replication and its checkpoints.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, &opts, harden, entry, maxSteps, args)
		},
	}
	opts.install(cmd.Flags())
	cmd.Flags().BoolVar(&harden, "harden", false, "Transform the module before running it")
	cmd.Flags().StringVar(&entry, "entry", "main", "Function to execute")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Instruction budget, 0 keeps the default")
	return cmd
}

func runRun(cmd *cobra.Command, opts *hardenOptions, harden bool, entry string, maxSteps int, args []string) error {
	m, err := parseFile(args[0])
	if err != nil {
		return err
	}
	if harden {
		cfg, err := opts.config()
		if err != nil {
			return err
		}
		if err := swift.Transform(m, cfg); err != nil {
			return err
		}
	}

	vals := make([]uint64, len(args)-1)
	for i, a := range args[1:] {
		x, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "argument %q", a)
		}
		vals[i] = uint64(x)
	}

	mc, err := interp.New(m)
	if err != nil {
		return err
	}
	if maxSteps > 0 {
		mc.MaxSteps = maxSteps
	}
	ret, err := mc.Run(entry, vals...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", int64(ret))
	return nil
}
