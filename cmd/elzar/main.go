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

// Command elzar rewrites modules in the textual IR so that every scalar
// computation runs replicated across SIMD-style redundancy lanes, with
// majority-vote checkpoints in front of externally observable operations.
//
// Usage:
//
//	elzar harden prog.ir                        # print the hardened module
//	elzar harden -o prog.hard.ir prog.ir --profile simplified
//	elzar stats prog.ir --print-vec             # instruction histogram
//	elzar run prog.ir --entry sum 10            # interpret, print the result
//	elzar run --harden prog.ir --entry sum 10   # same, hardened first
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "elzar",
		Short:         "Harden modules against transient hardware faults",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning",
		`Log level ("debug"|"info"|"warning"|"error")`)
	cmd.AddCommand(newHardenCommand(), newStatsCommand(), newRunCommand())
	return cmd
}

func main() {
	logrus.SetOutput(os.Stderr)
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
