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
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tudinfse/elzar/ir"
	"github.com/tudinfse/elzar/swift"
)

// hardenOptions mirror swift.Config on the command line. The harden and
// run commands share them.
type hardenOptions struct {
	profile       string
	parallel      int
	noCheckAll    bool
	noCheckBranch bool
	noCheckLoad   bool
	noCheckStore  bool
	noCheckAtomic bool
	noCheckCall   bool
	passThrough   []string
}

func (o *hardenOptions) install(flags *pflag.FlagSet) {
	flags.StringVar(&o.profile, "profile", "hardened", `Lane profile ("hardened"|"simplified")`)
	flags.IntVar(&o.parallel, "parallel", 1, "Number of functions transformed concurrently")
	flags.BoolVar(&o.noCheckAll, "no-check-all", false, "Disable every checkpoint")
	flags.BoolVar(&o.noCheckBranch, "no-check-branch", false, "Disable branch checkpoints")
	flags.BoolVar(&o.noCheckLoad, "no-check-load", false, "Disable load address checkpoints")
	flags.BoolVar(&o.noCheckStore, "no-check-store", false, "Disable store checkpoints")
	flags.BoolVar(&o.noCheckAtomic, "no-check-atomic", false, "Disable atomic checkpoints")
	flags.BoolVar(&o.noCheckCall, "no-check-call", false, "Disable call argument checkpoints")
	flags.StringSliceVar(&o.passThrough, "pass-through", nil,
		"Extra callees whose calls stay untouched")
}

func (o *hardenOptions) config() (*swift.Config, error) {
	prof, err := swift.ParseProfile(o.profile)
	if err != nil {
		return nil, err
	}
	cfg := swift.DefaultConfig()
	cfg.Profile = prof
	cfg.Parallel = o.parallel
	cfg.NoCheckAll = o.noCheckAll
	cfg.NoCheckBranch = o.noCheckBranch
	cfg.NoCheckLoad = o.noCheckLoad
	cfg.NoCheckStore = o.noCheckStore
	cfg.NoCheckAtomic = o.noCheckAtomic
	cfg.NoCheckCall = o.noCheckCall
	for _, name := range o.passThrough {
		cfg.PassThrough.Add(name)
	}
	return cfg, nil
}

func parseFile(path string) (*ir.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ir.Parse(filepath.Base(path), string(src))
}

func newHardenCommand() *cobra.Command {
	var opts hardenOptions
	var output string

	cmd := &cobra.Command{
		Use:   "harden FILE",
		Short: "Replicate a module across redundancy lanes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarden(cmd, &opts, output, args[0])
		},
	}
	opts.install(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"Write the hardened module to a file instead of stdout")
	return cmd
}

func runHarden(cmd *cobra.Command, opts *hardenOptions, output, path string) error {
	m, err := parseFile(path)
	if err != nil {
		return err
	}
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if err := swift.Transform(m, cfg); err != nil {
		return err
	}
	if output == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), m.String())
		return err
	}
	return os.WriteFile(output, []byte(m.String()), 0o644)
}
