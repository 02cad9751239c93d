// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package corevm

import (
	"fmt"

	"github.com/vulcan-evm/vulcan/vulcan"
)

// Registers the core VM as a possible interpreter implementation.
func init() {
	configs := map[string]Config{
		// This is the officially supported interpreter configuration to be
		// used for production purposes.
		"corevm": {
			WithShaCache: true,
		},

		// This configuration logs every dispatched instruction to stderr.
		// It is intended for debugging contract executions.
		"corevm-logging": {
			WithShaCache: true,
			runner:       loggingRunner{},
		},

		// This configuration collects opcode frequency statistics that can
		// be dumped after a set of executions.
		"corevm-stats": {
			WithShaCache: true,
			runner:       &statisticRunner{},
		},

		// This configuration skips the jump-destination analysis cache; it
		// exists mainly to measure the cache's effect.
		"corevm-no-analysis-cache": {
			AnalysisConfig: AnalysisConfig{CacheSize: -1},
			WithShaCache:   true,
		},
	}

	for name, config := range configs {
		config := config
		err := vulcan.RegisterInterpreterFactory(name, func(any) (vulcan.Interpreter, error) {
			return NewVm(config)
		})
		if err != nil {
			panic(err)
		}
	}
}

// Config bundles the configuration options of a core VM instance.
type Config struct {
	AnalysisConfig
	WithShaCache bool
	runner       runner
}

type coreVm struct {
	config   Config
	analyzer *analyzer
}

// NewVm creates a new interpreter instance using the given configuration.
func NewVm(config Config) (*coreVm, error) {
	analyzer, err := newAnalyzer(config.AnalysisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %v", err)
	}
	return &coreVm{config: config, analyzer: analyzer}, nil
}

func (v *coreVm) Run(params vulcan.Parameters) (vulcan.Result, error) {
	jumpDests := v.analyzer.analyze(params.Code, params.CodeHash)

	config := interpreterConfig{
		withShaCache: v.config.WithShaCache,
		runner:       v.config.runner,
	}

	return run(config, params, params.Code, jumpDests)
}

// DumpProfile prints a snapshot of the profiling data collected since the
// last reset to stdout. Only effective for the statistics configuration.
func (v *coreVm) DumpProfile() {
	if statsRunner, ok := v.config.runner.(*statisticRunner); ok {
		fmt.Print(statsRunner.getSummary())
	}
}

// ResetProfile resets the operation statistics collected by the underlying
// runner. Only effective for the statistics configuration.
func (v *coreVm) ResetProfile() {
	if statsRunner, ok := v.config.runner.(*statisticRunner); ok {
		statsRunner.reset()
	}
}
