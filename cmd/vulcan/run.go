package main

import (
	"fmt"

	"github.com/dsnet/golib/unitconv"
	"github.com/urfave/cli/v2"

	"github.com/vulcan-evm/vulcan/fixture"
	"github.com/vulcan-evm/vulcan/vulcan"

	// Register the provided interpreter and processor implementations.
	_ "github.com/vulcan-evm/vulcan/interpreter/corevm"
	_ "github.com/vulcan-evm/vulcan/processor/anvil"
)

var RunCmd = cli.Command{
	Action:    doRun,
	Name:      "run",
	Usage:     "Run test fixtures",
	ArgsUsage: "<fixture file> [<fixture file> ...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "interpreter",
			Usage: "the interpreter configuration to run the fixtures on",
			Value: "corevm",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "log every dispatched instruction to stderr",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "print opcode frequency statistics after the run",
		},
	},
}

func doRun(context *cli.Context) error {
	if context.Args().Len() == 0 {
		return fmt.Errorf("no fixture files given")
	}

	interpreterName := context.String("interpreter")
	if context.Bool("trace") {
		interpreterName = "corevm-logging"
	} else if context.Bool("stats") {
		interpreterName = "corevm-stats"
	}

	numTests := 0
	numFailed := 0
	for _, path := range context.Args().Slice() {
		tests, err := fixture.Load(path)
		if err != nil {
			return err
		}
		for i := range tests {
			test := &tests[i]
			numTests++
			issues, err := test.Run(interpreterName)
			if err != nil {
				return err
			}
			size := float64(len(test.Fixture.Code.Bin) / 2)
			if len(issues) == 0 {
				fmt.Printf("OK   %s (%sB of code)\n", test.Name, unitconv.FormatPrefix(size, unitconv.SI, 1))
				continue
			}
			numFailed++
			fmt.Printf("FAIL %s (%sB of code)\n", test.Name, unitconv.FormatPrefix(size, unitconv.SI, 1))
			for _, issue := range issues {
				fmt.Printf("    %s\n", issue)
			}
		}
	}

	if context.Bool("stats") {
		dumpProfile(interpreterName)
	}

	fmt.Printf("%d of %d fixtures passed\n", numTests-numFailed, numTests)
	if numFailed > 0 {
		return fmt.Errorf("%d fixtures failed", numFailed)
	}
	return nil
}

// dumpProfile prints the statistics collected by a profiling interpreter
// configuration.
func dumpProfile(interpreterName string) {
	interpreter, err := vulcan.NewInterpreter(interpreterName)
	if err != nil {
		return
	}
	if profiler, ok := interpreter.(interface{ DumpProfile() }); ok {
		profiler.DumpProfile()
	}
}
