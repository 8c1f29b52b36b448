package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/taintcore/taintcore"
	"github.com/taintcore/taintcore/driver"
	"github.com/taintcore/taintcore/gradsolver"
	"github.com/taintcore/taintcore/z3solver"
)

// RunCommand drives a single tracer/solver round over one seed input:
// enough to exercise the full label-graph-to-mutation pipeline from the
// command line without a real fuzzer host attached.
type RunCommand struct{}

// NewRunCommand returns a RunCommand.
func NewRunCommand() *RunCommand { return &RunCommand{} }

// Run parses args and drives the tracer to exhaustion over one seed.
func (c *RunCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("taintcore run", flag.ContinueOnError)
	target := fs.String("target", "", "path to the instrumented target binary")
	targetArgs := fs.String("target-args", "", "comma-separated arguments passed to the target")
	seed := fs.String("seed", "", "path to the seed input file")
	inputPath := fs.String("input-file", "", "path the driver writes the mutated input to for the target to read")
	stdin := fs.Bool("stdin", false, "the target reads its input from stdin rather than a file")
	debug := fs.Bool("debug", false, "pass debug=1 to the tracer")
	useZ3 := fs.Bool("z3", true, "enable the Z3 bit-vector solver stage")
	outDir := fs.String("out", "", "directory to write SAT mutations to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" || *seed == "" {
		return fmt.Errorf("taintcore run: -target and -seed are required")
	}

	seedBytes, err := os.ReadFile(*seed)
	if err != nil {
		return fmt.Errorf("taintcore run: read seed: %w", err)
	}

	var argv []string
	if *targetArgs != "" {
		argv = strings.Split(*targetArgs, ",")
	}

	solvers := []taintcore.Solver{gradsolver.NewSolver()}
	if *useZ3 {
		z3 := z3solver.NewSolver()
		defer z3.Close()
		solvers = append(solvers, z3)
	}

	if *inputPath == "" {
		*inputPath = filepath.Join(os.TempDir(), "taintcore-input")
	}

	d, err := driver.New(driver.Config{
		TargetPath: *target,
		TargetArgs: argv,
		UsesStdin:  *stdin,
		InputPath:  *inputPath,
		Debug:      *debug,
		Logger:     log.New(os.Stderr, "taintcore: ", log.LstdFlags),
		Solvers:    solvers,
	})
	if err != nil {
		return fmt.Errorf("taintcore run: %w", err)
	}
	defer d.Close()

	upperBound, err := d.FuzzCount(seedBytes, "seed")
	if err != nil {
		return fmt.Errorf("taintcore run: fuzz_count: %w", err)
	}
	fmt.Fprintf(os.Stderr, "taintcore: %d candidate solver stages queued\n", upperBound)

	found := 0
	for i := uint32(0); i < upperBound+1; i++ {
		out, err := d.Fuzz(seedBytes, upperBound)
		if err != nil {
			return fmt.Errorf("taintcore run: fuzz: %w", err)
		}
		if bytes.Equal(out, seedBytes) {
			continue
		}
		found++
		d.QueueNewEntry(fmt.Sprintf("mutation-%d", found), "seed")
		if *outDir != "" {
			path := filepath.Join(*outDir, fmt.Sprintf("mutation-%d", found))
			if err := os.WriteFile(path, out, 0o600); err != nil {
				fmt.Fprintf(os.Stderr, "taintcore: write %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "taintcore: wrote %s\n", path)
		}
	}
	fmt.Fprintf(os.Stderr, "taintcore: %d mutations found\n", found)
	return nil
}
