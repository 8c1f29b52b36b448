package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "run":
		return NewRunCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`taintcore %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
taintcore drives a tracer against one seed input and resolves its
branches into mutated candidates via a pluggable constraint solver chain.

Usage:

	taintcore <command> [arguments]

The commands are:

	run         drive the tracer over one seed input to exhaustion
	help        this screen
`[1:])
}
