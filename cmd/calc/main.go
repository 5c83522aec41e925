// Command calc multiplies or sums the numbers given on the command line.
//
//	calc multiply 2 10 4 7
//	calc sum 2 2 4 0 -1
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gurre/cloudlab/calc"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("calc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: calc <sum|multiply> <values...>\n")
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("an operation is required")
	}

	values, err := calc.ParseValues(fs.Args()[1:])
	if err != nil {
		return err
	}

	switch op := fs.Arg(0); op {
	case "multiply":
		return calc.PrintResult(stdout, op, calc.Multiply(values))
	case "sum", "summation":
		return calc.PrintResult(stdout, op, calc.Summation(values))
	default:
		fs.Usage()
		return fmt.Errorf("unknown operation %q", op)
	}
}
