// Package taintcore implements the lifting, simplification, task
// construction, and driver logic of a concolic-execution-driven constraint
// solving core. It cooperates with an external tracer (a shadow execution
// of the target program that emits dataflow labels and branch events over
// a pipe) and one or more constraint solvers to turn taken branches into
// candidate mutations for a coverage-guided fuzzer.
package taintcore

import (
	"errors"
	"fmt"
)

// Standard bit widths used throughout the label graph and AST.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

// Sentinel errors returned by Solver implementations.
var (
	ErrSolverTimeout       = errors.New("taintcore: solver timeout")
	ErrSolverCanceled      = errors.New("taintcore: solver canceled")
	ErrSolverResourceLimit = errors.New("taintcore: solver resource limit")
	ErrSolverUnknown       = errors.New("taintcore: solver unknown error")
)

// Errors naming the lifting pipeline's failure conditions, all of which
// mean "drop the branch and continue" rather than a fatal condition. The
// lifter and simplifier themselves report failure as ok=false and do not
// return these values.
var (
	ErrInvalidLabel    = errors.New("taintcore: invalid label")
	ErrUnknownOpcode   = errors.New("taintcore: unknown opcode")
	ErrFormulaConstant = errors.New("taintcore: formula collapsed to a constant")
)

// assert panics if condition is false. Used for invariant violations that
// indicate a bug in this module rather than malformed tracer input.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

// minBytes returns the smallest number of bytes that bits fits into.
func minBytes(bits uint) uint {
	return (bits + 7) / 8
}
