// Package z3solver adapts a cgo binding of the Z3 bit-vector solver to
// the taintcore.Solver contract: each SearchTask's constraints become one
// set of asserted bit-vector formulas over one free 8-bit variable per
// referenced input offset, and a satisfying model is read back into a
// mutated buffer.
package z3solver

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/taintcore/taintcore"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

var _ taintcore.Solver = (*Solver)(nil)

// Solver is a single-stage bit-vector SMT back-end. It exposes exactly
// one stage: a full assertion of every constraint in the task, checked
// once per Solve call.
type Solver struct {
	ctx   *Context
	stats Stats
}

// Stats accumulates simple solve-call counters, surfaced for debugging
// and test assertions rather than any runtime decision.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}

// NewSolver returns a Solver with a fresh Z3 context.
func NewSolver() *Solver {
	return &Solver{ctx: NewContext()}
}

// Close releases the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns the solver's accumulated statistics.
func (s *Solver) Stats() Stats { return s.stats }

// Stages reports this back-end has a single strategy.
func (s *Solver) Stages() int { return 1 }

// Solve asserts every constraint in task (respecting each ConsMeta's
// post-NNF polarity), checks satisfiability, and on SAT evaluates the
// model into a mutated copy of input.
func (s *Solver) Solve(stage int, task *taintcore.SearchTask, input *taintcore.InputBuffer) ([]byte, taintcore.Verdict, error) {
	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return nil, taintcore.UNSAT, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	vars := make(map[uint]C.Z3_ast, len(task.Inputs))
	for _, ob := range task.Inputs {
		v, err := s.ctx.makeByteVar(ob.Offset)
		if err != nil {
			return nil, taintcore.UNSAT, err
		}
		vars[ob.Offset] = v
	}

	for i, meta := range task.ConsMeta {
		ast, err := s.ctx.toConstraintAST(meta, vars)
		if err != nil {
			return nil, taintcore.UNSAT, fmt.Errorf("z3solver: constraint %d: %w", i, err)
		}
		C.Z3_solver_assert(s.ctx.raw, solver, ast)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return nil, taintcore.UNSAT, err
		}
	}

	ret := C.Z3_solver_check(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return nil, taintcore.UNSAT, err
	}
	switch ret {
	case C.Z3_L_FALSE:
		return nil, taintcore.UNSAT, nil
	case C.Z3_L_UNDEF:
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return nil, taintcore.TIMEOUT, nil
		case strings.Contains(reason, "canceled"):
			return nil, taintcore.TIMEOUT, taintcore.ErrSolverCanceled
		case strings.Contains(reason, "resource limits"):
			return nil, taintcore.TIMEOUT, taintcore.ErrSolverResourceLimit
		default:
			return nil, taintcore.TIMEOUT, taintcore.ErrSolverUnknown
		}
	}

	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return nil, taintcore.UNSAT, err
	}

	var updates []taintcore.ByteUpdate
	for _, ob := range task.Inputs {
		v, err := s.ctx.evalByte(model, vars[ob.Offset])
		if err != nil {
			return nil, taintcore.UNSAT, err
		}
		updates = append(updates, taintcore.ByteUpdate{Offset: ob.Offset, Value: v})
		task.Solution[ob.Offset] = v
	}
	task.Solved = true
	return input.Materialize(updates), taintcore.SAT, nil
}

// Context wraps a Z3 context used for constructing and checking formulas.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a fresh Z3 context with the default configuration and
// no error handler; API errors are read back through err.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)
	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	return &Context{raw: raw}
}

// Close deletes the underlying context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return ctx.err("Z3_del_context")
}

// Error reports a Z3 API failure.
type Error struct {
	Code    int
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("z3solver: %s: %s (code %d)", e.Op, e.Message, e.Code)
}

func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

func (ctx *Context) makeByteVar(offset uint) (C.Z3_ast, error) {
	sort := C.Z3_mk_bv_sort(ctx.raw, 8)
	cname := C.CString(fmt.Sprintf("b%d", offset))
	defer C.free(unsafe.Pointer(cname))
	name := C.Z3_mk_string_symbol(ctx.raw, cname)
	ast := C.Z3_mk_const(ctx.raw, name, sort)
	return ast, ctx.err("Z3_mk_const")
}

func (ctx *Context) evalByte(model C.Z3_model, v C.Z3_ast) (byte, error) {
	var out C.Z3_ast
	ok := C.Z3_model_eval(ctx.raw, model, v, C.bool(true), &out)
	if !ok {
		return 0, fmt.Errorf("z3solver: model eval failed")
	}
	var u C.uint64_t
	if !C.Z3_get_numeral_uint64(ctx.raw, out, &u) {
		return 0, fmt.Errorf("z3solver: model value is not numeral")
	}
	return byte(u), nil
}

// toConstraintAST builds the asserted formula for one ConsMeta, honouring
// its post-NNF comparison kind rather than the shared Constraint's own
// cached polarity.
func (ctx *Context) toConstraintAST(meta *taintcore.ConsMeta, vars map[uint]C.Z3_ast) (C.Z3_ast, error) {
	root := meta.Constraint.AstRoot
	lhs, err := ctx.toAST(root.Children[0], meta, vars)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(root.Children[1], meta, vars)
	if err != nil {
		return nil, err
	}
	return ctx.toComparisonAST(meta.Comparison, lhs, rhs)
}

func (ctx *Context) toComparisonAST(kind taintcore.AstKind, lhs, rhs C.Z3_ast) (C.Z3_ast, error) {
	switch kind {
	case taintcore.Equal:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case taintcore.Distinct:
		eq := C.Z3_mk_eq(ctx.raw, lhs, rhs)
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case taintcore.Ult:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case taintcore.Ule:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case taintcore.Ugt:
		return C.Z3_mk_bvugt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvugt")
	case taintcore.Uge:
		return C.Z3_mk_bvuge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvuge")
	case taintcore.Slt:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case taintcore.Sle:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	case taintcore.Sgt:
		return C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsgt")
	case taintcore.Sge:
		return C.Z3_mk_bvsge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsge")
	default:
		return nil, fmt.Errorf("z3solver: unsupported comparison kind %s", kind)
	}
}

func (ctx *Context) toAST(n *taintcore.AstNode, meta *taintcore.ConsMeta, vars map[uint]C.Z3_ast) (C.Z3_ast, error) {
	switch n.Kind {
	case taintcore.Constant:
		return ctx.makeUint64(n.Bits, n.Value)
	case taintcore.Read:
		return ctx.readVar(n.Index, n.Bits, vars)
	case taintcore.Extract:
		src, err := ctx.toAST(n.Children[0], meta, vars)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_extract(ctx.raw, C.uint(n.Index+n.Bits-1), C.uint(n.Index), src), ctx.err("Z3_mk_extract")
	case taintcore.Concat:
		msb, err := ctx.toAST(n.Children[0], meta, vars)
		if err != nil {
			return nil, err
		}
		lsb, err := ctx.toAST(n.Children[1], meta, vars)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_concat(ctx.raw, msb, lsb), ctx.err("Z3_mk_concat")
	case taintcore.ZExt:
		src, err := ctx.toAST(n.Children[0], meta, vars)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_zero_ext(ctx.raw, C.uint(n.Bits-n.Children[0].Bits), src), ctx.err("Z3_mk_zero_ext")
	case taintcore.SExt:
		src, err := ctx.toAST(n.Children[0], meta, vars)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_sign_ext(ctx.raw, C.uint(n.Bits-n.Children[0].Bits), src), ctx.err("Z3_mk_sign_ext")
	default:
		return ctx.toBinaryAST(n, meta, vars)
	}
}

func (ctx *Context) toBinaryAST(n *taintcore.AstNode, meta *taintcore.ConsMeta, vars map[uint]C.Z3_ast) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(n.Children[0], meta, vars)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(n.Children[1], meta, vars)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case taintcore.Add:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case taintcore.Sub:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case taintcore.UDiv:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case taintcore.SDiv:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case taintcore.SRem:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case taintcore.Shl:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case taintcore.LShr:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case taintcore.AShr:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case taintcore.And:
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case taintcore.Or:
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case taintcore.Xor:
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	default:
		return ctx.toComparisonAST(n.Kind, lhs, rhs)
	}
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	sort := C.Z3_mk_bv_sort(ctx.raw, C.uint(width))
	ast := C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), sort)
	return ast, ctx.err("Z3_mk_unsigned_int64")
}

// readVar rebuilds the bitvector for a Read/Load leaf spanning bits/8
// bytes starting at offset, concatenating the per-byte variables in
// little-endian order (offset is the least-significant byte, matching
// InputBuffer/gradsolver's byte layout). Falls back to a zero constant
// for any byte offset with no free variable (not part of this task).
func (ctx *Context) readVar(offset, bits uint, vars map[uint]C.Z3_ast) (C.Z3_ast, error) {
	n := (bits + 7) / 8
	byteAt := func(i uint) (C.Z3_ast, error) {
		if v, ok := vars[offset+i]; ok {
			return v, nil
		}
		return ctx.makeUint64(8, 0)
	}
	cur, err := byteAt(n - 1)
	if err != nil {
		return nil, err
	}
	for i := n - 1; i > 0; i-- {
		next, err := byteAt(i - 1)
		if err != nil {
			return nil, err
		}
		cur = C.Z3_mk_concat(ctx.raw, cur, next)
		if err := ctx.err("Z3_mk_concat"); err != nil {
			return nil, err
		}
	}
	return cur, nil
}
