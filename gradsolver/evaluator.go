// Package gradsolver implements a pure-Go heuristic constraint solver:
// no SMT theory, just input-to-state matching and AFL/go-fuzz-style byte
// mutation guided by a concrete distance evaluation.
package gradsolver

import "github.com/taintcore/taintcore"

// Evaluator walks an AstNode tree to a concrete uint64, resolving Read
// leaves from a global-offset → byte environment rather than a symbolic
// array store.
type Evaluator struct {
	env map[uint]byte
}

// NewEvaluator returns an evaluator resolving Read leaves from env, keyed
// by the SearchTask's global offsets.
func NewEvaluator(env map[uint]byte) *Evaluator {
	return &Evaluator{env: env}
}

// Evaluate folds n to a concrete value, masked to n.Bits.
func (e *Evaluator) Evaluate(n *taintcore.AstNode) uint64 {
	switch n.Kind {
	case taintcore.Constant:
		return n.Value
	case taintcore.Read:
		return e.readBytes(n.Index, n.Bits)
	case taintcore.Extract:
		src := e.Evaluate(n.Children[0])
		return mask(src>>n.Index, n.Bits)
	case taintcore.Concat:
		msb := e.Evaluate(n.Children[0])
		lsb := e.Evaluate(n.Children[1])
		return mask(msb<<n.Children[1].Bits|lsb, n.Bits)
	case taintcore.ZExt:
		return e.Evaluate(n.Children[0])
	case taintcore.SExt:
		src := e.Evaluate(n.Children[0])
		return signExtend(src, n.Children[0].Bits, n.Bits)
	case taintcore.Add:
		return mask(e.Evaluate(n.Children[0])+e.Evaluate(n.Children[1]), n.Bits)
	case taintcore.Sub:
		return mask(e.Evaluate(n.Children[0])-e.Evaluate(n.Children[1]), n.Bits)
	case taintcore.UDiv:
		rhs := e.Evaluate(n.Children[1])
		if rhs == 0 {
			return 0
		}
		return mask(e.Evaluate(n.Children[0])/rhs, n.Bits)
	case taintcore.SDiv:
		lhs := int64(signExtend(e.Evaluate(n.Children[0]), n.Bits, 64))
		rhs := int64(signExtend(e.Evaluate(n.Children[1]), n.Bits, 64))
		if rhs == 0 {
			return 0
		}
		return mask(uint64(lhs/rhs), n.Bits)
	case taintcore.SRem:
		lhs := int64(signExtend(e.Evaluate(n.Children[0]), n.Bits, 64))
		rhs := int64(signExtend(e.Evaluate(n.Children[1]), n.Bits, 64))
		if rhs == 0 {
			return 0
		}
		return mask(uint64(lhs%rhs), n.Bits)
	case taintcore.Shl:
		return mask(e.Evaluate(n.Children[0])<<e.Evaluate(n.Children[1]), n.Bits)
	case taintcore.LShr:
		return mask(e.Evaluate(n.Children[0])>>e.Evaluate(n.Children[1]), n.Bits)
	case taintcore.AShr:
		lhs := int64(signExtend(e.Evaluate(n.Children[0]), n.Bits, 64))
		return mask(uint64(lhs>>e.Evaluate(n.Children[1])), n.Bits)
	case taintcore.And:
		return mask(e.Evaluate(n.Children[0])&e.Evaluate(n.Children[1]), n.Bits)
	case taintcore.Or:
		return mask(e.Evaluate(n.Children[0])|e.Evaluate(n.Children[1]), n.Bits)
	case taintcore.Xor:
		return mask(e.Evaluate(n.Children[0])^e.Evaluate(n.Children[1]), n.Bits)
	default:
		return boolToUint64(e.EvaluateComparison(n.Kind, n.Children[0], n.Children[1]))
	}
}

// EvaluateComparison evaluates a relational kind over lhs/rhs, comparing
// with signed or unsigned semantics as the kind demands.
func (e *Evaluator) EvaluateComparison(kind taintcore.AstKind, lhs, rhs *taintcore.AstNode) bool {
	l, r := e.Evaluate(lhs), e.Evaluate(rhs)
	bits := lhs.Bits
	if rhs.Bits > bits {
		bits = rhs.Bits
	}
	switch kind {
	case taintcore.Equal:
		return l == r
	case taintcore.Distinct:
		return l != r
	case taintcore.Ult:
		return l < r
	case taintcore.Ule:
		return l <= r
	case taintcore.Ugt:
		return l > r
	case taintcore.Uge:
		return l >= r
	case taintcore.Slt:
		return int64(signExtend(l, bits, 64)) < int64(signExtend(r, bits, 64))
	case taintcore.Sle:
		return int64(signExtend(l, bits, 64)) <= int64(signExtend(r, bits, 64))
	case taintcore.Sgt:
		return int64(signExtend(l, bits, 64)) > int64(signExtend(r, bits, 64))
	case taintcore.Sge:
		return int64(signExtend(l, bits, 64)) >= int64(signExtend(r, bits, 64))
	default:
		return false
	}
}

// EvaluateConsMeta reports whether meta's constraint, under this
// evaluator's environment, holds with meta's post-NNF comparison.
func (e *Evaluator) EvaluateConsMeta(meta *taintcore.ConsMeta) bool {
	root := meta.Constraint.AstRoot
	return e.EvaluateComparison(meta.Comparison, root.Children[0], root.Children[1])
}

func (e *Evaluator) readBytes(offset, bits uint) uint64 {
	n := (bits + 7) / 8
	var v uint64
	for i := uint(0); i < n; i++ {
		v |= uint64(e.env[offset+i]) << (8 * i)
	}
	return mask(v, bits)
}

func mask(v uint64, bits uint) uint64 {
	if bits >= 64 {
		return v
	}
	return v & ((uint64(1) << bits) - 1)
}

func signExtend(v uint64, fromBits, toBits uint) uint64 {
	if fromBits >= 64 || fromBits >= toBits {
		return mask(v, toBits)
	}
	signBit := uint64(1) << (fromBits - 1)
	if v&signBit != 0 {
		v |= ^uint64(0) << fromBits
	}
	return mask(v, toBits)
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
