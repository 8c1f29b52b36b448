package taintcore

// opcodeKind maps a LabelInfo's base opcode to the AstKind the lifter
// assigns to the node it produces. ICmp is handled separately since its
// kind depends on the packed predicate.
var opcodeKind = map[Opcode]AstKind{
	OpExtract: Extract,
	OpTrunc:   Extract,
	OpConcat:  Concat,
	OpZExt:    ZExt,
	OpSExt:    SExt,
	OpAdd:     Add,
	OpSub:     Sub,
	OpUDiv:    UDiv,
	OpSDiv:    SDiv,
	OpURem:    UDiv, // unsigned remainder shares the lifter's UDiv-family width handling
	OpSRem:    SRem,
	OpShl:     Shl,
	OpLShr:    LShr,
	OpAShr:    AShr,
	OpAnd:     And,
	OpOr:      Or,
	OpXor:     Xor,
}

var icmpPredicateKind = map[Opcode]AstKind{
	PredEQ:  Equal,
	PredNE:  Distinct,
	PredUGT: Ugt,
	PredUGE: Uge,
	PredULT: Ult,
	PredULE: Ule,
	PredSGT: Sgt,
	PredSGE: Sge,
	PredSLT: Slt,
	PredSLE: Sle,
}

// unaryOpcode reports whether op takes a single operand label (the second
// operand slot, if any, is metadata rather than another node to lift).
func unaryOpcode(op Opcode) bool {
	switch op.Base() {
	case OpZExt, OpSExt, OpExtract, OpTrunc:
		return true
	default:
		return false
	}
}

// ExpressionLifter walks label graphs, interning AstNodes into per-
// constraint ASTs, and caches completed Constraints by root label so a
// repeated branch within one tracer run reuses the same shared object.
type ExpressionLifter struct {
	labels *LabelTable
	input  *InputBuffer

	// exprCache maps a root label to its already-lifted Constraint.
	// Cleared at the start of every tracer run (Driver.clearCaches),
	// not per constraint.
	exprCache map[Label]*Constraint

	// build state, reset at the top of every ParseConstraint call
	visited   map[Label]*AstNode
	localMap  map[uint]uint
	inputs    map[uint]byte
	shapes    map[uint]uint
	atoiInfos map[uint]AtoiInfo
	inputArgs []InputArg
	nextLocal uint
	constNum  uint
}

// NewExpressionLifter returns a lifter reading labels from table and
// concrete bytes from input.
func NewExpressionLifter(table *LabelTable, input *InputBuffer) *ExpressionLifter {
	return &ExpressionLifter{
		labels:    table,
		input:     input,
		exprCache: make(map[Label]*Constraint),
	}
}

// ClearCache drops the cross-constraint expression cache. Called once per
// tracer run, mirroring the per-mutation cache reset the driver performs
// on expr_cache, input_dep_cache, and memcmp_cache.
func (lf *ExpressionLifter) ClearCache() {
	lf.exprCache = make(map[Label]*Constraint)
}

// SetInput rebinds the concrete byte buffer the lifter records initial
// values from, without touching the cross-constraint cache.
func (lf *ExpressionLifter) SetInput(input *InputBuffer) {
	lf.input = input
}

// ParseConstraint lifts rootLabel into a Constraint. rootLabel must
// resolve to an ICmp node; any other failure (invalid label, unknown
// opcode anywhere in the reachable subgraph) returns ok=false and the
// caller drops the branch.
func (lf *ExpressionLifter) ParseConstraint(rootLabel Label) (*Constraint, bool) {
	if c, ok := lf.exprCache[rootLabel]; ok {
		return c, true
	}
	info, ok := lf.labels.Lookup(rootLabel)
	if !ok {
		return nil, false
	}
	if info.Op.Base() != OpICmp {
		return nil, false
	}

	lf.resetBuild()

	// A constant operand has no width of its own: its fallback bit-width
	// must come from whichever side is actually symbolic, so the operand
	// is lifted (and masked) at its real width the first time, not
	// truncated to a guess and then widened from an already-truncated
	// value. ICmp never has both sides constant in practice (comparing
	// two literals produces nothing for the tracer to record), so that
	// case falls back to WidthBool and is resolved below regardless.
	var lhs, rhs *AstNode
	switch {
	case info.L1.IsValid():
		lhs, ok = lf.liftOperand(info.L1, info.Op1, WidthBool)
		if !ok {
			return nil, false
		}
		rhs, ok = lf.liftOperand(info.L2, info.Op2, lhs.Bits)
		if !ok {
			return nil, false
		}
	case info.L2.IsValid():
		rhs, ok = lf.liftOperand(info.L2, info.Op2, WidthBool)
		if !ok {
			return nil, false
		}
		lhs, ok = lf.liftOperand(info.L1, info.Op1, rhs.Bits)
		if !ok {
			return nil, false
		}
	default:
		lhs, ok = lf.liftOperand(info.L1, info.Op1, WidthBool)
		if !ok {
			return nil, false
		}
		rhs, ok = lf.liftOperand(info.L2, info.Op2, WidthBool)
		if !ok {
			return nil, false
		}
	}
	kind, ok := icmpPredicateKind[info.Op.Predicate()]
	if !ok {
		return nil, false
	}
	bits := operandBits(lhs, rhs)
	lhs = lf.resolveLeafWidth(lhs, bits)
	rhs = lf.resolveLeafWidth(rhs, bits)
	hash := mixHash2(lhs.Hash, uint32(kind)<<16|uint32(WidthBool))
	hash = mixHash(hash, rhs.Hash, 0)
	root := NewBinaryNode(kind, rootLabel, WidthBool, lhs, rhs, hash)

	c := &Constraint{
		AstRoot:        root,
		ComparisonKind: kind,
		LocalMap:       lf.localMap,
		InputArgs:      lf.inputArgs,
		Inputs:         lf.inputs,
		Shapes:         lf.shapes,
		AtoiInfos:      lf.atoiInfos,
		ConstNum:       lf.constNum,
		Op1Preview:     info.Op1,
		Op2Preview:     info.Op2,
	}
	lf.exprCache[rootLabel] = c
	return c, true
}

func (lf *ExpressionLifter) resetBuild() {
	lf.visited = make(map[Label]*AstNode)
	lf.localMap = make(map[uint]uint)
	lf.inputs = make(map[uint]byte)
	lf.shapes = make(map[uint]uint)
	lf.atoiInfos = make(map[uint]AtoiInfo)
	lf.inputArgs = nil
	lf.nextLocal = 0
	lf.constNum = 0
}

// operandBits picks the result width for an ICmp root: both operands are
// normalised to the wider of the two before comparison.
func operandBits(lhs, rhs *AstNode) uint {
	if lhs.Bits > rhs.Bits {
		return lhs.Bits
	}
	return rhs.Bits
}

// resolveLeafWidth re-masks a synthesised constant leaf to bits if the
// comparison's two sides disagree on width (only constants can legally
// disagree; symbolic operands already carry the shared node width).
func (lf *ExpressionLifter) resolveLeafWidth(n *AstNode, bits uint) *AstNode {
	if n.Kind == Constant && n.Bits != bits {
		return NewConstantNode(n.Value, bits, mixHash2(uint32(bits), uint32(Constant)))
	}
	return n
}

// liftOperand lifts the node for an operand slot: a real label if l is
// valid, otherwise a synthesised Constant carrying imm.
func (lf *ExpressionLifter) liftOperand(l Label, imm uint64, fallbackBits uint) (*AstNode, bool) {
	if !l.IsValid() {
		lf.constNum++
		lf.inputArgs = append(lf.inputArgs, InputArg{Symbolic: false, Value: imm})
		hash := mixHash2(uint32(fallbackBits), uint32(Constant))
		return NewConstantNode(imm, fallbackBits, hash), true
	}
	return lf.liftLabel(l)
}

// liftLabel lifts one label into an AstNode, recursing into its operands.
// A label seen earlier in this same constraint build collapses to a leaf
// placeholder carrying only its id and width, per the no-double-expansion
// invariant.
func (lf *ExpressionLifter) liftLabel(l Label) (*AstNode, bool) {
	if n, ok := lf.visited[l]; ok {
		return &AstNode{Kind: n.Kind, Bits: n.Bits, Label: l, Hash: n.Hash, Value: n.Value, Index: n.Index}, true
	}
	info, ok := lf.labels.Lookup(l)
	if !ok {
		return nil, false
	}

	var node *AstNode
	switch {
	case info.Op == OpTerminal:
		offset := uint(info.Op1)
		hash := lf.mapArg(offset, 1)
		node = NewReadNode(l, offset, hash)

	case info.Op == OpLoad:
		baseInfo, ok := lf.labels.Lookup(info.L1)
		if !ok {
			return nil, false
		}
		offset := uint(baseInfo.Op1)
		width := uint(info.L2) * 8
		hash := lf.mapArg(offset, uint(info.L2))
		node = NewLoadNode(l, offset, width, hash)

	case info.Op.Base() == OpICmp:
		kind, ok := icmpPredicateKind[info.Op.Predicate()]
		if !ok {
			return nil, false
		}
		node, ok = lf.liftBinary(l, info, kind, WidthBool)
		if !ok {
			return nil, false
		}

	default:
		kind, ok := opcodeKind[info.Op.Base()]
		if !ok {
			return nil, false
		}
		if unaryOpcode(info.Op.Base()) {
			node, ok = lf.liftUnary(l, info, kind)
		} else {
			node, ok = lf.liftBinary(l, info, kind, uint(info.Size))
		}
		if !ok {
			return nil, false
		}
	}

	lf.visited[l] = node
	return node, true
}

func (lf *ExpressionLifter) liftUnary(l Label, info LabelInfo, kind AstKind) (*AstNode, bool) {
	child, ok := lf.liftOperand(info.L1, info.Op1, uint(info.Size))
	if !ok {
		return nil, false
	}
	offset := uint(0)
	if kind == Extract {
		offset = uint(info.Op2)
	}
	hash := mixHash2(uint32(info.Size), uint32(kind))
	hash = mixHash(hash, child.Hash, 0)
	return NewUnaryNode(kind, l, uint(info.Size), offset, child, hash), true
}

func (lf *ExpressionLifter) liftBinary(l Label, info LabelInfo, kind AstKind, bits uint) (*AstNode, bool) {
	lhs, ok := lf.liftOperand(info.L1, info.Op1, bits)
	if !ok {
		return nil, false
	}
	rhs, ok := lf.liftOperand(info.L2, info.Op2, bits)
	if !ok {
		return nil, false
	}
	if kind == Concat {
		if !info.L1.IsValid() {
			lhs = NewConstantNode(lhs.Value, bits-rhs.Bits, mixHash2(uint32(bits-rhs.Bits), uint32(Constant)))
		} else if !info.L2.IsValid() {
			rhs = NewConstantNode(rhs.Value, bits-lhs.Bits, mixHash2(uint32(bits-lhs.Bits), uint32(Constant)))
		}
	}
	hashKind := uint32(kind)
	if kind.IsRelational() {
		hashKind = uint32(Bool)
	}
	hash := mixHash2(lhs.Hash, hashKind<<16|uint32(bits))
	hash = mixHash(hash, rhs.Hash, 0)
	return NewBinaryNode(kind, l, bits, lhs, rhs, hash), true
}

// mapArg records every byte in [offset, offset+length) in this build's
// local map, inputs, and shapes, each getting its own local index and
// input_args slot; only the first byte carries the run's shape (length),
// every other byte's shape is 0. Returns the structural hash for the
// corresponding Read/Load leaf, mixed from the run's bit width, the Read
// op, and the first byte's local index.
func (lf *ExpressionLifter) mapArg(offset, length uint) uint32 {
	for i := uint(0); i < length; i++ {
		byteOffset := offset + i
		if _, seen := lf.localMap[byteOffset]; seen {
			continue
		}
		idx := RetOffset + lf.nextLocal
		lf.nextLocal++
		lf.localMap[byteOffset] = idx
		lf.inputs[byteOffset] = lf.input.Peek(byteOffset)
		if i == 0 {
			lf.shapes[byteOffset] = length
		} else {
			lf.shapes[byteOffset] = 0
		}
		lf.inputArgs = append(lf.inputArgs, InputArg{Symbolic: true, Index: idx})
	}
	argIndex := lf.localMap[offset]
	return mixHash(uint32(length*8), uint32(Read), uint32(argIndex))
}
