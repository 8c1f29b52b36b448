package taintcore

// FormulaSimplifier turns an arbitrary 1-bit-valued label into a boolean
// skeleton whose leaves are relational AstNodes, recognising the
// lowering's encoding of boolean connectives as bit-vector And/Or/Xor.
type FormulaSimplifier struct {
	lifter *ExpressionLifter
}

// NewFormulaSimplifier returns a simplifier that lifts relational leaves
// through lf as it discovers them.
func NewFormulaSimplifier(lf *ExpressionLifter) *FormulaSimplifier {
	return &FormulaSimplifier{lifter: lf}
}

// FindRoots builds the boolean skeleton rooted at rootLabel. ok is false
// when the formula collapsed to a constant or an unrecognised shape was
// hit; the caller abandons the branch in that case.
func (fs *FormulaSimplifier) FindRoots(rootLabel Label) (*AstNode, bool) {
	label, ok := fs.stripZExt(rootLabel)
	if !ok {
		return nil, false
	}
	root, ok := fs.simplify(label)
	if !ok {
		return nil, false
	}
	if _, isConst := IsBoolConstant(root); isConst {
		return nil, false
	}
	return root, true
}

// stripZExt peels successive ZExt wrappers and, if the innermost operand
// has width 1, returns its label; otherwise returns rootLabel unchanged.
// This normalises bool-to-int-to-bool round trips the lowering produces.
func (fs *FormulaSimplifier) stripZExt(label Label) (Label, bool) {
	cur := label
	for {
		info, ok := fs.lifter.labels.Lookup(cur)
		if !ok {
			return label, false
		}
		if info.Op.Base() != OpZExt || !info.L1.IsValid() {
			if cur != label && info.Size == WidthBool {
				return cur, true
			}
			return label, true
		}
		cur = info.L1
	}
}

func (fs *FormulaSimplifier) simplify(label Label) (*AstNode, bool) {
	info, ok := fs.lifter.labels.Lookup(label)
	if !ok {
		return nil, false
	}

	switch info.Op.Base() {
	case OpAnd:
		return fs.simplifyLAnd(label, info)
	case OpOr:
		return fs.simplifyLOr(label, info)
	case OpXor:
		return fs.simplifyXor(label, info)
	case OpICmp:
		return fs.simplifyICmp(label, info)
	default:
		c, ok := fs.lifter.ParseConstraint(label)
		if !ok {
			return nil, false
		}
		return c.AstRoot, true
	}
}

func (fs *FormulaSimplifier) simplifyLAnd(label Label, info LabelInfo) (*AstNode, bool) {
	lhs, ok := fs.boolOperand(info.L1, info.Op1)
	if !ok {
		return nil, false
	}
	rhs, ok := fs.boolOperand(info.L2, info.Op2)
	if !ok {
		return nil, false
	}
	if v, ok := IsBoolConstant(lhs); ok {
		if !v {
			return NewBoolNode(false), true
		}
		return rhs, true
	}
	if v, ok := IsBoolConstant(rhs); ok {
		if !v {
			return NewBoolNode(false), true
		}
		return lhs, true
	}
	return NewLAndNode(lhs, rhs), true
}

func (fs *FormulaSimplifier) simplifyLOr(label Label, info LabelInfo) (*AstNode, bool) {
	lhs, ok := fs.boolOperand(info.L1, info.Op1)
	if !ok {
		return nil, false
	}
	rhs, ok := fs.boolOperand(info.L2, info.Op2)
	if !ok {
		return nil, false
	}
	if v, ok := IsBoolConstant(lhs); ok {
		if v {
			return NewBoolNode(true), true
		}
		return rhs, true
	}
	if v, ok := IsBoolConstant(rhs); ok {
		if v {
			return NewBoolNode(true), true
		}
		return lhs, true
	}
	return NewLOrNode(lhs, rhs), true
}

// simplifyXor recognises Xor as the lowering's encoding of LNot: x^1 is
// !x, x^0 is x. Any other shape is unrecognised.
func (fs *FormulaSimplifier) simplifyXor(label Label, info LabelInfo) (*AstNode, bool) {
	lhs, ok := fs.boolOperand(info.L1, info.Op1)
	if !ok {
		return nil, false
	}
	rhs, ok := fs.boolOperand(info.L2, info.Op2)
	if !ok {
		return nil, false
	}
	if v, ok := IsBoolConstant(rhs); ok {
		if v {
			return NewLNotNode(lhs), true
		}
		return lhs, true
	}
	if v, ok := IsBoolConstant(lhs); ok {
		if v {
			return NewLNotNode(rhs), true
		}
		return rhs, true
	}
	return nil, false
}

// simplifyICmp handles the case where an ICmp's side itself reduced to a
// 1-bit boolean: only eq/neq against constant 0 or 1 are legal.
func (fs *FormulaSimplifier) simplifyICmp(label Label, info LabelInfo) (*AstNode, bool) {
	pred := info.Op.Predicate()
	if pred != PredEQ && pred != PredNE {
		c, ok := fs.lifter.ParseConstraint(label)
		if !ok {
			return nil, false
		}
		return c.AstRoot, true
	}

	lhsInfo, lhsIsBool := fs.lifter.labels.Lookup(info.L1)
	rhsIsConstSmall := !info.L2.IsValid() && (info.Op2 == 0 || info.Op2 == 1)
	if !lhsIsBool || lhsInfo.Size != WidthBool || !rhsIsConstSmall {
		c, ok := fs.lifter.ParseConstraint(label)
		if !ok {
			return nil, false
		}
		return c.AstRoot, true
	}

	inner, ok := fs.simplify(info.L1)
	if !ok {
		return nil, false
	}
	wantTrue := info.Op2 == 1
	if pred == PredNE {
		wantTrue = !wantTrue
	}
	if wantTrue {
		return inner, true
	}
	return NewLNotNode(inner), true
}

// boolOperand resolves one side of an And/Or/Xor operand slot: a constant
// slot (l invalid) becomes a Bool literal; otherwise recurse.
func (fs *FormulaSimplifier) boolOperand(l Label, imm uint64) (*AstNode, bool) {
	if !l.IsValid() {
		return NewBoolNode(imm != 0), true
	}
	return fs.simplify(l)
}
