package taintcore

import "fmt"

// AstKind identifies the shape of an AstNode. The set is closed: unlike a
// virtual-dispatch expression tree, consumers switch on Kind directly
// instead of type-asserting to a per-kind struct.
type AstKind int

const (
	Read AstKind = iota
	Constant
	Extract
	Concat
	ZExt
	SExt
	Add
	Sub
	UDiv
	SDiv
	SRem
	Shl
	LShr
	AShr
	And
	Or
	Xor
	Equal
	Distinct
	Ult
	Ule
	Ugt
	Uge
	Slt
	Sle
	Sgt
	Sge
	LAnd
	LOr
	LNot
	Bool
	Memcmp
	MemcmpN
)

var astKindNames = [...]string{
	Read: "read", Constant: "const", Extract: "extract", Concat: "concat",
	ZExt: "zext", SExt: "sext", Add: "add", Sub: "sub", UDiv: "udiv",
	SDiv: "sdiv", SRem: "srem", Shl: "shl", LShr: "lshr", AShr: "ashr",
	And: "and", Or: "or", Xor: "xor", Equal: "eq", Distinct: "ne",
	Ult: "ult", Ule: "ule", Ugt: "ugt", Uge: "uge", Slt: "slt", Sle: "sle",
	Sgt: "sgt", Sge: "sge", LAnd: "land", LOr: "lor", LNot: "lnot",
	Bool: "bool", Memcmp: "memcmp", MemcmpN: "memcmpn",
}

// String returns the string representation of the kind.
func (k AstKind) String() string {
	if k >= 0 && int(k) < len(astKindNames) && astKindNames[k] != "" {
		return astKindNames[k]
	}
	return fmt.Sprintf("AstKind<%d>", int(k))
}

// IsRelational reports whether k produces a 1-bit comparison result and is
// therefore legal as a Constraint root or a DNF leaf.
func (k AstKind) IsRelational() bool {
	switch k {
	case Equal, Distinct, Ult, Ule, Ugt, Uge, Slt, Sle, Sgt, Sge:
		return true
	default:
		return false
	}
}

// IsBooleanOp reports whether k is one of the simplifier's boolean
// connectives (as opposed to the bit-vector And/Or/Xor they are rewritten
// from).
func (k AstKind) IsBooleanOp() bool {
	switch k {
	case LAnd, LOr, LNot:
		return true
	default:
		return false
	}
}

// negateTable is the fixed dual table used by the NNF rewriter to push a
// negation through a relational leaf instead of wrapping it in LNot.
var negateTable = map[AstKind]AstKind{
	Equal: Distinct, Distinct: Equal,
	Ult: Uge, Uge: Ult,
	Ule: Ugt, Ugt: Ule,
	Slt: Sge, Sge: Slt,
	Sle: Sgt, Sgt: Sle,
}

// NegateComparison returns the dual comparison kind for k (e.g. Equal for
// Distinct). Panics if k is not relational: the NNF rewriter only ever
// calls this on a Constraint's root comparison.
func NegateComparison(k AstKind) AstKind {
	neg, ok := negateTable[k]
	assert(ok, "ast: %s has no negated dual", k)
	return neg
}

// AstNode is an interior or leaf node of a lifted expression graph slice.
// Children[1] is unused for unary kinds (ZExt, SExt, Extract, LNot,
// Not-shaped Memcmp); Index carries the Extract offset for Extract nodes
// and the byte offset for Read leaves.
type AstNode struct {
	Kind     AstKind
	Bits     uint
	Label    Label
	Index    uint
	Hash     uint32
	Children [2]*AstNode

	// Value holds the immediate for a Constant node.
	Value uint64

	// BoolValue is set only for Kind == Bool: the formula simplifier's
	// representation of a constant-folded boolean, distinct from a
	// numeric Constant.
	BoolValue bool
}

// NewReadNode returns a leaf representing one byte read from the input at
// the given offset (the terminal, op==0, case).
func NewReadNode(label Label, offset uint, hash uint32) *AstNode {
	return &AstNode{Kind: Read, Bits: Width8, Label: label, Index: offset, Hash: hash}
}

// NewLoadNode returns a leaf representing a multi-byte load starting at
// offset.
func NewLoadNode(label Label, offset uint, width uint, hash uint32) *AstNode {
	return &AstNode{Kind: Read, Bits: width, Label: label, Index: offset, Hash: hash}
}

// NewConstantNode returns a leaf carrying an immediate value.
func NewConstantNode(value uint64, bits uint, hash uint32) *AstNode {
	return &AstNode{Kind: Constant, Bits: bits, Value: maskValue(value, bits), Hash: hash}
}

// NewUnaryNode returns an interior node with a single child (ZExt, SExt,
// Extract). offset is only meaningful for Extract.
func NewUnaryNode(kind AstKind, label Label, bits uint, offset uint, child *AstNode, hash uint32) *AstNode {
	n := &AstNode{Kind: kind, Bits: bits, Label: label, Index: offset, Hash: hash}
	n.Children[0] = child
	return n
}

// NewBinaryNode returns an interior node with two children (arithmetic,
// bitwise, Concat, or a relational comparison).
func NewBinaryNode(kind AstKind, label Label, bits uint, lhs, rhs *AstNode, hash uint32) *AstNode {
	n := &AstNode{Kind: kind, Bits: bits, Label: label, Hash: hash}
	n.Children[0], n.Children[1] = lhs, rhs
	return n
}

// NewBoolNode returns a constant-folded boolean leaf produced by the
// formula simplifier (not a 1-bit numeric Constant).
func NewBoolNode(value bool) *AstNode {
	return &AstNode{Kind: Bool, Bits: WidthBool, BoolValue: value}
}

// NewLNotNode returns the logical negation of child.
func NewLNotNode(child *AstNode) *AstNode {
	n := &AstNode{Kind: LNot, Bits: WidthBool}
	n.Children[0] = child
	return n
}

// NewLAndNode/NewLOrNode return the logical conjunction/disjunction of two
// boolean-shaped nodes.
func NewLAndNode(lhs, rhs *AstNode) *AstNode {
	n := &AstNode{Kind: LAnd, Bits: WidthBool}
	n.Children[0], n.Children[1] = lhs, rhs
	return n
}

func NewLOrNode(lhs, rhs *AstNode) *AstNode {
	n := &AstNode{Kind: LOr, Bits: WidthBool}
	n.Children[0], n.Children[1] = lhs, rhs
	return n
}

// IsConstantNode reports whether n is a numeric Constant leaf.
func IsConstantNode(n *AstNode) bool {
	return n != nil && n.Kind == Constant
}

// IsBoolConstant reports whether n is a simplifier-level Bool leaf, and if
// so returns its value.
func IsBoolConstant(n *AstNode) (value bool, ok bool) {
	if n == nil || n.Kind != Bool {
		return false, false
	}
	return n.BoolValue, true
}

func maskValue(value uint64, bits uint) uint64 {
	if bits >= 64 {
		return value
	}
	return value & ((uint64(1) << bits) - 1)
}

// String returns a debug string representation of the node, in an
// S-expression style.
func (n *AstNode) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case Read:
		return fmt.Sprintf("(read %d %d)", n.Index, n.Bits)
	case Constant:
		return fmt.Sprintf("(const %d %d)", n.Value, n.Bits)
	case Bool:
		return fmt.Sprintf("(bool %t)", n.BoolValue)
	case Extract:
		return fmt.Sprintf("(extract %s %d %d)", n.Children[0], n.Index, n.Bits)
	case ZExt:
		return fmt.Sprintf("(zext %s %d)", n.Children[0], n.Bits)
	case SExt:
		return fmt.Sprintf("(sext %s %d)", n.Children[0], n.Bits)
	case LNot:
		return fmt.Sprintf("(not %s)", n.Children[0])
	default:
		return fmt.Sprintf("(%s %s %s)", n.Kind, n.Children[0], n.Children[1])
	}
}

// compareNode returns an integer comparing two nodes structurally: 0 if
// equal, -1 if a < b, +1 if a > b: kind first, then width, then the
// kind-specific fields and children.
func compareNode(a, b *AstNode) int {
	if a == nil && b == nil {
		return 0
	} else if a == nil {
		return -1
	} else if b == nil {
		return 1
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.Bits != b.Bits {
		if a.Bits < b.Bits {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case Read:
		return compareUint(uint64(a.Index), uint64(b.Index))
	case Constant:
		return compareUint(a.Value, b.Value)
	case Bool:
		if a.BoolValue == b.BoolValue {
			return 0
		} else if !a.BoolValue {
			return -1
		}
		return 1
	case Extract:
		if c := compareUint(uint64(a.Index), uint64(b.Index)); c != 0 {
			return c
		}
		return compareNode(a.Children[0], b.Children[0])
	default:
		if c := compareNode(a.Children[0], b.Children[0]); c != 0 {
			return c
		}
		return compareNode(a.Children[1], b.Children[1])
	}
}

func compareUint(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
