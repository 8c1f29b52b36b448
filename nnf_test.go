package taintcore_test

import (
	"testing"

	"github.com/taintcore/taintcore"
)

func eqLeaf(offset uint, value uint64) *taintcore.AstNode {
	return taintcore.NewBinaryNode(
		taintcore.Equal, 0, taintcore.WidthBool,
		taintcore.NewReadNode(0, offset, 0),
		taintcore.NewConstantNode(value, taintcore.Width8, 0),
		0,
	)
}

func TestToNNF_PositivePolarityLeavesLeafUnchanged(t *testing.T) {
	leaf := eqLeaf(0, 5)
	got := taintcore.ToNNF(true, leaf)
	if got.Kind != taintcore.Equal {
		t.Fatalf("Kind = %s, want Equal", got.Kind)
	}
}

func TestToNNF_NegativePolarityNegatesLeaf(t *testing.T) {
	leaf := eqLeaf(0, 5)
	got := taintcore.ToNNF(false, leaf)
	if got.Kind != taintcore.Distinct {
		t.Fatalf("Kind = %s, want Distinct", got.Kind)
	}
}

func TestToNNF_DoubleNegationIsIdentity(t *testing.T) {
	leaf := eqLeaf(0, 5)
	not := taintcore.NewLNotNode(taintcore.NewLNotNode(leaf))
	got := taintcore.ToNNF(true, not)
	if got.Kind != taintcore.Equal {
		t.Fatalf("Kind = %s, want Equal (double negation should cancel)", got.Kind)
	}
}

func TestToNNF_DeMorganOverLAnd(t *testing.T) {
	a, b := eqLeaf(0, 5), eqLeaf(1, 10)
	and := taintcore.NewLAndNode(a, b)

	got := taintcore.ToNNF(false, and)
	if got.Kind != taintcore.LOr {
		t.Fatalf("!(a && b) should rewrite to an LOr, got %s", got.Kind)
	}
	if got.Children[0].Kind != taintcore.Distinct || got.Children[1].Kind != taintcore.Distinct {
		t.Fatalf("both leaves under the LOr should be negated, got %s / %s",
			got.Children[0].Kind, got.Children[1].Kind)
	}
}

func TestToNNF_DeMorganOverLOr(t *testing.T) {
	a, b := eqLeaf(0, 5), eqLeaf(1, 10)
	or := taintcore.NewLOrNode(a, b)

	got := taintcore.ToNNF(false, or)
	if got.Kind != taintcore.LAnd {
		t.Fatalf("!(a || b) should rewrite to an LAnd, got %s", got.Kind)
	}
}

func TestToNNF_PushesThroughNestedNot(t *testing.T) {
	a, b := eqLeaf(0, 5), eqLeaf(1, 10)
	// !!(a && b) == a && b, at positive polarity.
	not := taintcore.NewLNotNode(taintcore.NewLAndNode(a, b))
	got := taintcore.ToNNF(false, not)
	if got.Kind != taintcore.LAnd {
		t.Fatalf("Kind = %s, want LAnd", got.Kind)
	}
	if got.Children[0].Kind != taintcore.Equal || got.Children[1].Kind != taintcore.Equal {
		t.Fatalf("leaves should be unchanged, got %s / %s", got.Children[0].Kind, got.Children[1].Kind)
	}
}

func TestToNNF_BoolLeafFoldsUnderPolarity(t *testing.T) {
	if got := taintcore.ToNNF(false, taintcore.NewBoolNode(true)); got.BoolValue {
		t.Fatal("negating a true Bool leaf should fold to false")
	}
	if got := taintcore.ToNNF(true, taintcore.NewBoolNode(false)); got.BoolValue {
		t.Fatal("positive polarity over a false Bool leaf should stay false")
	}
}
