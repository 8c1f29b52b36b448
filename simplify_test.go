package taintcore_test

import (
	"testing"

	"github.com/taintcore/taintcore"
)

func TestFindRoots_SingleComparison(t *testing.T) {
	table := buildTable(
		terminal(0),
		icmp(taintcore.PredEQ, 1, 0, taintcore.ConstLabel, 5),
	)
	lifter := taintcore.NewExpressionLifter(table, taintcore.NewInputBuffer([]byte{7}))
	fs := taintcore.NewFormulaSimplifier(lifter)

	root, ok := fs.FindRoots(2)
	if !ok {
		t.Fatal("FindRoots failed")
	}
	if root.Kind != taintcore.Equal {
		t.Fatalf("Kind = %s, want Equal", root.Kind)
	}
}

func TestFindRoots_RecognisesAnd(t *testing.T) {
	table := buildTable(
		terminal(0),                                            // 1: read offset 0
		terminal(1),                                            // 2: read offset 1
		icmp(taintcore.PredEQ, 1, 0, taintcore.ConstLabel, 5),  // 3: x == 5
		icmp(taintcore.PredUGT, 2, 0, taintcore.ConstLabel, 10), // 4: y > 10
		taintcore.LabelInfo{Op: taintcore.OpAnd, Size: taintcore.WidthBool, L1: 3, L2: 4}, // 5: (x==5) && (y>10)
	)
	lifter := taintcore.NewExpressionLifter(table, taintcore.NewInputBuffer([]byte{7, 20}))
	fs := taintcore.NewFormulaSimplifier(lifter)

	root, ok := fs.FindRoots(5)
	if !ok {
		t.Fatal("FindRoots failed")
	}
	if root.Kind != taintcore.LAnd {
		t.Fatalf("Kind = %s, want LAnd", root.Kind)
	}
	if root.Children[0].Kind != taintcore.Equal || root.Children[1].Kind != taintcore.Ugt {
		t.Fatalf("children = %s / %s, want Equal / Ugt", root.Children[0].Kind, root.Children[1].Kind)
	}
}

func TestFindRoots_RecognisesXorAsNot(t *testing.T) {
	table := buildTable(
		terminal(0),
		icmp(taintcore.PredEQ, 1, 0, taintcore.ConstLabel, 5), // 2: x == 5
		taintcore.LabelInfo{Op: taintcore.OpXor, Size: taintcore.WidthBool, L1: 2, L2: taintcore.ConstLabel, Op2: 1}, // 3: !(x==5)
	)
	lifter := taintcore.NewExpressionLifter(table, taintcore.NewInputBuffer([]byte{7}))
	fs := taintcore.NewFormulaSimplifier(lifter)

	root, ok := fs.FindRoots(3)
	if !ok {
		t.Fatal("FindRoots failed")
	}
	if root.Kind != taintcore.LNot {
		t.Fatalf("Kind = %s, want LNot", root.Kind)
	}
	if root.Children[0].Kind != taintcore.Equal {
		t.Fatalf("inner kind = %s, want Equal", root.Children[0].Kind)
	}
}

func TestFindRoots_XorWithZeroMaskIsIdentity(t *testing.T) {
	table := buildTable(
		terminal(0),
		icmp(taintcore.PredEQ, 1, 0, taintcore.ConstLabel, 5),
		taintcore.LabelInfo{Op: taintcore.OpXor, Size: taintcore.WidthBool, L1: 2, L2: taintcore.ConstLabel, Op2: 0},
	)
	lifter := taintcore.NewExpressionLifter(table, taintcore.NewInputBuffer([]byte{7}))
	fs := taintcore.NewFormulaSimplifier(lifter)

	root, ok := fs.FindRoots(3)
	if !ok {
		t.Fatal("FindRoots failed")
	}
	if root.Kind != taintcore.Equal {
		t.Fatalf("Kind = %s, want Equal (xor with 0 is identity)", root.Kind)
	}
}

func TestFindRoots_StripsZExtRoundTrip(t *testing.T) {
	table := buildTable(
		terminal(0),
		icmp(taintcore.PredEQ, 1, 0, taintcore.ConstLabel, 5), // 2: x==5, width 1
		taintcore.LabelInfo{Op: taintcore.OpZExt, Size: taintcore.Width8, L1: 2}, // 3: zext(x==5) to i8
	)
	lifter := taintcore.NewExpressionLifter(table, taintcore.NewInputBuffer([]byte{7}))
	fs := taintcore.NewFormulaSimplifier(lifter)

	root, ok := fs.FindRoots(3)
	if !ok {
		t.Fatal("FindRoots failed")
	}
	if root.Kind != taintcore.Equal {
		t.Fatalf("Kind = %s, want Equal (zext should strip to the inner bool)", root.Kind)
	}
}
