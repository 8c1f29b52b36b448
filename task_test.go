package taintcore_test

import (
	"testing"

	"github.com/taintcore/taintcore"
)

// TestPipeline_BranchToSearchTasks exercises the whole lift -> simplify ->
// NNF -> DNF -> task-build chain over one branch condition:
// x == 5 && y > 10, negated (the branch not taken), which should split
// into two single-leaf clauses: x != 5, and y <= 10.
func TestPipeline_BranchToSearchTasks(t *testing.T) {
	table := buildTable(
		terminal(0),                                             // 1: read x (offset 0)
		terminal(1),                                             // 2: read y (offset 1)
		icmp(taintcore.PredEQ, 1, 0, taintcore.ConstLabel, 5),   // 3: x == 5
		icmp(taintcore.PredUGT, 2, 0, taintcore.ConstLabel, 10), // 4: y > 10
		taintcore.LabelInfo{Op: taintcore.OpAnd, Size: taintcore.WidthBool, L1: 3, L2: 4}, // 5: (x==5) && (y>10)
	)
	lifter := taintcore.NewExpressionLifter(table, taintcore.NewInputBuffer([]byte{7, 20}))
	fs := taintcore.NewFormulaSimplifier(lifter)
	tb := taintcore.NewTaskBuilder(lifter)

	root, ok := fs.FindRoots(5)
	if !ok {
		t.Fatal("FindRoots failed")
	}
	// Negate: the branch actually taken was true, we want the other side.
	nnf := taintcore.ToNNF(false, root)
	if nnf.Kind != taintcore.LOr {
		t.Fatalf("negated (a && b) should rewrite to an LOr, got %s", nnf.Kind)
	}

	clauses := taintcore.ToDNF(nnf)
	if len(clauses) != 2 {
		t.Fatalf("got %d clauses, want 2", len(clauses))
	}

	var tasks []*taintcore.SearchTask
	for _, clause := range clauses {
		task, ok := tb.BuildTask(clause)
		if !ok {
			t.Fatal("BuildTask failed")
		}
		tasks = append(tasks, task)
	}

	for i, task := range tasks {
		if len(task.Constraints) != 1 {
			t.Fatalf("task %d has %d constraints, want 1", i, len(task.Constraints))
		}
		if len(task.Inputs) != 1 {
			t.Fatalf("task %d has %d inputs, want 1", i, len(task.Inputs))
		}
		wantScratch := 2 + len(task.Inputs) + int(task.MaxConstNum) + 1
		if rem := wantScratch % 8; rem != 0 {
			wantScratch += 8 - rem
		}
		if len(task.ScratchArgs) != wantScratch {
			t.Fatalf("task %d ScratchArgs len = %d, want %d", i, len(task.ScratchArgs), wantScratch)
		}
		if len(task.CMap) != 1 {
			t.Fatalf("task %d CMap has %d entries, want 1", i, len(task.CMap))
		}
	}

	if tasks[0].ConsMeta[0].Comparison != taintcore.Distinct {
		t.Fatalf("first clause comparison = %s, want Distinct (negated eq)", tasks[0].ConsMeta[0].Comparison)
	}
	if tasks[1].ConsMeta[0].Comparison != taintcore.Ule {
		t.Fatalf("second clause comparison = %s, want Ule (negated ugt)", tasks[1].ConsMeta[0].Comparison)
	}
}

func TestSearchTask_FinalizeOrdersGlobalMapByAscendingOffset(t *testing.T) {
	c1 := &taintcore.Constraint{
		AstRoot:        taintcore.NewBinaryNode(taintcore.Equal, 0, taintcore.WidthBool, nil, nil, 0),
		ComparisonKind: taintcore.Equal,
		LocalMap:       map[uint]uint{5: taintcore.RetOffset, 2: taintcore.RetOffset + 1},
		InputArgs: []taintcore.InputArg{
			{Symbolic: true, Index: taintcore.RetOffset},
			{Symbolic: true, Index: taintcore.RetOffset + 1},
		},
		Inputs: map[uint]byte{5: 0xAA, 2: 0xBB},
		Shapes: map[uint]uint{5: 1, 2: 1},
	}
	meta := &taintcore.ConsMeta{
		Constraint: c1,
		Comparison: taintcore.Equal,
		InputArgs:  append([]taintcore.InputArg(nil), c1.InputArgs...),
	}

	task := taintcore.NewSearchTask([]*taintcore.Constraint{c1}, []*taintcore.ConsMeta{meta})
	task.Finalize()

	if len(task.Inputs) != 2 {
		t.Fatalf("Inputs has %d entries, want 2", len(task.Inputs))
	}
	if task.Inputs[0].Offset != 2 || task.Inputs[1].Offset != 5 {
		t.Fatalf("Inputs = %+v, want ascending offsets [2, 5]", task.Inputs)
	}
	// offset 2's local index (RetOffset+1) should remap to global 0,
	// offset 5's local index (RetOffset) should remap to global 1.
	if meta.InputArgs[0].Index != 1 {
		t.Fatalf("meta.InputArgs[0].Index = %d, want 1 (offset 5 -> global slot 1)", meta.InputArgs[0].Index)
	}
	if meta.InputArgs[1].Index != 0 {
		t.Fatalf("meta.InputArgs[1].Index = %d, want 0 (offset 2 -> global slot 0)", meta.InputArgs[1].Index)
	}
}

func TestSearchTask_LoadHintCopiesFromSolvedBaseTask(t *testing.T) {
	base := taintcore.NewSearchTask(nil, nil)
	base.Solved = true
	base.Solution = map[uint]byte{3: 0x42}

	task := taintcore.NewSearchTask(nil, nil)
	task.Inputs = []taintcore.OffsetByte{{Offset: 3, Byte: 0}, {Offset: 9, Byte: 0}}
	task.BaseTask = base

	task.LoadHint()

	if task.Inputs[0].Byte != 0x42 {
		t.Fatalf("Inputs[0].Byte = %#x, want 0x42 (hinted from base)", task.Inputs[0].Byte)
	}
	if task.Inputs[1].Byte != 0 {
		t.Fatalf("Inputs[1].Byte = %#x, want 0 (no hint for an offset the base never solved)", task.Inputs[1].Byte)
	}
}

func TestSearchTask_LoadHintNoOpWhenBaseUnsolved(t *testing.T) {
	base := taintcore.NewSearchTask(nil, nil)
	task := taintcore.NewSearchTask(nil, nil)
	task.Inputs = []taintcore.OffsetByte{{Offset: 3, Byte: 7}}
	task.BaseTask = base

	task.LoadHint()

	if task.Inputs[0].Byte != 7 {
		t.Fatalf("Inputs[0].Byte = %d, want unchanged 7", task.Inputs[0].Byte)
	}
}
