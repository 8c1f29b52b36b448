package z3solver_test

import (
	"bytes"
	"testing"

	"github.com/taintcore/taintcore"
	"github.com/taintcore/taintcore/z3solver"
)

func equalityTask(offset uint, target uint64, initial byte) (*taintcore.SearchTask, *taintcore.InputBuffer) {
	root := taintcore.NewBinaryNode(
		taintcore.Equal, 0, taintcore.WidthBool,
		taintcore.NewReadNode(0, offset, 0),
		taintcore.NewConstantNode(target, taintcore.Width8, 0),
		0,
	)
	meta := &taintcore.ConsMeta{
		Constraint: &taintcore.Constraint{AstRoot: root},
		Comparison: taintcore.Equal,
	}
	task := taintcore.NewSearchTask([]*taintcore.Constraint{meta.Constraint}, []*taintcore.ConsMeta{meta})
	task.Inputs = []taintcore.OffsetByte{{Offset: offset, Byte: initial}}
	return task, taintcore.NewInputBuffer([]byte{initial})
}

func TestSolver_SolveEquality(t *testing.T) {
	s := z3solver.NewSolver()
	defer s.Close()

	task, input := equalityTask(0, 42, 0)
	out, verdict, err := s.Solve(0, task, input)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if verdict != taintcore.SAT {
		t.Fatalf("verdict = %s, want SAT", verdict)
	}
	if !bytes.Equal(out, []byte{42}) {
		t.Fatalf("out = %v, want [42]", out)
	}
}

func TestSolver_SolveUnsatConflictingConstraints(t *testing.T) {
	read := taintcore.NewReadNode(0, 0, 0)
	eqA := taintcore.NewBinaryNode(taintcore.Equal, 0, taintcore.WidthBool, read, taintcore.NewConstantNode(1, taintcore.Width8, 0), 0)
	eqB := taintcore.NewBinaryNode(taintcore.Equal, 0, taintcore.WidthBool, read, taintcore.NewConstantNode(2, taintcore.Width8, 0), 0)

	metaA := &taintcore.ConsMeta{Constraint: &taintcore.Constraint{AstRoot: eqA}, Comparison: taintcore.Equal}
	metaB := &taintcore.ConsMeta{Constraint: &taintcore.Constraint{AstRoot: eqB}, Comparison: taintcore.Equal}

	task := taintcore.NewSearchTask(
		[]*taintcore.Constraint{metaA.Constraint, metaB.Constraint},
		[]*taintcore.ConsMeta{metaA, metaB},
	)
	task.Inputs = []taintcore.OffsetByte{{Offset: 0, Byte: 0}}

	s := z3solver.NewSolver()
	defer s.Close()

	_, verdict, err := s.Solve(0, task, taintcore.NewInputBuffer([]byte{0}))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if verdict != taintcore.UNSAT {
		t.Fatalf("verdict = %s, want UNSAT (x==1 && x==2 cannot hold)", verdict)
	}
}

func TestSolver_Stages(t *testing.T) {
	s := z3solver.NewSolver()
	defer s.Close()
	if got := s.Stages(); got != 1 {
		t.Fatalf("Stages() = %d, want 1", got)
	}
}
