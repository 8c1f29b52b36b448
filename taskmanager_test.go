package taintcore_test

import (
	"testing"

	"github.com/taintcore/taintcore"
)

func TestTaskManager_FIFOOrder(t *testing.T) {
	tm := taintcore.NewTaskManager()
	if got := tm.GetNumTasks(); got != 0 {
		t.Fatalf("GetNumTasks() = %d, want 0", got)
	}

	first := taintcore.NewSearchTask(nil, nil)
	second := taintcore.NewSearchTask(nil, nil)
	third := taintcore.NewSearchTask(nil, nil)

	tm.AddTask(taintcore.BranchContext{Address: 1}, first)
	tm.AddTask(taintcore.BranchContext{Address: 2}, second)
	tm.AddTask(taintcore.BranchContext{Address: 3}, third)

	if got := tm.GetNumTasks(); got != 3 {
		t.Fatalf("GetNumTasks() = %d, want 3", got)
	}

	for i, want := range []*taintcore.SearchTask{first, second, third} {
		if got := tm.GetNextTask(); got != want {
			t.Fatalf("pop %d = %p, want %p (FIFO order violated)", i, got, want)
		}
	}
	if got := tm.GetNextTask(); got != nil {
		t.Fatalf("GetNextTask() on an empty queue = %v, want nil", got)
	}
}

func TestTaskManager_EmptyQueueReturnsNil(t *testing.T) {
	tm := taintcore.NewTaskManager()
	if got := tm.GetNextTask(); got != nil {
		t.Fatalf("GetNextTask() = %v, want nil", got)
	}
}
