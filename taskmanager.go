package taintcore

// pendingTask pairs a queued SearchTask with the branch context that
// produced it, so a solved task can be matched back to its negated
// branch for logging and hint propagation.
type pendingTask struct {
	ctx  BranchContext
	task *SearchTask
}

// TaskManager is a strict FIFO queue of pending SearchTasks. Design
// allows future prioritised policies, but the current contract is
// insertion order within one tracer run.
type TaskManager struct {
	queue []pendingTask
}

// NewTaskManager returns an empty task manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{}
}

// AddTask enqueues task under the branch context that produced it.
func (tm *TaskManager) AddTask(ctx BranchContext, task *SearchTask) {
	tm.queue = append(tm.queue, pendingTask{ctx: ctx, task: task})
}

// GetNumTasks returns the number of pending tasks.
func (tm *TaskManager) GetNumTasks() int {
	return len(tm.queue)
}

// GetNextTask pops the oldest pending task, or returns nil if the queue
// is empty.
func (tm *TaskManager) GetNextTask() *SearchTask {
	if len(tm.queue) == 0 {
		return nil
	}
	next := tm.queue[0]
	tm.queue = tm.queue[1:]
	return next.task
}
