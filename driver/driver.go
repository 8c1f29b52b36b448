// Package driver implements the fuzzer-facing state machine: it owns the
// label table's shared memory, forks a tracer child per mutation round,
// turns the pipe message stream into search tasks via package taintcore,
// and exposes the three host callbacks a coverage-guided fuzzer drives
// (FuzzCount, Fuzz, QueueNewEntry).
package driver

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/taintcore/taintcore"
)

// MutationState tracks the candidate the driver last handed back from
// Fuzz, across the fuzzer's subsequent validate/promote calls.
type MutationState int

const (
	StateInvalid MutationState = iota
	StateInValidation
	StateValidated
)

// Config names the target binary and backing solvers a Driver drives.
type Config struct {
	TargetPath string
	TargetArgs []string
	UsesStdin  bool
	InputPath  string
	Debug      bool
	Logger     *log.Logger
	Solvers    []taintcore.Solver
}

// Driver owns one fuzzer-facing session: shared memory lifecycle, tracer
// orchestration, and the staged solver state machine. It is not safe for
// concurrent use — the host is expected to run one Driver per core.
type Driver struct {
	cfg    Config
	logger *log.Logger

	labelSeg *LabelTableSegment

	lifter      *taintcore.ExpressionLifter
	simplifier  *taintcore.FormulaSimplifier
	taskBuilder *taintcore.TaskBuilder
	tasks       *taintcore.TaskManager
	coverage    *taintcore.CoverageManager

	seenQueueEntries map[string]struct{}
	memcmpCache      map[taintcore.Label][]byte

	curTask          *taintcore.SearchTask
	curSolverIndex   int
	curSolverStage   int
	curMutationState MutationState
	curQueueEntry    string
}

// New creates a Driver. The label table's shared-memory segment is
// created and attached immediately; a failure here is fatal per the
// error-handling design (shm attach failure cannot be recovered from).
func New(cfg Config) (*Driver, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	seg, err := NewLabelTableSegment()
	if err != nil {
		return nil, fmt.Errorf("driver: fatal: %w", err)
	}

	d := &Driver{
		cfg:              cfg,
		logger:           cfg.Logger,
		labelSeg:         seg,
		tasks:            taintcore.NewTaskManager(),
		coverage:         taintcore.NewCoverageManager(),
		seenQueueEntries: make(map[string]struct{}),
		memcmpCache:      make(map[taintcore.Label][]byte),
	}
	d.lifter = taintcore.NewExpressionLifter(seg.View(), nil)
	d.simplifier = taintcore.NewFormulaSimplifier(d.lifter)
	d.taskBuilder = taintcore.NewTaskBuilder(d.lifter)
	return d, nil
}

// Close detaches the label table segment. Call once, after the driver is
// done processing queue entries.
func (d *Driver) Close() error {
	return d.labelSeg.Close()
}

// clearCaches resets the per-mutation-round state: the lifter's
// cross-constraint cache and the memcmp content cache. Called at the top
// of every FuzzCount.
func (d *Driver) clearCaches() {
	d.lifter.ClearCache()
	d.memcmpCache = make(map[taintcore.Label][]byte)
}

// FuzzCount forks the tracer against input under queueEntryID, drains its
// pipe message stream into search tasks, and returns an upper bound on
// the number of solver stages this round could consume.
func (d *Driver) FuzzCount(input []byte, queueEntryID string) (uint32, error) {
	if _, seen := d.seenQueueEntries[queueEntryID]; seen {
		return 0, nil
	}
	d.seenQueueEntries[queueEntryID] = struct{}{}
	d.curQueueEntry = queueEntryID
	d.clearCaches()

	inputBuf := taintcore.NewInputBuffer(input)
	d.lifter.SetInput(inputBuf)

	taintFile, stdinFile, err := d.prepareInputFile(input)
	if err != nil {
		d.logger.Printf("[fuzz_count] prepare input: %v", err)
		return 0, nil
	}
	if stdinFile != nil {
		defer stdinFile.Close()
	}

	pipeRead, pipeWrite, err := os.Pipe()
	if err != nil {
		d.logger.Printf("[fuzz_count] pipe: %v", err)
		return 0, nil
	}

	cmd, err := StartTracer(TracerConfig{
		Path:      d.cfg.TargetPath,
		Args:      d.cfg.TargetArgs,
		TaintFile: taintFile,
		ShmID:     d.labelSeg.ShmID(),
		Debug:     d.cfg.Debug,
	}, pipeWrite, stdinFile)
	pipeWrite.Close()
	if err != nil {
		pipeRead.Close()
		d.logger.Printf("[fuzz_count] fork/exec failed: %v", err)
		return 0, nil
	}

	d.drainPipe(pipeRead, inputBuf)
	pipeRead.Close()

	if err := cmd.Wait(); err != nil {
		d.logger.Printf("[fuzz_count] tracer exited: %v", err)
	}

	d.curTask = nil

	pending := d.tasks.GetNumTasks()
	var stageSum int
	for _, s := range d.cfg.Solvers {
		stageSum += s.Stages()
	}
	return uint32(pending * stageSum), nil
}

// prepareInputFile writes input to the configured input path (or reports
// "stdin" for the tracer's TAINT_OPTIONS, returning an *os.File to dup
// onto the child's stdin) and is the driver's sole writer of that file.
func (d *Driver) prepareInputFile(input []byte) (taintFile string, stdinFile *os.File, err error) {
	if !d.cfg.UsesStdin {
		f, err := os.OpenFile(d.cfg.InputPath, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return "", nil, fmt.Errorf("open input file: %w", err)
		}
		defer f.Close()
		if err := f.Truncate(int64(len(input))); err != nil {
			return "", nil, fmt.Errorf("truncate input file: %w", err)
		}
		if _, err := f.WriteAt(input, 0); err != nil {
			return "", nil, fmt.Errorf("write input file: %w", err)
		}
		if err := f.Sync(); err != nil {
			return "", nil, fmt.Errorf("sync input file: %w", err)
		}
		return d.cfg.InputPath, nil, nil
	}

	f, err := os.OpenFile(d.cfg.InputPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("open stdin source: %w", err)
	}
	if err := f.Truncate(int64(len(input))); err != nil {
		f.Close()
		return "", nil, fmt.Errorf("truncate stdin source: %w", err)
	}
	if _, err := f.WriteAt(input, 0); err != nil {
		f.Close()
		return "", nil, fmt.Errorf("write stdin source: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return "", nil, fmt.Errorf("seek stdin source: %w", err)
	}
	return "stdin", f, nil
}

// drainPipe reads pipe_msg records until the tracer closes its write end
// or a truncated read signals a crash, dispatching cond/gep/memcmp/fsize
// events.
func (d *Driver) drainPipe(r io.Reader, input *taintcore.InputBuffer) {
	for {
		msg, err := ReadPipeMsg(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.logger.Printf("[fuzz_count] truncated pipe read, stopping: %v", err)
			}
			return
		}
		switch msg.MsgType {
		case MsgCond:
			d.handleCond(msg, input)
		case MsgGep:
			gep, err := ReadGepMsg(r)
			if err != nil {
				d.logger.Printf("[fuzz_count] truncated gep_msg: %v", err)
				return
			}
			if gep.IndexLabel != msg.Label {
				d.logger.Printf("[fuzz_count] gep_msg label mismatch: pipe=%d gep=%d", msg.Label, gep.IndexLabel)
			}
			// No further behavior: a hook point for future GEP-aware
			// solving, not exercised by any search task today.
		case MsgMemcmp:
			mc, err := ReadMemcmpMsg(r, msg.Result)
			if err != nil {
				d.logger.Printf("[fuzz_count] truncated memcmp_msg: %v", err)
				return
			}
			if mc.Label != msg.Label {
				d.logger.Printf("[fuzz_count] memcmp_msg label mismatch: pipe=%d msg=%d", msg.Label, mc.Label)
			}
			d.memcmpCache[msg.Label] = mc.Content
		case MsgFsize:
			// no-op
		default:
			d.logger.Printf("[fuzz_count] unrecognised msg_type %d", msg.MsgType)
		}
	}
}

func (d *Driver) handleCond(msg PipeMsg, input *taintcore.InputBuffer) {
	direction := msg.Result != 0
	isLoop := false
	isCounted := false

	d.coverage.AddBranch(msg.Addr, msg.ID, direction, msg.Context, isLoop, isCounted)

	negCtx := taintcore.BranchContext{
		Address:     msg.Addr,
		ID:          msg.ID,
		Direction:   !direction,
		ContextHash: msg.Context,
		IsLoop:      isLoop,
		IsCounted:   isCounted,
	}
	if !d.coverage.IsBranchInteresting(negCtx) {
		return
	}

	root, ok := d.simplifier.FindRoots(msg.Label)
	if !ok {
		d.logger.Printf("[fuzz_count] dropping branch: label %d did not simplify", msg.Label)
		return
	}
	nnf := taintcore.ToNNF(negCtx.Direction, root)
	clauses := taintcore.ToDNF(nnf)
	for _, clause := range clauses {
		task, ok := d.taskBuilder.BuildTask(clause)
		if !ok {
			d.logger.Printf("[fuzz_count] dropping clause: failed to build task")
			continue
		}
		d.tasks.AddTask(negCtx, task)
	}
}

// Fuzz runs one step of the staged solver state machine and returns the
// mutated input to hand the host, or the original input unchanged when
// there is nothing left to try.
func (d *Driver) Fuzz(input []byte, maxStages uint32) ([]byte, error) {
	if d.curTask == nil || d.curMutationState == StateValidated {
		d.curTask = d.tasks.GetNextTask()
		d.curSolverIndex, d.curSolverStage = 0, 0
		d.curMutationState = StateInvalid
		if d.curTask == nil {
			return input, nil
		}
	} else if d.curMutationState == StateInValidation {
		d.curSolverStage++
	}

	for {
		if d.curTask == nil {
			return input, nil
		}
		if d.curSolverIndex >= len(d.cfg.Solvers) {
			d.curTask = d.tasks.GetNextTask()
			d.curSolverIndex, d.curSolverStage = 0, 0
			if d.curTask == nil {
				return input, nil
			}
			continue
		}
		solver := d.cfg.Solvers[d.curSolverIndex]
		if d.curSolverStage >= solver.Stages() {
			d.curSolverIndex++
			d.curSolverStage = 0
			continue
		}
		break
	}

	solver := d.cfg.Solvers[d.curSolverIndex]
	out, verdict, err := solver.Solve(d.curSolverStage, d.curTask, taintcore.NewInputBuffer(input))
	if err != nil {
		d.logger.Printf("[fuzz] solver error: %v", err)
		return nil, nil
	}
	switch verdict {
	case taintcore.SAT:
		d.curMutationState = StateInValidation
		return out, nil
	case taintcore.TIMEOUT:
		d.curMutationState = StateInvalid
		d.curSolverStage++
		return input, nil
	case taintcore.UNSAT:
		d.curTask = nil
		return input, nil
	default:
		d.logger.Printf("[fuzz] unrecognised solver verdict %v", verdict)
		return nil, nil
	}
}

// QueueNewEntry promotes the last SAT candidate to validated when the
// fuzzer confirms newName (derived from origName) survived triage.
func (d *Driver) QueueNewEntry(newName, origName string) {
	if d.curMutationState == StateInValidation && origName == d.curQueueEntry {
		d.curMutationState = StateValidated
	}
}
