package gradsolver

import "github.com/taintcore/taintcore"

var _ taintcore.Solver = (*Solver)(nil)

// interesting8/16/32 are the boundary-value sets go-fuzz's smash pass
// tries at every byte/word/dword position: signed extremes, zero, and
// off-by-one neighbours, the values most likely to flip a comparison.
var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

const maxSmashAttempts = 20000

// Solver is a pure-Go heuristic back-end with two stages: an
// input-to-state direct match, then bounded local-search byte mutation.
// It never proves UNSAT — it returns TIMEOUT when its budget is spent
// without finding a satisfying assignment, leaving the task for another
// solver or a later retry.
type Solver struct{}

// NewSolver returns a gradsolver.Solver.
func NewSolver() *Solver { return &Solver{} }

// Stages reports the two strategies above.
func (s *Solver) Stages() int { return 2 }

// Solve dispatches to the stage-0 input-to-state pass or the stage-1
// local search pass.
func (s *Solver) Solve(stage int, task *taintcore.SearchTask, input *taintcore.InputBuffer) ([]byte, taintcore.Verdict, error) {
	env := baseEnv(task, input)
	switch stage {
	case 0:
		return s.solveI2S(task, input, env)
	case 1:
		return s.solveSmash(task, input, env)
	default:
		return nil, taintcore.TIMEOUT, nil
	}
}

func baseEnv(task *taintcore.SearchTask, input *taintcore.InputBuffer) map[uint]byte {
	env := make(map[uint]byte, len(task.Inputs))
	for _, ob := range task.Inputs {
		env[ob.Offset] = input.Peek(ob.Offset)
	}
	return env
}

func allSatisfied(task *taintcore.SearchTask, env map[uint]byte) bool {
	ev := NewEvaluator(env)
	for _, meta := range task.ConsMeta {
		if !ev.EvaluateConsMeta(meta) {
			return false
		}
	}
	return true
}

// solveI2S tries, for each i2s candidate run on each equality constraint,
// writing the constant operand's bytes directly over the run and
// checking whether that alone satisfies every constraint in the task.
func (s *Solver) solveI2S(task *taintcore.SearchTask, input *taintcore.InputBuffer, env map[uint]byte) ([]byte, taintcore.Verdict, error) {
	for _, meta := range task.ConsMeta {
		if meta.Comparison != taintcore.Equal {
			continue
		}
		root := meta.Constraint.AstRoot
		constNode, symNode := pickConstantSide(root.Children[0], root.Children[1])
		if constNode == nil {
			continue
		}
		for _, run := range meta.I2SCandidates {
			width := run.RunLength
			if uint(width*8) != symNode.Bits && symNode.Bits != 0 {
				continue
			}
			trial := cloneEnv(env)
			writeLittleEndian(trial, run.BaseOffset, run.RunLength, constNode.Value)
			if allSatisfied(task, trial) {
				return materialize(task, input, trial), finalizeSolved(task, trial), nil
			}
		}
	}
	return nil, taintcore.TIMEOUT, nil
}

// solveSmash performs a bounded bit-flip and interesting-value search
// across every referenced offset, each trial a single mutation of the
// base assignment, and returns the first trial that satisfies every
// constraint. Trials that satisfy only some constraints are not kept.
func (s *Solver) solveSmash(task *taintcore.SearchTask, input *taintcore.InputBuffer, env map[uint]byte) ([]byte, taintcore.Verdict, error) {
	attempts := 0
	try := func(trial map[uint]byte) (map[uint]byte, bool) {
		attempts++
		if allSatisfied(task, trial) {
			return trial, true
		}
		return nil, false
	}

	for _, ob := range task.Inputs {
		if attempts >= maxSmashAttempts {
			break
		}
		for _, v := range interesting8 {
			trial := cloneEnv(env)
			trial[ob.Offset] = byte(v)
			if result, ok := try(trial); ok {
				return materialize(task, input, result), finalizeSolved(task, result), nil
			}
		}
		for bit := 0; bit < 8; bit++ {
			trial := cloneEnv(env)
			trial[ob.Offset] ^= 1 << uint(bit)
			if result, ok := try(trial); ok {
				return materialize(task, input, result), finalizeSolved(task, result), nil
			}
		}
	}

	for i := 0; i < len(task.Inputs)-1 && attempts < maxSmashAttempts; i++ {
		for _, v := range interesting16 {
			trial := cloneEnv(env)
			writeLittleEndian(trial, task.Inputs[i].Offset, 2, uint64(uint16(v)))
			if result, ok := try(trial); ok {
				return materialize(task, input, result), finalizeSolved(task, result), nil
			}
		}
	}

	for i := 0; i < len(task.Inputs)-3 && attempts < maxSmashAttempts; i++ {
		for _, v := range interesting32 {
			trial := cloneEnv(env)
			writeLittleEndian(trial, task.Inputs[i].Offset, 4, uint64(uint32(v)))
			if result, ok := try(trial); ok {
				return materialize(task, input, result), finalizeSolved(task, result), nil
			}
		}
	}

	task.Attempts += uint(attempts)
	return nil, taintcore.TIMEOUT, nil
}

func pickConstantSide(a, b *taintcore.AstNode) (constNode, symNode *taintcore.AstNode) {
	if taintcore.IsConstantNode(a) {
		return a, b
	}
	if taintcore.IsConstantNode(b) {
		return b, a
	}
	return nil, nil
}

func cloneEnv(env map[uint]byte) map[uint]byte {
	out := make(map[uint]byte, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func writeLittleEndian(env map[uint]byte, base, width uint, value uint64) {
	for i := uint(0); i < width; i++ {
		env[base+i] = byte(value >> (8 * i))
	}
}

func materialize(task *taintcore.SearchTask, input *taintcore.InputBuffer, env map[uint]byte) []byte {
	updates := make([]taintcore.ByteUpdate, 0, len(task.Inputs))
	for _, ob := range task.Inputs {
		updates = append(updates, taintcore.ByteUpdate{Offset: ob.Offset, Value: env[ob.Offset]})
	}
	return input.Materialize(updates)
}

func finalizeSolved(task *taintcore.SearchTask, env map[uint]byte) taintcore.Verdict {
	for _, ob := range task.Inputs {
		task.Solution[ob.Offset] = env[ob.Offset]
	}
	task.Solved = true
	return taintcore.SAT
}
