package taintcore

import "github.com/benbjohnson/immutable"

// uintComparer compares two uint offsets. Implements immutable.Comparer,
// used to keep the global symbol map built in finalize ordered by
// ascending offset.
type uintComparer struct{}

func (uintComparer) Compare(a, b interface{}) int {
	x, y := a.(uint), b.(uint)
	if x < y {
		return -1
	} else if x > y {
		return 1
	}
	return 0
}

// OffsetByte pairs an input offset with its initial byte value.
type OffsetByte struct {
	Offset uint
	Byte   byte
}

// SearchTask bundles one DNF clause's constraints, their per-task
// argument remapping, the union of referenced input bytes, and the
// scratch state a solver mutates while searching for a satisfying
// assignment.
type SearchTask struct {
	Constraints []*Constraint
	ConsMeta    []*ConsMeta

	Inputs    []OffsetByte
	Shapes    map[uint]uint
	AtoiInfos map[uint]AtoiInfo

	MaxConstNum uint

	// CMap maps a global argument index to the indices (into Constraints
	// / ConsMeta) of every constraint that references it, excluding
	// constraints whose comparison is Memcmp or MemcmpN.
	CMap map[uint][]int

	ScratchArgs []uint64

	MinDistances   []float64
	Distances      []float64
	PlusDistances  []float64
	MinusDistances []float64

	Solved   bool
	Solution map[uint]byte
	Stopped  bool
	Attempts uint

	BaseTask *SearchTask
	SkipNext bool

	Warnings []string
}

// NewSearchTask returns a task over the given constraints, each paired
// with the ConsMeta describing its clause-local polarity.
func NewSearchTask(constraints []*Constraint, consMeta []*ConsMeta) *SearchTask {
	return &SearchTask{
		Constraints: constraints,
		ConsMeta:    consMeta,
		Shapes:      make(map[uint]uint),
		AtoiInfos:   make(map[uint]AtoiInfo),
		CMap:        make(map[uint][]int),
		Solution:    make(map[uint]byte),
	}
}

// Finalize builds the global symbol map across every constraint (in
// ascending offset order per constraint, constraints visited in task
// order), remaps each ConsMeta's symbolic input args from local to global
// slots, aggregates atoi metadata, computes MaxConstNum, and allocates
// ScratchArgs and the four distance vectors.
func (t *SearchTask) Finalize() {
	globalMap := immutable.NewSortedMap(uintComparer{})
	var nextGlobal uint

	for ci, c := range t.Constraints {
		localToOffset := make(map[uint]uint, len(c.LocalMap))
		for offset, idx := range c.LocalMap {
			localToOffset[idx] = offset
		}

		for _, offset := range c.offsetsAscending() {
			if _, ok := globalMap.Get(offset); !ok {
				globalMap = globalMap.Set(offset, nextGlobal)
				t.Inputs = append(t.Inputs, OffsetByte{Offset: offset, Byte: c.Inputs[offset]})
				if shape, ok := c.Shapes[offset]; ok {
					if _, exists := t.Shapes[offset]; !exists {
						t.Shapes[offset] = shape
					}
				}
				nextGlobal++
			}
		}

		meta := t.ConsMeta[ci]
		for i, arg := range meta.InputArgs {
			if !arg.Symbolic {
				continue
			}
			offset, ok := localToOffset[arg.Index]
			assert(ok, "task: local arg index %d has no offset in constraint %d", arg.Index, ci)
			gv, _ := globalMap.Get(offset)
			meta.InputArgs[i].Index = gv.(uint)
		}

		for offset, info := range c.AtoiInfos {
			if existing, dup := t.AtoiInfos[offset]; dup && existing != info {
				t.Warnings = append(t.Warnings, "atoi info overlap at offset")
				continue
			}
			t.AtoiInfos[offset] = info
		}

		if c.ConstNum > t.MaxConstNum {
			t.MaxConstNum = c.ConstNum
		}

		if meta.Comparison != Memcmp && meta.Comparison != MemcmpN {
			for _, arg := range meta.InputArgs {
				if arg.Symbolic {
					t.CMap[arg.Index] = append(t.CMap[arg.Index], ci)
				}
			}
		}
	}

	scratchLen := 2 + len(t.Inputs) + int(t.MaxConstNum) + 1
	if rem := scratchLen % 8; rem != 0 {
		scratchLen += 8 - rem
	}
	t.ScratchArgs = make([]uint64, scratchLen)

	n := len(t.Constraints)
	t.MinDistances = make([]float64, n)
	t.Distances = make([]float64, n)
	t.PlusDistances = make([]float64, n)
	t.MinusDistances = make([]float64, n)
}

// LoadHint copies matching offsets from BaseTask's solution into this
// task's Inputs as starting values, when BaseTask is set and solved.
func (t *SearchTask) LoadHint() {
	if t.BaseTask == nil || !t.BaseTask.Solved {
		return
	}
	for i, ob := range t.Inputs {
		if v, ok := t.BaseTask.Solution[ob.Offset]; ok {
			t.Inputs[i].Byte = v
		}
	}
}
