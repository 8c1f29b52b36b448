package taintcore

// RetOffset is the first local argument index reserved for the JIT
// calling convention the lifter's local_map targets; local indices are a
// contiguous range starting here.
const RetOffset = 2

// InputArg is one entry of a Constraint's (or ConsMeta's) input_args list:
// either a symbolic reference to a byte slot (global or local, depending
// on which struct holds it) or a concrete constant value.
type InputArg struct {
	Symbolic bool
	Value    uint64 // meaningful only when !Symbolic
	Index    uint   // meaningful only when Symbolic: local or global slot
}

// AtoiInfo records the shape of a string-to-integer conversion the lifter
// observed starting at some offset, keyed externally by that offset.
type AtoiInfo struct {
	ResultLen uint
	Base      uint
	StrLen    uint
}

// Constraint is the lifted representation of one relational leaf. It is
// immutable and reference-shared across every SearchTask whose DNF clause
// names the same root label within one tracer run.
type Constraint struct {
	AstRoot        *AstNode
	ComparisonKind AstKind

	// LocalMap assigns a contiguous local argument index, starting at
	// RetOffset, to every distinct input offset referenced while
	// lifting this constraint's AST.
	LocalMap map[uint]uint

	// InputArgs holds one entry per mapped input byte and one per
	// constant operand, in the order the lifter's depth-first walk
	// met them: symbolic and constant entries may interleave, and the
	// symbolic ones appear in increasing local index order.
	InputArgs []InputArg

	// Inputs is the initial byte observed at each referenced offset.
	Inputs map[uint]byte

	// Shapes records, per offset, the byte width of the read that
	// first touched it (length on the lead byte, 0 on the rest of a
	// multi-byte group).
	Shapes map[uint]uint

	// AtoiInfos records any atoi-shaped conversions rooted at an
	// offset this constraint references.
	AtoiInfos map[uint]AtoiInfo

	ConstNum   uint
	Op1Preview uint64
	Op2Preview uint64
}

// offsetsAscending returns c.LocalMap's keys sorted ascending. Building
// the global symbol map in TaskBuilder must scan constraints' local maps
// in ascending offset order, so every call site needing a deterministic
// walk goes through this helper instead of ranging a map directly.
func (c *Constraint) offsetsAscending() []uint {
	out := make([]uint, 0, len(c.LocalMap))
	for off := range c.LocalMap {
		out = append(out, off)
	}
	insertionSortUints(out)
	return out
}

func insertionSortUints(xs []uint) {
	for i := 1; i < len(xs); i++ {
		v := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > v {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = v
	}
}

// ConsMeta is the per-task mutable overlay on a shared Constraint: the
// clause-local comparison polarity (post-NNF, which may differ from the
// Constraint's own cached polarity) and the input args remapped from
// local to task-global slot indices.
type ConsMeta struct {
	Constraint *Constraint

	// Comparison is this clause's post-NNF kind for the constraint's
	// root, which may be the negated dual of Constraint.ComparisonKind.
	Comparison AstKind

	// InputArgs mirrors Constraint.InputArgs but with every Symbolic
	// Index rewritten from a local slot to a task-global slot.
	InputArgs []InputArg

	// I2SCandidates lists contiguous symbolic-byte runs detected while
	// scanning this constraint's local map, for input-to-state solver
	// heuristics.
	I2SCandidates []I2SCandidate

	Op1, Op2 uint64
}

// I2SCandidate is one contiguous run of symbolic input bytes a solver may
// try matching against a constant operand.
type I2SCandidate struct {
	BaseOffset uint
	RunLength  uint
}

// newConsMeta builds the ConsMeta for c with the given post-NNF polarity,
// detecting i2s runs from c's local map ascending-offset order.
func newConsMeta(c *Constraint, comparison AstKind) *ConsMeta {
	meta := &ConsMeta{
		Constraint: c,
		Comparison: comparison,
		InputArgs:  append([]InputArg(nil), c.InputArgs...),
		Op1:        c.Op1Preview,
		Op2:        c.Op2Preview,
	}
	meta.I2SCandidates = detectI2SRuns(c.offsetsAscending())
	return meta
}

// detectI2SRuns groups an ascending offset slice into maximal runs of
// consecutive integers.
func detectI2SRuns(offsets []uint) []I2SCandidate {
	var runs []I2SCandidate
	for i := 0; i < len(offsets); {
		start := offsets[i]
		j := i + 1
		for j < len(offsets) && offsets[j] == offsets[j-1]+1 {
			j++
		}
		runs = append(runs, I2SCandidate{BaseOffset: start, RunLength: uint(j - i)})
		i = j
	}
	return runs
}
