package taintcore

// TaskBuilder composes a SearchTask from one DNF clause, resolving each
// leaf to a shared Constraint (via the lifter's cache, or by lifting it
// for the first time) and overlaying the leaf's post-NNF polarity.
type TaskBuilder struct {
	lifter *ExpressionLifter
}

// NewTaskBuilder returns a builder that resolves clause leaves through lf.
func NewTaskBuilder(lf *ExpressionLifter) *TaskBuilder {
	return &TaskBuilder{lifter: lf}
}

// BuildTask resolves every leaf of clause into a Constraint/ConsMeta pair
// and finalizes the resulting SearchTask. ok is false if any leaf fails
// to lift (invalid label, unknown opcode reachable from it).
func (tb *TaskBuilder) BuildTask(clause Clause) (*SearchTask, bool) {
	constraints := make([]*Constraint, 0, len(clause))
	metas := make([]*ConsMeta, 0, len(clause))

	for _, leaf := range clause {
		c, ok := tb.lifter.ParseConstraint(leaf.Label)
		if !ok {
			return nil, false
		}
		// The clause's post-NNF comparison may differ from the
		// constraint's own cached polarity (the constraint was lifted
		// under its original, pre-negation sense). It is carried by the
		// ConsMeta; the shared root keeps the kind it was lifted with.
		meta := newConsMeta(c, leaf.Kind)
		constraints = append(constraints, c)
		metas = append(metas, meta)
	}

	task := NewSearchTask(constraints, metas)
	task.Finalize()
	return task, true
}
