package taintcore

import (
	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// DumpTask renders task as a multi-line debug string showing the full
// shape of a SearchTask rather than its %v form.
func DumpTask(task *SearchTask) string {
	return dumpConfig.Sdump(task)
}

// DumpNode renders an AstNode tree for debugging.
func DumpNode(node *AstNode) string {
	return dumpConfig.Sdump(node)
}
