package taintcore

import "github.com/cespare/xxhash/v2"

// BranchContext identifies one taken branch: its address, a tracer-
// assigned id, the direction actually taken, a hash of the calling
// context (for context-sensitive coverage), and loop bookkeeping flags.
type BranchContext struct {
	Address     uint32
	ID          uint32
	Direction   bool
	ContextHash uint32
	IsLoop      bool
	IsCounted   bool
}

// coverageMapSize is the number of buckets in the edge-coverage bitset,
// sized the way an AFL-style shared coverage map is: large enough that
// hash collisions between distinct edges are rare in practice, without
// tracking exact (pc, context) pairs in a growable set.
const coverageMapSize = 1 << 16

// CoverageManager tracks which (address, context, direction) edges have
// been observed, to decide whether flipping a branch would reach new
// coverage.
type CoverageManager struct {
	seen [coverageMapSize]bool
}

// NewCoverageManager returns an empty coverage manager.
func NewCoverageManager() *CoverageManager {
	return &CoverageManager{}
}

// AddBranch records addr/id/direction/context as taken and returns the
// BranchContext handle for it.
func (cm *CoverageManager) AddBranch(addr, id uint32, direction bool, context uint32, isLoop, isCounted bool) BranchContext {
	ctx := BranchContext{
		Address:     addr,
		ID:          id,
		Direction:   direction,
		ContextHash: context,
		IsLoop:      isLoop,
		IsCounted:   isCounted,
	}
	cm.seen[edgeBucket(ctx)] = true
	return ctx
}

// IsBranchInteresting reports whether negBranchCtx (the negated
// direction of a just-observed branch) would reach an edge not yet
// covered.
func (cm *CoverageManager) IsBranchInteresting(negBranchCtx BranchContext) bool {
	return !cm.seen[edgeBucket(negBranchCtx)]
}

func edgeBucket(ctx BranchContext) uint32 {
	var buf [9]byte
	putUint32(buf[0:4], ctx.Address)
	putUint32(buf[4:8], ctx.ContextHash)
	if ctx.Direction {
		buf[8] = 1
	}
	return uint32(xxhash.Sum64(buf[:])) % coverageMapSize
}

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}
