package taintcore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// mixHash combines three 32-bit words into a 32-bit structural hash
// using xxhash, mirroring the "xxhash(a, b, c)" mixing used throughout
// the expression lifter.
func mixHash(a, b, c uint32) uint32 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], a)
	binary.LittleEndian.PutUint32(buf[4:8], b)
	binary.LittleEndian.PutUint32(buf[8:12], c)
	return uint32(xxhash.Sum64(buf[:]))
}

// mixHash2 combines two 32-bit words. The lifter uses it for constant
// leaves, mixed from (width, Constant) only, with no argument index, and
// as the first step of unary and binary node hashes, whose result is then
// combined with the child hash through mixHash.
func mixHash2(a, b uint32) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], a)
	binary.LittleEndian.PutUint32(buf[4:8], b)
	return uint32(xxhash.Sum64(buf[:]))
}
