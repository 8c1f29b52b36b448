package driver

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/taintcore/taintcore"
)

// labelInfoSize is the wire size of one taintcore.LabelInfo record as the
// tracer lays it out: op(4) + size(4) + l1(4) + l2(4) + op1(8) + op2(8).
const labelInfoSize = 32

// maxLabels bounds the label table's shared-memory reservation. The
// segment is allocated with NORESERVE semantics so only the pages the
// tracer actually writes ever consume physical memory; the reservation
// itself just needs to be larger than any real run's label count.
const maxLabels = (48 << 30) / labelInfoSize

// shmNoReserve is Linux's SHM_NORESERVE shmget flag (<linux/shm.h>),
// which golang.org/x/sys/unix does not export.
const shmNoReserve = 0o10000

// LabelTableSegment owns the anonymous SysV shared-memory segment backing
// a taintcore.LabelTable: created by the driver at init, attached
// read-only by the core, and detached on teardown. The tracer is the
// segment's sole writer.
type LabelTableSegment struct {
	id   int
	data []byte
}

// NewLabelTableSegment creates and attaches a label table segment sized
// for maxLabels records.
func NewLabelTableSegment() (*LabelTableSegment, error) {
	size := maxLabels * labelInfoSize
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|shmNoReserve|0600)
	if err != nil {
		return nil, fmt.Errorf("driver: shmget: %w", err)
	}
	data, err := unix.SysvShmAttach(id, 0, unix.SHM_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("driver: shmat: %w", err)
	}
	return &LabelTableSegment{id: id, data: data}, nil
}

// ShmID returns the SysV shm id, passed to the tracer child via
// TAINT_OPTIONS so it can attach the same segment for writing.
func (s *LabelTableSegment) ShmID() int { return s.id }

// View returns a taintcore.LabelTable reading directly out of the shared
// segment, reinterpreting it as a []taintcore.LabelInfo slice in place —
// the Go struct's field order and sizes match the tracer's C layout
// exactly, so no copy is needed.
func (s *LabelTableSegment) View() *taintcore.LabelTable {
	records := unsafe.Slice((*taintcore.LabelInfo)(unsafe.Pointer(&s.data[0])), len(s.data)/labelInfoSize)
	return taintcore.NewLabelTable(records)
}

// Close detaches and removes the segment. Safe to call once per
// NewLabelTableSegment. A failure of either step is returned to the
// caller; when detaching fails, removal is not attempted.
func (s *LabelTableSegment) Close() error {
	if err := unix.SysvShmDetach(s.data); err != nil {
		return fmt.Errorf("driver: shmdt: %w", err)
	}
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("driver: shmctl rmid: %w", err)
	}
	return nil
}
