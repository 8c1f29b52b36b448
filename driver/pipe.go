package driver

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/taintcore/taintcore"
)

// Message types carried by PipeMsg.MsgType.
const (
	MsgCond uint16 = iota
	MsgGep
	MsgMemcmp
	MsgFsize
)

// PipeMsg is the fixed-size header the tracer writes for every event.
// Fields are read one at a time rather than via a single binary.Read on
// the struct: the tracer is a C binary and its struct layout does not
// necessarily match Go's field alignment for a mixed uint16/uint32/uint64
// struct, so each field is decoded explicitly in wire order.
type PipeMsg struct {
	MsgType    uint16
	Flags      uint16
	InstanceID uint32
	Addr       uint32
	Context    uint32
	ID         uint32
	Label      taintcore.Label
	Result     uint64
}

// ReadPipeMsg decodes one PipeMsg from r in little-endian wire order.
func ReadPipeMsg(r io.Reader) (PipeMsg, error) {
	var raw struct {
		MsgType, Flags                    uint16
		InstanceID, Addr, Context, ID, Lb uint32
		Result                            uint64
	}
	fields := []interface{}{
		&raw.MsgType, &raw.Flags, &raw.InstanceID, &raw.Addr,
		&raw.Context, &raw.ID, &raw.Lb, &raw.Result,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return PipeMsg{}, fmt.Errorf("driver: read pipe_msg: %w", err)
		}
	}
	return PipeMsg{
		MsgType:    raw.MsgType,
		Flags:      raw.Flags,
		InstanceID: raw.InstanceID,
		Addr:       raw.Addr,
		Context:    raw.Context,
		ID:         raw.ID,
		Label:      taintcore.Label(raw.Lb),
		Result:     raw.Result,
	}, nil
}

// GepMsg follows a MsgGep PipeMsg. It is currently a hook point: the
// driver cross-checks PipeMsg.Label against IndexLabel and otherwise
// ignores the payload.
type GepMsg struct {
	PtrLabel   taintcore.Label
	IndexLabel taintcore.Label
}

// ReadGepMsg decodes one GepMsg from r.
func ReadGepMsg(r io.Reader) (GepMsg, error) {
	var raw struct{ Ptr, Index uint32 }
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return GepMsg{}, fmt.Errorf("driver: read gep_msg: %w", err)
	}
	return GepMsg{PtrLabel: taintcore.Label(raw.Ptr), IndexLabel: taintcore.Label(raw.Index)}, nil
}

// MemcmpMsg follows a MsgMemcmp PipeMsg; Content's length is the owning
// PipeMsg's Result field.
type MemcmpMsg struct {
	Label   taintcore.Label
	Content []byte
}

// ReadMemcmpMsg decodes one MemcmpMsg with a Content of length contentLen
// from r.
func ReadMemcmpMsg(r io.Reader, contentLen uint64) (MemcmpMsg, error) {
	var label uint32
	if err := binary.Read(r, binary.LittleEndian, &label); err != nil {
		return MemcmpMsg{}, fmt.Errorf("driver: read memcmp_msg label: %w", err)
	}
	content := make([]byte, contentLen)
	if _, err := io.ReadFull(r, content); err != nil {
		return MemcmpMsg{}, fmt.Errorf("driver: read memcmp_msg content: %w", err)
	}
	return MemcmpMsg{Label: taintcore.Label(label), Content: content}, nil
}
