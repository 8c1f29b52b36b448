package driver_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/taintcore/taintcore"
	"github.com/taintcore/taintcore/driver"
)

func TestReadPipeMsg_DecodesFieldsInWireOrder(t *testing.T) {
	var buf bytes.Buffer
	fields := []interface{}{
		uint16(driver.MsgCond), uint16(0x0007),
		uint32(11), uint32(0xDEADBEEF), uint32(22), uint32(33),
		uint32(44), uint64(55),
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			t.Fatalf("encode fixture: %v", err)
		}
	}

	msg, err := driver.ReadPipeMsg(&buf)
	if err != nil {
		t.Fatalf("ReadPipeMsg: %v", err)
	}
	want := driver.PipeMsg{
		MsgType: driver.MsgCond, Flags: 0x0007,
		InstanceID: 11, Addr: 0xDEADBEEF, Context: 22, ID: 33,
		Label: taintcore.Label(44), Result: 55,
	}
	if msg != want {
		t.Fatalf("ReadPipeMsg() = %+v, want %+v", msg, want)
	}
}

func TestReadPipeMsg_TruncatedReadErrors(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3})
	if _, err := driver.ReadPipeMsg(buf); err == nil {
		t.Fatal("expected an error decoding a truncated pipe_msg")
	}
}

func TestReadGepMsg_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(7))
	binary.Write(&buf, binary.LittleEndian, uint32(8))

	gep, err := driver.ReadGepMsg(&buf)
	if err != nil {
		t.Fatalf("ReadGepMsg: %v", err)
	}
	if gep.PtrLabel != 7 || gep.IndexLabel != 8 {
		t.Fatalf("ReadGepMsg() = %+v, want {PtrLabel:7 IndexLabel:8}", gep)
	}
}

func TestReadMemcmpMsg_ReadsExactContentLength(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(9))
	buf.Write([]byte("needle"))

	mc, err := driver.ReadMemcmpMsg(&buf, 6)
	if err != nil {
		t.Fatalf("ReadMemcmpMsg: %v", err)
	}
	if mc.Label != 9 || string(mc.Content) != "needle" {
		t.Fatalf("ReadMemcmpMsg() = %+v, want Label=9 Content=needle", mc)
	}
}

func TestReadMemcmpMsg_TruncatedContentErrors(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(9))
	buf.Write([]byte("ab"))

	if _, err := driver.ReadMemcmpMsg(&buf, 6); err == nil {
		t.Fatal("expected an error reading a truncated memcmp_msg body")
	}
}
