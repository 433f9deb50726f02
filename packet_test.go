package luna

import "testing"

func TestClassifyPacketToken(t *testing.T) {
	// OUT, address=1, endpoint=2, crc5=0x1f.
	v := (uint16(1) & 0x7F) | (uint16(2) & 0x0F << 7) | (uint16(0x1F) << 11)
	b := []byte{byte(PIDOut), byte(v), byte(v >> 8)}

	p, payload := classifyPacket(100, b, 0)
	if payload != nil {
		t.Errorf("payload = %v, want nil for a token packet", payload)
	}
	if p.PID != PIDOut {
		t.Errorf("PID = %x, want OUT", p.PID)
	}
	if p.Address != 1 {
		t.Errorf("Address = %d, want 1", p.Address)
	}
	if p.EndpointNum != 2 {
		t.Errorf("EndpointNum = %d, want 2", p.EndpointNum)
	}
	if p.CRC5 != 0x1F {
		t.Errorf("CRC5 = %x, want 1f", p.CRC5)
	}
	if p.TimestampNS != 100 {
		t.Errorf("TimestampNS = %d, want 100", p.TimestampNS)
	}
}

func TestClassifyPacketSOF(t *testing.T) {
	v := (uint16(1234) & 0x07FF) | (uint16(0x0A) << 11)
	b := []byte{byte(PIDSOF), byte(v), byte(v >> 8)}

	p, _ := classifyPacket(0, b, 0)
	if p.FrameNumber != 1234 {
		t.Errorf("FrameNumber = %d, want 1234", p.FrameNumber)
	}
	if p.CRC5 != 0x0A {
		t.Errorf("CRC5 = %x, want 0a", p.CRC5)
	}
}

func TestClassifyPacketData(t *testing.T) {
	b := []byte{byte(PIDData0), 0xDE, 0xAD, 0xBE, 0xEF, 0x12, 0x34}

	p, payload := classifyPacket(0, b, 7)
	if p.PID != PIDData0 {
		t.Errorf("PID = %x, want DATA0", p.PID)
	}
	if p.DataOffset != 7 {
		t.Errorf("DataOffset = %d, want 7", p.DataOffset)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if string(payload) != string(want) {
		t.Errorf("payload = %x, want %x", payload, want)
	}
	if p.DataCRC != 0x3412 {
		t.Errorf("DataCRC = %04x, want 3412", p.DataCRC)
	}
}

func TestClassifyPacketHandshake(t *testing.T) {
	p, payload := classifyPacket(0, []byte{byte(PIDAck)}, 0)
	if p.PID != PIDAck {
		t.Errorf("PID = %x, want ACK", p.PID)
	}
	if payload != nil {
		t.Errorf("payload = %v, want nil for a handshake packet", payload)
	}
}

func TestClassifyPacketTruncatedFields(t *testing.T) {
	// A token PID with no field bytes following: fields stay zero rather
	// than panicking.
	p, _ := classifyPacket(0, []byte{byte(PIDIn)}, 0)
	if p.Address != 0 || p.EndpointNum != 0 || p.CRC5 != 0 {
		t.Errorf("got non-zero fields from a truncated token: %+v", p)
	}
}

func TestMarshalUnmarshalPacketRoundTrip(t *testing.T) {
	want := Packet{
		TimestampNS: 42,
		Address:     0x55,
		EndpointNum: 0x0A,
		CRC5:        0x15,
		PID:         PIDSetup,
	}
	rec := marshalPacket(want)
	got := unmarshalPacket(rec[:])
	if got != want {
		t.Errorf("round-trip = %+v, want %+v", got, want)
	}
}
