package luna

import "encoding/binary"

// classifyPacket turns one raw on-wire frame into a Packet record (spec
// §4.2). dataOffset is the running total of payload bytes already written
// to the data stream, used verbatim as Packet.DataOffset for a
// data-category packet.
//
// It returns the packet and, for a data-category packet with enough bytes
// to carry a trailing 2-byte CRC, the payload slice the caller should
// append to the data stream. Truncated frames are never rejected — a
// frame too short to carry its category's fields simply leaves those
// fields zero, consistent with the decoder's fault-absorbing design (§7).
func classifyPacket(timestampNS uint64, b []byte, dataOffset uint64) (Packet, []byte) {
	p := Packet{TimestampNS: timestampNS, Length: uint16(len(b))}
	if len(b) == 0 {
		return p, nil
	}

	pid := PID(b[0])
	p.PID = pid
	rest := b[1:]

	if pid.IsData() {
		if len(rest) < 2 {
			return p, nil
		}
		payload := rest[:len(rest)-2]
		crc := rest[len(rest)-2:]
		p.DataOffset = dataOffset
		p.DataCRC = binary.LittleEndian.Uint16(crc)
		return p, payload
	}

	if len(rest) < 2 {
		return p, nil
	}
	v := binary.LittleEndian.Uint16(rest[:2])
	if pid == PIDSOF {
		p.FrameNumber = v & 0x07FF
		p.CRC5 = uint8(v >> 11)
		return p, nil
	}
	p.Address = uint8(v & 0x7F)
	p.EndpointNum = uint8((v >> 7) & 0x0F)
	p.CRC5 = uint8(v >> 11)
	return p, nil
}
