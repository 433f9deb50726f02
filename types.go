// Package luna decodes a raw LUNA-class USB analyzer capture stream into
// packets, transactions, and transfers.
//
// The decoder is a two-level streaming state machine: packets are grouped
// into transactions per the USB token/data/handshake protocol, and
// transactions are in turn grouped into transfers on a per-endpoint basis.
// It never validates CRCs and never infers device configuration; malformed
// input is absorbed as incomplete records rather than surfaced as errors.
package luna

import "encoding/binary"

// PIDCategory is the two-bit category carried in the low bits of every PID.
type PIDCategory uint8

const (
	CategorySpecial   PIDCategory = 0
	CategoryToken     PIDCategory = 1
	CategoryHandshake PIDCategory = 2
	CategoryData      PIDCategory = 3
)

// pidCategoryMask extracts a PID's category from its raw byte value.
const pidCategoryMask = 0x03

// PID is the raw 8-bit Packet ID byte that opens every USB packet.
type PID uint8

// Category returns the two-bit category of a raw PID byte.
func (p PID) Category() PIDCategory { return PIDCategory(p & pidCategoryMask) }

// IsData reports whether a PID belongs to the DATA category.
func (p PID) IsData() bool { return p.Category() == CategoryData }

// The 16 defined USB 2.0 packet IDs, grouped by category.
const (
	PIDNone PID = 0x00 // sentinel: no packet / no transaction in progress

	PIDOut   PID = 0xE1
	PIDIn    PID = 0x69
	PIDSOF   PID = 0xA5
	PIDSetup PID = 0x2D

	PIDData0 PID = 0xC3
	PIDData1 PID = 0x4B
	PIDData2 PID = 0x87
	PIDMData PID = 0x0F

	PIDAck   PID = 0xD2
	PIDNak   PID = 0x5A
	PIDStall PID = 0x1E
	PIDNyet  PID = 0x96

	PIDPreErr PID = 0x3C
	PIDSplit  PID = 0x78
	PIDPing   PID = 0xB4
	PIDRsvd   PID = 0xF0
)

// Packet is a single decoded USB packet record. TimestampNS is a monotonic
// nanosecond timestamp assigned at ingestion (not taken from the wire,
// which carries none) — nanoseconds since the FrameReader that read the
// packet was created, rather than "ns since epoch", picked deliberately
// because the original source documents the field both ways without
// committing (spec §9 Design Notes).
type Packet struct {
	TimestampNS uint64
	// DataOffset indexes into the data blob, valid for CATEGORY=DATA only.
	DataOffset uint64
	// Length is the on-wire length, including the PID byte and, for data
	// packets, the trailing 2-byte CRC.
	Length uint16
	PID    PID

	// FrameNumber is valid only when PID is SOF (11 bits on the wire).
	FrameNumber uint16
	// Address and EndpointNum are valid only for a token (SETUP/IN/OUT).
	Address     uint8
	EndpointNum uint8
	// CRC5 is the trailing 5-bit CRC of a SOF or token packet.
	CRC5 uint8
	// DataCRC holds the trailing 2-byte CRC of a data packet, verbatim.
	DataCRC uint16
}

const packetRecordSize = 21

// marshalPacket packs p into its fixed-width, little-endian on-wire
// record. The SOF/token bitfields are packed explicitly (11+5 and 7+4+5
// bits, little-endian byte order) rather than left to Go struct layout,
// per spec §9's design note on packed wire layouts.
func marshalPacket(p Packet) [packetRecordSize]byte {
	var b [packetRecordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.TimestampNS)
	binary.LittleEndian.PutUint64(b[8:16], p.DataOffset)
	binary.LittleEndian.PutUint16(b[16:18], p.Length)
	b[18] = byte(p.PID)
	switch {
	case p.PID == PIDSOF:
		v := (p.FrameNumber & 0x07FF) | (uint16(p.CRC5&0x1F) << 11)
		binary.LittleEndian.PutUint16(b[19:21], v)
	case p.PID.IsData():
		binary.LittleEndian.PutUint16(b[19:21], p.DataCRC)
	default:
		v := (uint16(p.Address&0x7F)) | (uint16(p.EndpointNum&0x0F) << 7) | (uint16(p.CRC5&0x1F) << 11)
		binary.LittleEndian.PutUint16(b[19:21], v)
	}
	return b
}

// unmarshalPacket is the inverse of marshalPacket.
func unmarshalPacket(b []byte) Packet {
	_ = b[packetRecordSize-1]
	p := Packet{
		TimestampNS: binary.LittleEndian.Uint64(b[0:8]),
		DataOffset:  binary.LittleEndian.Uint64(b[8:16]),
		Length:      binary.LittleEndian.Uint16(b[16:18]),
		PID:         PID(b[18]),
	}
	v := binary.LittleEndian.Uint16(b[19:21])
	switch {
	case p.PID == PIDSOF:
		p.FrameNumber = v & 0x07FF
		p.CRC5 = uint8(v >> 11)
	case p.PID.IsData():
		p.DataCRC = v
	default:
		p.Address = uint8(v & 0x7F)
		p.EndpointNum = uint8((v >> 7) & 0x0F)
		p.CRC5 = uint8(v >> 11)
	}
	return p
}

// Transaction groups up to three consecutive packets — token, optional
// data, optional handshake — into one USB bus exchange.
type Transaction struct {
	FirstPacketIndex uint64
	NumPackets       uint8
	Complete         bool
}

const transactionRecordSize = 10

func marshalTransaction(t Transaction) [transactionRecordSize]byte {
	var b [transactionRecordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], t.FirstPacketIndex)
	b[8] = t.NumPackets
	if t.Complete {
		b[9] = 1
	}
	return b
}

func unmarshalTransaction(b []byte) Transaction {
	_ = b[transactionRecordSize-1]
	return Transaction{
		FirstPacketIndex: binary.LittleEndian.Uint64(b[0:8]),
		NumPackets:       b[8],
		Complete:         b[9] != 0,
	}
}

// successful reports whether this transaction reached the full
// three-phase token+data+handshake exchange terminated by an ACK, the
// only shape that advances a transfer's state (spec §4.5).
func (t Transaction) successful(lastPID PID) bool {
	return t.NumPackets == 3 && t.Complete && lastPID == PIDAck
}

// Endpoint identifies a USB endpoint by device address and endpoint
// number. Its position in Capture.Endpoints is its endpoint ID.
type Endpoint struct {
	Address     uint8 // 0..127
	EndpointNum uint8 // 0..15
}

// IsControl reports whether this is endpoint 0 of its device, which uses
// SETUP-driven three-stage control transfers rather than open-ended
// bulk/interrupt ones.
func (e Endpoint) IsControl() bool { return e.EndpointNum == 0 }

const endpointRecordSize = 2

func marshalEndpoint(e Endpoint) [endpointRecordSize]byte {
	return [endpointRecordSize]byte{e.Address, e.EndpointNum}
}

func unmarshalEndpoint(b []byte) Endpoint {
	_ = b[endpointRecordSize-1]
	return Endpoint{Address: b[0], EndpointNum: b[1]}
}

// Transfer groups a run of consecutive transactions on one endpoint.
type Transfer struct {
	// EPTranOffset indexes into the owning endpoint's TransactionIDs array
	// where this transfer's transactions begin.
	EPTranOffset uint64
	// NumTransactions is the count of transactions belonging to this
	// transfer, starting at EPTranOffset.
	NumTransactions uint64
	Complete        bool
}

const transferRecordSize = 17

func marshalTransfer(t Transfer) [transferRecordSize]byte {
	var b [transferRecordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], t.EPTranOffset)
	binary.LittleEndian.PutUint64(b[8:16], t.NumTransactions)
	if t.Complete {
		b[16] = 1
	}
	return b
}

func unmarshalTransfer(b []byte) Transfer {
	_ = b[transferRecordSize-1]
	return Transfer{
		EPTranOffset:    binary.LittleEndian.Uint64(b[0:8]),
		NumTransactions: binary.LittleEndian.Uint64(b[8:16]),
		Complete:        b[16] != 0,
	}
}

// TransferIndexEntry is one entry in the capture-wide, input-order index
// of every transfer ever started.
type TransferIndexEntry struct {
	EndpointID uint16
	TransferID uint64
}

const transferIndexRecordSize = 10

func marshalTransferIndexEntry(e TransferIndexEntry) [transferIndexRecordSize]byte {
	var b [transferIndexRecordSize]byte
	binary.LittleEndian.PutUint16(b[0:2], e.EndpointID)
	binary.LittleEndian.PutUint64(b[2:10], e.TransferID)
	return b
}

func unmarshalTransferIndexEntry(b []byte) TransferIndexEntry {
	_ = b[transferIndexRecordSize-1]
	return TransferIndexEntry{
		EndpointID: binary.LittleEndian.Uint16(b[0:2]),
		TransferID: binary.LittleEndian.Uint64(b[2:10]),
	}
}

// EventKind classifies an entry in Capture.Events (SPEC_FULL.md §3,
// supplementing the distilled spec with the original implementation's
// top-level event log).
type EventKind uint8

const (
	// EventPacket marks a packet absorbed by no transaction.
	EventPacket EventKind = iota
	// EventTransaction marks a transaction absorbed by no transfer.
	EventTransaction
	// EventTransfer marks a completed or incomplete transfer.
	EventTransfer
)

// Event is one entry in the capture-wide, input-order event log: it
// records, for every packet, transaction, or transfer that was not
// subsumed by the next layer up, which layer it belongs to and its index
// within that layer's array.
type Event struct {
	ID   uint64
	Kind EventKind
}

const eventRecordSize = 9

func marshalEvent(e Event) [eventRecordSize]byte {
	var b [eventRecordSize]byte
	binary.LittleEndian.PutUint64(b[0:8], e.ID)
	b[8] = byte(e.Kind)
	return b
}

func unmarshalEvent(b []byte) Event {
	_ = b[eventRecordSize-1]
	return Event{ID: binary.LittleEndian.Uint64(b[0:8]), Kind: EventKind(b[8])}
}

const transactionIDRecordSize = 8

func marshalTransactionID(id uint64) [transactionIDRecordSize]byte {
	var b [transactionIDRecordSize]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return b
}

func unmarshalTransactionID(b []byte) uint64 {
	_ = b[transactionIDRecordSize-1]
	return binary.LittleEndian.Uint64(b)
}

// EndpointTraffic holds everything decoded for a single endpoint: its
// transfers and the flat array of global transaction indices they
// reference, both array-typed views directly over mapped memory.
type EndpointTraffic struct {
	Transfers      TransferArray
	TransactionIDs Uint64Array
}

// Capture is the finished, read-only result of decoding a capture stream.
// All array fields are thin views directly over the mapped streams
// described in stream.go and remain valid until Close is called.
type Capture struct {
	Endpoints       EndpointArray
	EndpointTraffic []EndpointTraffic
	TransferIndex   TransferIndexArray
	Transactions    TransactionArray
	Packets         PacketArray
	Data            []byte
	Events          EventArray

	mappings []Mapping
}

// NumPackets returns the packet count, matching the capture.num_packets
// field of the original C library.
func (c *Capture) NumPackets() int { return c.Packets.Len() }

// NumTransactions returns the transaction count.
func (c *Capture) NumTransactions() int { return c.Transactions.Len() }

// NumEndpoints returns the endpoint count.
func (c *Capture) NumEndpoints() int { return c.Endpoints.Len() }

// NumTransfers returns the total transfer count across all endpoints.
func (c *Capture) NumTransfers() int {
	n := 0
	for _, t := range c.EndpointTraffic {
		n += t.Transfers.Len()
	}
	return n
}

// DataSize returns the total payload bytes in the capture.
func (c *Capture) DataSize() int { return len(c.Data) }
