package luna

// The Array types below are thin, read-only views over a mapped stream's
// raw bytes: each decodes one fixed-size record on demand rather than
// copying the whole stream into a Go slice up front, so the capture's
// arrays stay backed directly by the mapping they came from (spec §4.3,
// §9 "pointer-addressable arrays") without resorting to unsafe pointer
// casts over the mapped memory.

// PacketArray is a read-only, indexable view over a packets stream.
type PacketArray struct{ raw []byte }

func (a PacketArray) Len() int { return len(a.raw) / packetRecordSize }

func (a PacketArray) At(i int) Packet {
	off := i * packetRecordSize
	return unmarshalPacket(a.raw[off : off+packetRecordSize])
}

// Slice copies the view into a plain []Packet, for callers that want to
// range over the whole array repeatedly.
func (a PacketArray) Slice() []Packet {
	out := make([]Packet, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// TransactionArray is a read-only, indexable view over a transactions
// stream.
type TransactionArray struct{ raw []byte }

func (a TransactionArray) Len() int { return len(a.raw) / transactionRecordSize }

func (a TransactionArray) At(i int) Transaction {
	off := i * transactionRecordSize
	return unmarshalTransaction(a.raw[off : off+transactionRecordSize])
}

func (a TransactionArray) Slice() []Transaction {
	out := make([]Transaction, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// EndpointArray is a read-only, indexable view over the endpoints stream.
type EndpointArray struct{ raw []byte }

func (a EndpointArray) Len() int { return len(a.raw) / endpointRecordSize }

func (a EndpointArray) At(i int) Endpoint {
	off := i * endpointRecordSize
	return unmarshalEndpoint(a.raw[off : off+endpointRecordSize])
}

func (a EndpointArray) Slice() []Endpoint {
	out := make([]Endpoint, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// TransferArray is a read-only, indexable view over one endpoint's
// transfers stream.
type TransferArray struct{ raw []byte }

func (a TransferArray) Len() int { return len(a.raw) / transferRecordSize }

func (a TransferArray) At(i int) Transfer {
	off := i * transferRecordSize
	return unmarshalTransfer(a.raw[off : off+transferRecordSize])
}

func (a TransferArray) Slice() []Transfer {
	out := make([]Transfer, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// TransferIndexArray is a read-only, indexable view over the capture-wide
// transfer index stream.
type TransferIndexArray struct{ raw []byte }

func (a TransferIndexArray) Len() int { return len(a.raw) / transferIndexRecordSize }

func (a TransferIndexArray) At(i int) TransferIndexEntry {
	off := i * transferIndexRecordSize
	return unmarshalTransferIndexEntry(a.raw[off : off+transferIndexRecordSize])
}

func (a TransferIndexArray) Slice() []TransferIndexEntry {
	out := make([]TransferIndexEntry, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// EventArray is a read-only, indexable view over the top-level event log.
type EventArray struct{ raw []byte }

func (a EventArray) Len() int { return len(a.raw) / eventRecordSize }

func (a EventArray) At(i int) Event {
	off := i * eventRecordSize
	return unmarshalEvent(a.raw[off : off+eventRecordSize])
}

func (a EventArray) Slice() []Event {
	out := make([]Event, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// Uint64Array is a read-only, indexable view over a per-endpoint
// transaction-ID stream: a flat array of global transaction indices.
type Uint64Array struct{ raw []byte }

func (a Uint64Array) Len() int { return len(a.raw) / transactionIDRecordSize }

func (a Uint64Array) At(i int) uint64 {
	off := i * transactionIDRecordSize
	return unmarshalTransactionID(a.raw[off : off+transactionIDRecordSize])
}

func (a Uint64Array) Slice() []uint64 {
	out := make([]uint64, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}
