package luna

import (
	"fmt"
	"io"
)

// Convert decodes a capture stream read from r into a finished Capture
// (spec §4.6). It drives framing (§4.1) into packet classification (§4.2),
// feeding each packet's PID into the transaction decoder (§4.4), whose
// closures recurse synchronously into the per-endpoint transfer decoder
// (§4.5). At EOF it flushes both layers and maps every stream read-only.
//
// The only errors Convert returns are resource failures — stream creation
// or mapping failures (§7); no shape of malformed input ever produces one.
// The caller must call Close on the returned Capture once done with it.
func Convert(r io.Reader, opts ...Option) (*Capture, error) {
	cfg := newConfig(opts...)
	b, err := newBuilder(cfg)
	if err != nil {
		return nil, err
	}

	fr := NewFrameReader(r)
	for {
		frame, ok := fr.Next()
		if !ok {
			break
		}
		if err := b.feed(frame); err != nil {
			return nil, err
		}
	}

	b.txDecoder.Flush()
	if b.err != nil {
		return nil, b.err
	}
	for _, ep := range b.order {
		if err := ep.close(false); err != nil {
			return nil, err
		}
	}

	return b.finalize()
}

// Close releases every mapping owned by a Capture produced by Convert.
func Close(c *Capture) error {
	var firstErr error
	for _, m := range c.mappings {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.mappings = nil
	return firstErr
}

// builder owns every stream and piece of in-progress state while a
// capture is being assembled. It is the receiver for the transaction
// decoder's callbacks, since those need to reach the endpoint table, the
// transfer index, and the event log — none of which TransactionDecoder or
// endpointState know about directly.
type builder struct {
	cfg Config

	packets       Stream
	transactions  Stream
	endpointRecs  Stream
	transferIndex Stream
	data          Stream
	events        Stream

	packetCount       uint64
	dataOffset        uint64
	transactionCount  uint64
	transferIndexSize uint64

	endpoints [numAddresses][numEndpointNums]*endpointState
	order     []*endpointState

	txDecoder *TransactionDecoder

	// err latches the first resource failure encountered while inside a
	// TransactionDecoder callback, where there is no return path for an
	// error. Convert checks it after every Feed/Flush call and aborts.
	err error
}

func newBuilder(cfg Config) (*builder, error) {
	b := &builder{cfg: cfg}
	streams := []struct {
		name string
		dst  *Stream
	}{
		{"packets", &b.packets},
		{"transactions", &b.transactions},
		{"endpoints", &b.endpointRecs},
		{"transfer_index", &b.transferIndex},
		{"data", &b.data},
		{"events", &b.events},
	}
	for _, s := range streams {
		st, err := newStream(s.name, cfg.Backend)
		if err != nil {
			return nil, err
		}
		*s.dst = st
	}
	b.txDecoder = NewTransactionDecoder(cfg.CoalesceSOF, b.onTransactionClose, b.onPacketDropped)
	return b, nil
}

// feed classifies one frame, appends its packet record, and advances the
// transaction decoder.
func (b *builder) feed(frame Frame) error {
	p, payload := classifyPacket(frame.TimestampNS, frame.Data, b.dataOffset)
	if len(payload) > 0 {
		if err := b.data.Append(payload); err != nil {
			return err
		}
		b.dataOffset += uint64(len(payload))
	}

	rec := marshalPacket(p)
	if err := b.packets.Append(rec[:]); err != nil {
		return err
	}
	packetIndex := b.packetCount
	b.packetCount++

	b.txDecoder.Feed(p.PID, packetIndex, p.Address, p.EndpointNum)
	return b.err
}

// onTransactionClose is TransactionDecoder's onClose callback: it routes a
// token-opened transaction to its endpoint's transfer decoder (spec §4.5),
// then appends the transaction record itself, matching §4.4's requirement
// that the transfer decoder sees the transaction's index before it is
// written to the transactions stream.
func (b *builder) onTransactionClose(ev transactionEvent) {
	if b.err != nil {
		return
	}

	transactionIndex := b.transactionCount
	assigned := false

	if isToken(ev.FirstPID) {
		ep := b.endpointFor(ev.Address, ev.EndpointNum)
		if b.err != nil {
			return
		}
		ok, err := routeTransfer(ep, ev, transactionIndex)
		if err != nil {
			b.err = err
			return
		}
		assigned = ok
	}

	rec := marshalTransaction(ev.Transaction)
	if err := b.transactions.Append(rec[:]); err != nil {
		b.err = err
		return
	}
	b.transactionCount++

	if !assigned {
		if err := b.appendEvent(EventTransaction, transactionIndex); err != nil {
			b.err = err
		}
	}
}

// onPacketDropped is TransactionDecoder's onDrop callback: the packet
// joined no transaction, so it surfaces only in the stray-event log.
func (b *builder) onPacketDropped(packetIndex uint64) {
	if b.err != nil {
		return
	}
	if err := b.appendEvent(EventPacket, packetIndex); err != nil {
		b.err = err
	}
}

// endpointFor returns the state for (address, endpointNum), discovering
// and allocating it — including its two streams and an Endpoint record —
// on first reference (spec §9: dense 128×16 table of lazily populated
// entries).
func (b *builder) endpointFor(address, endpointNum uint8) *endpointState {
	if e := b.endpoints[address][endpointNum]; e != nil {
		return e
	}

	id := uint16(len(b.order))
	ep := Endpoint{Address: address, EndpointNum: endpointNum}
	rec := marshalEndpoint(ep)
	if err := b.endpointRecs.Append(rec[:]); err != nil {
		b.err = err
		return nil
	}

	transfers, err := newStream(fmt.Sprintf("transfers_%d", id), b.cfg.Backend)
	if err != nil {
		b.err = err
		return nil
	}
	transactionIDs, err := newStream(fmt.Sprintf("transaction_ids_%d", id), b.cfg.Backend)
	if err != nil {
		b.err = err
		return nil
	}

	st := &endpointState{
		id:             id,
		endpoint:       ep,
		transfers:      transfers,
		transactionIDs: transactionIDs,
		lastType:       PIDNone,
	}
	st.onTransferOpen = func() (uint64, error) {
		return b.openTransferIndex(id, st.numTransfersClosed)
	}
	st.onTransferClose = func(transferIndexID uint64) {
		if err := b.appendEvent(EventTransfer, transferIndexID); err != nil {
			b.err = err
		}
	}

	b.endpoints[address][endpointNum] = st
	b.order = append(b.order, st)
	return st
}

// openTransferIndex appends a new entry to the capture-wide transfer
// index and returns its position there — the id used to tag the
// eventual EventTransfer if this transfer is ever a top-level event.
func (b *builder) openTransferIndex(endpointID uint16, transferID uint64) (uint64, error) {
	idx := b.transferIndexSize
	rec := marshalTransferIndexEntry(TransferIndexEntry{EndpointID: endpointID, TransferID: transferID})
	if err := b.transferIndex.Append(rec[:]); err != nil {
		return 0, err
	}
	b.transferIndexSize++
	return idx, nil
}

func (b *builder) appendEvent(kind EventKind, id uint64) error {
	rec := marshalEvent(Event{ID: id, Kind: kind})
	return b.events.Append(rec[:])
}

// finalize flushes and maps every stream, assembling the returned Capture.
func (b *builder) finalize() (*Capture, error) {
	c := &Capture{}

	pm, err := b.packets.Finalize()
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, pm)
	if err := checkRecordAligned(pm.Bytes(), packetRecordSize); err != nil {
		return nil, err
	}
	c.Packets = PacketArray{raw: pm.Bytes()}

	tm, err := b.transactions.Finalize()
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, tm)
	if err := checkRecordAligned(tm.Bytes(), transactionRecordSize); err != nil {
		return nil, err
	}
	c.Transactions = TransactionArray{raw: tm.Bytes()}

	em, err := b.endpointRecs.Finalize()
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, em)
	if err := checkRecordAligned(em.Bytes(), endpointRecordSize); err != nil {
		return nil, err
	}
	c.Endpoints = EndpointArray{raw: em.Bytes()}

	tim, err := b.transferIndex.Finalize()
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, tim)
	if err := checkRecordAligned(tim.Bytes(), transferIndexRecordSize); err != nil {
		return nil, err
	}
	c.TransferIndex = TransferIndexArray{raw: tim.Bytes()}

	// The data stream has no fixed record size: it holds variable-length
	// payload bytes appended verbatim, so it is exempt from the alignment
	// check.
	dm, err := b.data.Finalize()
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, dm)
	c.Data = dm.Bytes()

	evm, err := b.events.Finalize()
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, evm)
	if err := checkRecordAligned(evm.Bytes(), eventRecordSize); err != nil {
		return nil, err
	}
	c.Events = EventArray{raw: evm.Bytes()}

	c.EndpointTraffic = make([]EndpointTraffic, len(b.order))
	for i, ep := range b.order {
		tfm, err := ep.transfers.Finalize()
		if err != nil {
			return nil, err
		}
		c.mappings = append(c.mappings, tfm)
		if err := checkRecordAligned(tfm.Bytes(), transferRecordSize); err != nil {
			return nil, err
		}

		idm, err := ep.transactionIDs.Finalize()
		if err != nil {
			return nil, err
		}
		c.mappings = append(c.mappings, idm)
		if err := checkRecordAligned(idm.Bytes(), transactionIDRecordSize); err != nil {
			return nil, err
		}

		c.EndpointTraffic[i] = EndpointTraffic{
			Transfers:      TransferArray{raw: tfm.Bytes()},
			TransactionIDs: Uint64Array{raw: idm.Bytes()},
		}
	}

	return c, nil
}
