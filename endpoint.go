package luna

// numAddresses and numEndpointNums bound the dense per-endpoint lookup
// table: USB device addresses are 7 bits (0..127) and endpoint numbers
// are 4 bits (0..15), per spec §3/§9.
const (
	numAddresses    = 128
	numEndpointNums = 16
)

// transferOutcome classifies a just-closed transaction against an
// endpoint's transfer-in-progress state (spec §4.5's transfer_status).
type transferOutcome int

const (
	transferNew transferOutcome = iota
	transferCont
	transferDone
	transferInvalid
)

// classifyTransfer implements spec §4.5's transfer_status table: whether
// next (the opening PID of a just-closed transaction) starts, continues,
// completes, or invalidates the transfer in progress on an endpoint whose
// last successful transaction type was last (PIDNone if none yet).
func classifyTransfer(isControl bool, last, next PID) transferOutcome {
	if isControl && next == PIDSetup {
		return transferNew
	}
	switch last {
	case PIDNone:
		if !isControl && (next == PIDIn || next == PIDOut) {
			return transferNew
		}
		return transferInvalid
	case PIDSetup:
		if next == PIDIn || next == PIDOut {
			return transferCont
		}
		return transferInvalid
	case PIDIn:
		switch {
		case next == PIDIn:
			return transferCont
		case isControl && next == PIDOut:
			return transferDone
		default:
			return transferInvalid
		}
	case PIDOut:
		switch {
		case next == PIDOut:
			return transferCont
		case isControl && next == PIDIn:
			return transferDone
		default:
			return transferInvalid
		}
	default:
		return transferInvalid
	}
}

// endpointState is the per-endpoint transfer decoder state and stream
// pair (spec §4.5, §9 "a dense 128×16 table of optional entries").
type endpointState struct {
	id       uint16
	endpoint Endpoint

	transfers      Stream
	transactionIDs Stream

	// lastType is the FirstPID of the transaction that opened the transfer
	// in progress, or of the last successful transaction since, or PIDNone
	// if no transfer is in progress.
	lastType PID

	active          bool
	epTranOffset    uint64
	numTransactions uint64

	numTransactionIDsWritten uint64
	numTransfersClosed       uint64

	// transferIndexID is the position this endpoint's currently-open
	// transfer occupies in the capture-wide transfer index, assigned by
	// onTransferOpen at open() time.
	transferIndexID uint64

	// onTransferOpen and onTransferClose let the capture assembler keep
	// the global transfer index and event log in step with this
	// endpoint's transfer lifecycle, without endpointState needing to
	// know about either stream directly.
	onTransferOpen  func() (uint64, error)
	onTransferClose func(transferIndexID uint64)
}

// open begins a new transfer, recording where it starts within this
// endpoint's transaction-ID stream and, via onTransferOpen, within the
// capture-wide transfer index.
func (e *endpointState) open() error {
	e.active = true
	e.epTranOffset = e.numTransactionIDsWritten
	e.numTransactions = 0
	if e.onTransferOpen != nil {
		id, err := e.onTransferOpen()
		if err != nil {
			return err
		}
		e.transferIndexID = id
	}
	return nil
}

// append records globalTransactionIndex as belonging to the transfer in
// progress on this endpoint.
func (e *endpointState) append(globalTransactionIndex uint64) error {
	rec := marshalTransactionID(globalTransactionIndex)
	if err := e.transactionIDs.Append(rec[:]); err != nil {
		return err
	}
	e.numTransactionIDsWritten++
	e.numTransactions++
	return nil
}

// close finalizes the transfer in progress, if any, writing a Transfer
// record to this endpoint's transfers stream.
func (e *endpointState) close(complete bool) error {
	if !e.active {
		return nil
	}
	e.active = false
	if e.numTransactions == 0 {
		return nil
	}
	rec := marshalTransfer(Transfer{
		EPTranOffset:    e.epTranOffset,
		NumTransactions: e.numTransactions,
		Complete:        complete,
	})
	if err := e.transfers.Append(rec[:]); err != nil {
		return err
	}
	e.numTransfersClosed++
	if e.onTransferClose != nil {
		e.onTransferClose(e.transferIndexID)
	}
	return nil
}
