package luna

// isOpener reports whether pid always starts a new transaction: the three
// real tokens plus SOF (spec §4.4's "a next_pid of SETUP/IN/OUT always
// yields NEW", generalized to include SOF per the worked SOF-burst
// scenario of spec §8 and the coalescing design note of §9).
func isOpener(pid PID) bool {
	switch pid {
	case PIDSetup, PIDIn, PIDOut, PIDSOF:
		return true
	default:
		return false
	}
}

// isToken reports whether pid is one of the three real endpoint-addressing
// tokens. A transaction opened by SOF carries no endpoint and never
// participates in the transfer decoder — it is always a stray transaction
// (spec §4.5 only classifies SETUP/IN/OUT-opened transactions).
func isToken(pid PID) bool {
	switch pid {
	case PIDSetup, PIDIn, PIDOut:
		return true
	default:
		return false
	}
}

type transactionOutcome int

const (
	outcomeCont transactionOutcome = iota
	outcomeDone
	outcomeInvalid
)

// transactionEvent is what the transaction decoder hands to the capture
// assembler each time a transaction closes: the record itself plus the
// context the transfer decoder needs (the opening and closing PIDs, and
// the endpoint the opening token addressed).
type transactionEvent struct {
	Transaction
	FirstPID    PID
	LastPID     PID
	Address     uint8
	EndpointNum uint8
}

// TransactionDecoder groups consecutive packets into transactions per the
// USB token/data/handshake protocol (spec §4.4). It is fed one packet's
// PID at a time, in input order, and is not safe for concurrent use — the
// decoder as a whole is single-threaded and synchronous (spec §5).
type TransactionDecoder struct {
	coalesceSOF bool

	// onClose fires once a transaction has terminated, complete or not.
	onClose func(transactionEvent)
	// onDrop fires for a packet that is not a valid continuation of the
	// open transaction: that transaction is closed as incomplete first,
	// and the packet itself never joins any transaction (spec §4.4
	// INVALID: "the invalid packet itself is consumed ... but starts no new
	// transaction"). Used to populate the supplemented stray-packet event
	// log.
	onDrop func(packetIndex uint64)

	active           bool
	firstPID         PID
	lastPID          PID
	address          uint8
	endpointNum      uint8
	firstPacketIndex uint64
	numPackets       uint8
}

// NewTransactionDecoder constructs a decoder. coalesceSOF implements the
// optional behavior spec §9's design notes leave open: when set,
// consecutive SOF packets extend a single pseudo-transaction instead of
// each one closing and re-opening.
func NewTransactionDecoder(coalesceSOF bool, onClose func(transactionEvent), onDrop func(packetIndex uint64)) *TransactionDecoder {
	return &TransactionDecoder{coalesceSOF: coalesceSOF, onClose: onClose, onDrop: onDrop}
}

// Feed advances the decoder with one packet.
func (d *TransactionDecoder) Feed(pid PID, packetIndex uint64, address, endpointNum uint8) {
	if d.coalesceSOF && d.active && d.firstPID == PIDSOF && pid == PIDSOF {
		d.lastPID = pid
		d.numPackets++
		return
	}

	if !d.active {
		d.open(pid, packetIndex, address, endpointNum)
		return
	}

	if isOpener(pid) {
		d.close(false)
		d.open(pid, packetIndex, address, endpointNum)
		return
	}

	switch d.continuation(pid) {
	case outcomeCont:
		d.lastPID = pid
		d.numPackets++
	case outcomeDone:
		d.lastPID = pid
		d.numPackets++
		d.close(true)
	default: // outcomeInvalid
		d.close(false)
		if d.onDrop != nil {
			d.onDrop(packetIndex)
		}
	}
}

// Flush closes any transaction still open, as incomplete. Calling it
// again afterward is a no-op (spec §8: idempotence of EOF).
func (d *TransactionDecoder) Flush() {
	d.close(false)
}

func (d *TransactionDecoder) open(pid PID, packetIndex uint64, address, endpointNum uint8) {
	d.active = true
	d.firstPID = pid
	d.lastPID = pid
	d.address = address
	d.endpointNum = endpointNum
	d.firstPacketIndex = packetIndex
	d.numPackets = 1
}

func (d *TransactionDecoder) close(complete bool) {
	if !d.active {
		return
	}
	d.active = false
	if d.numPackets == 0 {
		return
	}
	if d.onClose != nil {
		d.onClose(transactionEvent{
			Transaction: Transaction{
				FirstPacketIndex: d.firstPacketIndex,
				NumPackets:       d.numPackets,
				Complete:         complete,
			},
			FirstPID:    d.firstPID,
			LastPID:     d.lastPID,
			Address:     d.address,
			EndpointNum: d.endpointNum,
		})
	}
}

// continuation classifies a non-opener PID against the in-progress
// transaction, per the status table of spec §4.4: the token phase
// (SETUP/IN/OUT) may be followed by a data stage, which may in turn be
// followed by a handshake; which handshakes are valid, and whether a
// handshake may arrive directly after the token with no data stage at
// all, depends on which of SETUP/IN/OUT opened the transaction.
func (d *TransactionDecoder) continuation(next PID) transactionOutcome {
	switch d.numPackets {
	case 1:
		switch d.firstPID {
		case PIDSetup:
			if next == PIDData0 {
				return outcomeCont
			}
		case PIDIn:
			if next == PIDData0 || next == PIDData1 {
				return outcomeCont
			}
			if next == PIDNak || next == PIDStall {
				return outcomeDone
			}
		case PIDOut:
			if next == PIDData0 || next == PIDData1 {
				return outcomeCont
			}
		}
	case 2:
		if next == PIDAck {
			return outcomeDone
		}
		if d.firstPID == PIDOut && (next == PIDNak || next == PIDStall) {
			return outcomeDone
		}
	}
	return outcomeInvalid
}
