package luna

// routeTransfer feeds one closed transaction into its endpoint's transfer
// decoder (spec §4.5). globalTransactionIndex is the transaction's position
// in the capture-wide Transactions array, which gets appended to the
// endpoint's transaction-ID stream when the transaction is absorbed into a
// transfer.
//
// The returned bool reports whether the transaction was absorbed: false
// means the caller should record it as a stray transaction in the
// supplemented event log, since it joined no transfer.
//
// "Successful but implausible" retries (spec §8 scenario 3: an IN
// transaction that NAKs, retried until one completes with ACK) are handled
// by classifyTransfer alone — CONT and DONE both accept a retry of the same
// token regardless of whether the previous attempt on that token
// succeeded. What this function additionally accounts for is the reverse
// case: a transaction classified CONT or DONE whose own three-phase
// handshake did not end in ACK. Such a transaction still belongs to the
// transfer in progress — its token matched — but it didn't *complete*
// anything: it neither proves the endpoint ready to advance past this
// token (so last_type must not advance) nor justifies ending the transfer
// (so a would-be DONE only keeps it open, exactly like CONT). This carve-out
// never applies to NEW, which by construction starts a transfer fresh
// regardless of any prior transaction's outcome.
func routeTransfer(e *endpointState, ev transactionEvent, globalTransactionIndex uint64) (bool, error) {
	isControl := e.endpoint.IsControl()
	status := classifyTransfer(isControl, e.lastType, ev.FirstPID)
	success := ev.successful(ev.LastPID)

	switch status {
	case transferInvalid:
		if err := e.close(false); err != nil {
			return false, err
		}
		e.lastType = PIDNone
		return false, nil

	case transferNew:
		if err := e.close(false); err != nil {
			return false, err
		}
		if err := e.open(); err != nil {
			return false, err
		}
		if err := e.append(globalTransactionIndex); err != nil {
			return false, err
		}
		e.lastType = ev.FirstPID
		return true, nil

	case transferCont:
		if err := e.append(globalTransactionIndex); err != nil {
			return false, err
		}
		if success {
			e.lastType = ev.FirstPID
		}
		return true, nil

	default: // transferDone
		if err := e.append(globalTransactionIndex); err != nil {
			return false, err
		}
		if !success {
			// Demoted: behaves exactly like transferCont. The transfer
			// stays open and last_type does not advance.
			return true, nil
		}
		e.lastType = PIDNone
		if err := e.close(true); err != nil {
			return false, err
		}
		return true, nil
	}
}
