package luna

import "testing"

func newTestEndpoint(t *testing.T, endpointNum uint8) (*endpointState, *[]uint64) {
	t.Helper()
	transfers, err := newStream("transfers", InMemoryBackend)
	if err != nil {
		t.Fatalf("newStream() error = %v", err)
	}
	transactionIDs, err := newStream("transaction_ids", InMemoryBackend)
	if err != nil {
		t.Fatalf("newStream() error = %v", err)
	}
	var opened []uint64
	e := &endpointState{
		endpoint:       Endpoint{Address: 1, EndpointNum: endpointNum},
		transfers:      transfers,
		transactionIDs: transactionIDs,
		lastType:       PIDNone,
	}
	e.onTransferOpen = func() (uint64, error) {
		id := uint64(len(opened))
		opened = append(opened, id)
		return id, nil
	}
	return e, &opened
}

func tx(firstPID, lastPID PID, numPackets uint8, complete bool) transactionEvent {
	return transactionEvent{
		Transaction: Transaction{NumPackets: numPackets, Complete: complete},
		FirstPID:    firstPID,
		LastPID:     lastPID,
	}
}

func TestRouteTransferBulkOUT(t *testing.T) {
	e, opened := newTestEndpoint(t, 2) // non-control

	ok, err := routeTransfer(e, tx(PIDOut, PIDAck, 3, true), 0)
	if err != nil {
		t.Fatalf("routeTransfer() error = %v", err)
	}
	if !ok {
		t.Fatal("routeTransfer() = false, want true (assigned)")
	}
	if len(*opened) != 1 {
		t.Fatalf("opened %d transfers, want 1", len(*opened))
	}
	if e.lastType != PIDOut {
		t.Errorf("lastType = %v, want OUT", e.lastType)
	}
	if !e.active {
		t.Error("active = false, want true (transfer stays open)")
	}
}

func TestRouteTransferRetriedNAKStaysInOpenTransfer(t *testing.T) {
	e, _ := newTestEndpoint(t, 5) // non-control, matches spec §8 scenario 3

	// This first call classifies as transferNew (no transfer was in
	// progress), which unconditionally records its opening PID regardless
	// of success. The successful retry then continues the same transfer.
	ok, err := routeTransfer(e, tx(PIDIn, PIDNak, 2, true), 0)
	if err != nil || !ok {
		t.Fatalf("routeTransfer() = (%v, %v), want (true, nil)", ok, err)
	}
	if e.lastType != PIDIn {
		t.Errorf("lastType = %v after opening transaction, want IN", e.lastType)
	}
	if !e.active {
		t.Error("active = false, want true: transfer must stay open for the retry")
	}
	if e.numTransactions != 1 {
		t.Errorf("numTransactions = %d, want 1 (the NAK'd attempt is still recorded)", e.numTransactions)
	}

	ok, err = routeTransfer(e, tx(PIDIn, PIDAck, 3, true), 1)
	if err != nil || !ok {
		t.Fatalf("routeTransfer() = (%v, %v), want (true, nil)", ok, err)
	}
	if e.lastType != PIDIn {
		t.Errorf("lastType = %v, want IN after the successful retry", e.lastType)
	}
	if e.numTransactions != 2 {
		t.Errorf("numTransactions = %d, want 2", e.numTransactions)
	}
}

func TestRouteTransferControlTransferClosesOnOUT(t *testing.T) {
	e, _ := newTestEndpoint(t, 0) // control

	if ok, err := routeTransfer(e, tx(PIDSetup, PIDAck, 3, true), 0); err != nil || !ok {
		t.Fatalf("SETUP routeTransfer() = (%v, %v)", ok, err)
	}
	if ok, err := routeTransfer(e, tx(PIDIn, PIDAck, 3, true), 1); err != nil || !ok {
		t.Fatalf("IN routeTransfer() = (%v, %v)", ok, err)
	}
	if !e.active {
		t.Fatal("active = false after IN, want true")
	}
	if ok, err := routeTransfer(e, tx(PIDOut, PIDAck, 3, true), 2); err != nil || !ok {
		t.Fatalf("OUT routeTransfer() = (%v, %v)", ok, err)
	}
	if e.active {
		t.Error("active = true after closing OUT, want false")
	}
	if e.numTransfersClosed != 1 {
		t.Errorf("numTransfersClosed = %d, want 1", e.numTransfersClosed)
	}
}

func TestRouteTransferInvalidIsUnassigned(t *testing.T) {
	e, _ := newTestEndpoint(t, 5) // non-control, no transfer in progress

	// IN and OUT both start a non-control transfer per classifyTransfer,
	// so use SETUP on a non-control endpoint instead, which is invalid in
	// every state.
	e.endpoint = Endpoint{Address: 1, EndpointNum: 5}
	ok, err := routeTransfer(e, tx(PIDSetup, PIDAck, 3, true), 0)
	if err != nil {
		t.Fatalf("routeTransfer() error = %v", err)
	}
	if ok {
		t.Error("routeTransfer() = true, want false (unassigned/invalid)")
	}
}
