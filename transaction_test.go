package luna

import "testing"

// feedAll drives d with the given PIDs (every packet at address 1,
// endpoint 2), packet indices assigned in order starting at 0, and returns the closed transactions
// and dropped packet indices, in order.
func feedAll(d *TransactionDecoder, pids []PID) ([]transactionEvent, []uint64) {
	var closed []transactionEvent
	var dropped []uint64
	d.onClose = func(ev transactionEvent) { closed = append(closed, ev) }
	d.onDrop = func(idx uint64) { dropped = append(dropped, idx) }
	for i, pid := range pids {
		d.Feed(pid, uint64(i), 1, 2)
	}
	return closed, dropped
}

func TestTransactionDecoderSuccessfulOUT(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	closed, dropped := feedAll(d, []PID{PIDOut, PIDData0, PIDAck})
	d.Flush()
	if len(dropped) != 0 {
		t.Errorf("dropped = %v, want none", dropped)
	}
	if len(closed) != 1 {
		t.Fatalf("closed = %d transactions, want 1", len(closed))
	}
	tx := closed[0]
	if tx.NumPackets != 3 || !tx.Complete {
		t.Errorf("transaction = %+v, want num_packets=3 complete=true", tx)
	}
	if !tx.successful(tx.LastPID) {
		t.Error("successful() = false, want true")
	}
}

func TestTransactionDecoderControlRead(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	closed, _ := feedAll(d, []PID{
		PIDSetup, PIDData0, PIDAck,
		PIDIn, PIDData1, PIDAck,
		PIDOut, PIDData1, PIDAck,
	})
	d.Flush()
	if len(closed) != 3 {
		t.Fatalf("closed = %d transactions, want 3", len(closed))
	}
	for i, tx := range closed {
		if tx.NumPackets != 3 || !tx.Complete {
			t.Errorf("transaction[%d] = %+v, want num_packets=3 complete=true", i, tx)
		}
	}
}

func TestTransactionDecoderRetriedNAK(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	closed, _ := feedAll(d, []PID{PIDIn, PIDNak, PIDIn, PIDData0, PIDAck})
	d.Flush()
	if len(closed) != 2 {
		t.Fatalf("closed = %d transactions, want 2", len(closed))
	}
	if closed[0].NumPackets != 2 || !closed[0].Complete {
		t.Errorf("first transaction = %+v, want num_packets=2 complete=true", closed[0])
	}
	if closed[1].NumPackets != 3 || !closed[1].Complete {
		t.Errorf("second transaction = %+v, want num_packets=3 complete=true", closed[1])
	}
}

func TestTransactionDecoderStrayPacket(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	closed, dropped := feedAll(d, []PID{PIDAck})
	d.Flush()
	if len(dropped) != 0 {
		t.Errorf("dropped = %v, want none", dropped)
	}
	if len(closed) != 1 {
		t.Fatalf("closed = %d transactions, want 1", len(closed))
	}
	if closed[0].NumPackets != 1 || closed[0].Complete {
		t.Errorf("transaction = %+v, want num_packets=1 complete=false", closed[0])
	}
}

func TestTransactionDecoderSOFBurst(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	pids := make([]PID, 10)
	for i := range pids {
		pids[i] = PIDSOF
	}
	closed, _ := feedAll(d, pids)
	d.Flush()
	if len(closed) != 10 {
		t.Fatalf("closed = %d transactions, want 10 (one per SOF, uncoalesced)", len(closed))
	}
	for i, tx := range closed {
		if tx.NumPackets != 1 || tx.Complete {
			t.Errorf("transaction[%d] = %+v, want num_packets=1 complete=false", i, tx)
		}
	}
}

func TestTransactionDecoderCoalescedSOFBurst(t *testing.T) {
	d := NewTransactionDecoder(true, nil, nil)
	pids := make([]PID, 10)
	for i := range pids {
		pids[i] = PIDSOF
	}
	closed, _ := feedAll(d, pids)
	d.Flush()
	if len(closed) != 1 {
		t.Fatalf("closed = %d transactions, want 1 (coalesced)", len(closed))
	}
	if closed[0].NumPackets != 10 {
		t.Errorf("NumPackets = %d, want 10", closed[0].NumPackets)
	}
}

func TestTransactionDecoderEOFIdempotent(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	closed, _ := feedAll(d, []PID{PIDIn})
	d.Flush()
	countAfterFirstFlush := len(closed)
	d.Flush()
	if len(closed) != countAfterFirstFlush {
		t.Errorf("second Flush() produced more closures: %d vs %d", len(closed), countAfterFirstFlush)
	}
}

func TestTransactionDecoderInvalidDropsPacket(t *testing.T) {
	d := NewTransactionDecoder(false, nil, nil)
	// SETUP opens; a bare ACK next (numPackets==1, firstPID SETUP) is not a
	// valid continuation, so it is dropped and the SETUP transaction closes
	// incomplete.
	closed, dropped := feedAll(d, []PID{PIDSetup, PIDAck})
	d.Flush()
	if len(dropped) != 1 || dropped[0] != 1 {
		t.Fatalf("dropped = %v, want [1]", dropped)
	}
	if len(closed) != 1 {
		t.Fatalf("closed = %d transactions, want 1", len(closed))
	}
	if closed[0].NumPackets != 1 || closed[0].Complete {
		t.Errorf("transaction = %+v, want num_packets=1 complete=false", closed[0])
	}
}
