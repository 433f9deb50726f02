package main

import (
	"fmt"
	"log"
	"os"

	luna "github.com/greatscottgadgets/luna-capture"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: decode_capture <path>")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer f.Close()

	capture, err := luna.Convert(f)
	if err != nil {
		log.Fatalf("Failed to convert capture: %v", err)
	}
	defer luna.Close(capture)

	fmt.Printf("Packets:      %d\n", capture.NumPackets())
	fmt.Printf("Transactions: %d\n", capture.NumTransactions())
	fmt.Printf("Endpoints:    %d\n", capture.NumEndpoints())
	fmt.Printf("Transfers:    %d\n", capture.NumTransfers())
	fmt.Printf("Data bytes:   %d\n", capture.DataSize())

	for i := 0; i < capture.NumEndpoints(); i++ {
		ep := capture.Endpoints.At(i)
		traffic := capture.EndpointTraffic[i]
		kind := "bulk/interrupt"
		if ep.IsControl() {
			kind = "control"
		}
		fmt.Printf("  endpoint %d.%d (%s): %d transfers\n",
			ep.Address, ep.EndpointNum, kind, traffic.Transfers.Len())
	}
}
