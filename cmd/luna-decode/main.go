// Command luna-decode converts a raw LUNA capture stream into a summary of
// its packets, transactions, endpoints, and transfers.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	luna "github.com/greatscottgadgets/luna-capture"
)

var coalesceSOF = flag.Bool("coalesce-sof", false, "merge consecutive SOF packets into one pseudo-transaction")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <filename>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	filename := flag.Arg(0)

	f, err := os.Open(filename)
	if err != nil {
		log.Fatalf("open %s: %v", filename, err)
	}
	defer f.Close()

	c, err := luna.Convert(f, luna.WithCoalesceSOF(*coalesceSOF))
	if err != nil {
		log.Fatalf("convert %s: %v", filename, err)
	}
	defer luna.Close(c)

	fmt.Printf("%s: %d events, %d packets, %d transactions, %d endpoints, %d transfers\n",
		filename, c.Events.Len(), c.NumPackets(), c.NumTransactions(), c.NumEndpoints(), c.NumTransfers())

	for i := 0; i < c.NumEndpoints(); i++ {
		ep := c.Endpoints.At(i)
		traffic := c.EndpointTraffic[i]
		fmt.Printf("%d.%d: %d transfers, %d transactions\n",
			ep.Address, ep.EndpointNum, traffic.Transfers.Len(), traffic.TransactionIDs.Len())
	}
}
