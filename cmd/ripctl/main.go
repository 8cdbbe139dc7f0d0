// Command ripctl sends a single RIP-like response datagram to a running
// ripd instance, for manual inspection during development. It is not part
// of the routing engine itself; it just gives internal/wire and
// internal/transport a second, independent caller.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/framie/ripd/internal/table"
	"github.com/framie/ripd/internal/transport"
	"github.com/framie/ripd/internal/wire"
)

var opt struct {
	Help     bool
	DestPort uint16
	SenderID uint16
	Entries  string // "dest:port:weight:nexthop:flag" comma-separated
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
	pflag.Uint16Var(&opt.DestPort, "dest-port", 0, "Neighbor input port to send the datagram to (required)")
	pflag.Uint16Var(&opt.SenderID, "sender-id", 0, "Router id to advertise as (required)")
	pflag.StringVar(&opt.Entries, "entries", "", "Comma-separated dest:port:weight:nexthop:flag entries")
}

func main() {
	pflag.Parse()

	if opt.Help || opt.DestPort == 0 || opt.SenderID == 0 {
		fmt.Printf("usage: %s --dest-port <port> --sender-id <id> [--entries dest:port:weight:nexthop:flag,...]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	entries, err := parseEntries(opt.Entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	msg := wire.Message{
		SenderID: table.RouterID(opt.SenderID),
		Version:  wire.Version,
		Type:     wire.TypeResponse,
		Entries:  entries,
	}
	payload, err := wire.Encode(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encode message: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.Nop()
	tr, err := transport.NewUDP([]table.Port{0}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: bind ephemeral socket: %v\n", err)
		os.Exit(1)
	}
	defer tr.Close()

	tr.Send(payload, table.Port(opt.DestPort))
	fmt.Printf("sent %d-byte response from router %d to port %d\n", len(payload), opt.SenderID, opt.DestPort)
}

func parseEntries(raw string) ([]wire.Entry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var entries []wire.Entry
	for _, tok := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(tok), ":")
		if len(parts) != 5 {
			return nil, fmt.Errorf("entry %q must have 5 colon-separated fields", tok)
		}
		nums := make([]int, 5)
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", tok, err)
			}
			nums[i] = n
		}
		entries = append(entries, wire.Entry{
			Dest:       table.RouterID(nums[0]),
			Port:       table.Port(nums[1]),
			Weight:     table.Metric(nums[2]),
			NextHop:    table.Port(nums[3]),
			UpdateFlag: uint8(nums[4]),
		})
	}
	return entries, nil
}
