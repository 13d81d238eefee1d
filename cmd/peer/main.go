// Command peer runs one member of a reliable multicast group. Every line
// read from stdin is multicast to the group; deliveries and completion
// notices are printed to stdout.
//
// All members of a run share the same -host, -base-port, -n, and -cluster
// values; peer i listens on base-port+i.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/logger"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/transport"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/multicast"
)

func main() {
	id := flag.Uint("id", 0, "index of this peer (0..n-1)")
	n := flag.Int("n", 3, "total number of peers in the group")
	host := flag.String("host", "127.0.0.1", "host the peer endpoints live on")
	basePort := flag.Uint("base-port", 12000, "UDP port of peer 0; peer i uses base-port+i")
	interval := flag.Duration("interval", multicast.DefaultRetransmitInterval, "retransmission interval")
	clusterRaw := flag.String("cluster", "", "cluster UUID shared by all peers of the run (empty: nil UUID)")
	logLevelRaw := flag.String("log-level", "INFO", "log level: DEBUG, INFO, WARN, ERROR")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevelRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if *id >= uint(*n) {
		fmt.Fprintf(os.Stderr, "Error: -id %d is outside the peer set 0..%d\n", *id, *n-1)
		flag.Usage()
		os.Exit(1)
	}

	if *basePort == 0 || *basePort > 65535 {
		fmt.Fprintf(os.Stderr, "Error: -base-port %d is not a valid port\n", *basePort)
		flag.Usage()
		os.Exit(1)
	}

	var cluster uuid.UUID
	if *clusterRaw != "" {
		cluster, err = uuid.Parse(*clusterRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: -cluster is not a valid UUID: %v\n", err)
			os.Exit(1)
		}
	}

	log := logger.New(level)
	self := protocol.PeerID(*id)

	dir, err := transport.NewDirectory(*host, uint16(*basePort), *n)
	if err != nil {
		log.Fatal("invalid peer directory: %v", err)
	}

	tr, err := transport.NewUDP(self, dir, log)
	if err != nil {
		log.Fatal("failed to create transport: %v", err)
	}

	eng, err := multicast.New(multicast.Config{
		Self:               self,
		Peers:              dir.Peers(),
		Cluster:            cluster,
		RetransmitInterval: *interval,
		Logger:             log,
		OnFullyAcked: func(id protocol.MessageID) {
			fmt.Printf("COMPLETE  %s acknowledged by all peers\n", id)
		},
	}, tr, func(payload []byte, origin protocol.PeerID, ts uint64) {
		fmt.Printf("DELIVER   %q from peer %d, timestamp %d\n", payload, origin, ts)
	})
	if err != nil {
		log.Fatal("failed to create engine: %v", err)
	}

	if err := eng.Start(); err != nil {
		log.Fatal("failed to start engine: %v", err)
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, protocol.MaxPayloadSize), protocol.MaxPayloadSize)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			id, err := eng.Multicast([]byte(line))
			if err != nil {
				log.Error("multicast failed: %v", err)
				continue
			}
			fmt.Printf("MULTICAST %s\n", protocol.DisplayLabel(id, []byte(line)))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	eng.Stop()
}
