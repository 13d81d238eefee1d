// Command demo runs a whole multicast group inside one process on loopback
// UDP ports, fires a short scripted sequence of multicasts from different
// peers, waits until every message is acknowledged by everyone, and prints
// what each peer saw.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/logger"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/transport"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/multicast"
)

func main() {
	n := flag.Int("n", 3, "number of peers")
	basePort := flag.Uint("base-port", 12100, "UDP port of peer 0; peer i uses base-port+i")
	interval := flag.Duration("interval", 500*time.Millisecond, "retransmission interval")
	logLevelRaw := flag.String("log-level", "INFO", "log level: DEBUG, INFO, WARN, ERROR")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevelRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	if *n < 2 {
		fmt.Fprintln(os.Stderr, "Error: -n must be at least 2")
		os.Exit(1)
	}
	if *basePort == 0 || *basePort > 65535 {
		fmt.Fprintf(os.Stderr, "Error: -base-port %d is not a valid port\n", *basePort)
		os.Exit(1)
	}

	log := logger.New(level)
	cluster := uuid.New()
	log.Info("demo run %s with %d peers", cluster, *n)

	dir, err := transport.NewDirectory("127.0.0.1", uint16(*basePort), *n)
	if err != nil {
		log.Fatal("invalid peer directory: %v", err)
	}

	engines := make([]*multicast.Engine, *n)
	for i := 0; i < *n; i++ {
		self := protocol.PeerID(i)

		tr, err := transport.NewUDP(self, dir, log)
		if err != nil {
			log.Fatal("peer %d: failed to create transport: %v", i, err)
		}

		eng, err := multicast.New(multicast.Config{
			Self:               self,
			Peers:              dir.Peers(),
			Cluster:            cluster,
			RetransmitInterval: *interval,
			Logger:             log,
		}, tr, deliverPrinter(self))
		if err != nil {
			log.Fatal("peer %d: failed to create engine: %v", i, err)
		}
		if err := eng.Start(); err != nil {
			log.Fatal("peer %d: failed to start: %v", i, err)
		}
		engines[i] = eng
	}

	// scripted event sequence: different peers multicast at different
	// times, so the later sends are causally after the earlier deliveries
	// and must carry higher timestamps
	script := []struct {
		peer protocol.PeerID
		text string
	}{
		{protocol.PeerID(2 % *n), "first message of the run"},
		{protocol.PeerID(*n - 1), "greetings from the last peer"},
		{0, "this message should carry a higher timestamp"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, step := range script {
		time.Sleep(300 * time.Millisecond)

		id, err := engines[step.peer].Multicast([]byte(step.text))
		if err != nil {
			log.Fatal("peer %d: multicast failed: %v", step.peer, err)
		}
		fmt.Printf("peer %d multicast %s\n", step.peer, protocol.DisplayLabel(id, []byte(step.text)))

		if err := engines[step.peer].WaitFullyAcked(ctx, id); err != nil {
			log.Fatal("message %s was not fully acknowledged: %v", id, err)
		}
		fmt.Printf("message %s acknowledged by all %d peers\n", id, *n)
	}

	fmt.Println()
	for i, eng := range engines {
		fmt.Printf("peer %d: delivered %d messages, final clock %d\n", i, eng.DeliveredCount(), eng.ClockNow())
	}

	for _, eng := range engines {
		eng.Stop()
	}
}

func deliverPrinter(self protocol.PeerID) multicast.DeliverFunc {
	return func(payload []byte, origin protocol.PeerID, ts uint64) {
		fmt.Printf("peer %d delivered %q (origin %d, timestamp %d)\n", self, payload, origin, ts)
	}
}
