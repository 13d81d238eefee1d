package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/logger"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
)

// pollInterval bounds how long the receive loop blocks in a single read, so
// a stop request is honored within one interval.
const pollInterval = 250 * time.Millisecond

// UDP sends and receives datagrams for one peer at its directory endpoint.
type UDP struct {
	mu       sync.RWMutex
	self     protocol.PeerID
	dir      *Directory
	conn     *net.UDPConn
	running  bool
	stopChan chan struct{}
	log      *logger.Logger
}

// NewUDP creates a transport for self, which must be present in dir.
func NewUDP(self protocol.PeerID, dir *Directory, log *logger.Logger) (*UDP, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if _, ok := dir.Addr(self); !ok {
		return nil, fmt.Errorf("peer %d is not in the directory", self)
	}
	return &UDP{
		self:     self,
		dir:      dir,
		stopChan: make(chan struct{}),
		log:      log.WithTag("transport"),
	}, nil
}

// Start binds the peer's endpoint and begins invoking handler once per
// received datagram. The handler may be called concurrently with Send.
func (u *UDP) Start(handler func(data []byte)) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return fmt.Errorf("transport already started")
	}

	addr, _ := u.dir.Addr(u.self)

	// SO_REUSEADDR and SO_REUSEPORT so a restarted peer can rebind its
	// endpoint without waiting out lingering sockets.
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if opErr != nil {
					return
				}
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		u.mu.Unlock()
		return fmt.Errorf("failed to bind %s: %w", addr.String(), err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		u.mu.Unlock()
		return fmt.Errorf("unexpected packet conn type %T", pc)
	}

	u.conn = conn
	u.running = true
	u.mu.Unlock()

	u.log.Info("peer %d listening on %s", u.self, addr.String())

	go u.receiveLoop(conn, handler)
	return nil
}

func (u *UDP) receiveLoop(conn *net.UDPConn, handler func(data []byte)) {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		select {
		case <-u.stopChan:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			u.mu.RLock()
			running := u.running
			u.mu.RUnlock()
			if !running {
				return
			}
			u.log.Error("read failed: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		u.log.Debug("received %d bytes from %s", n, remote.String())

		// The read buffer is reused; hand the handler its own copy.
		data := make([]byte, n)
		copy(data, buf[:n])
		handler(data)
	}
}

// Send transmits one datagram to a directory peer. Best effort: a nil error
// means the datagram left this host, not that it will arrive.
func (u *UDP) Send(data []byte, to protocol.PeerID) error {
	addr, ok := u.dir.Addr(to)
	if !ok {
		return fmt.Errorf("unknown peer %d", to)
	}

	u.mu.RLock()
	conn := u.conn
	u.mu.RUnlock()

	if conn != nil {
		if _, err := conn.WriteToUDP(data, addr); err != nil {
			return fmt.Errorf("failed to send to peer %d at %s: %w", to, addr.String(), err)
		}
		return nil
	}

	// not bound yet: one-shot dial
	c, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("failed to dial peer %d at %s: %w", to, addr.String(), err)
	}
	defer c.Close()
	if _, err := c.Write(data); err != nil {
		return fmt.Errorf("failed to send to peer %d at %s: %w", to, addr.String(), err)
	}
	return nil
}

// Stop closes the socket and terminates the receive loop within one poll
// interval. Idempotent.
func (u *UDP) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
	u.mu.Unlock()

	close(u.stopChan)
	u.log.Info("peer %d transport stopped", u.self)
}
