package discovery

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/gochaorg/logd/internal/logging"
)

// datagramBufferSize bounds a single incoming UDP datagram.
const datagramBufferSize = 64 * 1024

// Server listens for Hello datagrams and answers each with a Welcome
// carrying its own public address.
type Server struct {
	conn       *net.UDPConn
	pubAddress string
	stop       atomic.Bool
	logger     *logging.Logger
}

// listenConfig sets SO_REUSEADDR on the discovery socket before bind, so
// a restarted node doesn't fail to rebind while the previous process's
// socket is still draining in TIME_WAIT.
var listenConfig = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var sockErr error
		if err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		}); err != nil {
			return err
		}
		return sockErr
	},
}

// NewServer binds a UDP socket at bindAddr, answering Hello requests with
// pubAddress as its own reachable address.
func NewServer(bindAddr, pubAddress string) (*Server, error) {
	packetConn, err := listenConfig.ListenPacket(context.Background(), "udp", bindAddr)
	if err != nil {
		return nil, err
	}
	conn := packetConn.(*net.UDPConn)
	return &Server{conn: conn, pubAddress: pubAddress, logger: logging.Default()}, nil
}

// Serve runs the receive loop until Stop is called or the socket errors.
func (s *Server) Serve() error {
	buf := make([]byte, datagramBufferSize)
	for !s.stop.Load() {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.stop.Load() {
				return nil
			}
			s.logger.Warn("discovery read error", "err", err)
			continue
		}

		if _, err := decodeHello(buf[:n]); err != nil {
			s.logger.Warn("discovery decode error", "err", err, "from", from.String())
			continue
		}

		resp, err := encodeWelcome(Welcome{PubAddress: s.pubAddress})
		if err != nil {
			s.logger.Warn("discovery encode error", "err", err)
			continue
		}
		if _, err := s.conn.WriteToUDP(resp, from); err != nil {
			s.logger.Warn("discovery write error", "err", err, "to", from.String())
		}
	}
	return nil
}

// Stop signals the receive loop to exit and closes the socket.
func (s *Server) Stop() {
	s.stop.Store(true)
	_ = s.conn.Close()
}
