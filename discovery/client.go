package discovery

import (
	"net"
	"time"

	"github.com/gochaorg/logd/internal/iprange"
)

// perReadTimeout bounds each individual recv_from call so the overall
// deadline in Discover is checked regularly rather than blocking forever
// on a socket that never receives another datagram.
const perReadTimeout = 200 * time.Millisecond

// Client broadcasts Hello datagrams to a set of targets and collects the
// Welcome responses that arrive before a deadline.
type Client struct {
	conn       *net.UDPConn
	pubAddress string
}

// NewClient opens an unbound UDP socket used both to send Hello datagrams
// and to receive the resulting Welcome responses.
func NewClient(pubAddress string) (*Client, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, pubAddress: pubAddress}, nil
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Discover sends one Hello datagram to each target, then collects
// Welcome.PubAddress values (duplicates preserved, arrival order) until
// deadline elapses.
func (c *Client) Discover(targets *iprange.Targets, deadline time.Duration) ([]string, error) {
	hello, err := encodeHello(Hello{PubAddress: c.pubAddress})
	if err != nil {
		return nil, err
	}

	for {
		addr, ok := targets.Next()
		if !ok {
			break
		}
		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		if _, err := c.conn.WriteToUDP(hello, udpAddr); err != nil {
			continue
		}
	}

	var found []string
	buf := make([]byte, datagramBufferSize)
	deadlineAt := time.Now().Add(deadline)

	for time.Now().Before(deadlineAt) {
		if err := c.conn.SetReadDeadline(time.Now().Add(perReadTimeout)); err != nil {
			return found, err
		}
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return found, err
		}
		welcome, _, err := decodeResponse(buf[:n])
		if err != nil || welcome == nil {
			continue
		}
		found = append(found, welcome.PubAddress)
	}

	return found, nil
}
