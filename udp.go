package influxline

import (
	"fmt"
	"net"
)

// UDPClient sends line protocol datagrams to one or more listeners.
//
// The destination set is fixed at construction and every write fans out to
// all of them. There is no acknowledgment and no server response, so the
// only reported failures are local: encoding and socket errors. Callers
// are responsible for keeping batches under the path MTU; oversized
// datagrams are dropped by the network, not by this client.
//
// Thread Safety: WritePoints and WritePoint are safe for concurrent use.
type UDPClient struct {
	conn  *net.UDPConn
	hosts []*net.UDPAddr
}

// NewUDPClient resolves every destination address and binds one local
// socket shared by all of them. Addresses use host:port form; at least one
// is required.
func NewUDPClient(addrs ...string) (*UDPClient, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("influxline: at least one UDP address is required")
	}

	hosts := make([]*net.UDPAddr, 0, len(addrs))
	for _, addr := range addrs {
		host, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("influxline: resolving %q: %w", addr, err)
		}
		hosts = append(hosts, host)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return &UDPClient{conn: conn, hosts: hosts}, nil
}

// WritePoints serializes the batch once and sends the datagram to every
// destination.
//
// Encoding failures surface before any send. A send failure does not stop
// the fan-out; the remaining destinations are still attempted and the
// first failure is returned.
func (u *UDPClient) WritePoints(points Points) error {
	payload, err := points.Serialize()
	if err != nil {
		return err
	}

	data := []byte(payload)
	var firstErr error
	for _, host := range u.hosts {
		if _, err := u.conn.WriteToUDP(data, host); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: sending to %s: %w", ErrTransport, host, err)
		}
	}
	return firstErr
}

// WritePoint sends a single point. See WritePoints.
func (u *UDPClient) WritePoint(p *Point) error {
	return u.WritePoints(Points{p})
}

// Hosts returns the resolved destination addresses.
func (u *UDPClient) Hosts() []*net.UDPAddr {
	hosts := make([]*net.UDPAddr, len(u.hosts))
	copy(hosts, u.hosts)
	return hosts
}

// Close releases the local socket.
func (u *UDPClient) Close() error {
	return u.conn.Close()
}
