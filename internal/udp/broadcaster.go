// Package udp streams accepted aircraft states to UDP listeners as JSON
// datagrams, one state per datagram.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// packetConn is the part of net.PacketConn the broadcaster writes through.
type packetConn interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
	Close() error
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	listenFunc  func() (packetConn, error)
)

// Broadcaster sends every payload to a fixed set of destinations from one
// unconnected socket. Subnet broadcast addresses are allowed.
type Broadcaster struct {
	names []string
	dests []*net.UDPAddr
	conn  packetConn
}

// NewBroadcaster resolves dest, a comma separated list of host:port.
func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, listenBroadcast)
}

func listenBroadcast() (packetConn, error) {
	lc := net.ListenConfig{Control: enableBroadcast}
	return lc.ListenPacket(context.Background(), "udp4", ":0")
}

func newBroadcaster(dest string, resolve resolveFunc, listen listenFunc) (*Broadcaster, error) {
	b := &Broadcaster{}
	for _, name := range strings.Split(dest, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		addr, err := resolve("udp4", name)
		if err != nil {
			return nil, fmt.Errorf("resolve dest %q: %w", name, err)
		}
		b.names = append(b.names, name)
		b.dests = append(b.dests, addr)
	}
	if len(b.dests) == 0 {
		return nil, fmt.Errorf("no udp destination in %q", dest)
	}

	conn, err := listen()
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	b.conn = conn
	return b, nil
}

func (b *Broadcaster) Dest() string { return strings.Join(b.names, ",") }

// Send writes payload to every destination. A failing destination does not
// stop the others.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 || b.conn == nil {
		return nil
	}
	var errs []error
	for i, addr := range b.dests {
		if _, err := b.conn.WriteTo(payload, addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.names[i], err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
