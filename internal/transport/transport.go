// Package transport adapts UDP datagrams to the byte-oriented send/receive
// surface the routing engine expects (spec §4.3). The real implementation
// owns one bound socket per configured input port plus a shared sending
// socket (the first input socket, reused); Memory is an in-process double
// used by tests (spec §9 "Transport as effect").
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/framie/ripd/internal/table"
)

// Loopback is the only address this daemon ever talks to, per spec §6.
var Loopback = net.IPv4(127, 0, 0, 1)

// BindError is returned when a configured input port cannot be bound.
type BindError struct {
	Port table.Port
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("transport: bind port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Transport is the effect boundary the engine depends on instead of raw
// sockets, so tests can substitute Memory for UDP.
type Transport interface {
	// Poll waits up to timeout for readability on any input endpoint and
	// returns the subset that became readable.
	Poll(timeout time.Duration) []table.Port
	// Recv returns the most recent payload buffered for port by the last
	// Poll call, if any, consuming it.
	Recv(port table.Port) ([]byte, bool)
	// Send transmits payload to (loopback, port) via the shared sending
	// endpoint. Failures are logged but never returned to the caller.
	Send(payload []byte, port table.Port)
	// InputPorts reports the configured input ports.
	InputPorts() []table.Port
}

type received struct {
	port    table.Port
	payload []byte
}

// UDP is the production Transport, one net.UDPConn per input port.
type UDP struct {
	logger   zerolog.Logger
	conns    map[table.Port]*net.UDPConn
	send     *net.UDPConn
	inputs   []table.Port
	incoming chan received
	pending  map[table.Port][]byte
}

// NewUDP binds a socket for every port in ports and starts a background
// reader per socket. The first port's socket is reused as the shared
// sending endpoint (spec §4.3). Binding failure on any port aborts startup
// and tears down sockets already opened.
func NewUDP(ports []table.Port, logger zerolog.Logger) (*UDP, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("transport: no input ports configured")
	}

	u := &UDP{
		logger:   logger,
		conns:    make(map[table.Port]*net.UDPConn, len(ports)),
		inputs:   append([]table.Port(nil), ports...),
		incoming: make(chan received, 64),
		pending:  make(map[table.Port][]byte),
	}

	for _, p := range ports {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: Loopback, Port: int(p)})
		if err != nil {
			u.closeAll()
			return nil, &BindError{Port: p, Err: err}
		}
		u.conns[p] = conn
		go u.readLoop(p, conn)
	}
	u.send = u.conns[ports[0]]
	return u, nil
}

func (u *UDP) closeAll() {
	for _, c := range u.conns {
		c.Close()
	}
}

func (u *UDP) readLoop(port table.Port, conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			u.logger.Debug().Err(err).Uint16("port", uint16(port)).Msg("transport: read failed")
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		u.incoming <- received{port: port, payload: payload}
	}
}

func isClosed(err error) bool {
	ne, ok := err.(net.Error)
	return ok && !ne.Timeout() && !ne.Temporary()
}

// Poll implements Transport.
func (u *UDP) Poll(timeout time.Duration) []table.Port {
	clear(u.pending)
	var ready []table.Port

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case r := <-u.incoming:
		u.buffer(r, &ready)
	case <-deadline.C:
		return ready
	}

	for {
		select {
		case r := <-u.incoming:
			u.buffer(r, &ready)
		default:
			return ready
		}
	}
}

func (u *UDP) buffer(r received, ready *[]table.Port) {
	if _, already := u.pending[r.port]; !already {
		*ready = append(*ready, r.port)
	}
	u.pending[r.port] = r.payload
}

// Recv implements Transport.
func (u *UDP) Recv(port table.Port) ([]byte, bool) {
	b, ok := u.pending[port]
	delete(u.pending, port)
	return b, ok
}

// Send implements Transport.
func (u *UDP) Send(payload []byte, port table.Port) {
	_, err := u.send.WriteToUDP(payload, &net.UDPAddr{IP: Loopback, Port: int(port)})
	if err != nil {
		u.logger.Debug().Err(err).Uint16("port", uint16(port)).Msg("transport: send failed")
	}
}

// InputPorts implements Transport.
func (u *UDP) InputPorts() []table.Port {
	return u.inputs
}

// Close releases all bound sockets.
func (u *UDP) Close() {
	u.closeAll()
}
