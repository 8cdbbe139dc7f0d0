package transport

import (
	"time"

	"github.com/framie/ripd/internal/table"
)

// Bus is a shared in-process message bus connecting several Memory
// transports, standing in for the loopback network in tests.
type Bus struct {
	routers map[table.Port]*Memory
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{routers: make(map[table.Port]*Memory)}
}

// Memory is an in-memory Transport double used by engine tests, avoiding
// real sockets while preserving the same poll/recv/send semantics (spec §9
// "Transport as effect").
type Memory struct {
	bus     *Bus
	inputs  []table.Port
	queues  map[table.Port]chan []byte
	pending map[table.Port][]byte
}

// NewMemory registers a Memory transport for ports on bus.
func NewMemory(bus *Bus, ports []table.Port) *Memory {
	m := &Memory{
		bus:     bus,
		inputs:  append([]table.Port(nil), ports...),
		queues:  make(map[table.Port]chan []byte),
		pending: make(map[table.Port][]byte),
	}
	for _, p := range ports {
		m.queues[p] = make(chan []byte, 64)
		bus.routers[p] = m
	}
	return m
}

// Poll returns any ports with a message already queued. Unlike UDP, it does
// not block for the full timeout when nothing is ready yet: tests drive the
// bus synchronously and have no reason to sleep.
func (m *Memory) Poll(timeout time.Duration) []table.Port {
	clear(m.pending)
	var ready []table.Port

	for _, p := range m.inputs {
		select {
		case payload := <-m.queues[p]:
			m.pending[p] = payload
			ready = append(ready, p)
		default:
		}
	}
	return ready
}

func (m *Memory) Recv(port table.Port) ([]byte, bool) {
	b, ok := m.pending[port]
	delete(m.pending, port)
	return b, ok
}

// Send delivers payload directly into the destination port's queue, if a
// Memory transport on the bus owns it.
func (m *Memory) Send(payload []byte, port table.Port) {
	dst, ok := m.bus.routers[port]
	if !ok {
		return
	}
	q, ok := dst.queues[port]
	if !ok {
		return
	}
	select {
	case q <- payload:
	default:
	}
}

func (m *Memory) InputPorts() []table.Port {
	return m.inputs
}
