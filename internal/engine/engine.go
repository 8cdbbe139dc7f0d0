// Package engine implements the routing engine core: the update processor,
// timer engine, advertiser, and event loop (spec §4.5-4.8). It is the
// translation of the teacher's Node.run/handleHello/handleTC machinery to
// RIPv2-style distance-vector relaxation instead of OLSR's MPR flooding.
package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/framie/ripd/internal/clock"
	"github.com/framie/ripd/internal/config"
	"github.com/framie/ripd/internal/table"
	"github.com/framie/ripd/internal/transport"
	"github.com/framie/ripd/internal/wire"
)

// Timeout and garbage multipliers, spec §4.6.
const (
	timeoutMultiplier = 6
	garbageMultiplier = 4
)

// pollQuantum bounds how long a single event-loop iteration blocks waiting
// for inbound traffic (spec §4.3, §5).
const pollQuantum = 1 * time.Second

// Engine owns the routing table and drives it through the update, timeout,
// garbage, and advertisement phases described in spec §4. It is single-
// threaded and cooperative (spec §5): every method here runs on the event
// loop's own goroutine and nothing else touches table or original.
type Engine struct {
	id        table.RouterID
	table     *table.Table
	original  *table.Table
	neighbors []table.Port

	clock     clock.Clock
	transport transport.Transport
	logger    zerolog.Logger
	counters  *counters

	period     float64
	lastUpdate float64
	jitter     bool
}

// New builds an Engine from validated configuration. The live table is
// seeded with direct links at UpdateFlag=0 / LastRefreshed=0; original is an
// immutable snapshot of the same, per spec §4.8 initial state.
func New(cfg *config.Config, clk clock.Clock, tr transport.Transport, logger zerolog.Logger, jitter bool) *Engine {
	t := table.New()
	neighbors := make([]table.Port, 0, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		t.Set(o.NeighborID, table.Route{
			Port:          o.NeighborPort,
			Weight:        o.Metric,
			NextHop:       o.NeighborPort,
			UpdateFlag:    0,
			LastRefreshed: 0,
		})
		neighbors = append(neighbors, o.NeighborPort)
	}

	return &Engine{
		id:         cfg.RouterID,
		table:      t,
		original:   t.Clone(),
		neighbors:  neighbors,
		clock:      clk,
		transport:  tr,
		logger:     logger,
		counters:   newCounters(uint16(cfg.RouterID)),
		period:     float64(cfg.TimerValue),
		lastUpdate: 0,
		jitter:     jitter,
	}
}

// Table exposes the live routing table for inspection (tests).
func (e *Engine) Table() *table.Table {
	return e.table
}

// ApplyUpdate is the update processor (spec §4.5): relax the live table
// against a validated advertisement from sender, using the direct link cost
// recorded in original.
func (e *Engine) ApplyUpdate(msg wire.Message) {
	sender := msg.SenderID
	senderLink, ok := e.original.Get(sender)
	if !ok {
		// Message from a non-neighbor; the entire update is ignored.
		return
	}
	dist := int(senderLink.Weight)
	now := e.clock.Now()

	var senderListed bool
	var senderAdv wire.Entry

	for _, adv := range msg.Entries {
		r := adv.Dest
		if r == e.id {
			continue
		}
		if r == sender {
			senderListed = true
			senderAdv = adv
		}

		existing, exists := e.table.Get(r)

		if adv.UpdateFlag == 0 {
			newWeight := dist + int(adv.Weight)
			switch {
			case !exists && newWeight < 16:
				e.table.Set(r, table.Route{
					Port:          adv.Port,
					Weight:        table.Metric(newWeight),
					NextHop:       senderLink.Port,
					UpdateFlag:    0,
					LastRefreshed: now,
				})
			case exists && newWeight < int(existing.Weight):
				existing.Port = adv.Port
				existing.Weight = table.Metric(newWeight)
				existing.NextHop = senderLink.Port
				existing.UpdateFlag = 0
				existing.LastRefreshed = now
				e.table.Set(r, existing)
			case exists:
				// Ties do not replace the incumbent (spec §4.5, §8 S5); refresh
				// only if this advertisement arrived via the current next hop.
				viaCurrentNextHop := existing.NextHop == senderLink.Port
				if viaCurrentNextHop {
					existing.LastRefreshed = now
					e.table.Set(r, existing)
				}
			}
			if cur, ok := e.table.Get(r); ok && cur.UpdateFlag != 0 {
				cur.UpdateFlag = 0
				e.table.Set(r, cur)
			}
		} else if adv.UpdateFlag == 1 {
			if cur, ok := e.table.Get(r); ok {
				cur.UpdateFlag = 1
				e.table.Set(r, cur)
			}
		}
	}

	// Re-assert the direct link to the sender so merging never drops
	// adjacency as a side effect (spec §4.5, final paragraph).
	finite := !senderListed || int(senderAdv.Weight)+dist < 16
	if finite {
		direct := senderLink
		direct.LastRefreshed = now
		e.table.Set(sender, direct)
	}

	e.counters.updatesApplied.Inc()
}

// TimeoutScan is the first of the timer engine's two scans (spec §4.6): it
// poisons any active route that has not been refreshed within
// timeoutMultiplier*period, and reports whether a triggered advertisement is
// now due.
func (e *Engine) TimeoutScan() bool {
	now := e.clock.Now()
	triggered := false
	for _, id := range e.table.Ids() {
		r, _ := e.table.Get(id)
		if r.UpdateFlag == 0 && now > r.LastRefreshed+timeoutMultiplier*e.period {
			r.Weight = table.Infinity
			r.UpdateFlag = 1
			r.LastRefreshed = now
			e.table.Set(id, r)
			e.counters.timeoutsTotal.Inc()
			triggered = true
		}
	}
	return triggered
}

// GarbageScan is the timer engine's second scan (spec §4.6): poisoned
// entries older than garbageMultiplier*period are deleted, along with any
// entry whose next hop depended on a direct neighbor that was just removed.
func (e *Engine) GarbageScan() {
	now := e.clock.Now()
	dead := make(map[table.RouterID]bool)

	for _, id := range e.table.Ids() {
		r, _ := e.table.Get(id)
		if r.UpdateFlag == 1 && now > r.LastRefreshed+garbageMultiplier*e.period {
			dead[id] = true
		}
	}

	deadNeighborPorts := make(map[table.Port]bool)
	for id := range dead {
		if orig, ok := e.original.Get(id); ok {
			deadNeighborPorts[orig.Port] = true
		}
	}
	if len(deadNeighborPorts) > 0 {
		for _, id := range e.table.Ids() {
			if dead[id] {
				continue
			}
			r, _ := e.table.Get(id)
			if deadNeighborPorts[r.NextHop] {
				dead[id] = true
			}
		}
	}

	for id := range dead {
		e.table.Delete(id)
	}
	if n := len(dead); n > 0 {
		e.counters.garbageCollectedTotal.Add(n)
	}
}

// Advertise builds and sends one message per neighbor, applying split
// horizon with poisoned reverse (spec §4.7).
func (e *Engine) Advertise() {
	for _, nbrPort := range e.neighbors {
		view := e.table.Clone()
		entries := make([]wire.Entry, 0, view.Len())

		view.Each(func(id table.RouterID, r table.Route) {
			entry := wire.Entry{
				Dest:          id,
				Port:          r.Port,
				Weight:        r.Weight,
				NextHop:       r.NextHop,
				UpdateFlag:    r.UpdateFlag,
				LastRefreshed: r.LastRefreshed,
			}
			if r.NextHop == nbrPort {
				entry.Weight = table.Infinity
				entry.UpdateFlag = 1
			}
			entries = append(entries, entry)
		})

		msg := wire.Message{
			SenderID: e.id,
			Version:  wire.Version,
			Type:     wire.TypeResponse,
			Entries:  entries,
		}

		b, err := wire.Encode(msg)
		if err != nil {
			e.logger.Debug().Err(err).Uint16("neighbor_port", uint16(nbrPort)).Msg("engine: failed to encode advertisement")
			continue
		}
		e.transport.Send(b, nbrPort)
		e.counters.advertisementsSent.Inc()
	}
}

// Run is the event loop (spec §4.8): it multiplexes inbound traffic and time
// ticks, orchestrating the update processor, timer engine, and advertiser on
// each iteration. It runs until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	if e.jitter {
		time.Sleep(time.Duration(rand.Float64() * 0.5 * float64(time.Second)))
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.Tick(pollQuantum)
	}
}

// Tick runs one event-loop iteration (spec §4.8, "Per iteration"): poll for
// up to timeout, apply any validated updates, run the timer scans, and
// advertise if triggered, periodic, or this is the first tick. It returns
// whether an advertisement was sent this tick, which is what makes the
// ordering guarantees in spec §5 directly testable without a real clock or
// socket.
func (e *Engine) Tick(timeout time.Duration) bool {
	for _, port := range e.transport.Poll(timeout) {
		payload, ok := e.transport.Recv(port)
		if !ok {
			continue
		}
		msg, err := wire.Decode(payload)
		if err != nil {
			e.logger.Debug().Err(err).Msg("engine: dropped undecodable datagram")
			e.counters.packetsDropped.Inc()
			continue
		}
		if !wire.Verify(msg) {
			e.logger.Debug().Uint16("sender_id", uint16(msg.SenderID)).Msg("engine: dropped unverifiable datagram")
			e.counters.packetsDropped.Inc()
			continue
		}
		e.ApplyUpdate(msg)
	}

	triggered := e.TimeoutScan()
	now := e.clock.Now()

	if !(triggered || e.lastUpdate == 0 || e.lastUpdate+e.period < now) {
		return false
	}

	e.GarbageScan()
	e.Advertise()
	e.lastUpdate = e.clock.Now()
	e.counters.routeTableSize.Set(float64(e.table.Len()))
	e.logger.Info().
		Float64("t", e.lastUpdate).
		Str("table", e.table.Render()).
		Msg("routing table")
	return true
}
