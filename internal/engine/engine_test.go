package engine

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/framie/ripd/internal/clock"
	"github.com/framie/ripd/internal/config"
	"github.com/framie/ripd/internal/table"
	"github.com/framie/ripd/internal/transport"
	"github.com/framie/ripd/internal/wire"
)

// router1 is a fixed test fixture: router 1 with a single direct neighbor,
// router 2, reachable at port 6201 with metric 1.
func router1(clk clock.Clock, tr transport.Transport) *Engine {
	cfg := &config.Config{
		RouterID:   1,
		InputPorts: []table.Port{6110},
		Outputs: []config.Output{
			{NeighborPort: 6201, Metric: 1, NeighborID: 2},
		},
		TimerValue: 30,
	}
	return New(cfg, clk, tr, zerolog.Nop(), false)
}

func TestApplyUpdateInstallsNewRoute(t *testing.T) {
	clk := clock.NewVirtual(100)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))

	e.ApplyUpdate(wire.Message{
		SenderID: 2,
		Version:  wire.Version,
		Type:     wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 2, NextHop: 6302, UpdateFlag: 0},
		},
	})

	got, ok := e.Table().Get(3)
	if !ok {
		t.Fatalf("expected route to router 3 to be installed")
	}
	if got.Weight != 3 {
		t.Errorf("Weight = %d, want 3 (1 direct-link + 2 advertised)", got.Weight)
	}
	if got.NextHop != 6201 {
		t.Errorf("NextHop = %d, want 6201 (the port to reach sender 2)", got.NextHop)
	}
	if got.LastRefreshed != 100 {
		t.Errorf("LastRefreshed = %v, want 100", got.LastRefreshed)
	}
}

func TestApplyUpdateRejectsMetricInfinity(t *testing.T) {
	// spec §8 S4: an advertised route whose total cost would reach or exceed
	// Infinity must never be installed as a new, reachable route.
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))

	e.ApplyUpdate(wire.Message{
		SenderID: 2, Version: wire.Version, Type: wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 15, NextHop: 6302, UpdateFlag: 0},
		},
	})

	if _, ok := e.Table().Get(3); ok {
		t.Errorf("router 3 was installed with total cost 16, want it dropped as unreachable")
	}
}

func TestApplyUpdateReplacesWithBetterMetric(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	e.Table().Set(3, table.Route{Port: 6999, Weight: 10, NextHop: 6999, UpdateFlag: 0, LastRefreshed: 0})

	clk.Set(50)
	e.ApplyUpdate(wire.Message{
		SenderID: 2, Version: wire.Version, Type: wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 2, NextHop: 6302, UpdateFlag: 0},
		},
	})

	got, _ := e.Table().Get(3)
	if got.Weight != 3 {
		t.Errorf("Weight = %d, want 3 after a strictly better route arrived", got.Weight)
	}
	if got.NextHop != 6201 {
		t.Errorf("NextHop = %d, want 6201", got.NextHop)
	}
	if got.LastRefreshed != 50 {
		t.Errorf("LastRefreshed = %v, want 50", got.LastRefreshed)
	}
}

func TestApplyUpdateTiePreservesIncumbent(t *testing.T) {
	// spec §8 S5: a tied-cost advertisement from a different next hop must
	// not replace the incumbent route, to avoid unnecessary route flap.
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	e.Table().Set(3, table.Route{Port: 6999, Weight: 3, NextHop: 6999, UpdateFlag: 0, LastRefreshed: 0})

	clk.Set(50)
	e.ApplyUpdate(wire.Message{
		SenderID: 2, Version: wire.Version, Type: wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 2, NextHop: 6302, UpdateFlag: 0},
		},
	})

	got, _ := e.Table().Get(3)
	if got.NextHop != 6999 || got.Weight != 3 {
		t.Errorf("tie replaced the incumbent: got %+v", got)
	}
	if got.LastRefreshed != 0 {
		t.Errorf("LastRefreshed = %v, want unchanged 0 since this update did not arrive via the current next hop", got.LastRefreshed)
	}
}

func TestApplyUpdateRefreshesTieViaCurrentNextHop(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	// Incumbent route to 3 already goes via router 2 (port 6201).
	e.Table().Set(3, table.Route{Port: 6302, Weight: 3, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 0})

	clk.Set(50)
	e.ApplyUpdate(wire.Message{
		SenderID: 2, Version: wire.Version, Type: wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 2, NextHop: 6201, UpdateFlag: 0},
		},
	})

	got, _ := e.Table().Get(3)
	if got.LastRefreshed != 50 {
		t.Errorf("LastRefreshed = %v, want 50 since the tie arrived via the current next hop", got.LastRefreshed)
	}
}

func TestApplyUpdatePoisonsExistingRoute(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	e.Table().Set(3, table.Route{Port: 6302, Weight: 3, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 0})

	e.ApplyUpdate(wire.Message{
		SenderID: 2, Version: wire.Version, Type: wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 16, NextHop: 6201, UpdateFlag: 1},
		},
	})

	got, _ := e.Table().Get(3)
	if got.UpdateFlag != 1 {
		t.Errorf("UpdateFlag = %d, want 1 (poisoned)", got.UpdateFlag)
	}
}

func TestApplyUpdateIgnoresMessageFromNonNeighbor(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))

	e.ApplyUpdate(wire.Message{
		SenderID: 99, Version: wire.Version, Type: wire.TypeResponse,
		Entries: []wire.Entry{
			{Dest: 3, Port: 6302, Weight: 2, NextHop: 6302, UpdateFlag: 0},
		},
	})

	if _, ok := e.Table().Get(3); ok {
		t.Errorf("installed a route from a message whose sender is not a direct neighbor")
	}
}

func TestTimeoutScanPoisonsStaleRoute(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	e.Table().Set(3, table.Route{Port: 6302, Weight: 3, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 0})

	clk.Set(timeoutMultiplier*30 + 1)
	triggered := e.TimeoutScan()
	if !triggered {
		t.Fatalf("TimeoutScan() = false, want true after a route went stale")
	}

	got, _ := e.Table().Get(3)
	if got.UpdateFlag != 1 || got.Weight != table.Infinity {
		t.Errorf("stale route not poisoned: %+v", got)
	}
}

func TestTimeoutScanLeavesFreshRouteAlone(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	e.Table().Set(3, table.Route{Port: 6302, Weight: 3, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 0})

	clk.Set(timeoutMultiplier*30 - 1)
	if e.TimeoutScan() {
		t.Fatalf("TimeoutScan() = true, want false before the timeout elapses")
	}
	got, _ := e.Table().Get(3)
	if got.UpdateFlag != 0 {
		t.Errorf("fresh route was poisoned early: %+v", got)
	}
}

func TestGarbageScanRemovesOldPoisonedRoute(t *testing.T) {
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	e.Table().Set(3, table.Route{Port: 6302, Weight: table.Infinity, NextHop: 6201, UpdateFlag: 1, LastRefreshed: 0})

	clk.Set(garbageMultiplier*30 + 1)
	e.GarbageScan()

	if _, ok := e.Table().Get(3); ok {
		t.Errorf("expected router 3 to be garbage collected")
	}
}

func TestGarbageScanCascadesOverDeadNeighbor(t *testing.T) {
	// spec §8 S2: when a direct neighbor is garbage collected, every route
	// whose next hop depended on it must also be removed, even though those
	// routes' own LastRefreshed may still look fresh.
	clk := clock.NewVirtual(0)
	e := router1(clk, transport.NewMemory(transport.NewBus(), []table.Port{6110}))
	// Direct neighbor 2 has gone stale and poisoned.
	e.Table().Set(2, table.Route{Port: 6201, Weight: table.Infinity, NextHop: 6201, UpdateFlag: 1, LastRefreshed: 0})
	// Route to 3 is "fresh" by its own timestamp but depends on neighbor 2's port.
	e.Table().Set(3, table.Route{Port: 6302, Weight: 3, NextHop: 6201, UpdateFlag: 0, LastRefreshed: garbageMultiplier*30 + 1})

	clk.Set(garbageMultiplier*30 + 1)
	e.GarbageScan()

	if _, ok := e.Table().Get(2); ok {
		t.Errorf("expected dead neighbor 2 to be garbage collected")
	}
	if _, ok := e.Table().Get(3); ok {
		t.Errorf("expected router 3 to cascade-delete once its next hop (neighbor 2) died")
	}
}

func TestAdvertiseAppliesSplitHorizonPoisonedReverse(t *testing.T) {
	bus := transport.NewBus()
	clk := clock.NewVirtual(0)

	cfg := &config.Config{
		RouterID:   1,
		InputPorts: []table.Port{6110},
		Outputs: []config.Output{
			{NeighborPort: 6201, Metric: 1, NeighborID: 2},
			{NeighborPort: 6301, Metric: 1, NeighborID: 3},
		},
		TimerValue: 30,
	}
	tr := transport.NewMemory(bus, []table.Port{6110})
	e := New(cfg, clk, tr, zerolog.Nop(), false)
	// A route to router 4, reached via neighbor 2's port, should be poisoned
	// when advertised back toward neighbor 2 (split horizon with poisoned
	// reverse, spec §8 S3), but advertised normally toward neighbor 3.
	e.Table().Set(4, table.Route{Port: 6999, Weight: 2, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 0})

	nbr2 := transport.NewMemory(bus, []table.Port{6201})
	nbr3 := transport.NewMemory(bus, []table.Port{6301})

	e.Advertise()

	msgTo2 := recvDecoded(t, nbr2, 6201)
	msgTo3 := recvDecoded(t, nbr3, 6301)

	entry := findEntry(t, msgTo2, 4)
	if entry.Weight != table.Infinity || entry.UpdateFlag != 1 {
		t.Errorf("advertisement to neighbor 2 did not poison route to 4: %+v", entry)
	}

	entry = findEntry(t, msgTo3, 4)
	if entry.UpdateFlag != 0 {
		t.Errorf("advertisement to neighbor 3 unexpectedly poisoned the route to 4: %+v", entry)
	}
}

func recvDecoded(t *testing.T, tr *transport.Memory, port table.Port) wire.Message {
	t.Helper()
	ports := tr.Poll(0)
	if len(ports) != 1 || ports[0] != port {
		t.Fatalf("Poll() = %v, want exactly [%d]", ports, port)
	}
	payload, ok := tr.Recv(port)
	if !ok {
		t.Fatalf("Recv(%d) found nothing queued", port)
	}
	msg, err := wire.Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return msg
}

func findEntry(t *testing.T, msg wire.Message, dest table.RouterID) wire.Entry {
	t.Helper()
	for _, e := range msg.Entries {
		if e.Dest == dest {
			return e
		}
	}
	t.Fatalf("message %+v has no entry for router %d", msg, dest)
	return wire.Entry{}
}

// TestTickConvergesAcrossLinearTopology drives a three-router chain
// (A-B-C) across a shared bus through several ticks and checks that the
// endpoints learn of each other via the middle router (spec §8 S1:
// multi-hop convergence).
func TestTickConvergesAcrossLinearTopology(t *testing.T) {
	bus := transport.NewBus()

	cfgA := &config.Config{
		RouterID:   1,
		InputPorts: []table.Port{6110},
		Outputs:    []config.Output{{NeighborPort: 6201, Metric: 1, NeighborID: 2}},
		TimerValue: 30,
	}
	cfgB := &config.Config{
		RouterID:   2,
		InputPorts: []table.Port{6201},
		Outputs: []config.Output{
			{NeighborPort: 6110, Metric: 1, NeighborID: 1},
			{NeighborPort: 6301, Metric: 1, NeighborID: 3},
		},
		TimerValue: 30,
	}
	cfgC := &config.Config{
		RouterID:   3,
		InputPorts: []table.Port{6301},
		Outputs:    []config.Output{{NeighborPort: 6201, Metric: 1, NeighborID: 2}},
		TimerValue: 30,
	}

	a := New(cfgA, clock.NewVirtual(0), transport.NewMemory(bus, []table.Port{6110}), zerolog.Nop(), false)
	b := New(cfgB, clock.NewVirtual(0), transport.NewMemory(bus, []table.Port{6201}), zerolog.Nop(), false)
	c := New(cfgC, clock.NewVirtual(0), transport.NewMemory(bus, []table.Port{6301}), zerolog.Nop(), false)

	for i := 0; i < 2; i++ {
		a.Tick(0)
		b.Tick(0)
		c.Tick(0)
	}

	got, ok := a.Table().Get(3)
	if !ok {
		t.Fatalf("router 1 never learned a route to router 3")
	}
	if got.Weight != 2 {
		t.Errorf("router 1's route to router 3 has weight %d, want 2", got.Weight)
	}

	got, ok = c.Table().Get(1)
	if !ok {
		t.Fatalf("router 3 never learned a route to router 1")
	}
	if got.Weight != 2 {
		t.Errorf("router 3's route to router 1 has weight %d, want 2", got.Weight)
	}
}
