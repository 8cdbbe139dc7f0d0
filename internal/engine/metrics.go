package engine

import (
	"strconv"

	"github.com/VictoriaMetrics/metrics"
)

// counters holds the daemon's exported metrics, following the private
// counter-struct-per-component convention of pkg/api/api0/metrics.go: a
// dedicated *metrics.Set so a process holding multiple engines (e.g. tests)
// never collides on global metric names.
type counters struct {
	set *metrics.Set

	packetsDropped        *metrics.Counter
	updatesApplied        *metrics.Counter
	advertisementsSent    *metrics.Counter
	timeoutsTotal         *metrics.Counter
	garbageCollectedTotal *metrics.Counter
	routeTableSize        *metrics.Gauge
}

func newCounters(routerID uint16) *counters {
	set := metrics.NewSet()
	label := func(name string) string {
		return name + `{router_id="` + strconv.Itoa(int(routerID)) + `"}`
	}

	c := &counters{
		set:                set,
		packetsDropped:     set.NewCounter(label("ripd_packets_dropped_total")),
		updatesApplied:     set.NewCounter(label("ripd_updates_applied_total")),
		advertisementsSent: set.NewCounter(label("ripd_advertisements_sent_total")),
		timeoutsTotal:      set.NewCounter(label("ripd_route_timeouts_total")),
	}
	c.garbageCollectedTotal = set.NewCounter(label("ripd_routes_garbage_collected_total"))
	size := label("ripd_route_table_size")
	c.routeTableSize = set.NewGauge(size, nil)
	return c
}

// Set returns the metrics.Set backing this engine, for WritePrometheus.
func (e *Engine) Set() *metrics.Set {
	return e.counters.set
}

