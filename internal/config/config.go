// Package config loads and validates the daemon's startup configuration
// (spec §6 "Configuration"), the external collaborator spec.md assumes
// already ran by the time the event loop starts.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-envparse"

	"github.com/framie/ripd/internal/table"
)

// Output describes one configured neighbor: the port used to reach it, the
// direct link metric, and its router id (spec §6).
type Output struct {
	NeighborPort table.Port
	Metric       table.Metric
	NeighborID   table.RouterID
}

// Config is the validated startup configuration for one daemon instance.
type Config struct {
	RouterID   table.RouterID
	InputPorts []table.Port
	Outputs    []Output
	TimerValue int
}

// DefaultTimerValue is used when TIMER_VALUE is absent from the config file.
const DefaultTimerValue = 30

// ConfigError reports every field-level violation found while validating a
// config file, rather than bailing out on the first one, matching the
// diagnostic granularity of the reference COSC364 implementation.
type ConfigError struct {
	Violations []string
}

func (e *ConfigError) Error() string {
	return "config: " + strings.Join(e.Violations, "; ")
}

// Load reads and validates the KEY=VALUE config file at path, in the style
// of cmd/atlas/main.go's readEnv: github.com/hashicorp/go-envparse parses
// the raw KEY=VALUE pairs, then the fields are range- and cross-checked per
// spec §6.
//
// Recognized keys:
//
//	ROUTER_ID    - integer in [1, 64000]
//	INPUT_PORTS  - comma-separated integers in [1024, 64000]
//	OUTPUTS      - comma-separated "port-metric-router_id" triples
//	TIMER_VALUE  - optional positive integer seconds, default 30
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse validates a config file already opened by the caller.
func Parse(r io.Reader) (*Config, error) {
	raw, err := envparse.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	var violations []string
	c := &Config{TimerValue: DefaultTimerValue}

	routerID, rOk := parseRouterID(raw["ROUTER_ID"], &violations)
	c.RouterID = routerID

	inputPorts := parseInputPorts(raw["INPUT_PORTS"], &violations)
	c.InputPorts = inputPorts

	outputs := parseOutputs(raw["OUTPUTS"], &violations)
	c.Outputs = outputs

	if tv, present := raw["TIMER_VALUE"]; present {
		n, err := strconv.Atoi(strings.TrimSpace(tv))
		if err != nil || n < 1 {
			violations = append(violations, fmt.Sprintf("[timer-value] must be a positive integer, got %q", tv))
		} else {
			c.TimerValue = n
		}
	}

	if rOk {
		for _, o := range outputs {
			if o.NeighborID == routerID {
				violations = append(violations, fmt.Sprintf("[outputs] router-id %d already used for current router", o.NeighborID))
			}
		}
	}

	inputSet := make(map[table.Port]bool, len(inputPorts))
	for _, p := range inputPorts {
		inputSet[p] = true
	}
	neighborPortSet := make(map[table.Port]table.RouterID, len(outputs))
	neighborIDSet := make(map[table.RouterID]bool, len(outputs))
	for _, o := range outputs {
		if inputSet[o.NeighborPort] {
			violations = append(violations, fmt.Sprintf("[outputs] output port %d already used in input-ports", o.NeighborPort))
		}
		if prev, dup := neighborPortSet[o.NeighborPort]; dup && prev != o.NeighborID {
			violations = append(violations, fmt.Sprintf("[outputs] duplicate output port %d", o.NeighborPort))
		}
		neighborPortSet[o.NeighborPort] = o.NeighborID
		if neighborIDSet[o.NeighborID] {
			violations = append(violations, fmt.Sprintf("[outputs] duplicate router-id %d", o.NeighborID))
		}
		neighborIDSet[o.NeighborID] = true
	}

	if len(raw["ROUTER_ID"]) == 0 {
		violations = append(violations, "missing ROUTER_ID")
	}
	if len(inputPorts) == 0 {
		violations = append(violations, "missing or empty INPUT_PORTS")
	}
	if len(outputs) == 0 {
		violations = append(violations, "missing or empty OUTPUTS")
	}

	if len(violations) > 0 {
		return nil, &ConfigError{Violations: violations}
	}
	return c, nil
}

func parseRouterID(raw string, violations *[]string) (table.RouterID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*violations = append(*violations, fmt.Sprintf("[router-id] must be an integer, got %q", raw))
		return 0, false
	}
	if n < 1 || n > 64000 {
		*violations = append(*violations, fmt.Sprintf("[router-id] %d out of range, must be between 1 and 64000", n))
		return 0, false
	}
	return table.RouterID(n), true
}

func parseInputPorts(raw string, violations *[]string) []table.Port {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seen := make(map[table.Port]bool)
	var ports []table.Port
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			*violations = append(*violations, fmt.Sprintf("[input-ports] invalid port %q, must be an integer", tok))
			continue
		}
		if n < 1024 || n > 64000 {
			*violations = append(*violations, fmt.Sprintf("[input-ports] port %d out of range, must be between 1024 and 64000", n))
			continue
		}
		p := table.Port(n)
		if seen[p] {
			*violations = append(*violations, fmt.Sprintf("[input-ports] duplicate input-port %d", p))
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return ports
}

func parseOutputs(raw string, violations *[]string) []Output {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var outputs []Output
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.Split(tok, "-")
		if len(parts) != 3 {
			*violations = append(*violations, fmt.Sprintf("[outputs] %q must be formatted port-metric-router_id", tok))
			continue
		}
		port, err1 := strconv.Atoi(parts[0])
		metric, err2 := strconv.Atoi(parts[1])
		routerID, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			*violations = append(*violations, fmt.Sprintf("[outputs] %q must contain three integers", tok))
			continue
		}
		if port < 1024 || port > 64000 {
			*violations = append(*violations, fmt.Sprintf("[outputs] port %d out of range, must be between 1024 and 64000", port))
			continue
		}
		if metric < 1 || metric > 15 {
			*violations = append(*violations, fmt.Sprintf("[outputs] metric %d out of range, must be between 1 and 15", metric))
			continue
		}
		if routerID < 1 || routerID > 64000 {
			*violations = append(*violations, fmt.Sprintf("[outputs] router-id %d out of range, must be between 1 and 64000", routerID))
			continue
		}
		outputs = append(outputs, Output{
			NeighborPort: table.Port(port),
			Metric:       table.Metric(metric),
			NeighborID:   table.RouterID(routerID),
		})
	}
	return outputs
}
