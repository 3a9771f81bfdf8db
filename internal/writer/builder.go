// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	cfg "github.com/tamzrod/rfid-monitor/internal/config"
	wmodbus "github.com/tamzrod/rfid-monitor/internal/writer/modbus"
)

// BuildPlan converts one line config into a Writer Plan.
// Assumes config has already passed slot collision validation.
func BuildPlan(l cfg.LineConfig, mem *cfg.StatusMemoryConfig) (Plan, error) {
	if l.ID == "" {
		return Plan{}, errors.New("writer: line.id required")
	}

	plan := Plan{LineID: l.ID}

	// status is opt-in and needs a status memory
	if l.Status == nil || mem == nil {
		return plan, nil
	}

	plan.Status = &StatusPlan{
		Endpoint:   mem.Endpoint,
		UnitID:     uint16(l.Status.UnitID),
		BaseSlot:   l.Status.Slot,
		DeviceName: l.Status.DeviceName,
	}
	return plan, nil
}

// BuildEndpointClients creates one TCP client per unique status endpoint.
// Connections are dialed lazily on first write.
func BuildEndpointClients(plans []Plan, mem *cfg.StatusMemoryConfig) (map[string]endpointClient, func() error, error) {
	unique := map[string]struct{}{}
	for _, p := range plans {
		if p.Status != nil {
			unique[p.Status.Endpoint] = struct{}{}
		}
	}

	timeout := time.Second
	if mem != nil && mem.TimeoutMs > 0 {
		timeout = time.Duration(mem.TimeoutMs) * time.Millisecond
	}

	clients := make(map[string]endpointClient)
	var closers []func() error

	for endpoint := range unique {
		c, err := wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: endpoint,
			Timeout:  timeout,
		})
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, c.Close)
	}

	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	return clients, closeAll, nil
}
