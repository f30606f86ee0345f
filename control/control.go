// control/control.go
// License: Apache-2.0

package control

// Control bundles the metrics registry and the debug probes of one server.
type Control struct {
	Metrics *MetricsRegistry
	Debug   *DebugProbes
}

// New returns an empty Control.
func New() *Control {
	return &Control{
		Metrics: NewMetricsRegistry(),
		Debug:   NewDebugProbes(),
	}
}

// Snapshot merges metrics and evaluated probes. Probe results win on key
// collisions.
func (c *Control) Snapshot() map[string]any {
	out := c.Metrics.GetSnapshot()
	for k, v := range c.Debug.DumpState() {
		out[k] = v
	}
	return out
}
