// File: work/unit.go
// License: Apache-2.0
//
// Unit: an immutable named bundle of processors shared by every chain routed
// through one execution context.

package work

import (
	"github.com/m9ra/ServeRick-sub001/internal/concurrency"
	"github.com/m9ra/ServeRick-sub001/internal/logging"
)

// Well-known processor names every unit provides.
const (
	OutputProcessor   = "Output"
	DatabaseProcessor = "Database"
)

type unitConfig struct {
	extra    []string
	firstCPU int
	log      *logging.Logger
}

// UnitOption configures a Unit.
type UnitOption func(*unitConfig)

// WithExtraProcessor adds a named processor next to Output and Database.
func WithExtraProcessor(name string) UnitOption {
	return func(c *unitConfig) { c.extra = append(c.extra, name) }
}

// WithPinning pins the unit's processors to successive CPUs from firstCPU.
func WithPinning(firstCPU int) UnitOption {
	return func(c *unitConfig) { c.firstCPU = firstCPU }
}

// WithUnitLogger attaches a logger to all processors.
func WithUnitLogger(l *logging.Logger) UnitOption {
	return func(c *unitConfig) { c.log = l }
}

// Unit groups processors by name.
type Unit struct {
	name       string
	order      []*Processor
	processors map[string]*Processor
}

// NewUnit starts the Output and Database processors plus any extras.
func NewUnit(name string, opts ...UnitOption) *Unit {
	cfg := unitConfig{firstCPU: -1}
	for _, o := range opts {
		o(&cfg)
	}

	names := append([]string{OutputProcessor, DatabaseProcessor}, cfg.extra...)
	u := &Unit{name: name, processors: make(map[string]*Processor, len(names))}
	for i, n := range names {
		if _, dup := u.processors[n]; dup {
			continue
		}
		cpu := -1
		if cfg.firstCPU >= 0 {
			cpu = concurrency.CPUFor(cfg.firstCPU + i)
		}
		p := NewProcessor(name+"/"+n, WithCPU(cpu), WithProcessorLogger(cfg.log))
		u.processors[n] = p
		u.order = append(u.order, p)
	}
	return u
}

// Name returns the unit name.
func (u *Unit) Name() string { return u.name }

// Output is the processor for I/O output and rendering.
func (u *Unit) Output() *Processor { return u.processors[OutputProcessor] }

// Database is the processor for persistence.
func (u *Unit) Database() *Processor { return u.processors[DatabaseProcessor] }

// Processor looks a processor up by its short name.
func (u *Unit) Processor(name string) (*Processor, bool) {
	p, ok := u.processors[name]
	return p, ok
}

// Processors returns the processors in creation order.
func (u *Unit) Processors() []*Processor {
	return append([]*Processor(nil), u.order...)
}

// Stats collects the counters of every processor.
func (u *Unit) Stats() []ProcessorStats {
	out := make([]ProcessorStats, 0, len(u.order))
	for _, p := range u.order {
		out = append(out, p.Stats())
	}
	return out
}

// Close closes every processor.
func (u *Unit) Close() {
	for _, p := range u.order {
		p.Close()
	}
}
