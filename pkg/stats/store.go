package stats

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a monotonically increasing stat.
type Counter struct {
	value atomic.Uint64
	prom  prometheus.Counter
}

// Inc adds one.
func (c *Counter) Inc() { c.Add(1) }

// Add adds delta.
func (c *Counter) Add(delta uint64) {
	c.value.Add(delta)
	if c.prom != nil {
		c.prom.Add(float64(delta))
	}
}

// Value returns the current count.
func (c *Counter) Value() uint64 { return c.value.Load() }

// Gauge is a stat that can move both ways.
type Gauge struct {
	value atomic.Int64
	prom  prometheus.Gauge
}

// Inc adds one.
func (g *Gauge) Inc() { g.Addx(1) }

// Dec subtracts one.
func (g *Gauge) Dec() { g.Addx(-1) }

// Addx adds delta, which may be negative.
func (g *Gauge) Addx(delta int64) {
	g.value.Add(delta)
	if g.prom != nil {
		g.prom.Add(float64(delta))
	}
}

// Set replaces the current value.
func (g *Gauge) Set(value int64) {
	g.value.Store(value)
	if g.prom != nil {
		g.prom.Set(float64(value))
	}
}

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Store issues counters and gauges by canonical dotted name. Asking for the
// same name twice returns the same stat.
type Store struct {
	namespace string
	registry  *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
}

// NewStore creates a store exporting through registry under the given
// namespace. A nil registry gets a fresh one.
func NewStore(namespace string, registry *prometheus.Registry) *Store {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "janus"
	}
	return &Store{
		namespace: namespace,
		registry:  registry,
		counters:  make(map[string]*Counter),
		gauges:    make(map[string]*Gauge),
	}
}

// Registry returns the backing Prometheus registry for the admin handler.
func (s *Store) Registry() *prometheus.Registry { return s.registry }

// Counter returns the counter registered under name, creating it on first
// use.
func (s *Store) Counter(name string) *Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c := &Counter{}
	c.prom = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Name:      sanitizeName(name),
		Help:      name,
	})
	if err := s.registry.Register(c.prom); err != nil {
		// Sanitization can collide two canonical names; keep the local
		// value and drop the duplicate series rather than failing the
		// data path.
		c.prom = nil
	}
	s.counters[name] = c
	return c
}

// Gauge returns the gauge registered under name, creating it on first use.
func (s *Store) Gauge(name string) *Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[name]; ok {
		return g
	}
	g := &Gauge{}
	g.prom = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: s.namespace,
		Name:      sanitizeName(name),
		Help:      name,
	})
	if err := s.registry.Register(g.prom); err != nil {
		g.prom = nil
	}
	s.gauges[name] = g
	return g
}

// CounterNames returns the canonical names of all issued counters.
func (s *Store) CounterNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.counters))
	for name := range s.counters {
		names = append(names, name)
	}
	return names
}

// sanitizeName maps a canonical dotted name onto the Prometheus metric
// grammar.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
			b.WriteByte(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteByte(ch)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
