package pipe

import "sync"

// ProbeSink receives hierarchical diagnostic metadata from pipes, filters,
// and policies. Scope opens a nested child; Add records a key/value pair at
// the current level.
type ProbeSink interface {
	Scope(name string) ProbeSink
	Add(key string, value interface{})
}

// Probe is the standard ProbeSink. Result renders the collected tree as
// nested maps; repeated scope names render as a slice.
type Probe struct {
	mu       sync.Mutex
	values   map[string]interface{}
	children []*namedProbe
}

type namedProbe struct {
	name  string
	probe *Probe
}

// NewProbe creates an empty probe root
func NewProbe() *Probe {
	return &Probe{values: make(map[string]interface{})}
}

// Scope opens a nested child sink
func (p *Probe) Scope(name string) ProbeSink {
	p.mu.Lock()
	defer p.mu.Unlock()

	child := NewProbe()
	p.children = append(p.children, &namedProbe{name: name, probe: child})
	return child
}

// Add records a key/value pair at this level
func (p *Probe) Add(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Result renders the probe tree. Scalar values appear directly; each scope
// appears under its name, collapsing to a single map when the name is
// unique and to a []interface{} when repeated.
func (p *Probe) Result() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(map[string]interface{}, len(p.values)+len(p.children))
	for k, v := range p.values {
		result[k] = v
	}

	grouped := make(map[string][]interface{})
	order := make([]string, 0, len(p.children))
	for _, c := range p.children {
		if _, seen := grouped[c.name]; !seen {
			order = append(order, c.name)
		}
		grouped[c.name] = append(grouped[c.name], c.probe.Result())
	}
	for _, name := range order {
		entries := grouped[name]
		if len(entries) == 1 {
			result[name] = entries[0]
		} else {
			result[name] = entries
		}
	}
	return result
}
