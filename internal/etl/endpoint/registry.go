package endpoint

import "fmt"

// UnknownEndpointError reports a lookup for a name that was never registered.
type UnknownEndpointError struct {
	Name string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("endpoint: unknown endpoint %q", e.Name)
}

// DuplicateEndpointError reports a second registration under the same name.
type DuplicateEndpointError struct {
	Name string
}

func (e *DuplicateEndpointError) Error() string {
	return fmt.Sprintf("endpoint: duplicate endpoint %q", e.Name)
}

// InvalidDescriptorError reports a descriptor that cannot serve as an
// endpoint definition.
type InvalidDescriptorError struct {
	Name   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("endpoint: invalid descriptor %q: %s", e.Name, e.Reason)
}

// Registry maps endpoint names to their descriptors. Contents are fixed at
// process start; it is never mutated once runs are in flight, so concurrent
// readers need no locking.
type Registry struct {
	byName map[string]Descriptor
	order  []string // registration order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a descriptor, validating it first.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return &InvalidDescriptorError{Name: d.Name, Reason: "empty name"}
	}
	if _, exists := r.byName[d.Name]; exists {
		return &DuplicateEndpointError{Name: d.Name}
	}
	if len(d.PrimaryKey) == 0 {
		return &InvalidDescriptorError{Name: d.Name, Reason: "empty primary key"}
	}
	if d.Map == nil {
		return &InvalidDescriptorError{Name: d.Name, Reason: "mapper is unset"}
	}
	if d.RawTable == "" || d.CoreTable == "" {
		return &InvalidDescriptorError{Name: d.Name, Reason: "missing store target"}
	}
	cols := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		cols[c] = true
	}
	for _, k := range d.PrimaryKey {
		if !cols[k] {
			return &InvalidDescriptorError{Name: d.Name, Reason: fmt.Sprintf("primary key column %q not in columns", k)}
		}
	}

	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup returns the descriptor for a name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, &UnknownEndpointError{Name: name}
	}
	return d, nil
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Builtin returns a registry populated with the shipped endpoints.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	for _, d := range []Descriptor{Directory(), Admissions()} {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}
