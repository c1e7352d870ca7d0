package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Prefixes of the through port pairs of a chain.
const (
	ThroughInput  = "in"
	ThroughOutput = "out"
)

// PortSpec declares a fixed port of an operator description.
type PortSpec struct {
	Name  string
	Class string
}

// Description declares how operators of one class key are built.
type Description struct {
	// Key is the class key identifying the operator type
	Key string

	// Name is the default name of new operators
	Name string

	Inputs  []PortSpec
	Outputs []PortSpec

	// OutputGroup is the prefix of an auto-extending output group ("output"
	// yields "output 1", "output 2", ...). Ignored for through chains.
	OutputGroup      string
	OutputGroupClass string

	// Subprocesses names the subprocesses of a chain; empty for leaf operators
	Subprocesses []string

	// Throughput adds "in N"/"out N" port pairs passing through subprocess 0
	Throughput bool

	Parameters []ParameterType
}

// Registry maps class keys to operator descriptions.
type Registry struct {
	mu           sync.RWMutex
	descriptions map[string]*Description
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptions: make(map[string]*Description)}
}

// Register adds a description under its key.
func (r *Registry) Register(desc *Description) error {
	return r.RegisterWithName(desc, desc.Key)
}

// RegisterWithName adds a description under an additional key.
func (r *Registry) RegisterWithName(desc *Description, key string) error {
	if desc == nil || key == "" {
		return fmt.Errorf("description and key are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptions[key]; exists {
		return fmt.Errorf("operator class %q is already registered", key)
	}
	r.descriptions[key] = desc
	return nil
}

// Lookup returns the description registered under key.
func (r *Registry) Lookup(key string) (*Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descriptions[key]
	return desc, ok
}

// Has checks if a description is registered under key.
func (r *Registry) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns all registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.descriptions))
	for k := range r.descriptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Create builds a new operator of the given class. An empty name falls back
// to the description's default name.
func (r *Registry) Create(key, name string) (*Operator, error) {
	desc, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("no operator registered for class key: %s", key)
	}
	return New(desc, name), nil
}

// New builds an operator from a description without a registry.
func New(desc *Description, name string) *Operator {
	if name == "" {
		name = desc.Name
	}
	if name == "" {
		name = desc.Key
	}
	return newOperator(desc, name)
}
