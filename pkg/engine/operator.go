package engine

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUndefinedParameter is returned when a parameter has neither a value nor a default.
var ErrUndefinedParameter = errors.New("undefined parameter")

// Parameter kinds recorded as the declared value type.
const (
	KindString     = "ParameterTypeString"
	KindBoolean    = "ParameterTypeBoolean"
	KindInt        = "ParameterTypeInt"
	KindCategory   = "ParameterTypeCategory"
	KindRepository = "ParameterTypeRepositoryLocation"
	KindFile       = "ParameterTypeFile"
)

// ParameterType declares one parameter of an operator description.
type ParameterType struct {
	Key      string
	Kind     string
	Default  string
	Range    string
	Optional bool
}

// Parameters holds the declared parameter types and current values of an operator.
type Parameters struct {
	types  []ParameterType
	values map[string]string
}

// Types returns the declared parameter types in declaration order.
func (ps *Parameters) Types() []ParameterType { return ps.types }

// Value returns the current value of key, falling back to its default.
func (ps *Parameters) Value(key string) (string, error) {
	if v, ok := ps.values[key]; ok {
		return v, nil
	}
	for _, t := range ps.types {
		if t.Key != key {
			continue
		}
		if t.Default != "" || t.Optional {
			return t.Default, nil
		}
		return "", fmt.Errorf("%w: %s", ErrUndefinedParameter, key)
	}
	return "", fmt.Errorf("%w: %s", ErrUndefinedParameter, key)
}

// Set assigns a value. Keys not declared by the description are kept as well.
func (ps *Parameters) Set(key, value string) {
	if ps.values == nil {
		ps.values = make(map[string]string)
	}
	ps.values[key] = value
}

// Type returns the declared type of key.
func (ps *Parameters) Type(key string) (ParameterType, bool) {
	for _, t := range ps.types {
		if t.Key == key {
			return t, true
		}
	}
	return ParameterType{}, false
}

// Keys returns the declared keys in declaration order followed by the
// undeclared keys that have a value, sorted.
func (ps *Parameters) Keys() []string {
	keys := make([]string, 0, len(ps.types)+len(ps.values))
	declared := make(map[string]struct{}, len(ps.types))
	for _, t := range ps.types {
		keys = append(keys, t.Key)
		declared[t.Key] = struct{}{}
	}
	var extra []string
	for k := range ps.values {
		if _, ok := declared[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// IsSet reports whether key has an explicit value.
func (ps *Parameters) IsSet(key string) bool {
	_, ok := ps.values[key]
	return ok
}

// Operator is a node of the engine graph. Operators with subprocesses are chains.
type Operator struct {
	name         string
	desc         *Description
	enabled      bool
	inputs       *InputPorts
	outputs      *OutputPorts
	params       *Parameters
	subprocesses []*Process
	parent       *Process
}

func newOperator(desc *Description, name string) *Operator {
	op := &Operator{
		name:    name,
		desc:    desc,
		enabled: true,
		params:  &Parameters{types: append([]ParameterType(nil), desc.Parameters...)},
	}
	op.inputs = &InputPorts{owner: op}
	op.outputs = &OutputPorts{owner: op, prefix: desc.OutputGroup, class: desc.OutputGroupClass}
	for _, spec := range desc.Inputs {
		op.inputs.Add(spec.Name, spec.Class)
	}
	for _, spec := range desc.Outputs {
		op.outputs.Add(spec.Name, spec.Class)
	}
	for _, name := range desc.Subprocesses {
		op.subprocesses = append(op.subprocesses, newProcess(name, op))
	}
	if desc.Throughput && len(op.subprocesses) > 0 {
		op.inputs.prefix = ThroughInput
		op.outputs.prefix = ThroughOutput
		inner := op.subprocesses[0]
		inner.innerSources.prefix = ThroughInput
		inner.innerSinks.prefix = ThroughOutput
	}
	op.portsChanged()
	return op
}

// Name returns the operator name.
func (o *Operator) Name() string { return o.name }

// Rename changes the operator name. The parent process must not hold another
// operator with the new name.
func (o *Operator) Rename(name string) error {
	if o.parent != nil {
		if other := o.parent.OperatorByName(name); other != nil && other != o {
			return fmt.Errorf("operator %q already exists in process %q", name, o.parent.name)
		}
	}
	o.name = name
	return nil
}

// Description returns the operator description.
func (o *Operator) Description() *Description { return o.desc }

// ClassKey returns the key of the operator description.
func (o *Operator) ClassKey() string { return o.desc.Key }

// IsEnabled reports whether the operator is enabled.
func (o *Operator) IsEnabled() bool { return o.enabled }

// SetEnabled enables or disables the operator.
func (o *Operator) SetEnabled(enabled bool) { o.enabled = enabled }

// InputPorts returns the operator's input ports.
func (o *Operator) InputPorts() *InputPorts { return o.inputs }

// OutputPorts returns the operator's output ports.
func (o *Operator) OutputPorts() *OutputPorts { return o.outputs }

// Parameters returns the operator's parameters.
func (o *Operator) Parameters() *Parameters { return o.params }

// Parent returns the process containing the operator, or nil.
func (o *Operator) Parent() *Process { return o.parent }

// IsChain reports whether the operator has subprocesses.
func (o *Operator) IsChain() bool { return len(o.subprocesses) > 0 }

// NumberOfSubprocesses returns the number of subprocesses.
func (o *Operator) NumberOfSubprocesses() int { return len(o.subprocesses) }

// Subprocess returns the subprocess at index i, or nil.
func (o *Operator) Subprocess(i int) *Process {
	if i < 0 || i >= len(o.subprocesses) {
		return nil
	}
	return o.subprocesses[i]
}

// Subprocesses returns all subprocesses in order.
func (o *Operator) Subprocesses() []*Process { return o.subprocesses }

// FreeInputPair returns the first through pair whose outer input and inner
// source are both unconnected.
func (o *Operator) FreeInputPair() (*InputPort, *OutputPort, error) {
	if !o.desc.Throughput || len(o.subprocesses) == 0 {
		return nil, nil, fmt.Errorf("operator %q has no through ports", o.name)
	}
	inner := o.subprocesses[0]
	for k := 1; ; k++ {
		name := fmt.Sprintf("%s %d", ThroughInput, k)
		outer, src := o.inputs.ByName(name), inner.innerSources.ByName(name)
		if !outer.IsConnected() && !src.IsConnected() {
			return outer, src, nil
		}
	}
}

// FreeOutputPair returns the first through pair whose inner sink and outer
// output are both unconnected.
func (o *Operator) FreeOutputPair() (*InputPort, *OutputPort, error) {
	if !o.desc.Throughput || len(o.subprocesses) == 0 {
		return nil, nil, fmt.Errorf("operator %q has no through ports", o.name)
	}
	inner := o.subprocesses[0]
	for k := 1; ; k++ {
		name := fmt.Sprintf("%s %d", ThroughOutput, k)
		sink, outer := inner.innerSinks.ByName(name), o.outputs.ByName(name)
		if !sink.IsConnected() && !outer.IsConnected() {
			return sink, outer, nil
		}
	}
}

// portsChanged keeps one spare numbered port (or through pair) available.
func (o *Operator) portsChanged() {
	if o == nil {
		return
	}
	if o.desc.Throughput && len(o.subprocesses) > 0 {
		o.syncThroughPairs()
		return
	}
	o.outputs.ensureSpare()
}

func (o *Operator) syncThroughPairs() {
	inner := o.subprocesses[0]

	n := max(o.inputs.countGroup(), inner.innerSources.countGroup(), 1)
	for o.inputs.countGroup() < n {
		o.inputs.addGroupPort()
	}
	for inner.innerSources.countGroup() < n {
		inner.innerSources.addGroupPort()
	}
	if o.inputs.ports[len(o.inputs.ports)-1].IsConnected() || inner.innerSources.ports[len(inner.innerSources.ports)-1].IsConnected() {
		o.inputs.addGroupPort()
		inner.innerSources.addGroupPort()
	}

	n = max(o.outputs.countGroup(), inner.innerSinks.countGroup(), 1)
	for o.outputs.countGroup() < n {
		o.outputs.addGroupPort()
	}
	for inner.innerSinks.countGroup() < n {
		inner.innerSinks.addGroupPort()
	}
	if o.outputs.ports[len(o.outputs.ports)-1].IsConnected() || inner.innerSinks.ports[len(inner.innerSinks.ports)-1].IsConnected() {
		o.outputs.addGroupPort()
		inner.innerSinks.addGroupPort()
	}
}
