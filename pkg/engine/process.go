package engine

import (
	"fmt"
)

// Process is a subprocess of a chain: an ordered set of operators plus the
// chain's inner boundary ports.
type Process struct {
	name         string
	enclosing    *Operator
	operators    []*Operator
	innerSources *OutputPorts
	innerSinks   *InputPorts
}

func newProcess(name string, enclosing *Operator) *Process {
	return &Process{
		name:         name,
		enclosing:    enclosing,
		innerSources: &OutputPorts{owner: enclosing},
		innerSinks:   &InputPorts{owner: enclosing},
	}
}

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// SetName renames the process.
func (p *Process) SetName(name string) { p.name = name }

// Enclosing returns the chain the process belongs to.
func (p *Process) Enclosing() *Operator { return p.enclosing }

// Operators returns the operators in declaration order.
func (p *Process) Operators() []*Operator { return p.operators }

// InnerSources returns the boundary ports feeding data into the process.
func (p *Process) InnerSources() *OutputPorts { return p.innerSources }

// InnerSinks returns the boundary ports taking data out of the process.
func (p *Process) InnerSinks() *InputPorts { return p.innerSinks }

// OperatorByName returns the operator with the given name, or nil.
func (p *Process) OperatorByName(name string) *Operator {
	for _, op := range p.operators {
		if op.name == name {
			return op
		}
	}
	return nil
}

// AddOperator appends op. Operator names are unique per process.
func (p *Process) AddOperator(op *Operator) error {
	return p.AddOperatorAt(op, len(p.operators))
}

// AddOperatorAt inserts op at position index.
func (p *Process) AddOperatorAt(op *Operator, index int) error {
	if op.parent != nil {
		return fmt.Errorf("operator %q already belongs to process %q", op.name, op.parent.name)
	}
	if p.OperatorByName(op.name) != nil {
		return fmt.Errorf("operator %q already exists in process %q", op.name, p.name)
	}
	if index < 0 || index > len(p.operators) {
		index = len(p.operators)
	}
	p.operators = append(p.operators, nil)
	copy(p.operators[index+1:], p.operators[index:])
	p.operators[index] = op
	op.parent = p
	return nil
}

// RemoveOperator disconnects op and removes it from the process.
func (p *Process) RemoveOperator(op *Operator) {
	for i, candidate := range p.operators {
		if candidate != op {
			continue
		}
		for _, in := range op.inputs.ports {
			if in.source != nil {
				in.source.Disconnect()
			}
		}
		for _, out := range op.outputs.ports {
			out.Disconnect()
		}
		p.operators = append(p.operators[:i], p.operators[i+1:]...)
		op.parent = nil
		return
	}
}

// Clear removes every operator and disconnects the inner boundary.
func (p *Process) Clear() {
	for len(p.operators) > 0 {
		p.RemoveOperator(p.operators[0])
	}
	for _, src := range p.innerSources.ports {
		src.Disconnect()
	}
	for _, sink := range p.innerSinks.ports {
		if sink.source != nil {
			sink.source.Disconnect()
		}
	}
}

// UniqueName returns base, or base with a " (N)" suffix when base is taken.
func (p *Process) UniqueName(base string) string {
	if p.OperatorByName(base) == nil {
		return base
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s (%d)", base, n)
		if p.OperatorByName(name) == nil {
			return name
		}
	}
}

// AllInnerOperators returns every operator of the process and of nested chains, depth-first.
func (p *Process) AllInnerOperators() []*Operator {
	var out []*Operator
	for _, op := range p.operators {
		out = append(out, op)
		for _, sub := range op.subprocesses {
			out = append(out, sub.AllInnerOperators()...)
		}
	}
	return out
}
