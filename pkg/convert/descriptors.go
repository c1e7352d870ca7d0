package convert

import (
	"github.com/giannisaf2/crexdata-public/pkg/engine"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// RegisterDescriptors registers a description for every class key of w that
// reg does not know yet, inferred from the operators using it. Ports and
// parameters of all operators sharing a class key are merged in first-seen
// order. It returns the keys it registered.
func RegisterDescriptors(reg *engine.Registry, w *workflow.Workflow) ([]string, error) {
	var order []string
	inferred := make(map[string]*engine.Description)

	w.Walk(func(level *workflow.Workflow) bool {
		for _, op := range level.Operators {
			if reg.Has(op.ClassKey) {
				continue
			}
			if _, ok := composites[op.ClassKey]; ok {
				continue
			}
			desc, ok := inferred[op.ClassKey]
			if !ok {
				desc = &engine.Description{Key: op.ClassKey}
				inferred[op.ClassKey] = desc
				order = append(order, op.ClassKey)
			}
			merge(desc, op)
		}
		return true
	})

	for _, key := range order {
		if err := reg.Register(inferred[key]); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func merge(desc *engine.Description, op *workflow.Operator) {
	desc.Inputs = mergePorts(desc.Inputs, op.Inputs)
	desc.Outputs = mergePorts(desc.Outputs, op.Outputs)

	for _, p := range op.Parameters {
		known := false
		for _, t := range desc.Parameters {
			if t.Key == p.Key {
				known = true
				break
			}
		}
		if !known {
			desc.Parameters = append(desc.Parameters, engine.ParameterType{
				Key:      p.Key,
				Kind:     p.TypeClass,
				Default:  p.DefaultValue,
				Range:    p.Range,
				Optional: true,
			})
		}
	}

	for i, inner := range op.InnerWorkflows {
		if i < len(desc.Subprocesses) {
			continue
		}
		desc.Subprocesses = append(desc.Subprocesses, inner.WorkflowName)
	}
}

func mergePorts(specs []engine.PortSpec, ports []*workflow.Port) []engine.PortSpec {
	for _, p := range ports {
		known := false
		for _, s := range specs {
			if s.Name == p.Name {
				known = true
				break
			}
		}
		if !known {
			specs = append(specs, engine.PortSpec{Name: p.Name, Class: p.ObjectClass})
		}
	}
	return specs
}
