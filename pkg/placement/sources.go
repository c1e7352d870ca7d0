package placement

import (
	"strconv"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// binding records the shared source that fed a consumer before detaching.
type binding struct {
	consumer string
	source   *workflow.Operator
	toPort   string
	portType workflow.PortType
}

// SourceBindings remembers which consumer read from which shared source so the
// sources can be re-created next to the consumers after placement.
type SourceBindings struct {
	bindings map[string]*binding
}

// Len returns the number of bound consumers.
func (sb *SourceBindings) Len() int {
	if sb == nil {
		return 0
	}
	return len(sb.bindings)
}

// Source returns the name of the source that fed consumer.
func (sb *SourceBindings) Source(consumer string) (string, bool) {
	if sb == nil {
		return "", false
	}
	b, ok := sb.bindings[consumer]
	if !ok {
		return "", false
	}
	return b.source.Name, true
}

// DetachSources removes the connected retrieve operators of the top level of w,
// together with a multiply they feed, and returns which consumer each one fed.
// Sources without connections stay in place. w is modified.
func DetachSources(w *workflow.Workflow) *SourceBindings {
	sb := &SourceBindings{bindings: make(map[string]*binding)}
	idx := workflow.NewIndex(w)

	removeOps := make(map[string]struct{})
	removeConns := make(map[*workflow.Connection]struct{})
	bind := func(c *workflow.Connection, source *workflow.Operator) {
		if _, ok := sb.bindings[c.ToOperator]; ok {
			return
		}
		sb.bindings[c.ToOperator] = &binding{
			consumer: c.ToOperator,
			source:   source.Clone(),
			toPort:   c.ToPort,
			portType: c.ToPortType,
		}
	}

	for _, op := range w.Operators {
		if op.ClassKey != engine.KeyRetrieve {
			continue
		}
		for _, c := range w.OutgoingConnections(op.Name) {
			removeOps[op.Name] = struct{}{}
			removeConns[c] = struct{}{}

			next, ok := idx.Operator(c.ToOperator)
			if !ok || next.ClassKey != engine.KeyMultiply {
				bind(c, op)
				continue
			}
			removeOps[next.Name] = struct{}{}
			for _, fan := range w.OutgoingConnections(next.Name) {
				removeConns[fan] = struct{}{}
				bind(fan, op)
			}
		}
	}

	operators := w.Operators[:0]
	for _, op := range w.Operators {
		if _, ok := removeOps[op.Name]; !ok {
			operators = append(operators, op)
		}
	}
	w.Operators = operators

	connections := w.Connections[:0]
	for _, c := range w.Connections {
		if _, ok := removeConns[c]; !ok {
			connections = append(connections, c)
		}
	}
	w.Connections = connections
	return sb
}

// Reattach returns a copy of the placed workflow w where every bound consumer
// reads from its own copy of its former source, named "<source>_<n>", placed
// on the consumer's platform and listed beside it in the placement decision.
func (sb *SourceBindings) Reattach(w *workflow.Workflow) *workflow.Workflow {
	out := w.Clone()
	if sb.Len() == 0 {
		return out
	}

	counter := 1
	var added []*workflow.Operator
	var consumers []string
	for _, op := range out.Operators {
		b, ok := sb.bindings[op.Name]
		if !ok {
			continue
		}
		source := b.source.Clone()
		source.Name = b.source.Name + "_" + strconv.Itoa(counter)
		source.PlatformName = op.PlatformName
		counter++

		portType := b.portType
		if portType == "" {
			portType = workflow.InputPort
		}
		out.Connections = append(out.Connections, &workflow.Connection{
			FromOperator: source.Name,
			FromPort:     firstOutput(source),
			FromPortType: workflow.OutputPort,
			ToOperator:   op.Name,
			ToPort:       b.toPort,
			ToPortType:   portType,
		})
		added = append(added, source)
		consumers = append(consumers, op.Name)
	}
	out.Operators = append(out.Operators, added...)

	for i, consumer := range consumers {
		platform := findPlatform(out, consumer)
		if platform == nil {
			continue
		}
		platform.Operators = append(platform.Operators, &workflow.PlacementOperator{Name: added[i].Name})
	}
	return out
}

func findPlatform(w *workflow.Workflow, operator string) *workflow.PlacementPlatform {
	for _, site := range w.PlacementSites {
		for _, platform := range site.AvailablePlatforms {
			for _, op := range platform.Operators {
				if op.Name == operator {
					return platform
				}
			}
		}
	}
	return nil
}
