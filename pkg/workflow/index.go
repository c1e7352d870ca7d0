package workflow

// Index is a name lookup over one workflow level, built once per snapshot.
type Index struct {
	workflow  *Workflow
	operators map[string]*Operator
}

// NewIndex builds the index of a single workflow level.
func NewIndex(w *Workflow) *Index {
	idx := &Index{workflow: w, operators: make(map[string]*Operator, len(w.Operators))}
	for _, op := range w.Operators {
		if _, ok := idx.operators[op.Name]; !ok {
			idx.operators[op.Name] = op
		}
	}
	return idx
}

// Operator returns the operator with the given name.
func (i *Index) Operator(name string) (*Operator, bool) {
	op, ok := i.operators[name]
	return op, ok
}

// SourcePort resolves the output side of a connection: an operator output,
// or an inner source when the port type marks the boundary.
func (i *Index) SourcePort(c *Connection) *Port {
	if c.FromBoundary() {
		return i.workflow.InnerSource(c.FromPort)
	}
	op, ok := i.operators[c.FromOperator]
	if !ok {
		return nil
	}
	return op.Output(c.FromPort)
}

// TargetPort resolves the input side of a connection.
func (i *Index) TargetPort(c *Connection) *Port {
	if c.ToBoundary() {
		return i.workflow.InnerSink(c.ToPort)
	}
	op, ok := i.operators[c.ToOperator]
	if !ok {
		return nil
	}
	return op.Input(c.ToPort)
}

// Location is where an operator lives in a workflow tree.
type Location struct {
	Operator *Operator
	Workflow *Workflow
	Index    *Index
}

// Locator finds operators anywhere in a workflow tree. Each level is searched
// before descending into the nested workflows of its composites, in order,
// so the first match in that order wins.
type Locator struct {
	byName map[string]Location
}

// NewLocator indexes every level of the tree rooted at w.
func NewLocator(w *Workflow) *Locator {
	l := &Locator{byName: make(map[string]Location)}
	l.add(w)
	return l
}

func (l *Locator) add(w *Workflow) {
	idx := NewIndex(w)
	for _, op := range w.Operators {
		if _, ok := l.byName[op.Name]; !ok {
			l.byName[op.Name] = Location{Operator: op, Workflow: w, Index: idx}
		}
	}
	for _, op := range w.Operators {
		if op.Kind() != Composite {
			continue
		}
		for _, inner := range op.InnerWorkflows {
			l.add(inner)
		}
	}
}

// Find returns the location of the named operator.
func (l *Locator) Find(name string) (Location, bool) {
	loc, ok := l.byName[name]
	return loc, ok
}
