package workflow

// RenameOperators appends suffix to every operator name in the tree and
// rewrites connections and placement references to match. Nested workflows
// take their renamed parent as enclosing operator; the root keeps its own.
func (w *Workflow) RenameOperators(suffix string) {
	if suffix == "" {
		return
	}
	w.renameLevel(suffix, w.EnclosingOperatorName)
	for _, site := range w.PlacementSites {
		for _, platform := range site.AvailablePlatforms {
			for _, op := range platform.Operators {
				op.Name += suffix
			}
		}
	}
}

func (w *Workflow) renameLevel(suffix, enclosing string) {
	previous := w.EnclosingOperatorName
	w.EnclosingOperatorName = enclosing
	for _, c := range w.Connections {
		if c.FromBoundary() && c.FromOperator == previous {
			c.FromOperator = enclosing
		}
		if c.ToBoundary() && c.ToOperator == previous {
			c.ToOperator = enclosing
		}
	}
	for _, op := range w.Operators {
		oldName := op.Name
		op.Name = oldName + suffix
		for _, c := range w.Connections {
			if c.FromOperator == oldName {
				c.FromOperator = op.Name
			}
			if c.ToOperator == oldName {
				c.ToOperator = op.Name
			}
		}
		for _, inner := range op.InnerWorkflows {
			inner.renameLevel(suffix, op.Name)
		}
	}
}

// PlacedOperators returns every placed operator name in decision order.
func (w *Workflow) PlacedOperators() []string {
	var names []string
	for _, site := range w.PlacementSites {
		for _, platform := range site.AvailablePlatforms {
			for _, op := range platform.Operators {
				names = append(names, op.Name)
			}
		}
	}
	return names
}
