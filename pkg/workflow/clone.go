package workflow

// Clone returns a deep copy of the workflow tree.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := &Workflow{
		WorkflowName:          w.WorkflowName,
		EnclosingOperatorName: w.EnclosingOperatorName,
		InnerSources:          clonePorts(w.InnerSources),
		InnerSinks:            clonePorts(w.InnerSinks),
	}
	if w.Connections != nil {
		c.Connections = make([]*Connection, len(w.Connections))
		for i, conn := range w.Connections {
			cp := *conn
			c.Connections[i] = &cp
		}
	}
	if w.Operators != nil {
		c.Operators = make([]*Operator, len(w.Operators))
		for i, op := range w.Operators {
			c.Operators[i] = op.Clone()
		}
	}
	if w.PlacementSites != nil {
		c.PlacementSites = make([]*PlacementSite, len(w.PlacementSites))
		for i, s := range w.PlacementSites {
			c.PlacementSites[i] = s.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of the operator, including nested workflows.
func (o *Operator) Clone() *Operator {
	if o == nil {
		return nil
	}
	c := *o
	c.Inputs = clonePorts(o.Inputs)
	c.Outputs = clonePorts(o.Outputs)
	if o.Parameters != nil {
		c.Parameters = make([]*Parameter, len(o.Parameters))
		for i, p := range o.Parameters {
			cp := *p
			c.Parameters[i] = &cp
		}
	}
	if o.InnerWorkflows != nil {
		c.InnerWorkflows = make([]*Workflow, len(o.InnerWorkflows))
		for i, inner := range o.InnerWorkflows {
			c.InnerWorkflows[i] = inner.Clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the placement site.
func (s *PlacementSite) Clone() *PlacementSite {
	c := &PlacementSite{SiteName: s.SiteName}
	if s.AvailablePlatforms != nil {
		c.AvailablePlatforms = make([]*PlacementPlatform, len(s.AvailablePlatforms))
		for i, p := range s.AvailablePlatforms {
			cp := &PlacementPlatform{PlatformName: p.PlatformName}
			if p.Operators != nil {
				cp.Operators = make([]*PlacementOperator, len(p.Operators))
				for j, op := range p.Operators {
					cp.Operators[j] = &PlacementOperator{Name: op.Name}
				}
			}
			c.AvailablePlatforms[i] = cp
		}
	}
	return c
}

func clonePorts(ports []*Port) []*Port {
	if ports == nil {
		return nil
	}
	out := make([]*Port, len(ports))
	for i, p := range ports {
		cp := *p
		if p.Schema != nil {
			s := *p.Schema
			if p.Schema.Size != nil {
				size := *p.Schema.Size
				s.Size = &size
			}
			if p.Schema.Attributes != nil {
				s.Attributes = make([]*Attribute, len(p.Schema.Attributes))
				for j, a := range p.Schema.Attributes {
					ca := *a
					s.Attributes[j] = &ca
				}
			}
			cp.Schema = &s
		}
		out[i] = &cp
	}
	return out
}
