package workflow

import (
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
)

// Validate checks that every connection of every level resolves to an existing
// port on an existing operator or on the inner boundary, and that operator
// names are unique per level.
func (w *Workflow) Validate() error {
	var err error
	w.Walk(func(level *Workflow) bool {
		if err != nil {
			return false
		}
		err = level.validateLevel()
		return err == nil
	})
	return err
}

func (w *Workflow) validateLevel() error {
	seen := make(map[string]struct{}, len(w.Operators))
	for _, op := range w.Operators {
		if _, dup := seen[op.Name]; dup {
			return sdkerrors.NewModelingError("DUPLICATE_OPERATOR", "operator name is not unique in workflow "+w.WorkflowName, op.Name)
		}
		seen[op.Name] = struct{}{}
	}

	idx := NewIndex(w)
	for _, c := range w.Connections {
		if idx.SourcePort(c) == nil {
			return sdkerrors.NewModelingError("DANGLING_CONNECTION", "connection source does not resolve: "+c.String(), c.FromOperator+"."+c.FromPort)
		}
		if idx.TargetPort(c) == nil {
			return sdkerrors.NewModelingError("DANGLING_CONNECTION", "connection target does not resolve: "+c.String(), c.ToOperator+"."+c.ToPort)
		}
	}
	return nil
}
