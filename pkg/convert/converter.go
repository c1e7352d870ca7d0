// Package convert maps engine processes to workflow descriptions and back.
package convert

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// composites are class keys always built from the built-in container descriptions.
var composites = map[string]*engine.Description{
	engine.KeyStreamingNest:     engine.StreamingNest,
	engine.KeyEdgeProcessing:    engine.EdgeProcessing,
	engine.KeyEdgeProcessingAlt: engine.EdgeProcessing,
}

// Converter converts between engine processes and workflows.
type Converter struct {
	registry *engine.Registry
	logger   *zap.Logger
}

// NewConverter creates a converter resolving class keys through registry.
// A nil registry uses the default registry.
func NewConverter(registry *engine.Registry, logger *zap.Logger) *Converter {
	if registry == nil {
		registry = engine.NewDefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{registry: registry, logger: logger}
}

// SetLogger sets a custom logger.
func (c *Converter) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

// Registry returns the registry used to create operators.
func (c *Converter) Registry() *engine.Registry {
	return c.registry
}

// ToWorkflow describes p and every nested process. The conversion fails as a
// whole when any parameter value cannot be resolved.
func (c *Converter) ToWorkflow(p *engine.Process) (*workflow.Workflow, error) {
	enclosing := ""
	if p.Enclosing() != nil {
		enclosing = p.Enclosing().Name()
	}
	w := &workflow.Workflow{
		WorkflowName:          p.Name(),
		EnclosingOperatorName: enclosing,
		InnerSources:          make([]*workflow.Port, 0, p.InnerSources().Len()),
		InnerSinks:            make([]*workflow.Port, 0, p.InnerSinks().Len()),
		Connections:           []*workflow.Connection{},
		Operators:             make([]*workflow.Operator, 0, len(p.Operators())),
	}

	for _, src := range p.InnerSources().All() {
		w.InnerSources = append(w.InnerSources, describeOutput(src, workflow.InnerOutputPort))
		if conn := describeConnection(src, enclosing); conn != nil {
			w.Connections = append(w.Connections, conn)
		}
	}
	for _, sink := range p.InnerSinks().All() {
		w.InnerSinks = append(w.InnerSinks, describeInput(sink, workflow.InnerInputPort))
	}

	for _, op := range p.Operators() {
		desc, err := c.describeOperator(op)
		if err != nil {
			return nil, err
		}
		for _, out := range op.OutputPorts().All() {
			if conn := describeConnection(out, enclosing); conn != nil {
				w.Connections = append(w.Connections, conn)
			}
		}
		for _, sub := range op.Subprocesses() {
			inner, err := c.ToWorkflow(sub)
			if err != nil {
				return nil, err
			}
			desc.InnerWorkflows = append(desc.InnerWorkflows, inner)
		}
		w.Operators = append(w.Operators, desc)
	}

	c.logger.Debug("Converted process",
		zap.String("process", p.Name()),
		zap.String("enclosing", enclosing),
		zap.Int("operators", len(w.Operators)),
		zap.Int("connections", len(w.Connections)))
	return w, nil
}

func (c *Converter) describeOperator(op *engine.Operator) (*workflow.Operator, error) {
	desc := &workflow.Operator{
		Name:                 op.Name(),
		ClassKey:             op.ClassKey(),
		IsEnabled:            op.IsEnabled(),
		HasSubprocesses:      op.IsChain(),
		NumberOfSubprocesses: op.NumberOfSubprocesses(),
		Inputs:               make([]*workflow.Port, 0, op.InputPorts().Len()),
		Outputs:              make([]*workflow.Port, 0, op.OutputPorts().Len()),
		Parameters:           []*workflow.Parameter{},
	}
	for _, in := range op.InputPorts().All() {
		desc.Inputs = append(desc.Inputs, describeInput(in, workflow.InputPort))
	}
	for _, out := range op.OutputPorts().All() {
		desc.Outputs = append(desc.Outputs, describeOutput(out, workflow.OutputPort))
	}

	params := op.Parameters()
	for _, key := range params.Keys() {
		value, err := params.Value(key)
		if err != nil {
			return nil, sdkerrors.NewConversionError("PARAMETER_UNRESOLVED",
				fmt.Sprintf("cannot read parameter %q of operator %q", key, op.Name()), err, op.Name())
		}
		p := &workflow.Parameter{Key: key, Value: value}
		if t, ok := params.Type(key); ok {
			p.DefaultValue = t.Default
			p.TypeClass = t.Kind
			p.Range = t.Range
		}
		desc.Parameters = append(desc.Parameters, p)
	}
	return desc, nil
}

// describeConnection records the connection leaving out, if any. An endpoint
// named like the enclosing operator is the inner boundary.
func describeConnection(out *engine.OutputPort, enclosing string) *workflow.Connection {
	dest := out.Destination()
	if dest == nil {
		return nil
	}
	conn := &workflow.Connection{
		FromOperator: out.Owner().Name(),
		FromPort:     out.Name(),
		FromPortType: workflow.OutputPort,
		ToOperator:   dest.Owner().Name(),
		ToPort:       dest.Name(),
		ToPortType:   workflow.InputPort,
	}
	if enclosing != "" && conn.FromOperator == enclosing {
		conn.FromPortType = workflow.InnerOutputPort
	}
	if enclosing != "" && conn.ToOperator == enclosing {
		conn.ToPortType = workflow.InnerInputPort
	}
	return conn
}

// FromWorkflow rebuilds subprocess index of chain from w. Existing content of
// the subprocess is discarded. Nested workflows are built before their
// operator joins the parent process.
func (c *Converter) FromWorkflow(w *workflow.Workflow, chain *engine.Operator, index int) (*engine.Process, error) {
	if chain == nil {
		return nil, sdkerrors.NewModelingError("NO_CONTAINER", "no container to build workflow "+w.WorkflowName+" into")
	}
	if chain.Name() != w.EnclosingOperatorName {
		return nil, sdkerrors.NewModelingError("ENCLOSING_MISMATCH",
			fmt.Sprintf("workflow %q belongs to %q, not to %q", w.WorkflowName, w.EnclosingOperatorName, chain.Name()),
			chain.Name(), w.EnclosingOperatorName)
	}
	if index < 0 || index >= chain.NumberOfSubprocesses() {
		return nil, sdkerrors.NewModelingError("SUBPROCESS_INDEX",
			fmt.Sprintf("subprocess index %d out of range, %q has %d", index, chain.Name(), chain.NumberOfSubprocesses()),
			chain.Name())
	}

	proc := chain.Subprocess(index)
	proc.Clear()
	if w.WorkflowName != "" {
		proc.SetName(w.WorkflowName)
	}
	for _, port := range w.InnerSources {
		if proc.InnerSources().ByName(port.Name) == nil {
			proc.InnerSources().Add(port.Name, port.ObjectClass)
		}
	}
	for _, port := range w.InnerSinks {
		if proc.InnerSinks().ByName(port.Name) == nil {
			proc.InnerSinks().Add(port.Name, port.ObjectClass)
		}
	}

	for _, desc := range w.Operators {
		op, err := c.buildOperator(desc)
		if err != nil {
			return nil, err
		}
		if err := proc.AddOperator(op); err != nil {
			return nil, sdkerrors.NewError(sdkerrors.KindModeling, "DUPLICATE_OPERATOR", "cannot add operator", err, desc.Name)
		}
	}

	for _, conn := range w.Connections {
		if err := connect(proc, chain, conn); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("Built process",
		zap.String("process", proc.Name()),
		zap.String("enclosing", chain.Name()),
		zap.Int("operators", len(w.Operators)))
	return proc, nil
}

func (c *Converter) buildOperator(desc *workflow.Operator) (*engine.Operator, error) {
	def, ok := composites[desc.ClassKey]
	if !ok {
		def, ok = c.registry.Lookup(desc.ClassKey)
	}
	if !ok {
		return nil, sdkerrors.NewConversionError("UNKNOWN_CLASS",
			fmt.Sprintf("no operator registered for class key %q", desc.ClassKey), nil, desc.Name)
	}

	op := engine.New(def, desc.Name)
	op.SetEnabled(desc.IsEnabled)
	for _, p := range desc.Parameters {
		op.Parameters().Set(p.Key, p.Value)
	}
	for i, inner := range desc.InnerWorkflows {
		if _, err := c.FromWorkflow(inner, op, i); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func connect(proc *engine.Process, chain *engine.Operator, conn *workflow.Connection) error {
	var from *engine.OutputPort
	if conn.FromBoundary() {
		from = proc.InnerSources().ByName(conn.FromPort)
	} else if op := proc.OperatorByName(conn.FromOperator); op != nil {
		from = op.OutputPorts().ByName(conn.FromPort)
	}
	if from == nil {
		return sdkerrors.NewModelingError("UNRESOLVED_PORT",
			"cannot resolve source of connection "+conn.String(), conn.FromOperator+"."+conn.FromPort)
	}

	var to *engine.InputPort
	if conn.ToBoundary() {
		to = proc.InnerSinks().ByName(conn.ToPort)
	} else if op := proc.OperatorByName(conn.ToOperator); op != nil {
		to = op.InputPorts().ByName(conn.ToPort)
	}
	if to == nil {
		return sdkerrors.NewModelingError("UNRESOLVED_PORT",
			"cannot resolve target of connection "+conn.String(), conn.ToOperator+"."+conn.ToPort)
	}

	if err := from.ConnectTo(to); err != nil {
		return sdkerrors.NewError(sdkerrors.KindModeling, "CONNECT_FAILED",
			fmt.Sprintf("cannot replay connection %s in %s", conn, chain.Name()), err, conn.FromOperator, conn.ToOperator)
	}
	return nil
}
