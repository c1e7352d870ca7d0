package workflow

import (
	"encoding/json"
	"testing"

	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func port(name string, t PortType, class string) *Port {
	return &Port{Name: name, PortType: t, ObjectClass: class}
}

func leaf(name, classKey string, in, out []string) *Operator {
	op := &Operator{Name: name, ClassKey: classKey, IsEnabled: true}
	for _, n := range in {
		op.Inputs = append(op.Inputs, port(n, InputPort, ClassExampleSet))
	}
	for _, n := range out {
		op.Outputs = append(op.Outputs, port(n, OutputPort, ClassExampleSet))
	}
	return op
}

func connect(from, fromPort, to, toPort string) *Connection {
	return &Connection{FromOperator: from, FromPort: fromPort, FromPortType: OutputPort, ToOperator: to, ToPort: toPort, ToPortType: InputPort}
}

func nestedWorkflow() *Workflow {
	inner := &Workflow{
		WorkflowName:          "Subprocess",
		EnclosingOperatorName: "Loop",
		InnerSources:          []*Port{port("in 1", InnerOutputPort, ClassExampleSet)},
		InnerSinks:            []*Port{port("out 1", InnerInputPort, ClassExampleSet)},
		Operators: []*Operator{
			leaf("Normalize", "normalize", []string{"example set input"}, []string{"example set output"}),
		},
		Connections: []*Connection{
			{FromOperator: "Loop", FromPort: "in 1", FromPortType: InnerOutputPort, ToOperator: "Normalize", ToPort: "example set input", ToPortType: InputPort},
			{FromOperator: "Normalize", FromPort: "example set output", FromPortType: OutputPort, ToOperator: "Loop", ToPort: "out 1", ToPortType: InnerInputPort},
		},
	}
	loop := leaf("Loop", "subprocess", []string{"in 1"}, []string{"out 1"})
	loop.HasSubprocesses = true
	loop.NumberOfSubprocesses = 1
	loop.InnerWorkflows = []*Workflow{inner}
	loop.Parameters = []*Parameter{{Key: "time_zone", Value: "UTC", Range: "SYSTEM,UTC,Europe/Athens"}}

	read := leaf("Read", "read_csv", nil, []string{"output"})
	read.Parameters = []*Parameter{{Key: "encoding", Value: "UTF-8", Range: "SYSTEM,UTF-8"}, {Key: "csv_file", Value: "/data/a.csv"}}

	return &Workflow{
		WorkflowName:          "Logical",
		EnclosingOperatorName: "Optimizer",
		Operators: []*Operator{
			read,
			loop,
			leaf("Write", "write_csv", []string{"input"}, nil),
		},
		Connections: []*Connection{
			connect("Read", "output", "Loop", "in 1"),
			connect("Loop", "out 1", "Write", "input"),
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid nested workflow", func(t *testing.T) {
		require.NoError(t, nestedWorkflow().Validate())
	})

	t.Run("dangling target port", func(t *testing.T) {
		w := nestedWorkflow()
		w.Connections = append(w.Connections, connect("Read", "output", "Write", "missing"))
		err := w.Validate()
		require.Error(t, err)
		assert.True(t, sdkerrors.IsModeling(err))
		assert.Contains(t, err.Error(), "Write.missing")
	})

	t.Run("dangling operator in nested level", func(t *testing.T) {
		w := nestedWorkflow()
		inner := w.Operators[1].InnerWorkflows[0]
		inner.Connections = append(inner.Connections, connect("Ghost", "out", "Normalize", "example set input"))
		err := w.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Ghost.out")
	})

	t.Run("duplicate operator names", func(t *testing.T) {
		w := nestedWorkflow()
		w.Operators = append(w.Operators, leaf("Read", "read_csv", nil, []string{"output"}))
		err := w.Validate()
		require.Error(t, err)
		assert.True(t, sdkerrors.IsModeling(err))
	})
}

func TestLocatorSearchesLevelsInOrder(t *testing.T) {
	w := nestedWorkflow()
	loc := NewLocator(w)

	got, ok := loc.Find("Normalize")
	require.True(t, ok)
	assert.Equal(t, "Subprocess", got.Workflow.WorkflowName)
	assert.Equal(t, "Normalize", got.Operator.Name)

	got, ok = loc.Find("Read")
	require.True(t, ok)
	assert.Equal(t, "Logical", got.Workflow.WorkflowName)

	_, ok = loc.Find("Nope")
	assert.False(t, ok)
}

func TestLocatorPrefersOuterLevel(t *testing.T) {
	w := nestedWorkflow()
	inner := w.Operators[1].InnerWorkflows[0]
	inner.Operators = append(inner.Operators, leaf("Write", "write_csv", []string{"input"}, nil))

	got, ok := NewLocator(w).Find("Write")
	require.True(t, ok)
	assert.Same(t, w, got.Workflow)
}

func TestPinParameterRanges(t *testing.T) {
	w := nestedWorkflow()
	w.PinParameterRanges()

	enc := w.Operators[0].Parameter("encoding")
	assert.Equal(t, "UTF-8", enc.Range)
	tz := w.Operators[1].Parameter("time_zone")
	assert.Equal(t, "UTC", tz.Range)
	file := w.Operators[0].Parameter("csv_file")
	assert.Empty(t, file.Range)
}

func TestCloneIsDeep(t *testing.T) {
	w := nestedWorkflow()
	size := 10
	w.Operators[0].Outputs[0].Schema = &Schema{Size: &size, Attributes: []*Attribute{{Name: "a", Type: "real"}}}
	c := w.Clone()

	c.Operators[0].Name = "Changed"
	c.Operators[1].InnerWorkflows[0].Operators[0].Name = "Changed"
	*c.Operators[0].Outputs[0].Schema.Size = 99
	c.Connections[0].ToPort = "x"

	assert.Equal(t, "Read", w.Operators[0].Name)
	assert.Equal(t, "Normalize", w.Operators[1].InnerWorkflows[0].Operators[0].Name)
	assert.Equal(t, 10, *w.Operators[0].Outputs[0].Schema.Size)
	assert.Equal(t, "in 1", w.Connections[0].ToPort)
}

func TestRenameOperators(t *testing.T) {
	w := nestedWorkflow()
	w.PlacementSites = []*PlacementSite{{
		SiteName: "site1",
		AvailablePlatforms: []*PlacementPlatform{{
			PlatformName: "flink",
			Operators:    []*PlacementOperator{{Name: "Read"}, {Name: "Normalize"}},
		}},
	}}

	w.RenameOperators(" (optimized)")

	assert.Equal(t, "Optimizer", w.EnclosingOperatorName)
	assert.Equal(t, "Read (optimized)", w.Operators[0].Name)
	assert.Equal(t, "Read (optimized)", w.Connections[0].FromOperator)
	assert.Equal(t, "Loop (optimized)", w.Connections[0].ToOperator)

	inner := w.Operators[1].InnerWorkflows[0]
	assert.Equal(t, "Loop (optimized)", inner.EnclosingOperatorName)
	assert.Equal(t, "Loop (optimized)", inner.Connections[0].FromOperator)
	assert.Equal(t, "Normalize (optimized)", inner.Connections[0].ToOperator)

	assert.Equal(t, []string{"Read (optimized)", "Normalize (optimized)"}, w.PlacedOperators())
	require.NoError(t, w.Validate())
}

func TestOperatorKind(t *testing.T) {
	w := nestedWorkflow()
	assert.Equal(t, Leaf, w.Operators[0].Kind())
	assert.Equal(t, Composite, w.Operators[1].Kind())
}

func TestJSONKeys(t *testing.T) {
	data, err := nestedWorkflow().ToBytes()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"workflowName", "enclosingOperatorName", "innerSourcesPortsAndSchemas", "innerSinksPortsAndSchemas", "operatorConnections", "operators"} {
		assert.Contains(t, raw, key)
	}

	back, err := FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, nestedWorkflow(), back)
}
