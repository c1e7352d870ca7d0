package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

func op(name, classKey string, in, out []string, class string) *workflow.Operator {
	o := &workflow.Operator{Name: name, ClassKey: classKey, IsEnabled: true}
	for _, n := range in {
		o.Inputs = append(o.Inputs, &workflow.Port{Name: n, PortType: workflow.InputPort, ObjectClass: class})
	}
	for _, n := range out {
		o.Outputs = append(o.Outputs, &workflow.Port{Name: n, PortType: workflow.OutputPort, ObjectClass: class})
	}
	return o
}

func retrieve(name, path string) *workflow.Operator {
	r := op(name, engine.KeyRetrieve, nil, []string{"output"}, workflow.ClassConnection)
	r.Parameters = []*workflow.Parameter{{Key: engine.ParamRepositoryEntry, Value: path}}
	return r
}

func link(from, fromPort, to, toPort string) *workflow.Connection {
	return &workflow.Connection{
		FromOperator: from, FromPort: fromPort, FromPortType: workflow.OutputPort,
		ToOperator: to, ToPort: toPort, ToPortType: workflow.InputPort,
	}
}

func site(name string, platforms ...*workflow.PlacementPlatform) *workflow.PlacementSite {
	return &workflow.PlacementSite{SiteName: name, AvailablePlatforms: platforms}
}

func platform(name string, ops ...string) *workflow.PlacementPlatform {
	p := &workflow.PlacementPlatform{PlatformName: name, Operators: []*workflow.PlacementOperator{}}
	for _, o := range ops {
		p.Operators = append(p.Operators, &workflow.PlacementOperator{Name: o})
	}
	return p
}

// readFilterWrite is R -> F -> W with streaming ports.
func readFilterWrite() *workflow.Workflow {
	return &workflow.Workflow{
		WorkflowName:          engine.LogicalWorkflow,
		EnclosingOperatorName: "Optimization",
		Operators: []*workflow.Operator{
			op("R", "kafka_source", nil, []string{"output"}, workflow.ClassStreamData),
			op("F", "filter", []string{"input"}, []string{"output"}, workflow.ClassStreamData),
			op("W", "kafka_sink", []string{"input"}, nil, workflow.ClassStreamData),
		},
		Connections: []*workflow.Connection{
			link("R", "output", "F", "input"),
			link("F", "output", "W", "input"),
		},
		PlacementSites: []*workflow.PlacementSite{
			site("siteA", platform("flink", "R", "F")),
			site("siteB", platform("flink", "W"), platform("spark")),
		},
	}
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "StreamingNest (siteA_flink)_run1", ContainerName("siteA", "flink", "run1"))
	assert.Equal(t, "EdgeProcessingNest (edge1_rtsa)_run1", ContainerName("edge1", "rtsa", "run1"))
	assert.Equal(t, "edgeprocessingnest__edge1_rtsa__run1", ProjectName("EdgeProcessingNest (edge1_rtsa)_run1"))
	assert.Equal(t, "a_b_c__d_", ProjectName("A.B:C[]D]"))
}

func TestSplitScenario(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	input := readFilterWrite()
	before := input.Clone()

	result, err := Split(input, "run1", WithLogger(logger), WithWorkflowID("wf-1"))
	require.NoError(t, err)
	assert.Equal(t, before, input, "input must not be modified")

	out := result.Workflow
	assert.Empty(t, out.Connections)
	require.Len(t, out.Operators, 2, "empty platform yields no container")

	a := result.Container("StreamingNest (siteA_flink)_run1")
	require.NotNil(t, a)
	assert.Equal(t, engine.KeyStreamingNest, a.ClassKey)
	assert.Equal(t, workflow.Composite, a.Kind())
	assert.Equal(t, "flink", a.PlatformName)
	jobName, _ := a.ParameterValue(engine.ParamJobName)
	assert.Equal(t, a.Name, jobName)
	workflowID, _ := a.ParameterValue(engine.ParamWorkflowID)
	assert.Equal(t, "wf-1", workflowID)

	require.Len(t, a.InnerWorkflows, 1)
	inner := a.InnerWorkflows[0]
	assert.Equal(t, engine.OptimizedWorkflow, inner.WorkflowName)
	assert.Equal(t, a.Name, inner.EnclosingOperatorName)
	assert.Len(t, inner.Operators, 2)
	require.Len(t, inner.Connections, 1)
	assert.Equal(t, "R.output -> F.input", inner.Connections[0].String())
	require.NoError(t, inner.Validate())

	require.Len(t, result.Splits, 1)
	split := result.Splits[0]
	assert.Equal(t, "F.output -> W.input", split.Connection.String())
	assert.Equal(t, a.Name, split.FromContainer)
	assert.Equal(t, "StreamingNest (siteB_flink)_run1", split.ToContainer)
	assert.True(t, split.Streaming)
	assert.False(t, split.BetweenEdgeContainers)
	assert.False(t, split.FromSourceChain)

	for _, s := range result.Splits {
		assert.NotNil(t, out.Operator(s.FromContainer))
		assert.NotNil(t, out.Operator(s.ToContainer))
	}
}

func TestSplitIsIdempotent(t *testing.T) {
	input := readFilterWrite()
	first, err := Split(input, "run1")
	require.NoError(t, err)
	second, err := Split(input, "run1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func dedupWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		WorkflowName:          engine.LogicalWorkflow,
		EnclosingOperatorName: "Optimization",
		Operators: []*workflow.Operator{
			retrieve("Ret1", "/data/x"),
			retrieve("Ret2", "/data/x"),
			op("C1", "kafka_source", []string{"connection"}, []string{"output"}, workflow.ClassStreamData),
			op("C2", "kafka_sink", []string{"connection"}, nil, workflow.ClassStreamData),
		},
		Connections: []*workflow.Connection{
			link("Ret1", "output", "C1", "connection"),
			link("Ret2", "output", "C2", "connection"),
		},
		PlacementSites: []*workflow.PlacementSite{
			site("cloud", platform("flink", "Ret1", "Ret2", "C1", "C2")),
		},
	}
}

func TestSplitDeduplicatesSharedSources(t *testing.T) {
	result, err := Split(dedupWorkflow(), "run1")
	require.NoError(t, err)
	require.Len(t, result.Workflow.Operators, 1)
	assert.Empty(t, result.Splits)

	inner := result.Workflow.Operators[0].InnerWorkflows[0]
	require.NoError(t, inner.Validate())

	var retrieves, multiplies []*workflow.Operator
	for _, o := range inner.Operators {
		switch o.ClassKey {
		case engine.KeyRetrieve:
			retrieves = append(retrieves, o)
		case engine.KeyMultiply:
			multiplies = append(multiplies, o)
		}
	}
	require.Len(t, retrieves, 1)
	assert.Equal(t, "Ret1", retrieves[0].Name)
	require.Len(t, multiplies, 1)
	fan := multiplies[0]
	assert.Equal(t, "multiply Ret1", fan.Name)
	require.Len(t, fan.Outputs, 2)
	assert.Equal(t, "output 1", fan.Outputs[0].Name)
	assert.Equal(t, "output 2", fan.Outputs[1].Name)
	assert.Equal(t, workflow.ClassConnection, fan.Inputs[0].ObjectClass)

	var edges []string
	for _, c := range inner.Connections {
		edges = append(edges, c.String())
	}
	assert.ElementsMatch(t, []string{
		"Ret1.output -> multiply Ret1.input",
		"multiply Ret1.output 1 -> C1.connection",
		"multiply Ret1.output 2 -> C2.connection",
	}, edges)
}

func TestSplitDeduplicatesPerConsumedPort(t *testing.T) {
	w := &workflow.Workflow{
		WorkflowName:          engine.LogicalWorkflow,
		EnclosingOperatorName: "Optimization",
		Operators: []*workflow.Operator{
			retrieve("Ret1", "/data/x"),
			retrieve("Ret2", "/data/x"),
			retrieve("Ret3", "/data/x"),
			op("J", "join", []string{"left", "right"}, []string{"output"}, workflow.ClassConnection),
			op("C2", "kafka_sink", []string{"connection"}, nil, workflow.ClassStreamData),
		},
		Connections: []*workflow.Connection{
			link("Ret1", "output", "J", "left"),
			link("Ret2", "output", "J", "right"),
			link("Ret3", "output", "C2", "connection"),
		},
		PlacementSites: []*workflow.PlacementSite{
			site("cloud", platform("flink", "Ret1", "Ret2", "Ret3", "J", "C2")),
		},
	}

	result, err := Split(w, "run1")
	require.NoError(t, err)
	inner := result.Workflow.Operators[0].InnerWorkflows[0]
	require.NoError(t, inner.Validate())

	fan := inner.Operator("multiply Ret1")
	require.NotNil(t, fan)
	assert.Len(t, fan.Outputs, 3)
	for _, port := range []string{"J.left", "J.right", "C2.connection"} {
		var feeds []string
		for _, c := range inner.Connections {
			if c.ToOperator+"."+c.ToPort == port {
				feeds = append(feeds, c.FromOperator)
			}
		}
		assert.Equal(t, []string{"multiply Ret1"}, feeds, port)
	}
	assert.Nil(t, inner.Operator("Ret2"))
	assert.Nil(t, inner.Operator("Ret3"))
}

func TestSplitMultiplyNameIsUnique(t *testing.T) {
	w := dedupWorkflow()
	w.Operators = append(w.Operators, op("multiply Ret1", "log", nil, nil, workflow.ClassStreamData))
	w.PlacementSites[0].AvailablePlatforms[0].Operators = append(w.PlacementSites[0].AvailablePlatforms[0].Operators,
		&workflow.PlacementOperator{Name: "multiply Ret1"})

	result, err := Split(w, "run1")
	require.NoError(t, err)
	inner := result.Workflow.Operators[0].InnerWorkflows[0]
	require.NoError(t, inner.Validate())

	user := inner.Operator("multiply Ret1")
	require.NotNil(t, user)
	assert.Equal(t, "log", user.ClassKey)
	fan := inner.Operator("multiply Ret1 (2)")
	require.NotNil(t, fan)
	assert.Equal(t, engine.KeyMultiply, fan.ClassKey)
	assert.Len(t, inner.OutgoingConnections("multiply Ret1 (2)"), 2)
}

func TestSplitSingleConsumerKeepsSource(t *testing.T) {
	w := dedupWorkflow()
	w.Operators[1].Parameters[0].Value = "/data/y"

	result, err := Split(w, "run1")
	require.NoError(t, err)
	inner := result.Workflow.Operators[0].InnerWorkflows[0]
	assert.Len(t, inner.Operators, 4)
	assert.Len(t, inner.Connections, 2)
	for _, o := range inner.Operators {
		assert.NotEqual(t, engine.KeyMultiply, o.ClassKey)
	}
}

func TestSplitKeepsDuplicateWithSplitConnections(t *testing.T) {
	w := dedupWorkflow()
	w.Operators = append(w.Operators, op("Remote", "kafka_sink", []string{"connection"}, nil, workflow.ClassStreamData))
	w.Connections = append(w.Connections, link("Ret2", "output", "Remote", "connection"))
	w.PlacementSites = append(w.PlacementSites, site("edge", platform("rtsa", "Remote")))

	result, err := Split(w, "run1")
	require.NoError(t, err)
	require.Len(t, result.Splits, 1)
	assert.True(t, result.Splits[0].FromSourceChain)
	assert.False(t, result.Splits[0].Streaming)
	assert.False(t, result.Splits[0].BetweenEdgeContainers)

	inner := result.Workflow.Operators[0].InnerWorkflows[0]
	assert.NotNil(t, inner.Operator("Ret2"))
	assert.NotNil(t, inner.Operator("multiply Ret1"))
	assert.Empty(t, inner.OutgoingConnections("Ret2"))

	edge := result.Container("EdgeProcessingNest (edge_rtsa)_run1")
	require.NotNil(t, edge)
	assert.Equal(t, engine.KeyEdgeProcessing, edge.ClassKey)
	name, _ := edge.ParameterValue("name")
	assert.Equal(t, "edgeprocessingnest__edge_rtsa__run1", name)
	sleep, _ := edge.ParameterValue("sleep_time")
	assert.Equal(t, "1000", sleep)
}

func TestSplitBetweenEdgeContainers(t *testing.T) {
	w := readFilterWrite()
	w.PlacementSites = []*workflow.PlacementSite{
		site("edge1", platform("rtsa", "R", "F")),
		site("edge2", platform("rtsa", "W")),
	}
	w.Operators[1].Outputs[0].ObjectClass = workflow.ClassExampleSet

	result, err := Split(w, "run1")
	require.NoError(t, err)
	require.Len(t, result.Splits, 1)
	assert.True(t, result.Splits[0].BetweenEdgeContainers)
	assert.False(t, result.Splits[0].Streaming)
}

func TestSplitNestedOperator(t *testing.T) {
	w := readFilterWrite()
	loop := op("Loop", engine.KeySubprocess, []string{"in 1"}, []string{"out 1"}, workflow.ClassStreamData)
	loop.HasSubprocesses = true
	loop.NumberOfSubprocesses = 1
	loop.InnerWorkflows = []*workflow.Workflow{{
		WorkflowName:          "Subprocess",
		EnclosingOperatorName: "Loop",
		Operators: []*workflow.Operator{
			op("Deep", "filter", []string{"input"}, []string{"output"}, workflow.ClassStreamData),
			op("Deeper", "filter", []string{"input"}, []string{"output"}, workflow.ClassStreamData),
		},
		Connections: []*workflow.Connection{link("Deep", "output", "Deeper", "input")},
	}}
	w.Operators = append(w.Operators, loop)
	w.PlacementSites = append(w.PlacementSites, site("siteC", platform("flink", "Deep")), site("siteD", platform("flink", "Deeper")))

	result, err := Split(w, "run1")
	require.NoError(t, err)
	require.Len(t, result.Splits, 2)
	assert.Equal(t, "Deep.output -> Deeper.input", result.Splits[1].Connection.String())
	assert.Equal(t, "StreamingNest (siteD_flink)_run1", result.Splits[1].ToContainer)
}

func TestSplitOperatorSuffix(t *testing.T) {
	result, err := Split(readFilterWrite(), "run1", WithOperatorSuffix(DefaultOperatorSuffix))
	require.NoError(t, err)
	inner := result.Container("StreamingNest (siteA_flink)_run1").InnerWorkflows[0]
	assert.NotNil(t, inner.Operator("R (optimized)"))
	assert.Equal(t, "R (optimized).output -> F (optimized).input", inner.Connections[0].String())
	assert.Equal(t, "W (optimized)", result.Splits[0].Connection.ToOperator)
}

func TestSplitErrors(t *testing.T) {
	t.Run("placed operator missing", func(t *testing.T) {
		w := readFilterWrite()
		w.PlacementSites[1].AvailablePlatforms[0].Operators = append(w.PlacementSites[1].AvailablePlatforms[0].Operators,
			&workflow.PlacementOperator{Name: "Ghost"})
		_, err := Split(w, "run1")
		require.Error(t, err)
		assert.True(t, sdkerrors.IsModeling(err))
		assert.Contains(t, err.Error(), "Ghost")
	})

	t.Run("destination without placement", func(t *testing.T) {
		w := readFilterWrite()
		w.PlacementSites = w.PlacementSites[:1]
		_, err := Split(w, "run1")
		require.Error(t, err)
		assert.True(t, sdkerrors.IsModeling(err))
		assert.Contains(t, err.Error(), "W")
	})
}
