// Package placement splits a workflow into one container per (site, platform)
// of a placement decision.
package placement

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// DefaultOperatorSuffix is appended to operator names by WithOperatorSuffix
// when the optimized copy must not clash with the logical workflow.
const DefaultOperatorSuffix = " (optimized)"

// Result is the outcome of a split.
type Result struct {
	// Workflow holds only the generated containers and no connections
	Workflow *workflow.Workflow

	// Splits are the connections whose endpoints ended up in different containers
	Splits []*workflow.SplitConnection
}

// Container returns the container operator with the given name.
func (r *Result) Container(name string) *workflow.Operator {
	return r.Workflow.Operator(name)
}

// Splitter turns a placed workflow into containers.
type Splitter struct {
	logger        *zap.Logger
	suffix        string
	workflowID    string
	sharedSources map[string]string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Splitter) { s.logger = logger }
}

// WithOperatorSuffix renames every operator before splitting.
func WithOperatorSuffix(suffix string) Option {
	return func(s *Splitter) { s.suffix = suffix }
}

// WithWorkflowID sets the optimization workflow id recorded on streaming nests.
func WithWorkflowID(id string) Option {
	return func(s *Splitter) { s.workflowID = id }
}

// WithSharedSource marks operators of classKey as shared sources identified by
// the value of pathParameter.
func WithSharedSource(classKey, pathParameter string) Option {
	return func(s *Splitter) { s.sharedSources[classKey] = pathParameter }
}

// NewSplitter creates a splitter. Retrieve operators are shared sources by default.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		logger:        zap.NewNop(),
		sharedSources: map[string]string{engine.KeyRetrieve: engine.ParamRepositoryEntry},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split splits w along its placement sites with a splitter built from opts.
func Split(w *workflow.Workflow, runID string, opts ...Option) (*Result, error) {
	return NewSplitter(opts...).Split(w, runID)
}

// target is where a placed operator ends up.
type target struct {
	container string
	edge      bool
}

// Split builds one container per (site, platform) with placed operators.
// The input workflow is not modified.
func (s *Splitter) Split(w *workflow.Workflow, runID string) (*Result, error) {
	w = w.Clone()
	w.RenameOperators(s.suffix)

	locator := workflow.NewLocator(w)
	placements := make(map[string]target)
	for _, site := range w.PlacementSites {
		for _, platform := range site.AvailablePlatforms {
			t := target{container: ContainerName(site.SiteName, platform.PlatformName, runID), edge: IsEdgePlatform(platform.PlatformName)}
			for _, op := range platform.Operators {
				if _, ok := placements[op.Name]; !ok {
					placements[op.Name] = t
				}
			}
		}
	}

	result := &Result{
		Workflow: &workflow.Workflow{
			WorkflowName:          w.WorkflowName,
			EnclosingOperatorName: w.EnclosingOperatorName,
			InnerSources:          w.InnerSources,
			InnerSinks:            w.InnerSinks,
			Connections:           []*workflow.Connection{},
			Operators:             []*workflow.Operator{},
		},
		Splits: []*workflow.SplitConnection{},
	}

	for _, site := range w.PlacementSites {
		for _, platform := range site.AvailablePlatforms {
			if len(platform.Operators) == 0 {
				continue
			}
			b := newContainerBuilder(s, site.SiteName, platform, runID, locator, placements)
			for _, op := range platform.Operators {
				if err := b.place(op.Name); err != nil {
					return nil, err
				}
			}
			b.deduplicate()

			container := b.build()
			result.Workflow.Operators = append(result.Workflow.Operators, container)
			result.Splits = append(result.Splits, b.splits...)

			s.logger.Info("Built container",
				zap.String("container", container.Name),
				zap.String("site", site.SiteName),
				zap.String("platform", platform.PlatformName),
				zap.Int("operators", len(b.operators)),
				zap.Int("splits", len(b.splits)))
		}
	}
	return result, nil
}

// sourceGroup collects the shared sources of one container reading the same path.
type sourceGroup struct {
	path      string
	retained  *workflow.Operator
	sources   map[string]struct{}
	consumers []*workflow.Connection
}

// containerBuilder accumulates the operators and connections of one container.
type containerBuilder struct {
	splitter   *Splitter
	name       string
	platform   string
	edge       bool
	locator    *workflow.Locator
	placements map[string]target
	placed     map[string]struct{}

	operators   []*workflow.Operator
	connections []*workflow.Connection
	splits      []*workflow.SplitConnection
	groups      map[string]*sourceGroup
	groupOrder  []string
}

func newContainerBuilder(s *Splitter, site string, platform *workflow.PlacementPlatform, runID string,
	locator *workflow.Locator, placements map[string]target) *containerBuilder {
	b := &containerBuilder{
		splitter:    s,
		name:        ContainerName(site, platform.PlatformName, runID),
		platform:    platform.PlatformName,
		edge:        IsEdgePlatform(platform.PlatformName),
		locator:     locator,
		placements:  placements,
		placed:      make(map[string]struct{}, len(platform.Operators)),
		connections: []*workflow.Connection{},
		groups:      make(map[string]*sourceGroup),
	}
	for _, op := range platform.Operators {
		b.placed[op.Name] = struct{}{}
	}
	return b
}

// place adds the named operator and classifies its outgoing connections.
func (b *containerBuilder) place(name string) error {
	loc, ok := b.locator.Find(name)
	if !ok {
		return sdkerrors.NewModelingError("OPERATOR_NOT_FOUND", "placed operator is not part of the workflow", name)
	}
	op := loc.Operator
	b.operators = append(b.operators, op)

	var inner []*workflow.Connection
	for _, c := range loc.Workflow.OutgoingConnections(name) {
		if c.FromBoundary() {
			continue
		}
		if _, same := b.placed[c.ToOperator]; same {
			inner = append(inner, c)
			continue
		}
		dest, ok := b.placements[c.ToOperator]
		if !ok {
			return sdkerrors.NewModelingError("UNPLACED_DESTINATION",
				"connection "+c.String()+" leads to an operator without placement", c.ToOperator)
		}
		b.splits = append(b.splits, &workflow.SplitConnection{
			Connection:            c,
			FromContainer:         b.name,
			ToContainer:           dest.container,
			Streaming:             loc.Index.SourcePort(c).IsStreaming(),
			BetweenEdgeContainers: b.edge && dest.edge,
			FromSourceChain:       b.isSourceChain(op),
		})
	}
	b.connections = append(b.connections, inner...)

	if path, ok := b.sharedPath(op); ok {
		b.track(op, path, inner)
	}
	return nil
}

func (b *containerBuilder) sharedPath(op *workflow.Operator) (string, bool) {
	param, ok := b.splitter.sharedSources[op.ClassKey]
	if !ok {
		return "", false
	}
	return op.ParameterValue(param)
}

func (b *containerBuilder) isSourceChain(op *workflow.Operator) bool {
	if op.ClassKey == engine.KeyMultiply {
		return true
	}
	_, ok := b.splitter.sharedSources[op.ClassKey]
	return ok
}

func (b *containerBuilder) track(op *workflow.Operator, path string, inner []*workflow.Connection) {
	g, ok := b.groups[path]
	if !ok {
		g = &sourceGroup{path: path, retained: op, sources: make(map[string]struct{})}
		b.groups[path] = g
		b.groupOrder = append(b.groupOrder, path)
	}
	g.sources[op.Name] = struct{}{}
	for _, c := range inner {
		known := false
		for _, existing := range g.consumers {
			if existing.ToOperator == c.ToOperator && existing.ToPort == c.ToPort {
				known = true
				break
			}
		}
		if !known {
			g.consumers = append(g.consumers, c)
		}
	}
}

// deduplicate feeds every group with more than one distinct consumer port
// from its retained source through a multiply operator.
func (b *containerBuilder) deduplicate() {
	for _, path := range b.groupOrder {
		g := b.groups[path]
		if len(g.consumers) <= 1 {
			continue
		}

		kept := b.connections[:0]
		for _, c := range b.connections {
			if _, member := g.sources[c.FromOperator]; !member {
				kept = append(kept, c)
			}
		}
		b.connections = kept

		operators := b.operators[:0]
		for _, op := range b.operators {
			if _, member := g.sources[op.Name]; member && op != g.retained && !b.hasSplits(op.Name) {
				continue
			}
			operators = append(operators, op)
		}
		b.operators = operators

		fan := newMultiply(b.uniqueName("multiply "+g.retained.Name), outputClass(g.retained), len(g.consumers))
		b.operators = append(b.operators, fan)

		b.connections = append(b.connections, &workflow.Connection{
			FromOperator: g.retained.Name,
			FromPort:     firstOutput(g.retained),
			FromPortType: workflow.OutputPort,
			ToOperator:   fan.Name,
			ToPort:       engine.PortMultiplyInput,
			ToPortType:   workflow.InputPort,
		})
		for i, consumer := range g.consumers {
			b.connections = append(b.connections, &workflow.Connection{
				FromOperator: fan.Name,
				FromPort:     fan.Outputs[i].Name,
				FromPortType: workflow.OutputPort,
				ToOperator:   consumer.ToOperator,
				ToPort:       consumer.ToPort,
				ToPortType:   consumer.ToPortType,
			})
		}

		b.splitter.logger.Debug("Deduplicated shared source",
			zap.String("container", b.name),
			zap.String("path", path),
			zap.String("retained", g.retained.Name),
			zap.Int("consumers", len(g.consumers)))
	}
}

// uniqueName returns base, or base with a " (N)" suffix when an operator of
// the container already carries it.
func (b *containerBuilder) uniqueName(base string) string {
	taken := make(map[string]struct{}, len(b.operators))
	for _, op := range b.operators {
		taken[op.Name] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s (%d)", base, n)
		if _, ok := taken[name]; !ok {
			return name
		}
	}
}

func (b *containerBuilder) hasSplits(name string) bool {
	for _, s := range b.splits {
		if s.Connection.FromOperator == name {
			return true
		}
	}
	return false
}

// build wraps the accumulated operators in a streaming nest or an
// edge-processing container.
func (b *containerBuilder) build() *workflow.Operator {
	inner := &workflow.Workflow{
		WorkflowName:          engine.OptimizedWorkflow,
		EnclosingOperatorName: b.name,
		InnerSources:          []*workflow.Port{},
		InnerSinks:            []*workflow.Port{},
		Connections:           b.connections,
		Operators:             b.operators,
	}
	container := &workflow.Operator{
		Name:                 b.name,
		IsEnabled:            true,
		HasSubprocesses:      true,
		NumberOfSubprocesses: 1,
		Outputs:              []*workflow.Port{{Name: engine.ThroughOutput + " 1", PortType: workflow.OutputPort}},
		InnerWorkflows:       []*workflow.Workflow{inner},
		PlatformName:         b.platform,
	}

	if b.edge {
		project := ProjectName(b.name)
		container.ClassKey = engine.KeyEdgeProcessing
		container.Inputs = []*workflow.Port{
			{Name: engine.PortAIHubConnection, PortType: workflow.InputPort, ObjectClass: workflow.ClassConnection},
			{Name: engine.PortRTSAConnection, PortType: workflow.InputPort, ObjectClass: workflow.ClassConnection},
			{Name: engine.ThroughInput + " 1", PortType: workflow.InputPort},
		}
		container.Parameters = []*workflow.Parameter{
			{Key: "name", Value: project, TypeClass: engine.KindString},
			{Key: "display_name", Value: project, TypeClass: engine.KindString},
			{Key: "continuous_execution", Value: "true", TypeClass: engine.KindBoolean},
			{Key: "sleep_time", Value: "1000", TypeClass: engine.KindInt},
		}
		return container
	}

	container.ClassKey = engine.KeyStreamingNest
	container.Inputs = []*workflow.Port{
		{Name: engine.PortNestConnection, PortType: workflow.InputPort, ObjectClass: workflow.ClassConnection},
		{Name: engine.ThroughInput + " 1", PortType: workflow.InputPort},
	}
	container.Parameters = []*workflow.Parameter{
		{Key: engine.ParamJobName, Value: b.name, Range: "string", TypeClass: engine.KindString},
		{Key: engine.ParamWorkflowID, Value: b.splitter.workflowID, Range: "string", TypeClass: engine.KindString},
	}
	return container
}
