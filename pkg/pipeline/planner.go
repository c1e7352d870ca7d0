// Package pipeline runs a complete placement pass over an optimization chain:
// the logical workflow of subprocess 0 is optimized, split and materialized
// into subprocess 1.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/bridge"
	"github.com/giannisaf2/crexdata-public/pkg/convert"
	"github.com/giannisaf2/crexdata-public/pkg/engine"
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/optimizer"
	"github.com/giannisaf2/crexdata-public/pkg/placement"
)

// Inner source ports of the optimized subprocess.
const (
	ChannelPort = "stream connection"
	AIHubPort   = "aihub connection"
)

// Site is a computing site and its platforms.
type Site struct {
	Name      string   `yaml:"name" mapstructure:"name"`
	Platforms []string `yaml:"platforms" mapstructure:"platforms"`
}

// SiteMap returns sites as a site → platforms map.
func SiteMap(sites []Site) map[string][]string {
	m := make(map[string][]string, len(sites))
	for _, s := range sites {
		m[s.Name] = append(m[s.Name], s.Platforms...)
	}
	return m
}

// BackendPort names the inner source carrying the connection of one platform.
func BackendPort(site, platform string) string {
	return site + " " + platform
}

// Config holds the settings of a placement pass.
type Config struct {
	NetworkName     string              `mapstructure:"network_name"`
	DictionaryName  string              `mapstructure:"dictionary_name"`
	Algorithm       optimizer.Algorithm `mapstructure:"algorithm"`
	Continuous      bool                `mapstructure:"continuous"`
	NumberOfPlans   int64               `mapstructure:"number_of_plans"`
	OperatorSuffix  string              `mapstructure:"operator_suffix"`
	ConnectionEntry string              `mapstructure:"connection_entry"`
	WorkflowID      string              `mapstructure:"workflow_id"`
}

// Optimizer produces a placement decision. It is satisfied by
// *optimizer.Orchestrator.
type Optimizer interface {
	Optimize(ctx context.Context, docs *optimizer.Documents, stop optimizer.StopFunc) (*optimizer.Response, error)
}

// Plan is the outcome of asking the optimizer for a placement.
type Plan struct {
	RunID    string
	Response *optimizer.Response
	Bindings *placement.SourceBindings
}

// Planner drives placement passes.
type Planner struct {
	converter *convert.Converter
	optimizer Optimizer
	config    Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewPlanner creates a planner. A nil converter uses the default registry.
func NewPlanner(converter *convert.Converter, opt Optimizer, config Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if converter == nil {
		converter = convert.NewConverter(nil, logger)
	}
	if config.Algorithm == "" {
		config.Algorithm = optimizer.AlgorithmGreedy
	}
	if config.NumberOfPlans == 0 {
		config.NumberOfPlans = 1
	}
	return &Planner{
		converter: converter,
		optimizer: opt,
		config:    config,
		logger:    logger,
		tracer:    otel.Tracer("crexplace/pipeline"),
	}
}

// NewRunID returns a short identifier used in container names.
func NewRunID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Optimize converts the logical workflow of chain, strips its shared sources
// and asks the optimizer where to run the rest.
func (p *Planner) Optimize(ctx context.Context, chain *engine.Operator, sites []Site, stop optimizer.StopFunc) (*Plan, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Optimize")
	defer span.End()

	if chain.NumberOfSubprocesses() < 2 {
		return nil, sdkerrors.NewModelingError("NOT_AN_OPTIMIZATION_CHAIN", "chain needs a logical and an optimized subprocess", chain.Name())
	}
	w, err := p.converter.ToWorkflow(chain.Subprocess(0))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to convert logical workflow: %w", err)
	}
	w.PinParameterRanges()

	bindings := placement.DetachSources(w)
	docs := optimizer.NewDocuments(p.config.NetworkName, p.config.DictionaryName, SiteMap(sites),
		p.config.Algorithm, w, p.config.Continuous, p.config.NumberOfPlans)

	p.logger.Info("Requesting placement",
		zap.String("chain", chain.Name()),
		zap.Int("operators", len(w.Operators)),
		zap.Int("detached_sources", bindings.Len()),
		zap.Int("sites", len(sites)))

	resp, err := p.optimizer.Optimize(ctx, docs, stop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	plan := &Plan{RunID: NewRunID(), Response: resp, Bindings: bindings}
	span.SetAttributes(
		attribute.String("pipeline.run_id", plan.RunID),
		attribute.String("optimizer.request_id", resp.OptimizationRequestID))
	span.SetStatus(codes.Ok, "placement received")
	return plan, nil
}

// Apply rebuilds subprocess 1 of chain from plan: shared sources are
// re-attached, the placed workflow is split into containers, the containers
// are materialized, connected to their backends and bridged.
func (p *Planner) Apply(ctx context.Context, chain *engine.Operator, plan *Plan, sites []Site) (*placement.Result, error) {
	_, span := p.tracer.Start(ctx, "pipeline.Apply", trace.WithAttributes(attribute.String("pipeline.run_id", plan.RunID)))
	defer span.End()

	result, err := p.apply(chain, plan, sites)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("pipeline.containers", len(result.Workflow.Operators)),
		attribute.Int("pipeline.splits", len(result.Splits)))
	span.SetStatus(codes.Ok, "placement applied")
	return result, nil
}

func (p *Planner) apply(chain *engine.Operator, plan *Plan, sites []Site) (*placement.Result, error) {
	if plan.Response == nil || plan.Response.Workflow == nil {
		return nil, sdkerrors.NewModelingError("EMPTY_PLAN", "plan carries no placed workflow", chain.Name())
	}

	placed := plan.Response.Workflow
	if plan.Bindings != nil {
		placed = plan.Bindings.Reattach(placed)
	} else {
		placed = placed.Clone()
	}
	placed.EnclosingOperatorName = chain.Name()
	if err := placed.Validate(); err != nil {
		return nil, err
	}

	result, err := placement.Split(placed, plan.RunID,
		placement.WithLogger(p.logger),
		placement.WithOperatorSuffix(p.config.OperatorSuffix),
		placement.WithWorkflowID(p.config.WorkflowID))
	if err != nil {
		return nil, err
	}
	result.Workflow.WorkflowName = engine.OptimizedWorkflow

	registered, err := convert.RegisterDescriptors(p.converter.Registry(), result.Workflow)
	if err != nil {
		return nil, err
	}
	if len(registered) > 0 {
		p.logger.Debug("Registered inferred operator descriptions", zap.Strings("class_keys", registered))
	}

	proc, err := p.converter.FromWorkflow(result.Workflow, chain, 1)
	if err != nil {
		return nil, err
	}

	channel := innerSource(proc, ChannelPort)
	aihub := innerSource(proc, AIHubPort)
	backends := backendPorts(proc, sites)

	b := bridge.NewBridger(
		bridge.WithLogger(p.logger),
		bridge.WithChannelPort(channel),
		bridge.WithConnectionEntry(p.config.ConnectionEntry))
	if err := b.ConnectBackends(proc, backends, aihub, plan.RunID); err != nil {
		return nil, err
	}
	if err := b.Bridge(proc, result.Splits); err != nil {
		return nil, err
	}

	p.logger.Info("Applied placement",
		zap.String("chain", chain.Name()),
		zap.String("run_id", plan.RunID),
		zap.Int("containers", len(result.Workflow.Operators)),
		zap.Int("splits", len(result.Splits)))
	return result, nil
}

func innerSource(proc *engine.Process, name string) *engine.OutputPort {
	if port := proc.InnerSources().ByName(name); port != nil {
		return port
	}
	return proc.InnerSources().Add(name, engine.ClassConnection)
}

func backendPorts(proc *engine.Process, sites []Site) []bridge.Backend {
	names := make([]string, 0, len(sites))
	bySite := SiteMap(sites)
	for name := range bySite {
		names = append(names, name)
	}
	sort.Strings(names)

	var backends []bridge.Backend
	for _, site := range names {
		for _, platform := range bySite[site] {
			backends = append(backends, bridge.Backend{
				Site:     site,
				Platform: platform,
				Port:     innerSource(proc, BackendPort(site, platform)),
			})
		}
	}
	return backends
}
