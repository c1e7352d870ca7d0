package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/internal/config"
	"github.com/giannisaf2/crexdata-public/pkg/convert"
	"github.com/giannisaf2/crexdata-public/pkg/engine"
	"github.com/giannisaf2/crexdata-public/pkg/optimizer"
	"github.com/giannisaf2/crexdata-public/pkg/pipeline"
	"github.com/giannisaf2/crexdata-public/pkg/storage"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// defaultChainName names the optimization chain of a workflow without an
// enclosing operator.
const defaultChainName = "Optimization"

// optimizeOutput is the document written by the optimize command.
type optimizeOutput struct {
	RunID     string                      `json:"runId"`
	RequestID string                      `json:"optimizationRequestId"`
	Workflow  *workflow.Workflow          `json:"workflow"`
	Splits    []*workflow.SplitConnection `json:"splits"`
}

func newOptimizeCmd(a *app) *cobra.Command {
	var input, sitesPath, output string

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Ask the optimizer for a placement and apply it",
		Long: `optimize reads a logical workflow, asks the optimizer service where each
operator should run and writes the optimized workflow: one container per
site and platform, connected to its backend and bridged across containers.
Interrupting the command stops the pending round-trip.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.optimize(cmd.Context(), cmd, input, sitesPath, output)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "logical workflow JSON")
	cmd.Flags().StringVarP(&sitesPath, "sites", "s", "", "computing sites yaml (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().String("algorithm", "", "optimizer algorithm: exhaustive, greedy or heuristic")
	cmd.Flags().String("nats-url", "", "optimizer NATS server")
	_ = a.v.BindPFlag("pipeline.algorithm", cmd.Flags().Lookup("algorithm"))
	_ = a.v.BindPFlag("nats.url", cmd.Flags().Lookup("nats-url"))
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) optimize(ctx context.Context, cmd *cobra.Command, input, sitesPath, output string) error {
	files := storage.NewFileStore("", a.logger)

	w, err := loadWorkflow(ctx, files, input)
	if err != nil {
		return err
	}
	sites := a.cfg.Sites
	if sitesPath != "" {
		if sites, err = loadSites(ctx, files, sitesPath); err != nil {
			return err
		}
	}
	if len(sites) == 0 {
		return fmt.Errorf("no computing sites configured")
	}

	converter := convert.NewConverter(engine.NewDefaultRegistry(), a.logger)
	chain, err := logicalChain(converter, w)
	if err != nil {
		return err
	}

	orchestrator, cleanup, err := a.newOrchestrator()
	if err != nil {
		return err
	}
	defer cleanup()

	planner := pipeline.NewPlanner(converter, orchestrator, a.cfg.Pipeline, a.logger)
	plan, err := planner.Optimize(ctx, chain, sites, func() bool { return ctx.Err() != nil })
	if err != nil {
		return err
	}
	result, err := planner.Apply(ctx, chain, plan, sites)
	if err != nil {
		return err
	}

	optimized, err := converter.ToWorkflow(chain.Subprocess(1))
	if err != nil {
		return err
	}
	return writeJSON(ctx, files, cmd.OutOrStdout(), output, &optimizeOutput{
		RunID:     plan.RunID,
		RequestID: plan.Response.OptimizationRequestID,
		Workflow:  optimized,
		Splits:    result.Splits,
	})
}

// logicalChain builds w into subprocess 0 of a new optimization chain named
// after its enclosing operator, "Optimization" when w names none.
func logicalChain(converter *convert.Converter, w *workflow.Workflow) (*engine.Operator, error) {
	if _, err := convert.RegisterDescriptors(converter.Registry(), w); err != nil {
		return nil, err
	}
	if w.EnclosingOperatorName == "" {
		w.EnclosingOperatorName = defaultChainName
	}
	chain := engine.NewOptimizationChain(w.EnclosingOperatorName)
	if _, err := converter.FromWorkflow(w, chain, 0); err != nil {
		return nil, err
	}
	return chain, nil
}

// newOrchestrator wires the NATS client, the dump store and, when an address
// is configured, a Prometheus endpoint. cleanup stops the endpoint.
func (a *app) newOrchestrator() (*optimizer.Orchestrator, func(), error) {
	cleanup := func() {}
	var metrics *optimizer.Metrics
	if addr := a.cfg.Optimizer.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		m, err := optimizer.NewMetrics(reg)
		if err != nil {
			return nil, nil, err
		}
		metrics = m
		cleanup = a.serveMetrics(addr, reg)
	}

	store, err := a.dumpStore()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	dumper, err := optimizer.NewDumper(store, a.cfg.Dump, a.logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	client := optimizer.NewClient(optimizer.NATSDialer(&a.cfg.NATS, a.logger),
		optimizer.WithLogger(a.logger),
		optimizer.WithTopics(optimizer.DefaultTopics(a.cfg.Optimizer.TopicPrefix)),
		optimizer.WithConnectTimeout(a.cfg.Optimizer.ConnectTimeout),
		optimizer.WithQueueCapacity(a.cfg.Optimizer.QueueCapacity),
		optimizer.WithMetrics(metrics))

	return optimizer.NewOrchestrator(client,
		optimizer.WithDumper(dumper),
		optimizer.WithStopInterval(a.cfg.Optimizer.StopInterval),
		optimizer.WithPollingTimeout(a.cfg.Optimizer.PollingTimeout)), cleanup, nil
}

func (a *app) dumpStore() (optimizer.Store, error) {
	switch a.cfg.Storage.Provider {
	case config.StorageAzure:
		az := a.cfg.Storage.Azure
		return storage.NewAzureBlobStore(az.ConnectionString, az.Container, az.Prefix, a.logger)
	default:
		return storage.NewFileStore(a.cfg.Storage.Root, a.logger), nil
	}
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Metrics endpoint stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
