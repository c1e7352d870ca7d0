package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/pipeline"
	"github.com/giannisaf2/crexdata-public/pkg/placement"
	"github.com/giannisaf2/crexdata-public/pkg/storage"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// splitOutput is the document written by the split command.
type splitOutput struct {
	RunID    string                      `json:"runId"`
	Workflow *workflow.Workflow          `json:"workflow"`
	Splits   []*workflow.SplitConnection `json:"splits"`
}

func newSplitCmd(a *app) *cobra.Command {
	var input, placementPath, output, runID string

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a placed workflow into per-platform containers",
		Long: `split reads a workflow document carrying a placement decision and writes
the generated containers together with the connections that cross them.
A yaml placement file replaces the decision stored in the workflow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.split(cmd.Context(), cmd, input, placementPath, output, runID)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "placed workflow JSON")
	cmd.Flags().StringVarP(&placementPath, "placement", "p", "", "placement decision yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&runID, "run-id", "", "identifier used in container names (default random)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) split(ctx context.Context, cmd *cobra.Command, input, placementPath, output, runID string) error {
	store := storage.NewFileStore("", a.logger)

	w, err := loadWorkflow(ctx, store, input)
	if err != nil {
		return err
	}
	if placementPath != "" {
		sites, err := loadPlacement(ctx, store, placementPath)
		if err != nil {
			return err
		}
		w.PlacementSites = sites
	}
	if err := w.Validate(); err != nil {
		return err
	}
	if runID == "" {
		runID = pipeline.NewRunID()
	}

	result, err := placement.Split(w, runID,
		placement.WithLogger(a.logger),
		placement.WithOperatorSuffix(a.cfg.Pipeline.OperatorSuffix),
		placement.WithWorkflowID(a.cfg.Pipeline.WorkflowID))
	if err != nil {
		return err
	}

	a.logger.Info("Split workflow",
		zap.String("run_id", runID),
		zap.Int("containers", len(result.Workflow.Operators)),
		zap.Int("splits", len(result.Splits)))
	return writeJSON(ctx, store, cmd.OutOrStdout(), output, &splitOutput{
		RunID:    runID,
		Workflow: result.Workflow,
		Splits:   result.Splits,
	})
}
