package main

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/internal/config"
	"github.com/giannisaf2/crexdata-public/internal/logger"
	"github.com/giannisaf2/crexdata-public/internal/tracing"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	v        *viper.Viper
	cfgFile  string
	cfg      *config.Config
	logger   *zap.Logger
	shutdown tracing.ShutdownFunc
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "crexplace",
		Short: "Placement-aware workflow partitioning",
		Long: `crexplace partitions a logical streaming workflow into one container per
computing site and platform, following a placement decision made by the
optimizer service, and bridges the connections that cross containers.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./crexplace.yaml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-format", logger.FormatHuman, "Log format: json or human")
	flags.String("operator-suffix", "", "Suffix appended to placed operator names")
	flags.String("workflow-id", "", "Management workflow id stored on every container")

	_ = a.v.BindPFlag("log.debug", flags.Lookup("debug"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("pipeline.operator_suffix", flags.Lookup("operator-suffix"))
	_ = a.v.BindPFlag("pipeline.workflow_id", flags.Lookup("workflow-id"))

	root.AddCommand(newSplitCmd(a), newOptimizeCmd(a), newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	l, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.logger = l

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     "crexplace@" + version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	shutdown, err := tracing.SetupTracing(cmd.Context(), cfg.Tracing, a.logger)
	if err != nil {
		return err
	}
	a.shutdown = shutdown

	a.logger.Debug("Configuration loaded",
		zap.String("config_file", a.v.ConfigFileUsed()),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Int("sites", len(cfg.Sites)))
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	err := tracing.ShutdownTracing(a.shutdown, a.logger)
	_ = a.logger.Sync()
	return err
}
