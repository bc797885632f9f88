package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/worker"
)

// WorkerOptions holds flags for the worker command.
type WorkerOptions struct {
	*RootOptions
	Address   string
	Port      int
	Workers   int
	Reconnect time.Duration

	// IDs allows overriding the worker ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs worker.IDGenerator
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Connect to the broker and serve commands",
		Long: `Connect to the broker's websocket endpoint and serve commands until
interrupted.

Every configured database is opened read-only and reconciled with its
schema before the worker connects. Flags override the broker settings of
the configuration file.

Example:
  surveydb worker --config ./config.yaml
  surveydb worker --address broker.local --port 8080 --reconnect 5s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "address", "", "broker address (overrides the configuration)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "broker port (overrides the configuration)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "number of commands handled at once (overrides the configuration)")
	cmd.Flags().DurationVar(&opts.Reconnect, "reconnect", 0, "delay between reconnection attempts; 0 exits when the connection is lost")

	return cmd
}

func runWorker(opts *WorkerOptions, cmd *cobra.Command) error {
	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr()}

	env, err := openEnvironment(ctx, opts.RootOptions)
	if err != nil {
		return formatter.FailEnvironment(err)
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error closing databases: %v\n", closeErr)
		}
	}()
	log := env.log

	workerOpts := worker.Options{
		Address:   env.config.Broker.Address,
		Port:      env.config.Broker.Port,
		PoolSize:  env.config.Workers,
		Reconnect: opts.Reconnect,
		IDs:       opts.IDs,
	}
	if opts.Address != "" {
		workerOpts.Address = opts.Address
	}
	if opts.Port != 0 {
		workerOpts.Port = opts.Port
	}
	if opts.Workers != 0 {
		workerOpts.PoolSize = opts.Workers
	}
	w := worker.New(env.dispatcher, workerOpts, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	log.Info("worker starting",
		zap.String("url", w.URL()),
		zap.Strings("databases", env.dispatcher.Databases()),
		zap.Int("pool_size", workerOpts.PoolSize),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Worker %s connecting to %s\n", w.ID(), w.URL())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := w.Serve(ctx); err != nil {
		_ = formatter.Error(ErrCodeBrokerFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "worker stopped", err)
	}

	log.Info("worker stopped gracefully", zap.Int64("handled", w.Handled()))
	return nil
}
