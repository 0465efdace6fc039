// Command execpoold is the demo embedder for the execution pool
// library: it loads a batch of Jobs from a file, runs them through an
// ExecPool while serving the observation endpoint, and exits with the
// code spec.md §6 specifies (0 clean drain, 1 deadline exceeded, 2
// signal-forced shutdown).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guti2010/execpool/internal/config"
	"github.com/guti2010/execpool/internal/execpool"
	"github.com/guti2010/execpool/internal/httpapi"
	"github.com/guti2010/execpool/internal/logging"
	"github.com/guti2010/execpool/internal/task"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		jobsPath    string
		globalDline float64
		v           = viper.New()
	)

	root := &cobra.Command{
		Use:   "execpoold",
		Short: "Runs a batch of Jobs through an execution pool, serving its status over HTTP.",
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&jobsPath, "jobs", "", "path to a JSON jobs file (required)")
	root.Flags().Float64Var(&globalDline, "deadline-s", 0, "global join() deadline in seconds, 0 = no deadline")
	if err := v.BindPFlags(root.Flags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if jobsPath == "" {
			return fmt.Errorf("--jobs is required")
		}
		cfg, err := config.Load(v, configPath)
		if err != nil {
			return err
		}
		exitCode = runPool(cfg, jobsPath, globalDline)
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return exitCode
}

func runPool(cfg config.Config, jobsPath string, globalDeadlineS float64) int {
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		return 2
	}
	defer logger.Sync() //nolint:errcheck

	jobs, err := loadJobsFile(jobsPath)
	if err != nil {
		logger.Error("failed to load jobs file", zap.Error(err))
		return 2
	}

	pool, err := execpool.New(execpool.Config{
		WksNum:       cfg.WksNum,
		AfnStep:      cfg.AfnStep,
		CoreThreads:  cfg.CoreThreads,
		Nodes:        cfg.Nodes,
		CrossNodes:   cfg.CrossNodes,
		VMLimitBytes: uint64(cfg.VMLimitGB * (1 << 30)),
		LatencyS:     cfg.LatencyS,
		Alpha:        cfg.Alpha,
		Grace:        time.Duration(cfg.GraceS * float64(time.Second)),
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to construct pool", zap.Error(err))
		return 2
	}
	defer pool.Close()
	logger = logger.With(zap.String("run_id", pool.RunID()))

	batch, err := task.New(task.Spec{Name: "execpoold-batch"})
	if err != nil {
		logger.Error("failed to construct batch task", zap.Error(err))
		return 2
	}
	pool.RegisterTask(batch)

	for _, j := range jobs {
		batch.Attach(j)
		if _, err := pool.Execute(j, false); err != nil {
			logger.Warn("job failed to schedule", zap.String("job", j.Name), zap.Error(err))
		}
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: httpapi.New(pool, logger)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server stopped", zap.Error(err))
		}
	}()
	defer srv.Close()

	var signalled atomic.Bool
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		signalled.Store(true)
		logger.Info("shutdown signal received, draining pool")
		pool.Shutdown()
	}()

	deadline := time.Duration(globalDeadlineS * float64(time.Second))
	clean := pool.Join(deadline)
	if clean {
		logger.Info("pool drained cleanly")
		return 0
	}
	if signalled.Load() {
		logger.Warn("pool shut down by signal before draining")
		return 2
	}
	logger.Warn("pool join deadline exceeded")
	return 1
}
