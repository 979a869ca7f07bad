package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/provenance/pkg/events"
	"github.com/cuemby/provenance/pkg/metrics"
	"github.com/cuemby/provenance/pkg/reconciler"
	"github.com/cuemby/provenance/pkg/scheduler"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/cuemby/provenance/pkg/worker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker pools, scheduler, reconciler, and metrics/health endpoints",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("Starting provenance validation engine...")
	fmt.Printf("  Data Directory: %s\n", cfg.DataDir)
	fmt.Printf("  Queue Backend: %s\n", cfg.QueueBackend)
	fmt.Printf("  Rate Limiter Backend: %s\n", cfg.RateLimiterBackend)
	fmt.Println()

	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.queue.Start()
	fmt.Println("✓ Queue started")

	concurrency := resolveConcurrency()
	pool := worker.New(worker.Config{
		Queue:       eng.queue,
		Registry:    eng.registry,
		Limiter:     eng.limiter,
		Retry:       eng.retry,
		Store:       eng.store,
		Concurrency: concurrency,
	})
	pool.Start()
	fmt.Println("✓ Worker pools started")

	broker := events.NewBroker()
	broker.Start()
	fmt.Println("✓ Event broker started")

	sched := scheduler.New(eng.store, broker, cfg.SchedulerTick)
	sched.Start()
	fmt.Println("✓ Scheduler started")

	recon := reconciler.NewReconciler(eng.store, eng.queue, cfg.ReconcilerTick)
	recon.Start()
	fmt.Println("✓ Reconciler started")

	collector := metrics.NewCollector(eng.store, eng.queue)
	collector.Start()
	fmt.Println("✓ Metrics collector started")

	metrics.SetVersion(Version)
	metrics.RegisterComponent("jobstore", true, "running")
	metrics.RegisterComponent("ratelimiter", true, "running")
	metrics.RegisterComponent("queue", true, "running")
	metrics.RegisterComponent("worker_pool", true, "running")
	metrics.RegisterComponent("scheduler", true, "running")
	metrics.RegisterComponent("reconciler", true, "running")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	errCh := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.ListenAddr)
	fmt.Printf("✓ Health endpoints:\n")
	fmt.Printf("  - Health check: http://%s/health\n", cfg.ListenAddr)
	fmt.Printf("  - Readiness:    http://%s/ready\n", cfg.ListenAddr)
	fmt.Printf("  - Liveness:     http://%s/live\n", cfg.ListenAddr)
	fmt.Println()
	fmt.Println("Engine is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	collector.Stop()
	recon.Stop()
	sched.Stop()
	broker.Stop()
	pool.Stop()
	eng.queue.Stop()

	fmt.Println("✓ Shutdown complete")
	return nil
}

func resolveConcurrency() map[types.TaskType]int {
	if len(cfg.Concurrency) == 0 {
		return worker.DefaultConcurrency()
	}
	out := worker.DefaultConcurrency()
	for name, n := range cfg.Concurrency {
		out[types.TaskType(name)] = n
	}
	return out
}
