package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"github.com/amosdev/attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Serve exposes the pipeline over HTTP: registration and recognition
uploads, attendance queries, cache maintenance and Prometheus metrics.
A nightly job sweeps the feature cache for stale entries and backs up
the attendance database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("nightly-at", "02:00", "Time of day for the cache sweep and backup job")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	host := mustGetString(cmd, "host")
	if !cmd.Flags().Changed("host") {
		if v := os.Getenv("WEB_HOST"); v != "" {
			host = v
		}
	}
	port := mustGetInt(cmd, "port")
	if !cmd.Flags().Changed("port") {
		if v, err := strconv.Atoi(os.Getenv("WEB_PORT")); err == nil && v > 0 {
			port = v
		}
	}

	srv := web.NewServer(p.rec, p.cache, p.store, host, port)

	scheduler := gocron.NewScheduler(time.Local)
	_, err = scheduler.Every(1).Day().At(mustGetString(cmd, "nightly-at")).Do(func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if rebuilt, err := p.rec.SweepStale(jobCtx); err != nil {
			fmt.Printf("Nightly cache sweep failed: %v\n", err)
		} else if len(rebuilt) > 0 {
			fmt.Printf("Nightly cache sweep rebuilt %d identities\n", len(rebuilt))
		}

		if path, err := p.store.Backup(jobCtx, p.cfg.Data.BackupDir()); err != nil {
			fmt.Printf("Nightly backup failed: %v\n", err)
		} else {
			fmt.Printf("Nightly backup written to %s\n", path)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling nightly job: %w", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
