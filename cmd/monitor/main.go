package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"FinGuard/internal/di"
	"FinGuard/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	job := flag.String("job", "all", "job to run: validation, drift or all")
	daysBack := flag.Int("days-back", 0, "validation look-back in days (0 uses config)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	jobs, cleanup, err := di.InitializeMonitor(cfg)
	if err != nil {
		log.Fatalf("monitor initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var (
		out    interface{}
		runErr error
	)
	switch *job {
	case "validation":
		out, runErr = jobs.RunValidation(ctx, *daysBack)
	case "drift":
		out, runErr = jobs.RunDriftCheck(ctx)
	case "all":
		out = jobs.RunAll(ctx, *daysBack)
	default:
		runErr = fmt.Errorf("unknown job %q", *job)
	}
	jobs.Flush()
	stop()
	cleanup()

	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Printf("encode summary: %v", err)
		}
	}
	if runErr != nil {
		log.Printf("%s: %v", *job, runErr)
		os.Exit(1)
	}
}
