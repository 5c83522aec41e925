// Command smoketest runs the HTTP checks against a running backend and
// exits non-zero when any check fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/logging"
	"github.com/gurre/cloudlab/probe"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:], config.Environ, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, lookup config.LookupFunc, stdout io.Writer) error {
	fs := flag.NewFlagSet("smoketest", flag.ContinueOnError)
	baseURL := fs.String("base-url", "", "Backend base URL (defaults to http://localhost:$PORT)")
	remote := fs.Bool("remote", false, "Also check the public endpoints")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	maxRedirects := fs.Int("max-redirects", 10, "Redirects followed before giving up")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := &config.ProbeConfig{
		BaseURL:      *baseURL,
		Remote:       *remote,
		Timeout:      *timeout,
		MaxRedirects: *maxRedirects,
	}
	cfg.LoadFromEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.FromEnv("smoketest")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := probe.NewClient(cfg.Timeout, cfg.MaxRedirects, log)
	results := client.Run(ctx, probe.DefaultChecks(cfg.BaseURL, cfg.Remote))

	failed := 0
	for _, r := range results {
		if r.Passed() {
			fmt.Fprintf(stdout, "PASS %-10s %d %s\n", r.Name, r.Status, r.Duration.Round(time.Millisecond))
			continue
		}
		failed++
		fmt.Fprintf(stdout, "FAIL %-10s %v\n", r.Name, r.Err)
		log.Debug("check failed", zap.String("check", r.Name), zap.Error(r.Err))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	fmt.Fprintf(stdout, "All %d checks passed against %s\n", len(results), cfg.BaseURL)
	return nil
}
