// flashguard-scan analyzes one block or a block range and writes one JSON
// report per line to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/internal/app"
	"github.com/web3ekko/flashguard/internal/config"
	"github.com/web3ekko/flashguard/internal/logger"
	"github.com/web3ekko/flashguard/pkg/scanner"
)

type failureLine struct {
	BlockNumber uint64 `json:"blockNumber"`
	Error       string `json:"error"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration (optional)")
	from := flag.Uint64("from", 0, "First block to analyze")
	to := flag.Uint64("to", 0, "Last block to analyze (defaults to -from)")
	onlySuspicious := flag.Bool("suspicious-only", false, "Only print reports with suspicious activity")
	flag.Parse()

	if *from == 0 {
		fmt.Fprintln(os.Stderr, "usage: flashguard-scan -from N [-to M] [-config path]")
		os.Exit(2)
	}
	if *to == 0 {
		*to = *from
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log, err := logger.NewWithOutput(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	sum, err := scanner.New(a.Service, log).Scan(ctx, *from, *to, func(o scanner.BlockOutcome) {
		var encErr error
		switch {
		case o.Err != nil:
			encErr = enc.Encode(failureLine{BlockNumber: o.BlockNumber, Error: o.Err.Error()})
		case *onlySuspicious && !o.Report.DetectedSuspiciousActivity:
		default:
			encErr = enc.Encode(o.Report)
		}
		if encErr != nil {
			log.WithError(encErr).Error("failed to write report")
		}
	})
	if err != nil {
		log.WithError(err).Error("scan aborted")
	}
	if err != nil || sum.Failed > 0 {
		a.Close()
		os.Exit(1)
	}
}
