// Command reviewpipeline runs the example wiring of
// examples/reviewpipeline against an in-memory review queue and
// subscription, for manual exercise. It is not a production entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cfedersp/review-pipeline/config"
	"github.com/cfedersp/review-pipeline/examples/reviewpipeline"
	"github.com/cfedersp/review-pipeline/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional, defaults built in)")
	flag.Parse()

	log := logging.NewLogrus(logrus.StandardLogger())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Error("reviewpipeline: failed to load config, using defaults")
		} else {
			cfg = loaded
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline := reviewpipeline.New(ctx, cfg, log)

	if _, err := pipeline.Queue.Enqueue("acme", "acct-1", "download", "download", []byte("seed")); err != nil {
		log.WithError(err).Error("reviewpipeline: failed to seed review queue")
	}

	pipeline.Run(ctx)

	<-ctx.Done()
	log.Info("reviewpipeline: shutting down")
}
