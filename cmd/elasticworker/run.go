package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/consumer"
	"github.com/soroosh-tanzadeh/elasticrunner/runner"
	"github.com/spf13/cobra"
)

var errNoHandler = errors.New("handler.command is required")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume the queue until stopped or scaled down",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		if len(cfg.Handler.Command) == 0 {
			return errNoHandler
		}

		client := cfg.redisClient()
		defer client.Close()
		queue := cfg.queue(client)

		workerCfg := cfg.Worker
		workerCfg.DeadLetter = queue.DeadLetter
		if len(cfg.Capacity.Command) > 0 {
			workerCfg.CapacityManager = commandCapacityManager(cfg.Capacity)
		}

		c := newCommandConsumer(cfg.Handler)
		if cfg.Queue.MaxReceives > 0 {
			c = consumer.WithMaxReceives(c, cfg.Queue.MaxReceives)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		worker := runner.NewWorker(workerCfg, client, queue, c)
		if err := worker.Start(ctx); err != nil {
			return err
		}
		log.WithField("source", worker.SourceID()).Info("worker exited")
		return nil
	},
}
