package main

import (
	"github.com/soroosh-tanzadeh/elasticrunner/runner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type statsOutput struct {
	Queue    map[string]interface{} `yaml:"queue"`
	Replicas int                    `yaml:"replicas"`
	Samples  runner.SampleSummary   `yaml:"samples"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue state, live replicas and recent cycle samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		client := cfg.redisClient()
		defer client.Close()
		queue := cfg.queue(client)

		metrics, err := queue.GetMetrics(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := runner.ReadSourceStats(cmd.Context(), client, cfg.Worker)
		if err != nil {
			return err
		}

		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		defer encoder.Close()
		return encoder.Encode(statsOutput{
			Queue:    metrics,
			Replicas: stats.Replicas,
			Samples:  stats.Samples,
		})
	},
}
