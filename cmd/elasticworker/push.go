package main

import (
	"bufio"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push [payload...]",
	Short: "Add messages to the queue, one per argument or per stdin line",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		client := cfg.redisClient()
		defer client.Close()
		queue := cfg.queue(client)

		payloads := args
		if len(payloads) == 0 {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				payloads = append(payloads, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return err
			}
		}

		for _, payload := range payloads {
			message := contracts.Message{Payload: payload}
			if err := queue.Add(cmd.Context(), &message); err != nil {
				return err
			}
			log.WithField("message_id", message.GetId()).Debug("message added")
		}
		log.WithField("count", len(payloads)).WithField("stream", queue.Stream()).Info("messages added")
		return nil
	},
}
