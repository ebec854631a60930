package main

import (
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soroosh-tanzadeh/elasticrunner/redisstream"
	"github.com/soroosh-tanzadeh/elasticrunner/runner"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Redis    RedisConfig   `yaml:"redis"`
	Queue    QueueConfig   `yaml:"queue"`
	Worker   runner.Config `yaml:"worker"`
	Handler  CommandConfig `yaml:"handler"`
	Capacity CommandConfig `yaml:"capacity"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Prefix       string        `yaml:"prefix"`
	Name         string        `yaml:"name"`
	ReClaimDelay time.Duration `yaml:"reclaim_delay"`
	DeleteOnAck  bool          `yaml:"delete_on_ack"`
	// MaxReceives dead-letters messages delivered more often. Zero retries forever.
	MaxReceives int64 `yaml:"max_receives"`
}

// CommandConfig describes an external program. Handlers get the payload on stdin.
type CommandConfig struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{Addr: "localhost:6379"},
		Queue: QueueConfig{
			Prefix:       "default",
			Name:         "queue",
			ReClaimDelay: 5 * time.Minute,
			DeleteOnAck:  true,
		},
		Worker: runner.DefaultConfig(),
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if len(path) == 0 {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Worker.Scaling.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

func (c Config) queue(client *redis.Client) *redisstream.RedisStreamMessageQueue {
	return redisstream.NewRedisStreamMessageQueue(client, c.Queue.Prefix, c.Queue.Name, c.Queue.ReClaimDelay, c.Queue.DeleteOnAck)
}
