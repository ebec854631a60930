package runner

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/soroosh-tanzadeh/elasticrunner/consumer"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/soroosh-tanzadeh/elasticrunner/scaling"
)

const (
	DefaultBatchSize     = 10
	DefaultNumWorkers    = 10
	DefaultPollTimeout   = 5 * time.Second
	DefaultBatchTimeout  = 30 * time.Second
	DefaultDrainTimeout  = 30 * time.Second
	DefaultMinReplicas   = 1
	DefaultSampleHistory = 1000
)

// DeadLetterFunc receives messages that failed fatally. The message is acknowledged only if it returns nil.
type DeadLetterFunc func(ctx context.Context, message contracts.Message, cause error) error

type ErrorHandler func(err error)

type ConsumerFactory func() consumer.Consumer

type Config struct {
	ConsumerGroup   string `yaml:"consumer_group"`
	ConsumersPrefix string `yaml:"consumers_prefix"`
	Host            string `yaml:"host"`

	// SourceID names the monitored source in logs, locks and capacity notifications.
	SourceID string `yaml:"source_id"`

	// BatchSize is the maximum number of messages pulled per cycle.
	BatchSize int `yaml:"batch_size"`
	// NumWorkers bounds the number of messages processed concurrently, stragglers included.
	NumWorkers int `yaml:"num_workers"`

	PollTimeout time.Duration `yaml:"poll_timeout"`
	// BatchTimeout is how long a cycle waits for its batch. Messages still running afterwards
	// stay in flight and are settled whenever they finish.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// Scaling is used as is when any field is set, otherwise scaling.DefaultConfig applies.
	Scaling scaling.Config `yaml:"scaling"`

	// ShutdownOnIdle lets a scale-down decision terminate the worker.
	ShutdownOnIdle bool `yaml:"shutdown_on_idle"`
	// MinReplicas is the number of live replicas below which a worker refuses to shut down.
	// It is only enforced when a Redis client is available.
	MinReplicas int `yaml:"min_replicas"`

	// SampleHistory is the number of cycle samples kept in Redis for Stats.
	SampleHistory int `yaml:"sample_history"`

	CapacityManager CapacityManager `yaml:"-"`
	DeadLetter      DeadLetterFunc  `yaml:"-"`
	ErrorHandler    ErrorHandler    `yaml:"-"`

	// ConsumerFactory, when set, provides one consumer instance per concurrently processed message.
	ConsumerFactory ConsumerFactory `yaml:"-"`

	Clock clock.Clock `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		ConsumerGroup: "elasticrunner",
		BatchSize:     DefaultBatchSize,
		NumWorkers:    DefaultNumWorkers,
		PollTimeout:   DefaultPollTimeout,
		BatchTimeout:  DefaultBatchTimeout,
		DrainTimeout:  DefaultDrainTimeout,
		Scaling:       scaling.DefaultConfig(),
		MinReplicas:   DefaultMinReplicas,
		SampleHistory: DefaultSampleHistory,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if len(c.ConsumerGroup) == 0 {
		c.ConsumerGroup = defaults.ConsumerGroup
	}
	if len(c.SourceID) == 0 {
		c.SourceID = c.ConsumerGroup
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaults.NumWorkers
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaults.PollTimeout
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaults.BatchTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaults.DrainTimeout
	}
	if c.Scaling == (scaling.Config{}) {
		c.Scaling = defaults.Scaling
	}
	if c.MinReplicas < 0 {
		c.MinReplicas = 0
	}
	if c.SampleHistory <= 0 {
		c.SampleHistory = defaults.SampleHistory
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
