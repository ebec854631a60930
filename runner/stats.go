package runner

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soroosh-tanzadeh/elasticrunner/internal/ring"
)

// SampleSummary describes the recent cycle samples fed to the scaling controller.
type SampleSummary struct {
	Count int
	Avg   float64
	Std   float64
	Min   float64
	Max   float64
	Last  float64
}

type Stats struct {
	SourceID string
	State    State
	Running  bool

	InFlight  int
	Unsettled int
	Processed int64
	Failed    int64

	BusyCycles       int64
	IdleCycles       int64
	LastScalingEvent time.Time

	// Replicas is the number of live workers of the source, -1 when unknown.
	Replicas int
	// Samples is computed from the shared history of every replica when Redis is available,
	// otherwise it only holds the last local sample.
	Samples SampleSummary
}

func (w *Worker) Stats(ctx context.Context) (Stats, error) {
	snapshot := w.controller.Snapshot()
	stats := Stats{
		SourceID:         w.cfg.SourceID,
		State:            w.State(),
		Running:          w.IsRunning(),
		InFlight:         w.inFlight.Len(),
		Unsettled:        w.unsettled.Len(),
		Processed:        w.processed.Load(),
		Failed:           w.fails.Load(),
		BusyCycles:       snapshot.BusyCycles,
		IdleCycles:       snapshot.IdleCycles,
		LastScalingEvent: snapshot.LastEventTime,
		Replicas:         -1,
	}

	if w.samples == nil {
		last := float64(w.lastSample.Load())
		stats.Samples = SampleSummary{Count: 1, Avg: last, Min: last, Max: last, Last: last}
		return stats, nil
	}

	source, err := readSourceStats(ctx, w.replicas, w.samples)
	if err != nil {
		return stats, err
	}
	stats.Replicas = source.Replicas
	stats.Samples = source.Samples
	return stats, nil
}

// SourceStats is the state of a source shared by all of its replicas.
type SourceStats struct {
	Replicas int
	Samples  SampleSummary
}

// ReadSourceStats reads the replica count and sample history of cfg.SourceID from Redis
// without running a worker.
func ReadSourceStats(ctx context.Context, client *redis.Client, cfg Config) (SourceStats, error) {
	cfg = cfg.withDefaults()
	replicas := newReplicaRegistry(client, cfg.SourceID, "", "", func(error) {})
	return readSourceStats(ctx, replicas, sampleRing(client, cfg))
}

func readSourceStats(ctx context.Context, replicas *replicaRegistry, samples *ring.RedisRing) (SourceStats, error) {
	count, err := replicas.count(ctx)
	if err != nil {
		return SourceStats{}, err
	}

	history, err := samples.GetAll(ctx)
	if err != nil {
		return SourceStats{Replicas: count}, err
	}
	summary := ring.Summarize(history)
	return SourceStats{
		Replicas: count,
		Samples: SampleSummary{
			Count: summary.Count,
			Avg:   summary.Avg,
			Std:   summary.Std,
			Min:   summary.Min,
			Max:   summary.Max,
			Last:  summary.Last,
		},
	}, nil
}

func sampleRing(client *redis.Client, cfg Config) *ring.RedisRing {
	return ring.NewRedisRing(client, cfg.SampleHistory, metricsKeyPrefix+cfg.SourceID+":samples")
}

func (w *Worker) recordSample(sample int64) {
	w.lastSample.Store(sample)
	if w.sampleBulk == nil {
		return
	}
	if err := w.sampleBulk.write(float64(sample)); err != nil {
		w.logger().WithError(err).Debug("sample dropped")
	}
}

func (w *Worker) flushSamples(samples []float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	return w.samples.Add(ctx, samples...)
}
