package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/repository"
)

const (
	StatsBatchSize    = 50
	StatsBatchTimeout = 2 * time.Second
	StatsPollTimeout  = 1 * time.Second
)

type statsRefresher interface {
	RefreshBatch(ctx context.Context, keys []repository.StatsKey) error
	Refresh(ctx context.Context, key repository.StatsKey) error
}

// AttemptStatsWorker drains the stats queue filled on every persisted attempt
// and refreshes the per-(exam, user) aggregates in batches.
type AttemptStatsWorker struct {
	stats statsRefresher
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewAttemptStatsWorker(stats statsRefresher, rdb *redis.Client, log zerolog.Logger) *AttemptStatsWorker {
	return &AttemptStatsWorker{
		stats: stats,
		rdb:   rdb,
		log:   log.With().Str("component", "attempt_stats_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *AttemptStatsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptStatsWorker started")

	batch := make([]repository.StatsKey, 0, StatsBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= StatsBatchSize || time.Since(lastFlush) >= StatsBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			key, ok := w.pop(ctx)
			if ok {
				batch = append(batch, key)
			}
		}
	}
}

func (w *AttemptStatsWorker) pop(ctx context.Context) (repository.StatsKey, bool) {
	var key repository.StatsKey

	item, err := w.rdb.BLPop(ctx, StatsPollTimeout, config.WorkerKey.PersistAttemptStatsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			// Avoid a hot loop while Redis is unreachable.
			time.Sleep(StatsPollTimeout)
		}
		return key, false
	}
	if len(item) < 2 {
		return key, false
	}

	if err := json.Unmarshal([]byte(item[1]), &key); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		metrics.StatsQueueProcessed.WithLabelValues("invalid").Inc()
		return key, false
	}
	return key, true
}

// ----------------------------------------------------------------
// Batch refresh with row-by-row fallback
// ----------------------------------------------------------------

func (w *AttemptStatsWorker) flushSafe(ctx context.Context, batch []repository.StatsKey) {
	if len(batch) == 0 {
		return
	}
	keys := dedupe(batch)

	if err := w.stats.RefreshBatch(ctx, keys); err != nil {
		w.log.Warn().Err(err).Msg("bulk stats refresh failed, using fallback")

		for _, k := range keys {
			if err := w.stats.Refresh(ctx, k); err != nil {
				w.log.Error().Err(err).Str("exam_id", k.ExamID.String()).Msg("stats refresh failed, requeueing")
				metrics.StatsQueueProcessed.WithLabelValues("requeued").Inc()
				raw, _ := json.Marshal(k)
				w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptStatsQueue, raw)
				continue
			}
			metrics.StatsQueueProcessed.WithLabelValues("ok").Inc()
		}
		return
	}

	metrics.StatsQueueProcessed.WithLabelValues("ok").Add(float64(len(keys)))
	w.log.Debug().Int("keys", len(keys)).Msg("Attempt stats refreshed")
}

// dedupe drops repeated keys, keeping first-seen order.
func dedupe(batch []repository.StatsKey) []repository.StatsKey {
	seen := make(map[repository.StatsKey]struct{}, len(batch))
	out := make([]repository.StatsKey, 0, len(batch))
	for _, k := range batch {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
