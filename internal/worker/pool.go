package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueLiquidacion = "jobs:liquidacion"
	QueueAlertas     = "jobs:alertas"

	JobLiquidacion  = "liquidacion"
	JobAlertaDesvio = "alerta_desvio"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JobHandler processes one job popped from its queue.
type JobHandler func(ctx context.Context, job Job) error

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueLiquidacion pushes a settlement notification job to Redis.
func (d *Dispatcher) EnqueueLiquidacion(ctx context.Context, payload LiquidacionPayload) error {
	return d.enqueue(ctx, QueueLiquidacion, JobLiquidacion, payload)
}

// EnqueueAlertaDesvio pushes a critical variance alert job to Redis.
func (d *Dispatcher) EnqueueAlertaDesvio(ctx context.Context, payload AlertaDesvioPayload) error {
	return d.enqueue(ctx, QueueAlertas, JobAlertaDesvio, payload)
}

// DeadLetter moves a job that exhausted its retries to the DLQ of queue.
func (d *Dispatcher) DeadLetter(ctx context.Context, queue, jobType string, payload any, reason string, attempts int) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal payload")
		return
	}
	SendToDLQ(ctx, d.rdb, queue, jobType, data, reason, attempts)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// StartWorkerPool launches numWorkers goroutines consuming every queue in
// handlers. Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers map[string]JobHandler) {
	queues := make([]string, 0, len(handlers))
	for q := range handlers {
		queues = append(queues, q)
	}
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, queues, handlers)
	}
	log.Info().Strs("queues", queues).Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, queues []string, handlers map[string]JobHandler) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop; waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, handlers map[string]JobHandler, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}
	h, ok := handlers[queue]
	if !ok {
		log.Error().Str("type", job.Type).Str("queue", queue).Msg("no handler for queue")
		return
	}
	if err := h(ctx, job); err != nil {
		log.Error().Err(err).Str("type", job.Type).Str("queue", queue).Msg("job failed")
	}
}
