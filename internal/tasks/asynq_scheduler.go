package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// QueueName is the settlement queue owned by one instance. Transactions live
// in the memory of the instance that created them, so only that instance may
// consume its settlements.
func QueueName(instance string) string { return "settlements:" + instance }

// AsynqScheduler queues delayed settlements in Redis and runs them with
// retries. Handlers run inside this process via Start, on a queue no other
// instance reads.
type AsynqScheduler struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	queue  string
	log    zerolog.Logger
}

func NewAsynqScheduler(opts asynq.RedisClientOpt, instance string, log zerolog.Logger) *AsynqScheduler {
	queue := QueueName(instance)
	return &AsynqScheduler{
		client: asynq.NewClient(opts),
		server: asynq.NewServer(opts, asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				queue: 10,
			},
		}),
		mux:   asynq.NewServeMux(),
		queue: queue,
		log:   log,
	}
}

func (s *AsynqScheduler) Queue() string { return s.queue }

func (s *AsynqScheduler) HandleFunc(taskType string, h HandlerFunc) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// malformed payloads will never succeed
			return fmt.Errorf("decode %s: %v: %w", taskType, err, asynq.SkipRetry)
		}
		if err := h(ctx, p); err != nil {
			s.log.Error().Err(err).Str("task", taskType).Str("transaction_id", p.TransactionID).Msg("task failed")
			if errors.Is(err, ErrNoRetry) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	})
}

func (s *AsynqScheduler) Schedule(ctx context.Context, taskType string, p Payload, delay time.Duration) error {
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = time.Now().UTC()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskType, b)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.ProcessIn(delay),
		asynq.TaskID(taskType+":"+p.TransactionID),
		asynq.MaxRetry(3),
	)
	return err
}

// Start runs the worker in the background.
func (s *AsynqScheduler) Start() {
	go func() {
		if err := s.server.Run(s.mux); err != nil {
			s.log.Error().Err(err).Msg("asynq server stopped")
		}
	}()
	s.log.Info().Msg("asynq scheduler started")
}

func (s *AsynqScheduler) Close() {
	_ = s.client.Close()
	s.server.Shutdown()
}
