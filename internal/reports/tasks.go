package reports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
)

// TypeGenerateReport is the asynq task type for background report generation.
const TypeGenerateReport = "commission:generate"

// GeneratePayload carries an uploaded ledger through the task queue.
type GeneratePayload struct {
	JobID      string `json:"job_id"`
	FileName   string `json:"file_name"`
	OutputName string `json:"output_name"`
	Content    []byte `json:"content"`
}

// TaskRedisOpt points asynq at the same Redis, including TLS for rediss:// URLs.
func TaskRedisOpt(opts *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:   opts.Network,
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

// NewGenerateTask encodes the payload as an asynq task.
func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode task payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateReport, data), nil
}

// TaskHandler processes report generation tasks on the worker.
type TaskHandler struct {
	Service *Service
}

// ProcessTask implements asynq.Handler.
func (h TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.JobID = id
		}
	}
	return h.Service.ProcessJob(ctx, payload)
}

// Register mounts the handler on an asynq mux.
func (h TaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeGenerateReport, h)
}
