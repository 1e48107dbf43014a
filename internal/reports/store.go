package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-komisi/internal/commission"
)

// ErrNotFound is returned for unknown or expired report and job ids.
var ErrNotFound = errors.New("report not found")

const (
	artifactPrefix = "commission:report:"
	jobPrefix      = "commission:job:"
)

// Artifact is a rendered report kept for later download.
type Artifact struct {
	ID              string    `json:"id"`
	FileName        string    `json:"file_name"`
	Content         []byte    `json:"content"`
	Path            string    `json:"path,omitempty"`
	Rows            int       `json:"rows"`
	Tiers           int       `json:"tiers"`
	TotalNetSales   string    `json:"total_net_sales"`
	TotalCommission int64     `json:"total_commission"`
	CreatedAt       time.Time `json:"created_at"`
}

// JobState tracks an asynchronous generation.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is the externally visible status of an asynchronous generation.
type Job struct {
	ID        string                  `json:"id"`
	State     JobState                `json:"status"`
	ReportID  string                  `json:"report_id,omitempty"`
	FileName  string                  `json:"file_name,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Problems  []commission.FieldError `json:"problems,omitempty"`
	Attempts  int                     `json:"attempts"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Store wraps Redis helpers for report artifacts and job status as JSON payloads.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a store whose entries expire after ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// SaveArtifact stores a rendered report under its id.
func (s *Store) SaveArtifact(ctx context.Context, artifact *Artifact) error {
	return s.setJSON(ctx, artifactPrefix+artifact.ID, artifact)
}

// Artifact loads a rendered report. Unknown ids yield ErrNotFound.
func (s *Store) Artifact(ctx context.Context, id string) (*Artifact, error) {
	var artifact Artifact
	if err := s.getJSON(ctx, artifactPrefix+id, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// SaveJob records the current status of a job.
func (s *Store) SaveJob(ctx context.Context, job *Job) error {
	return s.setJSON(ctx, jobPrefix+job.ID, job)
}

// Job loads a job status. Unknown ids yield ErrNotFound.
func (s *Store) Job(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.getJSON(ctx, jobPrefix+id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis not configured")
	}
	return s.client.Ping(ctx).Err()
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) error {
	if s == nil || s.client == nil || key == "" {
		return ErrNotFound
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}
