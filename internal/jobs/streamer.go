package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/events"
	"github.com/chainbid/relay/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

// DefaultTimeout bounds the upstream call for a single job. A job that
// overruns it lands in the error state.
const DefaultTimeout = 60 * time.Second

// NotConfiguredNotice is the terminal output of a job submitted while no
// upstream is configured. The job still completes so the client sees a
// clean done event instead of a hard failure.
const NotConfiguredNotice = "llm upstream not configured; request recorded but not forwarded"

// Upstream drives the actual text generation. Satisfied by llm.Client.
type Upstream interface {
	Configured() bool
	Stream(ctx context.Context, model, prompt string, onChunk func(string)) error
}

type jobState struct {
	job    models.Job
	output []byte
}

// Streamer owns the job table. Submit spawns exactly one goroutine per job
// which drives it queued -> running -> done|error; jobs are not
// cancellable, consumers just stop polling.
type Streamer struct {
	upstream  Upstream
	publisher events.Publisher
	log       *zap.Logger
	timeout   time.Duration

	mu   sync.RWMutex
	jobs map[uuid.UUID]*jobState

	now func() time.Time
}

func NewStreamer(upstream Upstream, publisher events.Publisher, log *zap.Logger) *Streamer {
	return &Streamer{
		upstream:  upstream,
		publisher: publisher,
		log:       log,
		timeout:   DefaultTimeout,
		jobs:      make(map[uuid.UUID]*jobState),
		now:       time.Now,
	}
}

// Submit records a queued job and returns its id immediately. The job is
// detached from the request context on purpose: the caller's request ends
// long before the upstream stream does.
func (s *Streamer) Submit(ctx context.Context, address, model, prompt string) (uuid.UUID, error) {
	id := uuid.New()
	now := s.now()

	s.mu.Lock()
	s.jobs[id] = &jobState{job: models.Job{
		ID:        id,
		Address:   address,
		Model:     model,
		Status:    models.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.mu.Unlock()

	go s.run(id, model, prompt)
	return id, nil
}

// Poll returns the job snapshot plus any output appended since cursor.
// next is the cursor for the following call. Once status is done the
// accumulated output is final.
func (s *Streamer) Poll(jobID uuid.UUID, cursor int) (job models.Job, fragment string, next int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, "", 0, ErrJobNotFound
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(state.output) {
		cursor = len(state.output)
	}
	return state.job, string(state.output[cursor:]), len(state.output), nil
}

// Get returns the snapshot with the full accumulated output.
func (s *Streamer) Get(jobID uuid.UUID) (models.Job, error) {
	job, output, _, err := s.Poll(jobID, 0)
	if err != nil {
		return models.Job{}, err
	}
	job.Output = output
	return job, nil
}

// List returns snapshots of every job, newest first, without output
// buffers. Used by the audit endpoint.
func (s *Streamer) List() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Job, 0, len(s.jobs))
	for _, state := range s.jobs {
		out = append(out, state.job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Streamer) run(id uuid.UUID, model, prompt string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job runner panicked", zap.String("job_id", id.String()), zap.Any("panic", r))
			s.finish(id, models.JobStatusError, "internal error")
		}
	}()

	if !s.upstream.Configured() {
		s.log.Warn("llm request accepted without upstream, not forwarding",
			zap.String("job_id", id.String()))
		s.append(id, NotConfiguredNotice)
		s.finish(id, models.JobStatusDone, "")
		return
	}

	s.setStatus(id, models.JobStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.upstream.Stream(ctx, model, prompt, func(chunk string) {
		s.append(id, chunk)
	})
	if err != nil {
		s.log.Warn("job failed", zap.String("job_id", id.String()), zap.Error(err))
		s.finish(id, models.JobStatusError, err.Error())
		return
	}
	s.finish(id, models.JobStatusDone, "")
}

func (s *Streamer) append(id uuid.UUID, chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.jobs[id]; ok {
		state.output = append(state.output, chunk...)
		state.job.UpdatedAt = s.now()
	}
}

func (s *Streamer) setStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	state, ok := s.jobs[id]
	if ok {
		state.job.Status = status
		state.job.UpdatedAt = s.now()
	}
	s.mu.Unlock()
	if ok {
		s.publish(id, status)
	}
}

func (s *Streamer) finish(id uuid.UUID, status, errMsg string) {
	s.mu.Lock()
	state, ok := s.jobs[id]
	if ok && state.job.Status != models.JobStatusDone && state.job.Status != models.JobStatusError {
		state.job.Status = status
		state.job.Error = errMsg
		state.job.UpdatedAt = s.now()
	} else {
		ok = false
	}
	s.mu.Unlock()
	if ok {
		s.publish(id, status)
	}
}

func (s *Streamer) publish(id uuid.UUID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, events.StreamRelay, events.Event{
		Type: events.EventJobStatusChanged,
		Payload: map[string]any{
			"job_id": id.String(),
			"status": status,
		},
	}); err != nil {
		s.log.Warn("failed to publish job event", zap.Error(err))
	}
}
