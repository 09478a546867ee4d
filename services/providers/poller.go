package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// JobState is the lifecycle of a submitted vendor job
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
)

// Terminal reports whether no further transition is possible
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimedOut
}

// JobHandle tracks one submitted job. It is owned by the polling loop and
// discarded once terminal.
type JobHandle struct {
	ID        string
	CreatedAt time.Time
	State     JobState
	Attempts  int
	// Progress is the last reported vendor progress, 0-100 when known.
	Progress int
}

// PollOutcome is the classification of a single status check
type PollOutcome struct {
	State     JobState
	Status    string
	Progress  int
	ResultURL string
	Reason    string
}

// Pending keeps the job polling
func Pending(status string, progress int) PollOutcome {
	return PollOutcome{State: JobPolling, Status: status, Progress: progress}
}

// Completed finishes the job with a result reference
func Completed(resultURL string) PollOutcome {
	return PollOutcome{State: JobCompleted, Status: string(JobCompleted), Progress: 100, ResultURL: resultURL}
}

// FailedWith terminates the job with the vendor's reason
func FailedWith(reason string) PollOutcome {
	return PollOutcome{State: JobFailed, Status: string(JobFailed), Reason: reason}
}

// CheckFunc performs one status check. A returned error is transient: it is
// logged and the loop continues until the ceiling.
type CheckFunc func(ctx context.Context, job *JobHandle) (PollOutcome, error)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller drives a job from Submitted to a terminal state. Every iteration
// sleeps for Interval first, then checks; cancellation is observed at each
// iteration boundary.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       SleepFunc
	Now         func() time.Time
	Logger      *zap.Logger
}

// NewPoller creates a poller backed by the real clock
func NewPoller(interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		Interval:    interval,
		MaxAttempts: maxAttempts,
		Sleep:       SleepContext,
		Now:         time.Now,
		Logger:      logger,
	}
}

// SleepContext is the default SleepFunc
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submitted creates the handle for a freshly accepted job
func (p *Poller) Submitted(id string) *JobHandle {
	return &JobHandle{ID: id, CreatedAt: p.Now(), State: JobSubmitted}
}

// Run polls job until it completes, fails or exhausts MaxAttempts. On
// completion the result reference is returned.
func (p *Poller) Run(ctx context.Context, provider string, job *JobHandle, check CheckFunc) (string, error) {
	logger := p.Logger.With(zap.String("provider", provider), zap.String("job_id", job.ID))
	job.State = JobPolling

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := p.Sleep(ctx, p.Interval); err != nil {
			job.State = JobTimedOut
			return "", NewProviderError(provider, KindTimeout,
				fmt.Sprintf("polling cancelled after %d attempts", job.Attempts), 0, err)
		}

		job.Attempts = attempt
		outcome, err := check(ctx, job)
		if err != nil {
			logger.Debug("transient poll error", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if outcome.Progress > 0 {
			job.Progress = outcome.Progress
		}

		switch outcome.State {
		case JobCompleted:
			job.State = JobCompleted
			logger.Info("job completed",
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", p.Now().Sub(job.CreatedAt)))
			return outcome.ResultURL, nil

		case JobFailed:
			job.State = JobFailed
			logger.Warn("job failed", zap.Int("attempts", attempt), zap.String("reason", outcome.Reason))
			return "", NewProviderError(provider, KindPollFailed, outcome.Reason, 0, nil)

		default:
			logger.Debug("job pending",
				zap.Int("attempt", attempt),
				zap.String("status", outcome.Status),
				zap.Int("progress", outcome.Progress))
		}
	}

	job.State = JobTimedOut
	return "", NewProviderError(provider, KindTimeout,
		fmt.Sprintf("%s job %s did not finish after %d attempts (%s)",
			provider, job.ID, p.MaxAttempts, p.Interval*time.Duration(p.MaxAttempts)),
		0, nil)
}
