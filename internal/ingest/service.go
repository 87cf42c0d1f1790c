package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/queue"
	"github.com/nhle/applytrack/internal/source"
	"github.com/nhle/applytrack/internal/store"
)

// StartStatus is the answer to a StartRun call.
type StartStatus string

const (
	StartStarted     StartStatus = "started"
	StartRateLimited StartStatus = "rate_limited"
)

// StartResult is returned by StartRun.
type StartResult struct {
	Status        StartStatus `json:"status"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	NextAllowedAt *time.Time  `json:"next_allowed_at,omitempty"`
}

// RunStatus is the externally visible state of a user's run.
type RunStatus struct {
	Status         model.RunStatus  `json:"status"`
	Outcome        model.RunOutcome `json:"outcome,omitempty"`
	ProcessedCount int              `json:"processed_count"`
	TotalCount     int              `json:"total_count"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	CorrelationID  string           `json:"correlation_id,omitempty"`
}

// CredentialLookup returns the stored mail credentials of a user.
type CredentialLookup func(ctx context.Context, userID string) (source.Credentials, error)

// Service is the trigger and status surface over the worker pool.
type Service struct {
	orch   *Orchestrator
	pool   *queue.Pool
	store  store.Store
	creds  CredentialLookup
	logger *slog.Logger
}

// NewService creates a Service. creds is used to redeliver interrupted runs.
func NewService(
	orch *Orchestrator,
	pool *queue.Pool,
	st store.Store,
	creds CredentialLookup,
) *Service {
	return &Service{
		orch:   orch,
		pool:   pool,
		store:  st,
		creds:  creds,
		logger: orch.logger,
	}
}

// StartRun enqueues a run unless the cooldown refuses it. It never waits
// for the run itself; failures end up in the run record.
func (s *Service) StartRun(
	ctx context.Context,
	userID string,
	creds source.Credentials,
	filters Filters,
) (StartResult, error) {
	run, err := s.store.GetRun(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return StartResult{}, fmt.Errorf("loading run: %w", err)
	}

	if next, limited := CooldownUntil(run, s.orch.now().UTC(), s.orch.cfg.Cooldown); limited {
		return StartResult{Status: StartRateLimited, NextAllowedAt: &next}, nil
	}

	var hint ResumeHint
	if run != nil && run.LastSuccessAt != nil && filters.Incremental {
		hint.After = *run.LastSuccessAt
	}

	id, err := s.submit(userID, creds, filters, hint)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Status: StartStarted, CorrelationID: id}, nil
}

// GetStatus reports the user's run; a user without one is not_started.
func (s *Service) GetStatus(ctx context.Context, userID string) (RunStatus, error) {
	return StatusOf(ctx, s.store, userID)
}

// StatusOf reads a user's run status straight from st.
func StatusOf(ctx context.Context, st store.Store, userID string) (RunStatus, error) {
	run, err := st.GetRun(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return RunStatus{Status: model.RunNotStarted}, nil
	}
	if err != nil {
		return RunStatus{}, fmt.Errorf("loading run: %w", err)
	}

	updated := run.UpdatedAt
	return RunStatus{
		Status:         run.Status,
		Outcome:        run.Outcome,
		ProcessedCount: run.ProcessedCount,
		TotalCount:     run.TotalCount,
		UpdatedAt:      &updated,
		ErrorMessage:   run.Error(),
		CorrelationID:  run.CorrelationID,
	}, nil
}

// Redeliver resubmits every run left started by a stopped or crashed
// worker. It returns how many runs were resubmitted.
func (s *Service) Redeliver(ctx context.Context) (int, error) {
	runs, err := s.store.ListRuns(ctx, model.RunStarted)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, run := range runs {
		creds, err := s.creds(ctx, run.UserID)
		if err != nil {
			s.logger.Warn("cannot redeliver run, credentials unavailable",
				"user_id", run.UserID, "error", err)
			continue
		}
		if _, err := s.submit(run.UserID, creds, Filters{}, ResumeHint{}); err != nil {
			s.logger.Warn("redelivering run", "user_id", run.UserID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// StartAll triggers a run for every registered user, as a scheduler tick.
// Users inside their cooldown or without credentials are skipped.
func (s *Service) StartAll(ctx context.Context, filters Filters) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, u := range users {
		creds, err := s.creds(ctx, u.ID)
		if err != nil {
			s.logger.Debug("skipping user without credentials", "user_id", u.ID, "error", err)
			continue
		}
		res, err := s.StartRun(ctx, u.ID, creds, filters)
		if err != nil {
			s.logger.Warn("starting run", "user_id", u.ID, "error", err)
			continue
		}
		if res.Status == StartStarted {
			n++
		}
	}
	return n, nil
}

func (s *Service) submit(
	userID string,
	creds source.Credentials,
	filters Filters,
	hint ResumeHint,
) (string, error) {
	id, err := s.pool.Submit(userID, func(ctx context.Context, correlationID string) {
		_, _ = s.orch.Run(ctx, Request{
			UserID:        userID,
			Credentials:   creds,
			Filters:       filters,
			ResumeHint:    hint,
			CorrelationID: correlationID,
		})
	})
	if err != nil {
		return "", fmt.Errorf("submitting run for %s: %w", userID, err)
	}
	return id, nil
}
