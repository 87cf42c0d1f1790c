// Package ingest runs a user's mail through classification and records
// progress so an interrupted run can pick up where it stopped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/ratelimit"
	"github.com/nhle/applytrack/internal/source"
	"github.com/nhle/applytrack/internal/store"
)

// Status is the outcome of one Run call.
type Status string

const (
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
	StatusConflict    Status = "conflict"

	// StatusInterrupted means ctx was cancelled mid-run. The record stays
	// started so the next worker start redelivers it.
	StatusInterrupted Status = "interrupted"
)

// Filters narrow the candidate messages of a run.
type Filters struct {
	// Since overrides the computed enumeration window.
	Since time.Time

	// Text restricts candidates to messages containing it.
	Text string

	// Mailbox overrides the configured mailbox.
	Mailbox string

	// Incremental starts the window at the last successful run.
	Incremental bool
}

// ResumeHint carries what the caller knows about earlier runs.
type ResumeHint struct {
	// After limits enumeration to items newer than this instant.
	After time.Time
}

// Request starts or resumes one user's run.
type Request struct {
	UserID        string
	Credentials   source.Credentials
	Filters       Filters
	ResumeHint    ResumeHint
	CorrelationID string
}

// Result summarizes a run. Processed counts newly stored records;
// Skipped counts already-stored and not-relevant items; Failed counts
// items given up on.
type Result struct {
	Status        Status
	Processed     int
	Skipped       int
	Failed        int
	Total         int
	NextAllowedAt time.Time
}

// Config tunes the orchestrator.
type Config struct {
	Cooldown  time.Duration
	Lookback  time.Duration
	BatchSize int
}

// ConfigFrom extracts the orchestrator settings from the app config.
func ConfigFrom(cfg *model.AppConfig) Config {
	return Config{
		Cooldown:  cfg.Ingest.Cooldown,
		Lookback:  cfg.Ingest.Lookback,
		BatchSize: cfg.Provider.BatchSize,
	}
}

// Orchestrator drives the fetch, dedup, classify and persist loop.
type Orchestrator struct {
	store    store.Store
	sources  source.Factory
	provider classify.Provider
	patterns *classify.PatternCache
	limiter  *ratelimit.Limiter
	retry    *ratelimit.Classifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPatterns(p *classify.PatternCache) Option {
	return func(o *Orchestrator) { o.patterns = p }
}

// WithLimiter shares a process-wide limiter between orchestrators.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

func WithRetry(c *ratelimit.Classifier) Option {
	return func(o *Orchestrator) { o.retry = c }
}

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// New creates an Orchestrator.
func New(
	st store.Store,
	sources source.Factory,
	provider classify.Provider,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		sources:  sources,
		provider: provider,
		patterns: classify.NewPatternCache(classify.DefaultPatternThreshold),
		limiter:  ratelimit.New(0),
		retry:    ratelimit.NewClassifier(model.RetryConfig{}),
		cfg: Config{
			Cooldown:  time.Hour,
			Lookback:  90 * 24 * time.Hour,
			BatchSize: 1,
		},
		logger: slog.Default(),
		now:    time.Now,
		sleep:  ratelimit.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CooldownUntil reports whether a new run is refused because the last
// successful one finished less than cooldown ago, and when the next one
// is allowed. Failed runs are never subject to the cooldown.
func CooldownUntil(run *model.RunRecord, now time.Time, cooldown time.Duration) (time.Time, bool) {
	if run == nil || run.Status != model.RunFinished || cooldown <= 0 {
		return time.Time{}, false
	}
	if run.Outcome != model.OutcomeSucceeded && run.Outcome != model.OutcomeNone {
		return time.Time{}, false
	}
	next := run.UpdatedAt.Add(cooldown)
	if now.Before(next) {
		return next, true
	}
	return time.Time{}, false
}

// runState is the in-memory progress of one Run call.
type runState struct {
	req Request
	run *model.RunRecord
	log *slog.Logger

	src source.MailSource
	ids []string

	// pos is the in-memory checkpoint: candidates [0, pos) are handled.
	pos    int
	buffer []model.MailRecord

	batch   *classify.Batch
	pending map[string]source.Item

	// failures counts consecutive provider failures across items.
	failures int

	res Result
}

// Run executes one run for req.UserID. The returned error is for logging;
// the run record is left consistent whatever happens.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	log := o.logger.With("user_id", req.UserID, "correlation_id", req.CorrelationID)

	run, err := o.store.GetRun(ctx, req.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		run = &model.RunRecord{UserID: req.UserID, Status: model.RunNotStarted}
	case err != nil:
		return Result{Status: StatusFailed}, fmt.Errorf("loading run: %w", err)
	}

	now := o.now().UTC()
	if next, limited := CooldownUntil(run, now, o.cfg.Cooldown); limited {
		log.Info("run refused by cooldown", "next_allowed_at", next)
		return Result{Status: StatusRateLimited, NextAllowedAt: next}, nil
	}

	resume := run.Resumable()
	o.claim(run, req, now, resume)
	if err := o.store.UpsertRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("run claimed by another worker")
			return Result{Status: StatusConflict}, nil
		}
		return Result{Status: StatusFailed}, fmt.Errorf("claiming run: %w", err)
	}
	log.Info("run started",
		"resume", resume,
		"processed", run.ProcessedCount,
		"window_start", run.WindowStart,
		"mailbox", run.Mailbox,
	)

	st := &runState{req: req, run: run, log: log}
	if _, ok := o.provider.(classify.BatchProvider); ok && o.cfg.BatchSize > 1 {
		st.batch = classify.NewBatch(o.cfg.BatchSize)
		st.pending = make(map[string]source.Item)
	}

	err = o.execute(ctx, st, resume)
	return o.conclude(ctx, st, err)
}

// claim moves run into RunStarted, keeping the checkpoint when resuming.
func (o *Orchestrator) claim(run *model.RunRecord, req Request, now time.Time, resume bool) {
	run.Status = model.RunStarted
	run.Outcome = model.OutcomeNone
	run.ErrorMessage = nil
	run.CorrelationID = req.CorrelationID
	run.UpdatedAt = now
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	if !resume {
		run.ProcessedCount = 0
		run.TotalCount = 0
		run.LastItemID = ""
		run.Mailbox = req.Filters.Mailbox
		run.TextFilter = req.Filters.Text
	}
	if !resume || run.WindowStart == nil {
		ws := o.windowStart(run, req, now)
		run.WindowStart = &ws
	}
}

func (o *Orchestrator) windowStart(run *model.RunRecord, req Request, now time.Time) time.Time {
	switch {
	case !req.Filters.Since.IsZero():
		return req.Filters.Since.UTC()
	case !req.ResumeHint.After.IsZero():
		return req.ResumeHint.After.UTC()
	case req.Filters.Incremental && run.LastSuccessAt != nil:
		return run.LastSuccessAt.UTC()
	default:
		return now.Add(-o.cfg.Lookback)
	}
}

func (o *Orchestrator) execute(ctx context.Context, st *runState, resume bool) error {
	if _, err := o.store.GetUser(ctx, st.req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return permanent(fmt.Errorf("%w: %s", ErrUnknownUser, st.req.UserID))
		}
		return fmt.Errorf("loading user: %w", err)
	}

	src, err := o.sources(ctx, st.req.Credentials)
	if err != nil {
		return sourceError("opening mail source", err)
	}
	if c, ok := src.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				st.log.Debug("closing mail source", "error", err)
			}
		}()
	}
	st.src = src

	// The query comes from the record, not the request, so a resumed run
	// lists the same candidates as the run it continues.
	ids, err := src.ListCandidateIDs(ctx, source.Query{
		Mailbox: st.run.Mailbox,
		Since:   *st.run.WindowStart,
		Text:    st.run.TextFilter,
	})
	if err != nil {
		return sourceError("listing candidates", err)
	}
	st.ids = ids

	offset := 0
	if resume {
		offset = resumeOffset(st.run, ids)
		if offset != st.run.ProcessedCount {
			st.log.Warn("resume watermark moved",
				"checkpoint", st.run.ProcessedCount,
				"offset", offset,
				"last_item_id", st.run.LastItemID,
			)
		}
	}
	st.pos = offset
	st.run.TotalCount = len(ids)
	st.res.Total = len(ids)
	if err := o.checkpoint(ctx, st); err != nil {
		return err
	}

	for i := offset; i < len(ids); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.processItem(ctx, st, ids[i]); err != nil {
			return err
		}
		st.pos = i + 1

		// With a batch outstanding, the items it holds are not finished,
		// so the checkpoint waits for the flush.
		if st.batch == nil || st.batch.Len() == 0 {
			if err := o.checkpoint(ctx, st); err != nil {
				return err
			}
		}
	}

	if st.batch != nil && st.batch.Len() > 0 {
		if err := o.flushBatch(ctx, st); err != nil {
			return err
		}
		return o.checkpoint(ctx, st)
	}
	return nil
}

// resumeOffset returns where a resumed run continues. The checkpoint is
// trusted only while LastItemID still sits just before it; otherwise the
// candidate list changed and the run restarts at 0, where dedup skips
// what is already stored.
func resumeOffset(run *model.RunRecord, ids []string) int {
	p := run.ProcessedCount
	if p > 0 && p <= len(ids) && ids[p-1] == run.LastItemID {
		return p
	}
	return 0
}

func (o *Orchestrator) processItem(ctx context.Context, st *runState, id string) error {
	log := st.log.With("item_id", id)

	exists, err := o.store.Exists(ctx, st.req.UserID, id)
	if err != nil {
		return fmt.Errorf("checking item %s: %w", id, err)
	}
	if exists {
		st.res.Skipped++
		return nil
	}

	item, err := st.src.FetchItem(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if source.IsAuthError(err) || errors.Is(err, source.ErrUnavailable) {
			return sourceError("fetching item", err)
		}
		log.Warn("fetching item failed, skipping", "error", err)
		st.res.Failed++
		return nil
	}
	if item.ID == "" {
		item.ID = id
	}
	text := classificationText(item)

	if r, ok := o.patterns.Lookup(text); ok {
		log.Debug("pattern cache hit", "source", r.Source, "label", r.Label)
		st.record(item, r)
		return nil
	}

	if st.batch != nil {
		st.pending[id] = item
		if st.batch.Add(classify.BatchItem{ID: id, Text: text}) {
			return o.flushBatch(ctx, st)
		}
		return nil
	}

	r, err := callWithRetry(ctx, o, st, func(ctx context.Context) (classify.Result, error) {
		return o.provider.Classify(ctx, text)
	})
	if errors.Is(err, errSkipItem) {
		log.Warn("classification failed, skipping", "error", err)
		st.res.Failed++
		return nil
	}
	if err != nil {
		return err
	}
	st.record(item, r)
	return nil
}

// flushBatch classifies the accumulated items in one provider call. Items
// the answer leaves out are classified one by one.
func (o *Orchestrator) flushBatch(ctx context.Context, st *runState) error {
	items := st.batch.Drain()
	bp := o.provider.(classify.BatchProvider)

	results, err := callWithRetry(ctx, o, st, func(ctx context.Context) (map[string]classify.Result, error) {
		return bp.ClassifyBatch(ctx, items)
	})
	if errors.Is(err, errSkipItem) {
		st.log.Warn("batch classification failed, skipping", "items", len(items), "error", err)
		st.res.Failed += len(items)
		for _, bi := range items {
			delete(st.pending, bi.ID)
		}
		return nil
	}
	if err != nil {
		return err
	}

	for _, bi := range items {
		item := st.pending[bi.ID]
		delete(st.pending, bi.ID)

		r, ok := results[bi.ID]
		if !ok {
			r, err = callWithRetry(ctx, o, st, func(ctx context.Context) (classify.Result, error) {
				return o.provider.Classify(ctx, bi.Text)
			})
			if errors.Is(err, errSkipItem) {
				st.res.Failed++
				continue
			}
			if err != nil {
				return err
			}
		}
		st.record(item, r)
	}
	return nil
}

// callWithRetry makes a rate-limited provider call. A failure is handed to
// the retry classifier: abort ends the run, retry sleeps and tries once
// more, and a second failure gives up on the item with errSkipItem.
func callWithRetry[T any](
	ctx context.Context,
	o *Orchestrator,
	st *runState,
	call func(context.Context) (T, error),
) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := o.limiter.Take(ctx); err != nil {
			return zero, err
		}

		v, err := call(ctx)
		if err == nil {
			st.failures = 0
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, classify.ErrAuth) || errors.Is(err, classify.ErrMalformed) {
			return zero, permanent(err)
		}

		d := o.retry.Classify(err.Error(), st.failures)
		st.failures++
		st.log.Warn("provider call failed",
			"error", err,
			"quota", ratelimit.IsQuotaError(err),
			"kind", d.Kind,
			"retry", d.Retry,
			"wait", d.Wait,
		)

		if !d.Retry {
			if d.Kind == ratelimit.KindUnknown {
				return zero, fmt.Errorf("provider failed %d times in a row (max %d), aborting: %w",
					st.failures, o.retry.MaxAttempts(), err)
			}
			return zero, fmt.Errorf("provider %s limit, aborting: %w", d.Kind, err)
		}
		if attempt > 0 {
			return zero, fmt.Errorf("%w: %w", errSkipItem, err)
		}
		if err := o.sleep(ctx, d.Wait); err != nil {
			return zero, err
		}
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context, st *runState) error {
	st.run.ProcessedCount = st.pos
	st.run.LastItemID = ""
	if st.pos > 0 {
		st.run.LastItemID = st.ids[st.pos-1]
	}
	st.run.UpdatedAt = o.now().UTC()

	if err := o.store.Checkpoint(ctx, st.run, st.buffer); err != nil {
		return fmt.Errorf("checkpointing at %d: %w", st.pos, err)
	}
	st.buffer = nil
	return nil
}

// conclude records the terminal state of the run.
func (o *Orchestrator) conclude(ctx context.Context, st *runState, err error) (Result, error) {
	res := st.res
	now := o.now().UTC()

	switch {
	case err == nil:
		st.run.Status = model.RunFinished
		st.run.Outcome = model.OutcomeSucceeded
		st.run.ErrorMessage = nil
		st.run.LastSuccessAt = &now
		st.run.UpdatedAt = now
		if werr := o.store.Checkpoint(ctx, st.run, st.buffer); werr != nil {
			if errors.Is(werr, store.ErrConflict) {
				st.log.Warn("run taken over before it could finish")
				res.Status = StatusConflict
				return res, nil
			}
			res.Status = StatusFailed
			return res, fmt.Errorf("finishing run: %w", werr)
		}
		res.Status = StatusSucceeded
		st.log.Info("run finished",
			"processed", res.Processed,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"total", res.Total,
		)
		return res, nil

	case errors.Is(err, store.ErrConflict):
		st.log.Warn("run taken over by another worker")
		res.Status = StatusConflict
		return res, nil

	case ctx.Err() != nil:
		st.log.Info("run interrupted", "processed", st.run.ProcessedCount)
		res.Status = StatusInterrupted
		return res, ctx.Err()
	}

	outcome := model.OutcomeFailedResumable
	if isPermanent(err) {
		outcome = model.OutcomeFailed
	}
	msg := err.Error()
	st.run.Status = model.RunFinished
	st.run.Outcome = outcome
	st.run.ErrorMessage = &msg
	st.run.UpdatedAt = now

	if werr := o.store.Checkpoint(context.WithoutCancel(ctx), st.run, st.buffer); werr != nil {
		st.log.Error("recording run failure", "error", werr)
		err = errors.Join(err, werr)
	}

	res.Status = StatusFailed
	st.log.Error("run failed", "outcome", outcome, "error", msg)
	return res, err
}

func (st *runState) record(item source.Item, r classify.Result) {
	if r.NotRelevant() {
		st.res.Skipped++
		return
	}
	st.buffer = append(st.buffer, model.MailRecord{
		UserID:       st.req.UserID,
		MessageID:    item.ID,
		CompanyName:  r.CompanyName,
		StatusLabel:  r.Label,
		JobTitle:     r.JobTitle,
		Subject:      item.Subject,
		Sender:       item.Sender,
		ReceivedAt:   item.Timestamp,
		ClassifiedBy: r.Source,
		Confidence:   r.Confidence,
	})
	st.res.Processed++
}

func sourceError(op string, err error) error {
	if source.IsAuthError(err) {
		return permanent(fmt.Errorf("%s: %w: %w", op, ErrInvalidCredentials, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classificationText joins subject and body; subjects often carry the
// decisive phrase.
func classificationText(item source.Item) string {
	subject := strings.TrimSpace(item.Subject)
	body := strings.TrimSpace(item.Text)
	if subject == "" {
		return body
	}
	return subject + "\n\n" + body
}
