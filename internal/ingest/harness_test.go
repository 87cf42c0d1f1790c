package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/ratelimit"
	"github.com/nhle/applytrack/internal/source"
	"github.com/nhle/applytrack/internal/store"
	"github.com/nhle/applytrack/tests/testutil"
)

const testUser = "u1"

// fakeSource is an in-memory mail source that records every call.
type fakeSource struct {
	mu sync.Mutex

	ids      []string
	boxes    map[string][]string
	items    map[string]source.Item
	fetchErr map[string]error
	listErr  error

	// onFetch runs before an item is returned.
	onFetch func(id string)

	queries []source.Query
	fetches []string
	closed  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		boxes:    make(map[string][]string),
		items:    make(map[string]source.Item),
		fetchErr: make(map[string]error),
	}
}

// addTo files a message under a named mailbox instead of the default one.
func (f *fakeSource) addTo(mailbox, id, subject, text string) {
	f.add(id, subject, text)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = f.ids[:len(f.ids)-1]
	f.boxes[mailbox] = append(f.boxes[mailbox], id)
}

func (f *fakeSource) add(id, subject, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.items[id] = source.Item{
		ID:        id,
		Subject:   subject,
		Text:      text,
		Sender:    "jobs@example.com",
		Timestamp: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeSource) ListCandidateIDs(_ context.Context, q source.Query) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if ids, ok := f.boxes[q.Mailbox]; ok {
		return append([]string(nil), ids...), nil
	}
	return append([]string(nil), f.ids...), nil
}

func (f *fakeSource) FetchItem(_ context.Context, id string) (source.Item, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, id)
	hook := f.onFetch
	err := f.fetchErr[id]
	item, ok := f.items[id]
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err != nil {
		return source.Item{}, err
	}
	if !ok {
		return source.Item{}, fmt.Errorf("no message %s", id)
	}
	return item, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

func (f *fakeSource) lastQuery() source.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return source.Query{}
	}
	return f.queries[len(f.queries)-1]
}

func (f *fakeSource) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = nil
	f.queries = nil
}

// harness wires an orchestrator to an in-memory store, a fake source, a
// static provider and a fake clock.
type harness struct {
	t        *testing.T
	store    *store.SQLStore
	src      *fakeSource
	provider *classify.Static

	mu    sync.Mutex
	now   time.Time
	slept []time.Duration

	factoryErr error
	cfg        Config
	retry      model.RetryConfig
	rpm        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		store: testutil.NewTestStore(t),
		src:   newFakeSource(),
		provider: classify.NewStatic(classify.StaticRule{
			Contains: "acme",
			Result:   classify.Result{Label: classify.LabelRejection, CompanyName: "Acme"},
		}),
		now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		cfg: Config{
			Cooldown:  time.Hour,
			Lookback:  90 * 24 * time.Hour,
			BatchSize: 1,
		},
	}
	require.NoError(t, h.store.UpsertUser(context.Background(), model.User{
		ID: testUser, Email: "u1@example.com",
	}))
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.slept = append(h.slept, d)
	h.now = h.now.Add(d)
	return nil
}

func (h *harness) sleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.slept...)
}

func (h *harness) orchestrator(st store.Store) *Orchestrator {
	if st == nil {
		st = h.store
	}
	factory := func(context.Context, source.Credentials) (source.MailSource, error) {
		if h.factoryErr != nil {
			return nil, h.factoryErr
		}
		return h.src, nil
	}
	return New(st, factory, h.provider,
		WithConfig(h.cfg),
		WithClock(h.clock),
		WithSleep(h.sleep),
		WithLimiter(ratelimit.New(h.rpm,
			ratelimit.WithClock(h.clock),
			ratelimit.WithSleep(h.sleep),
		)),
		WithRetry(ratelimit.NewClassifier(h.retry).WithClock(h.clock)),
	)
}

func (h *harness) run(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		req.UserID = testUser
	}
	if req.CorrelationID == "" {
		req.CorrelationID = "corr-1"
	}
	return h.orchestrator(nil).Run(ctx, req)
}

func (h *harness) record() *model.RunRecord {
	h.t.Helper()
	run, err := h.store.GetRun(context.Background(), testUser)
	require.NoError(h.t, err)
	return run
}

func (h *harness) stored() map[string]model.MailRecord {
	h.t.Helper()
	recs, err := h.store.ListMailRecords(context.Background(), testUser)
	require.NoError(h.t, err)
	out := make(map[string]model.MailRecord, len(recs))
	for _, r := range recs {
		out[r.MessageID] = r
	}
	return out
}

// requireAccountedFor checks that no candidate was passed over: each one
// is stored or was at least fetched, and so counted as failed or skipped.
func (h *harness) requireAccountedFor(ids ...string) {
	h.t.Helper()

	stored := h.stored()
	fetched := h.src.fetched()
	for _, id := range ids {
		if _, ok := stored[id]; ok {
			continue
		}
		require.Contains(h.t, fetched, id, "candidate %s neither stored nor fetched", id)
	}
}

func quotaErr(msg string) error {
	return &classify.ProviderError{Provider: "static", Kind: classify.KindQuota, Message: msg}
}

var errTransient = errors.New("connection reset by peer")
