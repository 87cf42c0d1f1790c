package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/ingest"
	"github.com/nhle/applytrack/internal/model"
)

type fakeBackend struct {
	status  ingest.RunStatus
	records []model.MailRecord
	start   ingest.StartResult
	err     error
	starts  int
}

func (f *fakeBackend) Status(context.Context, string) (ingest.RunStatus, error) {
	return f.status, f.err
}

func (f *fakeBackend) Start(context.Context, string) (ingest.StartResult, error) {
	f.starts++
	return f.start, f.err
}

func (f *fakeBackend) Records(context.Context, string) ([]model.MailRecord, error) {
	return f.records, nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(Model)
	require.True(t, ok)
	return wm, cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRefreshLoadsStatus(t *testing.T) {
	now := time.Now()
	backend := &fakeBackend{
		status: ingest.RunStatus{
			Status:         model.RunStarted,
			ProcessedCount: 3,
			TotalCount:     6,
			UpdatedAt:      &now,
			CorrelationID:  "corr-1",
		},
		records: []model.MailRecord{
			{MessageID: "1", StatusLabel: classify.LabelOffer, CompanyName: "Acme", JobTitle: "Engineer", Subject: "Offer"},
			{MessageID: "2", StatusLabel: classify.LabelRejection, CompanyName: "Initech", JobTitle: "unknown", Subject: "Update"},
		},
	}
	m := New(backend, "u1", time.Second)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	msg := m.refresh()()
	m, _ = update(t, m, msg)

	assert.True(t, m.loaded)
	assert.Equal(t, 3, m.status.ProcessedCount)
	assert.Len(t, m.records, 2)

	view := m.View()
	assert.Contains(t, view, "Running")
	assert.Contains(t, view, "3 / 6 messages")
	assert.Contains(t, view, "Acme")
	assert.Contains(t, view, "corr-1")
}

func TestStartKeyTriggersRun(t *testing.T) {
	backend := &fakeBackend{start: ingest.StartResult{Status: ingest.StartStarted, CorrelationID: "corr-9"}}
	m := New(backend, "u1", time.Second)

	m, cmd := update(t, m, keyMsg("s"))
	require.NotNil(t, cmd)
	assert.Equal(t, "starting run...", m.notice)

	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, backend.starts)
	assert.Equal(t, "run queued as corr-9", m.notice)
}

func TestStartRateLimitedNotice(t *testing.T) {
	next := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	m := New(&fakeBackend{}, "u1", time.Second)

	m, _ = update(t, m, startedMsg{result: ingest.StartResult{
		Status: ingest.StartRateLimited, NextAllowedAt: &next,
	}})
	assert.Contains(t, m.notice, "cooling down until")
}

func TestStatusErrorIsShown(t *testing.T) {
	m := New(&fakeBackend{err: errors.New("database is locked")}, "u1", time.Second)

	m, _ = update(t, m, m.refresh()())
	assert.Contains(t, m.View(), "database is locked")
}

func TestCursorStaysInRange(t *testing.T) {
	m := New(&fakeBackend{}, "u1", time.Second)
	m, _ = update(t, m, statusMsg{records: []model.MailRecord{{MessageID: "1"}, {MessageID: "2"}}})

	for range 5 {
		m, _ = update(t, m, keyMsg("j"))
	}
	assert.Equal(t, 1, m.cursor)

	for range 5 {
		m, _ = update(t, m, keyMsg("k"))
	}
	assert.Equal(t, 0, m.cursor)
}

func TestQuit(t *testing.T) {
	m := New(&fakeBackend{}, "u1", time.Second)
	_, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRunLabel(t *testing.T) {
	assert.Equal(t, "No run yet", runLabel(ingest.RunStatus{Status: model.RunNotStarted}))
	assert.Equal(t, "Finished", runLabel(ingest.RunStatus{Status: model.RunFinished, Outcome: model.OutcomeSucceeded}))
	assert.Equal(t, "Stopped, will resume", runLabel(ingest.RunStatus{Status: model.RunFinished, Outcome: model.OutcomeFailedResumable}))
	assert.Equal(t, "Failed", runLabel(ingest.RunStatus{Status: model.RunFinished, Outcome: model.OutcomeFailed}))
	assert.Zero(t, ratio(1, 0))
	assert.Equal(t, 0.5, ratio(2, 4))
}
