package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/signup"
	"github.com/xkilldash9x/bizmint-cli/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedRunner replays a fixed sequence of attempt results.
type scriptedRunner struct {
	mu      sync.Mutex
	results []signup.Result
	calls   int
	block   chan struct{} // when set, every attempt waits here first
	delay   time.Duration
}

func (r *scriptedRunner) Run(context.Context, string) signup.Result {
	if r.block != nil {
		<-r.block
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if i < len(r.results) {
		return r.results[i]
	}
	return signup.Result{Err: errors.New("unscripted attempt")}
}

type captureSink struct {
	mu    sync.Mutex
	creds []store.Credential
	err   error
}

func (s *captureSink) Append(cred store.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.creds = append(s.creds, cred)
	return nil
}

func fastOrchestrator(runner Runner, sink CredentialSink) *Orchestrator {
	o := New(runner, sink, 2*time.Second, zap.NewNop())
	o.minPause = time.Millisecond
	o.maxPause = 2 * time.Millisecond
	return o
}

func waitFinished(t *testing.T, o *Orchestrator, id string) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		snap, ok := o.GetTask(id)
		if !ok {
			return false
		}
		task = snap
		return snap.Status == StatusSuccess || snap.Status == StatusFailed
	}, 5*time.Second, 5*time.Millisecond)
	return task
}

func TestBatchCountInvariants(t *testing.T) {
	runner := &scriptedRunner{results: []signup.Result{
		{Mailbox: "a@x.test", Succeeded: true, Credential: &store.Credential{ID: "a@x.test"}},
		{Mailbox: "b@x.test", Err: errors.New("element_not_found: email field never appeared")},
		{Mailbox: "c@x.test", Succeeded: true, Credential: &store.Credential{ID: "c@x.test"}},
		{Mailbox: "d@x.test", Err: errors.New("code_timeout: no verification code")},
	}}
	sink := &captureSink{}
	o := fastOrchestrator(runner, sink)

	task, err := o.Start(context.Background(), 4, "")
	require.NoError(t, err)

	done := waitFinished(t, o, task.ID)
	assert.Equal(t, StatusSuccess, done.Status)
	assert.Equal(t, 4, done.CompletedCount)
	assert.Equal(t, done.CompletedCount, done.SuccessCount+done.FailCount)
	assert.Equal(t, 2, done.SuccessCount)
	assert.Equal(t, 2, done.FailCount)
	assert.Len(t, done.Results, 4)
	assert.NotNil(t, done.FinishedAt)
	assert.Len(t, sink.creds, 2, "every successful attempt persists its credential")

	// The harvested credential rides along in the task record.
	require.NotNil(t, done.Results[0].Credential)
	assert.Equal(t, "a@x.test", done.Results[0].Credential.ID)
	assert.Nil(t, done.Results[1].Credential)
}

func TestAllFailuresMarksTaskFailed(t *testing.T) {
	runner := &scriptedRunner{results: []signup.Result{
		{Err: errors.New("allocation_failed")},
		{Err: errors.New("allocation_failed")},
	}}
	o := fastOrchestrator(runner, &captureSink{})

	task, err := o.Start(context.Background(), 2, "")
	require.NoError(t, err)

	done := waitFinished(t, o, task.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Zero(t, done.SuccessCount)
}

func TestZeroCountBatchFails(t *testing.T) {
	o := fastOrchestrator(&scriptedRunner{}, &captureSink{})
	task, err := o.Start(context.Background(), 0, "")
	require.NoError(t, err)

	done := waitFinished(t, o, task.ID)
	assert.Equal(t, StatusFailed, done.Status, "a batch with no successes is failed")
	assert.Zero(t, done.CompletedCount)
}

func TestStartRejectsWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	runner := &scriptedRunner{
		block:   gate,
		results: []signup.Result{{Mailbox: "a@x.test", Succeeded: true, Credential: &store.Credential{}}},
	}
	o := fastOrchestrator(runner, &captureSink{})

	first, err := o.Start(context.Background(), 1, "")
	require.NoError(t, err)

	_, err = o.Start(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrTaskRunning)

	// The rejection must not have touched the running task.
	snap, ok := o.GetTask(first.ID)
	require.True(t, ok)
	assert.Zero(t, snap.CompletedCount)
	active, ok := o.ActiveTask()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)

	close(gate)
	waitFinished(t, o, first.ID)

	// A finished task frees the slot.
	second, err := o.Start(context.Background(), 0, "")
	require.NoError(t, err)
	waitFinished(t, o, second.ID)
}

func TestStartRejectsNegativeCount(t *testing.T) {
	o := fastOrchestrator(&scriptedRunner{}, &captureSink{})
	_, err := o.Start(context.Background(), -1, "")
	assert.Error(t, err)

	// The slot must not leak on a rejected request.
	task, err := o.Start(context.Background(), 0, "")
	require.NoError(t, err)
	waitFinished(t, o, task.ID)
}

func TestAttemptTimeoutIsANormalFailure(t *testing.T) {
	runner := &scriptedRunner{
		delay: 150 * time.Millisecond,
		results: []signup.Result{
			{Succeeded: true, Credential: &store.Credential{}},
			{Mailbox: "b@x.test", Succeeded: true, Credential: &store.Credential{ID: "b@x.test"}},
		},
	}
	o := fastOrchestrator(runner, &captureSink{})
	o.attemptBudget = 30 * time.Millisecond

	task, err := o.Start(context.Background(), 2, "")
	require.NoError(t, err)

	done := waitFinished(t, o, task.ID)
	assert.Equal(t, 2, done.CompletedCount, "a timed-out attempt never stalls the batch")
	require.NotEmpty(t, done.Results)
	assert.Contains(t, done.Results[0].Error, "attempt_timed_out")

	// Let the abandoned workers drain before the leak check.
	time.Sleep(400 * time.Millisecond)
}

func TestPanickingAttemptIsContained(t *testing.T) {
	runner := &panicRunner{}
	o := fastOrchestrator(runner, &captureSink{})

	task, err := o.Start(context.Background(), 1, "")
	require.NoError(t, err)

	done := waitFinished(t, o, task.ID)
	assert.Equal(t, StatusFailed, done.Status)
	require.Len(t, done.Results, 1)
	assert.Contains(t, done.Results[0].Error, "panicked")
	assert.Empty(t, done.Error, "an attempt panic is not an orchestration defect")
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, string) signup.Result {
	panic("renderer exploded")
}

func TestSinkFailureKeepsAttemptSuccess(t *testing.T) {
	runner := &scriptedRunner{results: []signup.Result{
		{Mailbox: "a@x.test", Succeeded: true, Credential: &store.Credential{ID: "a@x.test"}},
	}}
	sink := &captureSink{err: errors.New("disk full")}
	o := fastOrchestrator(runner, sink)

	task, err := o.Start(context.Background(), 1, "")
	require.NoError(t, err)

	// The account was created; losing the file write does not un-create it.
	done := waitFinished(t, o, task.ID)
	assert.Equal(t, StatusSuccess, done.Status)
	require.Len(t, done.Results, 1)
	assert.True(t, done.Results[0].Succeeded)
	require.NotNil(t, done.Results[0].Credential, "the credential stays readable from the task record")
	assert.Equal(t, "a@x.test", done.Results[0].Credential.ID)
	assert.Empty(t, sink.creds)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	runner := &scriptedRunner{results: []signup.Result{
		{Mailbox: "a@x.test", Succeeded: true, Credential: &store.Credential{ID: "a@x.test", ConfigID: "cfg-1"}},
	}}
	o := fastOrchestrator(runner, &captureSink{})

	task, err := o.Start(context.Background(), 1, "")
	require.NoError(t, err)
	done := waitFinished(t, o, task.ID)

	done.Results[0].Mailbox = "tampered"
	done.Results[0].Credential.ConfigID = "tampered"
	done.SuccessCount = 99

	fresh, ok := o.GetTask(task.ID)
	require.True(t, ok)
	assert.Equal(t, "a@x.test", fresh.Results[0].Mailbox)
	assert.Equal(t, "cfg-1", fresh.Results[0].Credential.ConfigID)
	assert.Equal(t, 1, fresh.SuccessCount)
}

func TestGetTaskUnknownID(t *testing.T) {
	o := fastOrchestrator(&scriptedRunner{}, &captureSink{})
	_, ok := o.GetTask("nope")
	assert.False(t, ok)
	_, ok = o.ActiveTask()
	assert.False(t, ok)
}
