// File: internal/orchestrator/orchestrator.go
//
// The batch orchestrator owns the queue of accounts to create. It runs one
// signup attempt at a time on a dedicated worker (the driver controls a
// single browser), paces attempts with jittered delays, and aggregates
// per-attempt results into a task record observable by callers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/bizmint-cli/internal/guard"
	"github.com/xkilldash9x/bizmint-cli/internal/signup"
	"github.com/xkilldash9x/bizmint-cli/internal/store"
)

// ErrTaskRunning rejects a start request while another task is active. The
// request is not queued; the caller must retry after the active task ends.
var ErrTaskRunning = errors.New("orchestrator: a batch task is already running")

// Status is the lifecycle state of a batch task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// AttemptResult is the immutable outcome of one account attempt.
type AttemptResult struct {
	Mailbox    string            `json:"mailbox,omitempty"`
	Succeeded  bool              `json:"succeeded"`
	Credential *store.Credential `json:"credential,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Task is a point-in-time snapshot of one batch. Accessors always return
// copies; the orchestrator's worker is the only writer.
type Task struct {
	ID             string          `json:"id"`
	RequestedCount int             `json:"requested_count"`
	Status         Status          `json:"status"`
	CompletedCount int             `json:"completed_count"`
	SuccessCount   int             `json:"success_count"`
	FailCount      int             `json:"fail_count"`
	CreatedAt      time.Time       `json:"created_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	Results        []AttemptResult `json:"results"`
	Error          string          `json:"error,omitempty"`
}

// Runner executes one signup attempt. Satisfied by *signup.Flow.
type Runner interface {
	Run(ctx context.Context, preferredDomain string) signup.Result
}

// CredentialSink persists a harvested credential. Satisfied by
// *store.Accounts.
type CredentialSink interface {
	Append(cred store.Credential) error
}

// Orchestrator serializes batch execution on a single worker.
type Orchestrator struct {
	runner Runner
	sink   CredentialSink
	log    *zap.Logger

	// active admits exactly one running task; TryAcquire makes start
	// rejection non-blocking.
	active *semaphore.Weighted

	mu       sync.RWMutex
	tasks    map[string]*Task
	activeID string

	attemptBudget time.Duration
	minPause      time.Duration
	maxPause      time.Duration
}

// New wires an orchestrator around a signup runner and a credential sink.
func New(runner Runner, sink CredentialSink, attemptBudget time.Duration, logger *zap.Logger) *Orchestrator {
	if attemptBudget <= 0 {
		attemptBudget = 90 * time.Second
	}
	return &Orchestrator{
		runner:        runner,
		sink:          sink,
		log:           logger.Named("orchestrator"),
		active:        semaphore.NewWeighted(1),
		tasks:         make(map[string]*Task),
		attemptBudget: attemptBudget,
		minPause:      2 * time.Second,
		maxPause:      5 * time.Second,
	}
}

// Start creates a batch task for count attempts and begins background
// execution. It returns ErrTaskRunning, without queuing, while a task is
// active.
func (o *Orchestrator) Start(ctx context.Context, count int, preferredDomain string) (Task, error) {
	if count < 0 {
		return Task{}, fmt.Errorf("orchestrator: negative attempt count %d", count)
	}
	if !o.active.TryAcquire(1) {
		return Task{}, ErrTaskRunning
	}

	task := &Task{
		ID:             uuid.NewString(),
		RequestedCount: count,
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.activeID = task.ID
	o.mu.Unlock()

	o.log.Info("Batch task accepted",
		zap.String("task_id", task.ID),
		zap.Int("count", count))

	go o.execute(ctx, task.ID, count, preferredDomain)
	return o.snapshot(task.ID), nil
}

// GetTask returns a read-only snapshot of the task with the given id.
func (o *Orchestrator) GetTask(id string) (Task, bool) {
	o.mu.RLock()
	_, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return Task{}, false
	}
	return o.snapshot(id), true
}

// ActiveTask returns a snapshot of the most recently started task.
func (o *Orchestrator) ActiveTask() (Task, bool) {
	o.mu.RLock()
	id := o.activeID
	o.mu.RUnlock()
	if id == "" {
		return Task{}, false
	}
	return o.snapshot(id), true
}

func (o *Orchestrator) execute(ctx context.Context, taskID string, count int, preferredDomain string) {
	defer o.active.Release(1)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Batch execution panicked", zap.Any("panic", r))
			o.finish(taskID, StatusFailed, fmt.Sprintf("orchestration defect: %v", r))
		}
	}()

	o.mutate(taskID, func(t *Task) { t.Status = StatusRunning })

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			o.finish(taskID, StatusFailed, "batch cancelled: "+ctx.Err().Error())
			return
		}

		result := o.attempt(ctx, preferredDomain)
		o.record(taskID, result)

		// Jitter between attempts, never after the last one.
		if i < count-1 {
			o.pause(ctx)
		}
	}

	final := StatusFailed
	if t, ok := o.GetTask(taskID); ok && t.SuccessCount > 0 {
		final = StatusSuccess
	}
	o.finish(taskID, final, "")
}

// attempt runs one signup under the hard per-attempt deadline. A deadline
// overrun abandons the worker's result and is recorded as a normal attempt
// failure, not a task failure.
func (o *Orchestrator) attempt(ctx context.Context, preferredDomain string) signup.Result {
	result, err := guard.Run(func() (signup.Result, error) {
		return o.runner.Run(ctx, preferredDomain), nil
	}, o.attemptBudget)

	if errors.Is(err, guard.ErrTimedOut) {
		return signup.Result{
			Err: &signup.AttemptError{
				Kind:   signup.KindAttemptTimedOut,
				Reason: fmt.Sprintf("attempt exceeded its %s budget", o.attemptBudget),
			},
		}
	}
	if err != nil {
		return signup.Result{Err: err}
	}

	if result.Succeeded && result.Credential != nil {
		if err := o.sink.Append(*result.Credential); err != nil {
			// The account exists and the credential is still in the result;
			// a failed file write must not erase the success.
			o.log.Error("Credential could not be persisted", zap.Error(err))
		}
	}
	return result
}

func (o *Orchestrator) record(taskID string, result signup.Result) {
	entry := AttemptResult{Mailbox: result.Mailbox, Succeeded: result.Succeeded}
	if result.Succeeded && result.Credential != nil {
		cred := *result.Credential
		entry.Credential = &cred
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}

	o.mutate(taskID, func(t *Task) {
		t.Results = append(t.Results, entry)
		t.CompletedCount++
		if entry.Succeeded {
			t.SuccessCount++
		} else {
			t.FailCount++
		}
	})

	o.log.Info("Attempt recorded",
		zap.String("task_id", taskID),
		zap.String("mailbox", result.Mailbox),
		zap.Bool("succeeded", result.Succeeded))
}

func (o *Orchestrator) finish(taskID string, status Status, errText string) {
	now := time.Now()
	o.mutate(taskID, func(t *Task) {
		if t.FinishedAt != nil {
			return // already finalized, e.g. by the panic handler
		}
		t.Status = status
		t.FinishedAt = &now
		if errText != "" {
			t.Error = errText
		}
	})
	o.log.Info("Batch task finished",
		zap.String("task_id", taskID),
		zap.String("status", string(status)))
}

func (o *Orchestrator) pause(ctx context.Context) {
	pause := o.minPause
	if spread := o.maxPause - o.minPause; spread > 0 {
		pause += time.Duration(rand.Int63n(int64(spread)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
}

func (o *Orchestrator) mutate(taskID string, fn func(*Task)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.tasks[taskID]; ok {
		fn(t)
	}
}

func (o *Orchestrator) snapshot(taskID string) Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return Task{}
	}
	copied := *t
	copied.Results = append([]AttemptResult(nil), t.Results...)
	for i, r := range copied.Results {
		if r.Credential != nil {
			cred := *r.Credential
			copied.Results[i].Credential = &cred
		}
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		copied.FinishedAt = &finished
	}
	return copied
}
