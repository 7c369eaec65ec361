package jobrunner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/data"
	"github.com/Abhracodec/osint-recon/internal/domain/job"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedModules answers module invocations from per-module handlers.
type scriptedModules struct {
	mu       sync.Mutex
	calls    []string
	handlers map[string]func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult

	running    atomic.Int32
	maxRunning atomic.Int32
}

func newScriptedModules() *scriptedModules {
	return &scriptedModules{handlers: map[string]func(context.Context, core.ModuleInvocation) model.ModuleResult{}}
}

func (s *scriptedModules) on(name string, h func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

func (s *scriptedModules) Run(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		cur := s.maxRunning.Load()
		if n <= cur || s.maxRunning.CompareAndSwap(cur, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, inv.JobID+":"+inv.Module)
	h := s.handlers[inv.Module]
	s.mu.Unlock()

	if h != nil {
		return h(ctx, inv)
	}
	if inv.Progress != nil {
		inv.Progress.ModuleProgress(ctx, inv.Module, 0.5)
	}
	return model.ModuleResult{
		ModuleName: inv.Module,
		Succeeded:  true,
		Findings:   []model.Finding{{ID: inv.Module + "-1", Title: inv.Module, Severity: model.SeverityLow}},
	}
}

func (s *scriptedModules) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type harness struct {
	t       *testing.T
	store   *data.MemoryJobStore
	queue   *data.MemoryJobQueue
	modules *scriptedModules
	opts    RunnerOptions
	// tune adjusts the runner after construction, before it starts.
	tune func(*Runner)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	queue, err := data.NewMemoryJobQueue(data.QueueOptions{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(queue.Close)
	mods := newScriptedModules()
	return &harness{
		t:       t,
		store:   store,
		queue:   queue,
		modules: mods,
		opts: RunnerOptions{
			Store:       store,
			Queue:       queue,
			Modules:     mods,
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			Concurrency: 1,
			JobTimeout:  5 * time.Second,
			MaxAttempts: 3,
			Backoff:     job.Backoff{Base: 5 * time.Millisecond, Max: 10 * time.Millisecond},
		},
	}
}

func (h *harness) submit(id string, modules ...string) {
	h.t.Helper()
	req := model.JobRequest{Target: "example.com", TargetType: model.TargetTypeDomain, Modules: modules}
	ctx := context.Background()
	_, err := h.store.Create(ctx, id, req)
	require.NoError(h.t, err)
	require.NoError(h.t, h.queue.Enqueue(ctx, id, req))
}

// start runs the pool until the returned stop func is called.
func (h *harness) start() (stop func()) {
	h.t.Helper()
	r, err := NewRunner(h.opts)
	require.NoError(h.t, err)
	if h.tune != nil {
		h.tune(r)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(h.t, err)
			case <-time.After(5 * time.Second):
				h.t.Error("runner did not stop")
			}
		})
	}
	h.t.Cleanup(stop)
	return stop
}

func (h *harness) waitTerminal(id string) *model.JobRecord {
	h.t.Helper()
	var rec *model.JobRecord
	require.Eventually(h.t, func() bool {
		got, err := h.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		rec = got
		return got.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func (h *harness) queueStats() model.QueueStats {
	h.t.Helper()
	stats, err := h.queue.Stats(context.Background())
	require.NoError(h.t, err)
	return stats
}

func TestRunner_CompletesJob(t *testing.T) {
	h := newHarness(t)
	h.submit("job-1", "subdomains", "whois")
	h.start()

	rec := h.waitTerminal("job-1")
	assert.Equal(t, model.JobStatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Empty(t, rec.CurrentModule)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, []string{"subdomains", "whois"}, rec.CompletedModules)
	require.Len(t, rec.Findings, 2)
	assert.Equal(t, "subdomains", rec.Findings[0].ModuleName)
	assert.Equal(t, "whois", rec.Findings[1].ModuleName)
	require.NotNil(t, rec.Summary)
	assert.Equal(t, 2, rec.Summary.TotalFindings)
	assert.Equal(t, 2, rec.Summary.SeverityCounts[model.SeverityLow])
	assert.NotNil(t, rec.StartedAt)
	assert.NotNil(t, rec.CompletedAt)

	assert.Eventually(t, func() bool { return h.queueStats() == model.QueueStats{} }, time.Second, 5*time.Millisecond)
}

func TestRunner_ModuleFailures(t *testing.T) {
	t.Run("non-blocking failure is recorded and the job completes", func(t *testing.T) {
		h := newHarness(t)
		h.modules.on("whois", func(_ context.Context, inv core.ModuleInvocation) model.ModuleResult {
			return model.ModuleResult{ModuleName: inv.Module, ErrorKind: model.ErrorKindModule, ErrorMessage: "rate limited"}
		})
		h.submit("job-1", "whois", "sslScan")
		h.start()

		rec := h.waitTerminal("job-1")
		assert.Equal(t, model.JobStatusCompleted, rec.Status)
		require.Len(t, rec.Findings, 2)
		assert.False(t, rec.Findings[0].Succeeded)
		assert.Equal(t, "rate limited", rec.Findings[0].ErrorMessage)
		assert.Equal(t, 1, rec.Summary.ModulesFailed)
		assert.Equal(t, 1, rec.Summary.ModulesCovered)
	})

	t.Run("blocking failure fails the job and skips the rest", func(t *testing.T) {
		h := newHarness(t)
		h.modules.on("resolve", func(_ context.Context, inv core.ModuleInvocation) model.ModuleResult {
			return model.ModuleResult{
				ModuleName: inv.Module, Blocking: true,
				ErrorKind: model.ErrorKindModule, ErrorMessage: "target does not resolve",
			}
		})
		h.submit("job-1", "resolve", "whois")
		h.start()

		rec := h.waitTerminal("job-1")
		assert.Equal(t, model.JobStatusFailed, rec.Status)
		require.NotNil(t, rec.Error)
		assert.Equal(t, model.ErrorKindModule, rec.Error.Kind)
		assert.Equal(t, "resolve", rec.Error.Module)
		assert.Equal(t, []string{"job-1:resolve"}, h.modules.Calls())
		assert.Equal(t, 50, rec.Progress)
	})
}

func TestRunner_Cancellation(t *testing.T) {
	t.Run("cancel requested before claim", func(t *testing.T) {
		h := newHarness(t)
		h.submit("job-1", "whois")
		_, err := h.store.Update(context.Background(), "job-1", func(r *model.JobRecord) error {
			r.CancelRequested = true
			return nil
		})
		require.NoError(t, err)
		h.start()

		rec := h.waitTerminal("job-1")
		assert.Equal(t, model.JobStatusCancelled, rec.Status)
		assert.Empty(t, h.modules.Calls())
	})

	t.Run("cancel observed at the next module boundary", func(t *testing.T) {
		h := newHarness(t)
		h.modules.on("subdomains", func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
			_, err := h.store.Update(ctx, inv.JobID, func(r *model.JobRecord) error {
				r.CancelRequested = true
				return nil
			})
			assert.NoError(t, err)
			return model.ModuleResult{ModuleName: inv.Module, Succeeded: true}
		})
		h.submit("job-1", "subdomains", "whois", "sslScan")
		h.start()

		rec := h.waitTerminal("job-1")
		assert.Equal(t, model.JobStatusCancelled, rec.Status)
		assert.Equal(t, []string{"job-1:subdomains"}, h.modules.Calls())
		assert.Equal(t, []string{"subdomains"}, rec.CompletedModules)
		assert.Equal(t, 33, rec.Progress)
	})
}

func TestRunner_RetriesCrashedAttempt(t *testing.T) {
	h := newHarness(t)
	var crashes atomic.Int32
	h.modules.on("whois", func(_ context.Context, inv core.ModuleInvocation) model.ModuleResult {
		if crashes.Add(1) == 1 {
			return model.ModuleResult{ModuleName: inv.Module, Crashed: true, ErrorKind: model.ErrorKindInternal, ErrorMessage: "panic"}
		}
		return model.ModuleResult{ModuleName: inv.Module, Succeeded: true}
	})
	h.submit("job-1", "subdomains", "whois")
	h.start()

	rec := h.waitTerminal("job-1")
	assert.Equal(t, model.JobStatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, []string{"subdomains", "whois"}, rec.CompletedModules, "retry starts from a clean record")
	assert.Equal(t, []string{"job-1:subdomains", "job-1:whois", "job-1:subdomains", "job-1:whois"}, h.modules.Calls())
}

func TestRunner_FailsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxAttempts = 2
	h.modules.on("whois", func(_ context.Context, inv core.ModuleInvocation) model.ModuleResult {
		return model.ModuleResult{ModuleName: inv.Module, Crashed: true, ErrorKind: model.ErrorKindInternal, ErrorMessage: "panic"}
	})
	h.submit("job-1", "whois")
	h.start()

	rec := h.waitTerminal("job-1")
	assert.Equal(t, model.JobStatusFailed, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	require.NotNil(t, rec.Error)
	assert.Equal(t, model.ErrorKindInternal, rec.Error.Kind)
	assert.Contains(t, rec.Error.Message, "gave up after 2 attempts")
	assert.Len(t, h.modules.Calls(), 2)
}

func TestRunner_JobTimeout(t *testing.T) {
	h := newHarness(t)
	h.opts.JobTimeout = 50 * time.Millisecond
	h.modules.on("slow", func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
		<-ctx.Done()
		return model.ModuleResult{ModuleName: inv.Module, ErrorKind: model.ErrorKindTimeout, ErrorMessage: "job deadline exceeded"}
	})
	h.submit("job-1", "slow", "whois")
	h.start()

	rec := h.waitTerminal("job-1")
	assert.Equal(t, model.JobStatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, model.ErrorKindTimeout, rec.Error.Kind)
	assert.Equal(t, "slow", rec.Error.Module)
}

func TestRunner_ConcurrencyOneIsSequential(t *testing.T) {
	h := newHarness(t)
	h.modules.on("whois", func(_ context.Context, inv core.ModuleInvocation) model.ModuleResult {
		time.Sleep(10 * time.Millisecond)
		return model.ModuleResult{ModuleName: inv.Module, Succeeded: true}
	})
	h.submit("job-1", "whois")
	h.submit("job-2", "whois")
	h.submit("job-3", "whois")
	h.start()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		assert.Equal(t, model.JobStatusCompleted, h.waitTerminal(id).Status)
	}
	assert.Equal(t, int32(1), h.modules.maxRunning.Load())
	assert.Equal(t, []string{"job-1:whois", "job-2:whois", "job-3:whois"}, h.modules.Calls())
}

func TestRunner_ResumesStalledRunningRecord(t *testing.T) {
	h := newHarness(t)
	h.submit("job-1", "subdomains", "whois")
	ctx := context.Background()
	_, err := h.store.Update(ctx, "job-1", func(r *model.JobRecord) error {
		r.Status = model.JobStatusRunning
		r.Attempts = 1
		r.CompletedModules = append(r.CompletedModules, "subdomains")
		r.Findings = append(r.Findings, model.ModuleFindings{ModuleName: "subdomains", Succeeded: true})
		return nil
	})
	require.NoError(t, err)
	h.start()

	rec := h.waitTerminal("job-1")
	assert.Equal(t, model.JobStatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, []string{"job-1:whois"}, h.modules.Calls())
}

func TestRunner_SkipsFinishedRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := model.JobRequest{Target: "example.com", TargetType: model.TargetTypeDomain, Modules: []string{"whois"}}
	require.NoError(t, h.queue.Enqueue(ctx, "orphan", req))
	h.start()

	assert.Eventually(t, func() bool { return h.queueStats() == model.QueueStats{} }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.modules.Calls())
}

func TestRunner_LeaseLostStopsWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	ctx := context.Background()
	req := model.JobRequest{Target: "example.com", TargetType: model.TargetTypeDomain, Modules: []string{"slow", "whois"}}
	_, err := store.Create(ctx, "job-1", req)
	require.NoError(t, err)

	delivered := false
	queue.EXPECT().Dequeue(gomock.Any()).DoAndReturn(func(ctx context.Context) (*model.Delivery, error) {
		if !delivered {
			delivered = true
			return &model.Delivery{ID: "job-1", Request: req, Attempt: 1, LeaseToken: "t"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	queue.EXPECT().Renew(gomock.Any(), gomock.Any()).Return(data.ErrLeaseLost).MinTimes(1)

	mods := newScriptedModules()
	moduleDone := make(chan struct{})
	mods.on("slow", func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
		defer close(moduleDone)
		<-ctx.Done()
		return model.ModuleResult{ModuleName: inv.Module, Cancelled: true, ErrorKind: model.ErrorKindCancelled}
	})

	lease, err := job.NewLeasePolicy(job.MinLease)
	require.NoError(t, err)
	r, err := NewRunner(RunnerOptions{
		Store: store, Queue: queue, Modules: mods, Lease: lease,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx) }()

	select {
	case <-moduleDone:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat never reported the lost lease")
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, rec.Status)
	assert.Empty(t, rec.Findings, "no writes after the lease is gone")
	assert.Equal(t, []string{"job-1:slow"}, mods.Calls())
}

func TestRunner_TakeoverWaitsForPreviousHolder(t *testing.T) {
	h := newHarness(t)
	h.opts.Concurrency = 2
	h.tune = func(r *Runner) { r.heartbeat = 50 * time.Millisecond }

	started := make(chan struct{})
	var invocations atomic.Int32
	h.modules.on("slow", func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
		if invocations.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return model.ModuleResult{ModuleName: inv.Module, Cancelled: true, ErrorKind: model.ErrorKindCancelled}
		}
		return model.ModuleResult{ModuleName: inv.Module, Succeeded: true}
	})
	h.submit("job-1", "slow")
	h.start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first attempt never started")
	}
	// hand the lease to the idle worker while the first one is still inside the module
	rs, err := h.queue.RequeueExpired(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, rs.Requeued)

	rec := h.waitTerminal("job-1")
	assert.Equal(t, model.JobStatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	require.Len(t, rec.Findings, 1)
	assert.True(t, rec.Findings[0].Succeeded)
	assert.Equal(t, int32(1), h.modules.maxRunning.Load(), "the module never runs under two leases at once")
	assert.Equal(t, []string{"job-1:slow", "job-1:slow"}, h.modules.Calls())
}

func TestRunner_RejectsWritesFromStaleLease(t *testing.T) {
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	ctx := context.Background()
	req := model.JobRequest{Target: "example.com", TargetType: model.TargetTypeDomain, Modules: []string{"whois"}}
	_, err := store.Create(ctx, "job-1", req)
	require.NoError(t, err)
	_, err = store.Update(ctx, "job-1", func(r *model.JobRecord) error {
		r.Status = model.JobStatusRunning
		r.LeaseToken = "lease-b"
		return nil
	})
	require.NoError(t, err)

	r, err := NewRunner(RunnerOptions{
		Store:   store,
		Queue:   mocks.NewMockJobQueue(gomock.NewController(t)),
		Modules: newScriptedModules(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	fenceCtx, fence := context.WithCancelCause(ctx)
	defer fence(nil)
	stale := &attempt{d: &model.Delivery{ID: "job-1", LeaseToken: "lease-a"}, fence: fence}
	_, err = r.update(ctx, stale, func(rec *model.JobRecord) error {
		rec.Progress = 90
		return nil
	})
	require.ErrorIs(t, err, data.ErrLeaseLost)
	assert.ErrorIs(t, context.Cause(fenceCtx), errLeaseLost, "a fenced write cancels its attempt")

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, "lease-b", got.LeaseToken)

	owner := &attempt{d: &model.Delivery{ID: "job-1", LeaseToken: "lease-b"}}
	got, err = r.update(ctx, owner, func(rec *model.JobRecord) error {
		rec.Progress = 40
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
}

func TestRunner_StandsDownWhenRenewalsFailPastLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	store := data.NewMemoryJobStore(data.JobStoreOptions{})
	ctx := context.Background()
	req := model.JobRequest{Target: "example.com", TargetType: model.TargetTypeDomain, Modules: []string{"slow", "whois"}}
	_, err := store.Create(ctx, "job-1", req)
	require.NoError(t, err)

	var delivered atomic.Bool
	queue.EXPECT().Dequeue(gomock.Any()).DoAndReturn(func(ctx context.Context) (*model.Delivery, error) {
		if delivered.CompareAndSwap(false, true) {
			return &model.Delivery{ID: "job-1", Request: req, Attempt: 1, LeaseToken: "t"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()
	queue.EXPECT().Renew(gomock.Any(), gomock.Any()).Return(data.ErrQueueUnavailable).MinTimes(1)

	mods := newScriptedModules()
	moduleDone := make(chan struct{})
	mods.on("slow", func(ctx context.Context, inv core.ModuleInvocation) model.ModuleResult {
		defer close(moduleDone)
		<-ctx.Done()
		return model.ModuleResult{ModuleName: inv.Module, Cancelled: true, ErrorKind: model.ErrorKindCancelled}
	})

	r, err := NewRunner(RunnerOptions{
		Store: store, Queue: queue, Modules: mods,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	r.heartbeat = 10 * time.Millisecond
	r.leaseTTL = 50 * time.Millisecond

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx) }()

	select {
	case <-moduleDone:
	case <-time.After(5 * time.Second):
		t.Fatal("worker kept running after its lease must have lapsed")
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	rec, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, rec.Status)
	assert.Empty(t, rec.Findings)
	assert.Equal(t, []string{"job-1:slow"}, mods.Calls())
}

func TestRunner_DequeueErrorsBackOff(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockJobQueue(ctrl)
	var calls atomic.Int32
	queue.EXPECT().Dequeue(gomock.Any()).DoAndReturn(func(context.Context) (*model.Delivery, error) {
		calls.Add(1)
		return nil, data.ErrQueueUnavailable
	}).AnyTimes()

	r, err := NewRunner(RunnerOptions{
		Store:   data.NewMemoryJobStore(data.JobStoreOptions{}),
		Queue:   queue,
		Modules: newScriptedModules(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, int32(1), calls.Load(), "a failing queue is retried after a pause, not in a hot loop")
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{
		Store:   data.NewMemoryJobStore(data.JobStoreOptions{}),
		Queue:   mocks.NewMockJobQueue(gomock.NewController(t)),
		Modules: newScriptedModules(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, defaultJobTimeout, r.jobTimeout)
	assert.Equal(t, job.DefaultBackoff, r.backoff)
	assert.Equal(t, 10*time.Second, r.heartbeat)

	assert.Equal(t, 2500*time.Millisecond, (&Runner{jobTimeout: 10 * time.Second, moduleTimeout: time.Minute}).perModuleTimeout(4))
	assert.Equal(t, time.Second, (&Runner{jobTimeout: time.Second, moduleTimeout: time.Minute}).perModuleTimeout(10))
	assert.Equal(t, time.Minute, (&Runner{jobTimeout: time.Hour, moduleTimeout: time.Minute}).perModuleTimeout(2))
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) NotifyJobFailure(_ context.Context, rec *model.JobRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, rec.ID)
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

func TestRunner_NotifiesOnlyFailedJobs(t *testing.T) {
	h := newHarness(t)
	notifier := &recordingNotifier{}
	h.opts.Notifier = notifier
	h.modules.on("resolve", func(_ context.Context, inv core.ModuleInvocation) model.ModuleResult {
		return model.ModuleResult{ModuleName: inv.Module, Blocking: true, ErrorKind: model.ErrorKindModule, ErrorMessage: "nxdomain"}
	})
	h.submit("job-ok", "whois")
	h.submit("job-bad", "resolve")
	h.start()

	assert.Equal(t, model.JobStatusCompleted, h.waitTerminal("job-ok").Status)
	assert.Equal(t, model.JobStatusFailed, h.waitTerminal("job-bad").Status)
	require.Eventually(t, func() bool { return len(notifier.notified()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"job-bad"}, notifier.notified())
}
