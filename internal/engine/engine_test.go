package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abd3rr/workflow-api/internal/actions"
	"github.com/abd3rr/workflow-api/internal/bus"
	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/internal/metrics"
	"github.com/abd3rr/workflow-api/internal/notify"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *db.DB
	engine  *Engine
	pub     *bus.MemoryPublisher
	metrics *metrics.Metrics

	project *models.Project
	step    *models.Step
	users   map[string]*models.User
	jobs    map[string]*models.Job

	mu    sync.Mutex
	calls map[string]int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Init(ctx))

	h := &harness{
		t:     t,
		ctx:   ctx,
		store: store,
		pub:   bus.NewMemoryPublisher(),
		users: map[string]*models.User{},
		jobs:  map[string]*models.Job{},
		calls: map[string]int{},
	}

	counting := func(name string, params []models.Parameter, fail bool) actions.Action {
		return actions.Define(name, params, func(context.Context, actions.Args) error {
			h.mu.Lock()
			h.calls[name]++
			h.mu.Unlock()
			if fail {
				return errors.New(name + " failed")
			}
			return nil
		})
	}
	reg, err := actions.NewRegistry(
		counting("publish_page", []models.Parameter{{Name: "url", Type: "string"}, {Name: "title", Type: "string"}}, false),
		counting("flaky", []models.Parameter{{Name: "input", Type: "string"}}, true),
	)
	require.NoError(t, err)

	var catalog *actions.Catalog
	require.NoError(t, store.WithTx(ctx, func(q *db.Queries) error {
		catalog, err = actions.Bootstrap(ctx, reg, q)
		return err
	}))

	log, _ := test.NewNullLogger()
	h.metrics = metrics.New(nil)
	dispatcher := actions.NewDispatcher(reg, catalog, log, h.metrics)
	notifier := notify.New(h.pub, "wf", log, h.metrics)

	clock := epoch
	h.engine = New(store, dispatcher, notifier, log,
		WithMetrics(h.metrics),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
	)

	h.project, err = h.engine.CreateProject(ctx, "Launch", "")
	require.NoError(t, err)
	phase, err := h.engine.CreatePhase(ctx, &h.project.ID, "Build", "")
	require.NoError(t, err)
	h.step, err = h.engine.CreateStep(ctx, &phase.ID, "Write", "")
	require.NoError(t, err)

	for _, name := range []string{"u1", "u2", "u3"} {
		u, err := h.engine.CreateUser(ctx, name, name+"@example.com")
		require.NoError(t, err)
		h.users[name] = u
	}
	// u2 is in both jobs.
	h.jobs["J1"], err = h.engine.CreateJob(ctx, "J1", []string{h.users["u1"].ID, h.users["u2"].ID})
	require.NoError(t, err)
	h.jobs["J2"], err = h.engine.CreateJob(ctx, "J2", []string{h.users["u2"].ID, h.users["u3"].ID})
	require.NoError(t, err)

	return h
}

type taskOpt func(*CreateTaskRequest)

func parents(ts ...*models.Task) taskOpt {
	return func(r *CreateTaskRequest) {
		for _, t := range ts {
			r.ParentIDs = append(r.ParentIDs, t.ID)
		}
	}
}

func jobs(h *harness, names ...string) taskOpt {
	return func(r *CreateTaskRequest) {
		for _, n := range names {
			r.AssignedJobIDs = append(r.AssignedJobIDs, h.jobs[n].ID)
		}
	}
}

func methods(h *harness, names ...string) taskOpt {
	return func(r *CreateTaskRequest) {
		for _, n := range names {
			m, ok := h.engine.Catalog().ByName(n)
			require.True(h.t, ok, n)
			r.MethodIDs = append(r.MethodIDs, m.ID)
		}
	}
}

func verified(r *CreateTaskRequest) { r.RequiredVerification = true }

func (h *harness) task(name string, opts ...taskOpt) *models.Task {
	h.t.Helper()
	req := CreateTaskRequest{Name: name, StepID: &h.step.ID}
	for _, opt := range opts {
		opt(&req)
	}
	task, err := h.engine.CreateTask(h.ctx, req)
	require.NoError(h.t, err)
	return task
}

func (h *harness) reload(task *models.Task) *models.Task {
	h.t.Helper()
	fresh, err := h.engine.GetTask(h.ctx, task.ID)
	require.NoError(h.t, err)
	return fresh
}

func (h *harness) status(task *models.Task) models.TaskStatus {
	return h.reload(task).Status
}

func (h *harness) notifications(task *models.Task) []*models.Notification {
	h.t.Helper()
	list, err := h.store.ListNotificationsForTask(h.ctx, task.ID)
	require.NoError(h.t, err)
	return list
}

func (h *harness) startAll() []*models.Task {
	h.t.Helper()
	started, err := h.engine.StartInitialTasks(h.ctx, h.project.ID)
	require.NoError(h.t, err)
	return started
}

func params(kv ...string) []models.UserParameter {
	out := []models.UserParameter{}
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, models.UserParameter{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestStartInitialTasks(t *testing.T) {
	h := newHarness(t)

	root := h.task("Root", jobs(h, "J1", "J2"))
	child := h.task("Child", parents(root), jobs(h, "J1"))

	started := h.startAll()
	require.Len(t, started, 1)
	assert.Equal(t, root.ID, started[0].ID)

	got := h.reload(root)
	assert.Equal(t, models.TaskStatusStarting, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.After(epoch))

	notes := h.notifications(root)
	require.Len(t, notes, 4, "one per (job, user) pair, duplicates kept")
	perUser := map[string]int{}
	for _, n := range notes {
		assert.Equal(t, "The task 'Root' has started.", n.Message)
		perUser[n.UserID]++
	}
	assert.Equal(t, 2, perUser[h.users["u2"].ID])

	assert.Equal(t, models.TaskStatusPending, h.status(child))
	assert.Empty(t, h.notifications(child))

	again := h.startAll()
	assert.Empty(t, again, "already started tasks are skipped")
	assert.Len(t, h.notifications(root), 4)

	_, err := h.engine.StartInitialTasks(h.ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExecuteMethodsIsIdempotent(t *testing.T) {
	h := newHarness(t)
	task := h.task("Solo", methods(h, "publish_page"))
	h.startAll()

	execID := task.Executions[0].ID
	supplied := map[string][]models.UserParameter{execID: params("url", "/launch", "title", "Launch")}

	out, err := h.engine.ExecuteMethodsForTask(h.ctx, task.ID, supplied)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, actions.ResultSucceeded, out[0].Result)
	assert.Equal(t, models.TaskStatusFinished, h.status(task))

	out, err = h.engine.ExecuteMethodsForTask(h.ctx, task.ID, supplied)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, actions.ResultSkipped, out[0].Result)
	assert.Equal(t, models.ExecutionStatusSuccess, out[0].Status)
	assert.Equal(t, 1, h.calls["publish_page"])
	assert.Equal(t, models.TaskStatusFinished, h.status(task))
}

func TestExecuteMethodsWithoutChildrenIgnoresVerification(t *testing.T) {
	h := newHarness(t)
	task := h.task("Leaf", verified)
	h.startAll()

	_, err := h.engine.ExecuteMethodsForTask(h.ctx, task.ID, nil)
	require.NoError(t, err)

	got := h.reload(task)
	assert.Equal(t, models.TaskStatusFinished, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestVerificationHaltsCascade(t *testing.T) {
	h := newHarness(t)
	draft := h.task("Draft", verified, methods(h, "publish_page"), jobs(h, "J1"))
	c1 := h.task("Edit", parents(draft), jobs(h, "J1"))
	c2 := h.task("Approve", parents(draft), jobs(h, "J2"))
	h.startAll()

	exec := draft.Executions[0].ID
	_, err := h.engine.ExecuteMethodsForTask(h.ctx, draft.ID, map[string][]models.UserParameter{
		exec: params("url", "/d", "title", "D"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusWaitingForValidation, h.status(draft))
	assert.Equal(t, models.TaskStatusPending, h.status(c1))
	assert.Equal(t, models.TaskStatusPending, h.status(c2))

	// Validation requests go to the children's job members, against the
	// children.
	for _, c := range []*models.Task{c1, c2} {
		notes := h.notifications(c)
		require.Len(t, notes, 2)
		for _, n := range notes {
			assert.Equal(t, "Task Draft is waiting for validation.", n.Message)
		}
	}

	waiting, err := h.engine.GetTasksWaitingForValidation(h.ctx, h.jobs["J2"].ID, &h.project.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, draft.ID, waiting[0].ID)
}

func TestValidateStartsEveryPendingChild(t *testing.T) {
	h := newHarness(t)
	parent := h.task("Parent", verified)
	c1 := h.task("C1", parents(parent), jobs(h, "J1"))
	c2 := h.task("C2", parents(parent), jobs(h, "J2"))
	h.startAll()

	_, err := h.engine.ValidateAndStartChildTasks(h.ctx, parent.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState, "STARTING cannot be validated")

	_, err = h.engine.ExecuteMethodsForTask(h.ctx, parent.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusWaitingForValidation, h.status(parent))

	started, err := h.engine.ValidateAndStartChildTasks(h.ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, started, 2)

	got := h.reload(parent)
	assert.Equal(t, models.TaskStatusFinished, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, models.TaskStatusStarting, h.status(c1))
	assert.Equal(t, models.TaskStatusStarting, h.status(c2))
	assert.NotNil(t, h.reload(c1).StartedAt)
}

func TestInvalidate(t *testing.T) {
	h := newHarness(t)
	parent := h.task("Parent", verified, jobs(h, "J1"))
	h.task("Child", parents(parent))
	h.startAll()

	_, err := h.engine.ExecuteMethodsForTask(h.ctx, parent.ID, nil)
	require.NoError(t, err)
	firstStart := h.reload(parent).StartedAt

	got, err := h.engine.InvalidateTask(h.ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusStarting, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.After(*firstStart), "start time is re-stamped")

	notes := h.notifications(parent)
	require.Len(t, notes, 4, "2 start + 2 rework")
	assert.Equal(t, "The task 'Parent' has been invalidated. Please review.", notes[3].Message)

	// Finish it and try again.
	_, err = h.engine.ExecuteMethodsForTask(h.ctx, parent.ID, nil)
	require.NoError(t, err)
	_, err = h.engine.ValidateAndStartChildTasks(h.ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusFinished, h.status(parent))

	_, err = h.engine.InvalidateTask(h.ctx, parent.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)
	var ise *models.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, models.TaskStatusFinished, ise.Status)
	assert.Equal(t, models.TaskStatusFinished, h.status(parent))
}

func TestUnmatchedParameterLeavesExecutionPending(t *testing.T) {
	h := newHarness(t)
	task := h.task("Solo", methods(h, "publish_page"))
	h.startAll()

	execID := task.Executions[0].ID
	out, err := h.engine.ExecuteMethodsForTask(h.ctx, task.ID, map[string][]models.UserParameter{
		execID: params("url", "/x", "colour", "red"),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, actions.ResultRejected, out[0].Result)
	assert.Equal(t, []string{"colour"}, out[0].Unmatched)

	execs, err := h.engine.GetMethodExecutions(h.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, execs[0].Status)
	assert.Zero(t, h.calls["publish_page"])
}

func TestFailureDoesNotBlockCompletion(t *testing.T) {
	h := newHarness(t)
	task := h.task("Mixed", methods(h, "flaky", "publish_page"))
	h.startAll()

	out, err := h.engine.ExecuteMethodsForTask(h.ctx, task.ID, map[string][]models.UserParameter{
		task.Executions[0].ID: params("input", "x"),
		task.Executions[1].ID: params("url", "/y", "title", "Y"),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, actions.ResultFailed, out[0].Result)
	assert.Equal(t, "flaky failed", out[0].Error)
	assert.Equal(t, actions.ResultSucceeded, out[1].Result)

	assert.Equal(t, models.TaskStatusFinished, h.status(task))
	series, err := testutil.GatherAndCount(h.metrics.Registry, "workflow_dispatches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series per action and result")
}

func TestExecuteRequiresStartedTask(t *testing.T) {
	h := newHarness(t)
	root := h.task("Root")
	child := h.task("Child", parents(root))

	_, err := h.engine.ExecuteMethodsForTask(h.ctx, child.ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = h.engine.ExecuteMethodsForTask(h.ctx, "missing", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExecuteLeavesWaitingTaskWaiting(t *testing.T) {
	h := newHarness(t)
	draft := h.task("Draft", verified, methods(h, "publish_page", "flaky"))
	h.task("Edit", parents(draft))
	h.startAll()

	first := draft.Executions[0].ID
	_, err := h.engine.ExecuteMethodsForTask(h.ctx, draft.ID, map[string][]models.UserParameter{
		first: params("url", "/d", "title", "D"),
	})
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusWaitingForValidation, h.status(draft))

	// A later pass still dispatches the remaining execution.
	second := draft.Executions[1].ID
	out, err := h.engine.ExecuteMethodsForTask(h.ctx, draft.ID, map[string][]models.UserParameter{
		second: params("input", "x"),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, actions.ResultSkipped, out[0].Result)
	assert.Equal(t, actions.ResultFailed, out[1].Result)
	assert.Equal(t, 1, h.calls["flaky"])
	assert.Equal(t, models.TaskStatusWaitingForValidation, h.status(draft))
}

// Review has two PENDING children. Finishing it through method execution
// starts both; StartNextTask starts only the first.
func TestCascadePoliciesDiverge(t *testing.T) {
	setup := func(t *testing.T) (*harness, *models.Task, *models.Task, *models.Task) {
		h := newHarness(t)
		review := h.task("Review", jobs(h, "J1"))
		publish := h.task("Publish", parents(review), jobs(h, "J1"))
		archive := h.task("Archive", parents(review), jobs(h, "J2"))
		h.startAll()
		return h, review, publish, archive
	}

	t.Run("execute methods starts every child", func(t *testing.T) {
		h, review, publish, archive := setup(t)

		_, err := h.engine.ExecuteMethodsForTask(h.ctx, review.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, models.TaskStatusFinished, h.status(review))
		assert.Equal(t, models.TaskStatusStarting, h.status(publish))
		assert.Equal(t, models.TaskStatusStarting, h.status(archive))
		assert.Len(t, h.notifications(publish), 2)
		assert.Len(t, h.notifications(archive), 2)
	})

	t.Run("start next task starts the first child", func(t *testing.T) {
		h, review, publish, archive := setup(t)

		started, err := h.engine.StartNextTask(h.ctx, review.ID)
		require.NoError(t, err)
		require.NotNil(t, started)
		assert.Equal(t, publish.ID, started.ID)

		assert.Equal(t, models.TaskStatusStarting, h.status(publish))
		assert.Equal(t, models.TaskStatusPending, h.status(archive))

		next, err := h.engine.StartNextTask(h.ctx, review.ID)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, archive.ID, next.ID)

		none, err := h.engine.StartNextTask(h.ctx, review.ID)
		require.NoError(t, err)
		assert.Nil(t, none)
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	h := newHarness(t)
	root := h.task("Root")
	first := h.task("First", parents(root))
	second := h.task("Second", parents(root))

	_, err := h.engine.UpdateTaskStatus(h.ctx, root.ID, models.TaskStatusFinished)
	assert.ErrorIs(t, err, models.ErrInvalidState, "PENDING cannot jump to FINISHED")

	_, err = h.engine.UpdateTaskStatus(h.ctx, root.ID, "DONE")
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := h.engine.UpdateTaskStatus(h.ctx, root.ID, models.TaskStatusStarting)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusStarting, got.Status)

	got, err = h.engine.UpdateTaskStatus(h.ctx, root.ID, models.TaskStatusFinished)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFinished, got.Status)
	assert.NotNil(t, got.FinishedAt)

	assert.Equal(t, models.TaskStatusStarting, h.status(first))
	assert.Equal(t, models.TaskStatusPending, h.status(second))

	same, err := h.engine.UpdateTaskStatus(h.ctx, root.ID, models.TaskStatusFinished)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFinished, same.Status)
}

func TestCreateTaskValidation(t *testing.T) {
	h := newHarness(t)
	parent := h.task("Parent")

	tests := []struct {
		name string
		req  CreateTaskRequest
		want error
	}{
		{name: "missing name", req: CreateTaskRequest{}, want: models.ErrValidation},
		{name: "unknown parent", req: CreateTaskRequest{Name: "x", ParentIDs: []string{"nope"}}, want: models.ErrNotFound},
		{name: "unknown method", req: CreateTaskRequest{Name: "x", MethodIDs: []string{"nope"}}, want: models.ErrNotFound},
		{name: "unknown job", req: CreateTaskRequest{Name: "x", AssignedJobIDs: []string{"nope"}}, want: models.ErrNotFound},
		{name: "unknown file", req: CreateTaskRequest{Name: "x", FileIDs: []string{"nope"}}, want: models.ErrNotFound},
		{name: "unknown step", req: CreateTaskRequest{Name: "x", StepID: strPtr("nope")}, want: models.ErrNotFound},
		{name: "duplicate parent", req: CreateTaskRequest{Name: "x", ParentIDs: []string{parent.ID, parent.ID}}, want: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateTask(h.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := h.engine.ListTasks(h.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed creations leave nothing behind")
}

func TestCreateTaskWiresEdgesAndExecutions(t *testing.T) {
	h := newHarness(t)
	f := &models.File{Name: "brief.md", Path: "/srv/brief.md"}
	require.NoError(t, h.engine.RegisterFile(h.ctx, f))

	a := h.task("A")
	b := h.task("B")
	c, err := h.engine.CreateTask(h.ctx, CreateTaskRequest{
		Name:      "C",
		ParentIDs: []string{a.ID, b.ID},
		FileIDs:   []string{f.ID},
		MethodIDs: func() []string {
			m, _ := h.engine.Catalog().ByName("publish_page")
			return []string{m.ID, m.ID}
		}(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, b.ID}, c.ParentIDs)
	assert.Equal(t, []string{f.ID}, c.FileIDs)
	require.Len(t, c.Executions, 2)
	for _, e := range c.Executions {
		assert.Equal(t, models.ExecutionStatusPending, e.Status)
	}
	assert.Equal(t, []string{c.ID}, h.reload(a).ChildIDs)
	assert.Equal(t, []string{c.ID}, h.reload(b).ChildIDs)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	a := h.task("A", jobs(h, "J1"))
	b := h.task("B", jobs(h, "J2"))
	h.startAll()
	_, err := h.engine.ExecuteMethodsForTask(h.ctx, b.ID, nil)
	require.NoError(t, err)

	started, err := h.engine.GetTasksByJobsStatusProjectPhaseStep(h.ctx,
		[]string{h.jobs["J1"].ID, h.jobs["J2"].ID},
		[]models.TaskStatus{models.TaskStatusStarting},
		&h.project.ID, nil, &h.step.ID)
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, a.ID, started[0].ID)

	_, err = h.engine.GetTasksByJobsStatusProjectPhaseStep(h.ctx, []string{h.jobs["J1"].ID}, []models.TaskStatus{"BOGUS"}, nil, nil, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	byStep, err := h.engine.GetTasksByStep(h.ctx, h.step.ID)
	require.NoError(t, err)
	assert.Len(t, byStep, 2)

	byProject, err := h.engine.GetTasksByProject(h.ctx, h.project.ID)
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	_, err = h.engine.GetTask(h.ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.engine.GetMethodExecutions(h.ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAddFeedback(t *testing.T) {
	h := newHarness(t)
	task := h.task("Doc")

	got, err := h.engine.AddFeedback(h.ctx, task.ID, h.users["u1"].ID, "Looks good")
	require.NoError(t, err)
	require.Len(t, got.Feedback, 1)
	assert.Equal(t, "Looks good", got.Feedback[0].Content)
	assert.Equal(t, h.users["u1"].ID, got.Feedback[0].UserID)

	_, err = h.engine.AddFeedback(h.ctx, task.ID, "ghost", "hi")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.engine.AddFeedback(h.ctx, "missing", h.users["u1"].ID, "hi")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.engine.AddFeedback(h.ctx, task.ID, h.users["u1"].ID, "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeleteTaskDetachesChildren(t *testing.T) {
	h := newHarness(t)
	parent := h.task("Parent")
	child := h.task("Child", parents(parent))

	require.NoError(t, h.engine.DeleteTask(h.ctx, parent.ID))
	assert.True(t, h.reload(child).IsInitial())

	assert.ErrorIs(t, h.engine.DeleteTask(h.ctx, parent.ID), models.ErrNotFound)

	started := h.startAll()
	require.Len(t, started, 1)
	assert.Equal(t, child.ID, started[0].ID)
}

func TestNotificationsArePublishedAfterCommit(t *testing.T) {
	h := newHarness(t)
	task := h.task("Ship", jobs(h, "J1"))
	h.startAll()

	msgs := h.pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "wf.notifications."+h.users["u1"].ID, msgs[0].Subject)
	assert.Equal(t, "wf.notifications."+h.users["u2"].ID, msgs[1].Subject)

	list, err := h.engine.ListNotifications(h.ctx, h.users["u1"].ID, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].TaskID)

	require.NoError(t, h.engine.MarkNotificationRead(h.ctx, list[0].ID))
	list, err = h.engine.ListNotifications(h.ctx, h.users["u1"].ID, true)
	require.NoError(t, err)
	assert.Empty(t, list)

	// A failed operation publishes nothing.
	_, err = h.engine.InvalidateTask(h.ctx, task.ID)
	require.Error(t, err)
	assert.Len(t, h.pub.Messages(), 2)
}

func TestConcurrentValidateStartsChildrenOnce(t *testing.T) {
	h := newHarness(t)
	parent := h.task("Parent", verified)
	child := h.task("Child", parents(parent), jobs(h, "J1"))
	h.startAll()
	_, err := h.engine.ExecuteMethodsForTask(h.ctx, parent.ID, nil)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ValidateAndStartChildTasks(h.ctx, parent.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)

	starts := 0
	for _, n := range h.notifications(child) {
		if n.Message == "The task 'Child' has started." {
			starts++
		}
	}
	assert.Equal(t, 2, starts, "one start notification per J1 member")
}

func strPtr(s string) *string { return &s }

func TestUpdateTask(t *testing.T) {
	h := newHarness(t)
	task := h.task("Draft")
	other, err := h.engine.CreateStep(h.ctx, h.step.PhaseID, "Review", "")
	require.NoError(t, err)

	name, desc, on := "Final draft", "second pass", true
	got, err := h.engine.UpdateTask(h.ctx, UpdateTaskRequest{
		ID: task.ID, Name: &name, Description: &desc, StepID: &other.ID, RequiredVerification: &on,
	})
	require.NoError(t, err)
	assert.Equal(t, "Final draft", got.Name)
	assert.Equal(t, "second pass", got.Description)
	assert.Equal(t, other.ID, *got.StepID)
	assert.True(t, got.RequiredVerification)

	// Nil fields are kept.
	got, err = h.engine.UpdateTask(h.ctx, UpdateTaskRequest{ID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, "Final draft", got.Name)

	empty, ghost := "", "ghost"
	_, err = h.engine.UpdateTask(h.ctx, UpdateTaskRequest{ID: task.ID, Name: &empty})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.engine.UpdateTask(h.ctx, UpdateTaskRequest{ID: task.ID, StepID: &ghost})
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = h.engine.UpdateTask(h.ctx, UpdateTaskRequest{ID: "missing", Name: &name})
	assert.ErrorIs(t, err, models.ErrNotFound)

	h.startAll()
	_, err = h.engine.ExecuteMethodsForTask(h.ctx, task.ID, nil)
	require.NoError(t, err)
	off := false
	_, err = h.engine.UpdateTask(h.ctx, UpdateTaskRequest{ID: task.ID, RequiredVerification: &off})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestDependencies(t *testing.T) {
	h := newHarness(t)
	a := h.task("A")
	b := h.task("B", parents(a))
	c := h.task("C")

	child, err := h.engine.AddDependency(h.ctx, b.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, child.ParentIDs)

	got, err := h.engine.AddDependency(h.ctx, a.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, got.ParentIDs)

	ps, err := h.engine.GetParents(h.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, b.ID, ps[0].ID)
	assert.Equal(t, a.ID, ps[1].ID)

	assert.Equal(t, []string{b.ID, c.ID}, h.reload(a).ChildIDs)

	_, err = h.engine.AddDependency(h.ctx, a.ID, c.ID)
	assert.ErrorIs(t, err, models.ErrValidation, "duplicate edge")
	_, err = h.engine.AddDependency(h.ctx, c.ID, a.ID)
	assert.ErrorIs(t, err, models.ErrValidation, "cycle")
	_, err = h.engine.AddDependency(h.ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, models.ErrValidation, "self edge")
	_, err = h.engine.AddDependency(h.ctx, "missing", c.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = h.engine.GetParents(h.ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, h.engine.RemoveDependency(h.ctx, a.ID, c.ID))
	assert.Equal(t, []string{b.ID}, h.reload(c).ParentIDs)
	assert.ErrorIs(t, h.engine.RemoveDependency(h.ctx, a.ID, c.ID), models.ErrNotFound)

	// Only PENDING tasks take new parents.
	d := h.task("D")
	h.startAll()
	_, err = h.engine.AddDependency(h.ctx, c.ID, d.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestJobMembership(t *testing.T) {
	h := newHarness(t)
	job := h.jobs["J1"]

	got, err := h.engine.AddJobMember(h.ctx, job.ID, h.users["u3"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{h.users["u1"].ID, h.users["u2"].ID, h.users["u3"].ID}, got.UserIDs)

	_, err = h.engine.AddJobMember(h.ctx, job.ID, h.users["u3"].ID)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.engine.AddJobMember(h.ctx, job.ID, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = h.engine.AddJobMember(h.ctx, "missing", h.users["u1"].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// The new member is notified when an assigned task starts.
	task := h.task("Ship", jobs(h, "J1"))
	h.startAll()
	assert.Len(t, h.notifications(task), 3)

	require.NoError(t, h.engine.DeleteJob(h.ctx, job.ID))
	assert.Empty(t, h.reload(task).AssignedJobIDs)
	assert.ErrorIs(t, h.engine.DeleteJob(h.ctx, job.ID), models.ErrNotFound)
}
