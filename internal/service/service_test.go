package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskit/internal/board"
	"taskit/internal/events"
	"taskit/internal/models"
	"taskit/internal/storage"
	"taskit/internal/storage/memory"
)

type scheduled struct {
	title, body string
	at          time.Time
}

type fakeNotifier struct{ calls []scheduled }

func (f *fakeNotifier) Schedule(title, body string, at time.Time) {
	f.calls = append(f.calls, scheduled{title, body, at})
}

type fakeTracker struct{ names []string }

func (f *fakeTracker) LogEvent(name string, _ map[string]any) { f.names = append(f.names, name) }

type fixture struct {
	svc      *Service
	notifier *fakeNotifier
	tracker  *fakeTracker
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		notifier: &fakeNotifier{},
		tracker:  &fakeTracker{},
		now:      time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
	}
	f.svc = New(memory.New(),
		WithNotifier(f.notifier),
		WithTracker(f.tracker),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func mustCreate(t *testing.T, svc *Service, durations ...int) models.Project {
	t.Helper()
	inputs := make([]TaskInput, 0, len(durations))
	for i, d := range durations {
		inputs = append(inputs, TaskInput{Title: string(rune('A' + i)), EstimatedDuration: d})
	}
	p, err := svc.CreateProject(context.Background(), "  house  ", inputs)
	require.NoError(t, err)
	return p
}

func titles(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func TestCreateProject_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProject(ctx, "house", nil)
	assert.ErrorIs(t, err, ErrInvalidArgs, "a project needs at least one task")

	_, err = f.svc.CreateProject(ctx, "   ", []TaskInput{{Title: "a", EstimatedDuration: 30}})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = f.svc.CreateProject(ctx, "house", []TaskInput{{Title: " ", EstimatedDuration: 30}})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = f.svc.CreateProject(ctx, "house", []TaskInput{{Title: "a", EstimatedDuration: 0}})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	p := mustCreate(t, f.svc, 30)
	assert.Equal(t, "house", p.Name)
	assert.Equal(t, models.ProjectUnstarted, p.State)
	assert.Equal(t, f.now, p.StartDate)
	assert.Equal(t, []string{"project_created"}, f.tracker.names)
}

func TestStartSprint_SelectsPrefixAndSchedulesReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 60, 30, 45)

	preview, err := f.svc.PreviewSprint(ctx, p.ID, 90)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, titles(preview.Tasks))
	assert.Equal(t, 1, preview.Week)
	assert.Equal(t, 90, preview.TotalMinutes)
	assert.Nil(t, preview.Sprint)

	plan, err := f.svc.StartSprint(ctx, p.ID, 90)
	require.NoError(t, err)
	require.NotNil(t, plan.Sprint)
	assert.Equal(t, []string{"A", "B"}, titles(plan.Tasks))
	assert.Equal(t, f.now, plan.Sprint.StartDate)

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "house", f.notifier.calls[0].title)
	assert.Equal(t, sprintEndedBody, f.notifier.calls[0].body)
	assert.Equal(t, f.now.Add(models.DefaultSprintLength), f.notifier.calls[0].at)

	got, err := f.svc.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectInProgress, got.State)
	require.Len(t, got.Sprints, 1)

	b, err := f.svc.Board(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, titles(b.Sprint))
	assert.Equal(t, []string{"C"}, titles(b.Backlog))
	assert.Equal(t, 1, b.Week)
}

func TestStartSprint_RollsFinishedTasksToTheEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30, 30, 30)

	_, err := f.svc.StartSprint(ctx, p.ID, 30)
	require.NoError(t, err)

	finished := models.TaskFinished
	_, err = f.svc.UpdateTask(ctx, p.ID, p.Tasks[0].ID, TaskPatch{State: &finished})
	require.NoError(t, err)

	plan, err := f.svc.StartSprint(ctx, p.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, titles(plan.Tasks))

	got, err := f.svc.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, titles(got.Tasks))

	b, err := f.svc.Board(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, titles(b.Sprint))
	assert.Empty(t, b.Backlog)
	assert.Equal(t, []string{"A"}, titles(b.Finished))
}

func TestStartSprint_FirstTaskOverBudget(t *testing.T) {
	f := newFixture(t)
	p := mustCreate(t, f.svc, 120)

	plan, err := f.svc.StartSprint(context.Background(), p.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, titles(plan.Tasks))
}

func TestStartSprint_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30)

	_, err := f.svc.StartSprint(ctx, p.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = f.svc.StartSprint(ctx, "missing", 60)
	assert.ErrorIs(t, err, ErrNotFound)

	finished := models.TaskFinished
	_, err = f.svc.UpdateTask(ctx, p.ID, p.Tasks[0].ID, TaskPatch{State: &finished})
	require.NoError(t, err)

	_, err = f.svc.StartSprint(ctx, p.ID, 60)
	assert.ErrorIs(t, err, ErrNoUnstartedTasks)
	_, err = f.svc.PreviewSprint(ctx, p.ID, 60)
	assert.ErrorIs(t, err, ErrNoUnstartedTasks)
	assert.Empty(t, f.notifier.calls)
}

func TestMoveTask_FinishedBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30, 30, 30)
	_, err := f.svc.StartSprint(ctx, p.ID, 30)
	require.NoError(t, err)

	// backlog B -> finished
	b, err := f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Backlog, Index: 0}, board.Location{Partition: board.Finished, Index: 0})
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, titles(b.Finished))
	assert.Equal(t, models.TaskFinished, b.Finished[0].State)

	// finished B -> backlog resets the state
	b, err = f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Finished, Index: 0}, board.Location{Partition: board.Backlog, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, titles(b.Backlog))
	assert.Equal(t, models.TaskUnstarted, b.Backlog[1].State)

	// backlog C -> sprint keeps the state
	inProgress := models.TaskInProgress
	_, err = f.svc.UpdateTask(ctx, p.ID, b.Backlog[0].ID, TaskPatch{State: &inProgress})
	require.NoError(t, err)
	b, err = f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Backlog, Index: 0}, board.Location{Partition: board.InSprint, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, titles(b.Sprint))
	assert.Equal(t, models.TaskInProgress, b.Sprint[1].State)

	got, err := f.svc.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, titles(got.Tasks))
	assert.Contains(t, f.tracker.names, "task_moved")
}

func TestMoveTask_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30)

	_, err := f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Backlog, Index: 0}, board.Location{Partition: board.InSprint, Index: 0})
	assert.ErrorIs(t, err, ErrInvalidMove)
	assert.ErrorIs(t, err, board.ErrNoSprint)

	_, err = f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Backlog, Index: 4}, board.Location{Partition: board.Finished, Index: 0})
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestFinishProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30, 60)

	_, err := f.svc.FinishProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrOutstandingTasks)

	finished := models.TaskFinished
	for _, task := range p.Tasks {
		_, err := f.svc.UpdateTask(ctx, p.ID, task.ID, TaskPatch{State: &finished})
		require.NoError(t, err)
	}

	done, err := f.svc.FinishProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectFinished, done.State)
	require.NotNil(t, done.EndDate)
	assert.Equal(t, f.now, *done.EndDate)

	f.now = f.now.Add(time.Hour)
	again, err := f.svc.FinishProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, done.State, again.State)
	assert.Equal(t, *done.EndDate, *again.EndDate)

	count := 0
	for _, name := range f.tracker.names {
		if name == "project_finished" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, err = f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Finished, Index: 0}, board.Location{Partition: board.Backlog, Index: 0})
	assert.ErrorIs(t, err, ErrProjectFinished)
	_, err = f.svc.AddTask(ctx, p.ID, TaskInput{Title: "late", EstimatedDuration: 5})
	assert.ErrorIs(t, err, ErrProjectFinished)
	_, err = f.svc.UpdateTask(ctx, p.ID, p.Tasks[0].ID, TaskPatch{State: new(models.TaskState)})
	assert.ErrorIs(t, err, ErrProjectFinished)
	assert.ErrorIs(t, f.svc.DeleteTask(ctx, p.ID, p.Tasks[0].ID), ErrProjectFinished)
	_, err = f.svc.PreviewSprint(ctx, p.ID, 60)
	assert.ErrorIs(t, err, ErrProjectFinished)

	history, err := f.svc.ListProjects(ctx, storage.FinishedProjects)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, p.ID, history[0].ID)
}

func TestAddUpdateDeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30, 30)
	_, err := f.svc.StartSprint(ctx, p.ID, 30)
	require.NoError(t, err)

	added, err := f.svc.AddTask(ctx, p.ID, TaskInput{Title: " D ", EstimatedDuration: 90})
	require.NoError(t, err)
	assert.Equal(t, "D", added.Title)
	_, err = f.svc.AddTask(ctx, p.ID, TaskInput{Title: "E", EstimatedDuration: 30, State: models.TaskFinished})
	require.NoError(t, err)
	_, err = f.svc.AddTask(ctx, p.ID, TaskInput{Title: "F", EstimatedDuration: 30})
	require.NoError(t, err)

	b, err := f.svc.Board(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, titles(b.Sprint))
	assert.Equal(t, []string{"B", "D", "F"}, titles(b.Backlog))
	assert.Equal(t, []string{"E"}, titles(b.Finished))

	title := "Sprint task"
	minutes := 120
	updated, err := f.svc.UpdateTask(ctx, p.ID, b.Sprint[0].ID, TaskPatch{Title: &title, EstimatedDuration: &minutes})
	require.NoError(t, err)
	assert.Equal(t, "Sprint task", updated.Title)
	assert.Equal(t, 120, updated.EstimatedDuration)

	zero := 0
	_, err = f.svc.UpdateTask(ctx, p.ID, b.Sprint[0].ID, TaskPatch{EstimatedDuration: &zero})
	assert.ErrorIs(t, err, ErrInvalidArgs)
	_, err = f.svc.UpdateTask(ctx, p.ID, "nope", TaskPatch{Title: &title})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	require.NoError(t, f.svc.DeleteTask(ctx, p.ID, b.Sprint[0].ID))
	assert.ErrorIs(t, f.svc.DeleteTask(ctx, p.ID, b.Sprint[0].ID), ErrTaskNotFound)

	got, err := f.svc.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CurrentSprint().TaskIDs)
	assert.Len(t, got.Tasks, 4)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 60, 30, 30)

	d, err := f.svc.Dashboard(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, d.NeedsSprint)
	assert.Zero(t, d.Week)
	assert.Equal(t, Stats{Tasks: 3, Minutes: 120, Hours: "2"}, d.Stats)

	_, err = f.svc.StartSprint(ctx, p.ID, 120)
	require.NoError(t, err)
	inProgress := models.TaskInProgress
	_, err = f.svc.UpdateTask(ctx, p.ID, p.Tasks[1].ID, TaskPatch{State: &inProgress})
	require.NoError(t, err)

	d, err = f.svc.Dashboard(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, d.NeedsSprint)
	assert.Equal(t, 1, d.Week)
	assert.Equal(t, 2, d.Unstarted)
	assert.Equal(t, 1, d.InProgress)
	assert.Zero(t, d.Finished)
	require.NotNil(t, d.SprintEndsAt)

	f.now = f.now.Add(models.DefaultSprintLength + time.Minute)
	d, err = f.svc.Dashboard(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, d.NeedsSprint)
}

func TestSubscribe_ReceivesCommittedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30, 30)

	var kinds []events.Kind
	sub := f.svc.Subscribe(events.ForProject(p.ID), func(c events.Change) { kinds = append(kinds, c.Kind) })

	_, err := f.svc.StartSprint(ctx, p.ID, 30)
	require.NoError(t, err)
	_, err = f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.InSprint, Index: 0}, board.Location{Partition: board.Finished, Index: 0})
	require.NoError(t, err)

	// failed mutations publish nothing
	_, err = f.svc.MoveTask(ctx, p.ID, board.Location{Partition: board.Backlog, Index: 9}, board.Location{Partition: board.Finished, Index: 0})
	require.Error(t, err)

	sub.Cancel()
	_, err = f.svc.AddTask(ctx, p.ID, TaskInput{Title: "late", EstimatedDuration: 30})
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{events.SprintStarted, events.TaskMoved}, kinds)
}

func TestSubscribe_HandlerCanReadCommittedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30, 30)

	var sprintTitles []string
	sub := f.svc.Subscribe(events.ForProject(p.ID), func(c events.Change) {
		b, err := f.svc.Board(ctx, c.ProjectID)
		if assert.NoError(t, err) {
			sprintTitles = titles(b.Sprint)
		}
	})
	defer sub.Cancel()

	_, err := f.svc.StartSprint(ctx, p.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, sprintTitles)
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustCreate(t, f.svc, 30)

	require.NoError(t, f.svc.DeleteProject(ctx, p.ID))
	assert.ErrorIs(t, f.svc.DeleteProject(ctx, p.ID), ErrNotFound)
	_, err := f.svc.Board(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
