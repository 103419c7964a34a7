// Package service implements the planning use cases on top of a project store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taskit/internal/analytics"
	"taskit/internal/board"
	"taskit/internal/events"
	"taskit/internal/models"
	"taskit/internal/notify"
	"taskit/internal/planner"
	"taskit/internal/storage"
)

const sprintEndedBody = "Your current sprint has ended. Tap to set up your next sprint!"

// Service serialises every mutation; each one is a single store transaction
// followed by a change notification.
type Service struct {
	mu           sync.Mutex
	store        storage.Store
	bus          *events.Bus
	notifier     notify.Notifier
	tracker      analytics.Tracker
	logger       *slog.Logger
	sprintLength time.Duration
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithBus(bus *events.Bus) Option { return func(s *Service) { s.bus = bus } }
func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithTracker(t analytics.Tracker) Option { return func(s *Service) { s.tracker = t } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }
func WithSprintLength(d time.Duration) Option { return func(s *Service) { s.sprintLength = d } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a service over store.
func New(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		tracker:      analytics.Nop{},
		sprintLength: models.DefaultSprintLength,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.logger)
	}
	if s.notifier == nil {
		s.notifier = notify.NewScheduler(s.logger, nil)
	}
	return s
}

// TaskInput carries the fields of a new task.
type TaskInput struct {
	Title             string
	Details           string
	State             models.TaskState
	Priority          int
	EstimatedDuration int
}

// TaskPatch changes the non-nil fields of a task.
type TaskPatch struct {
	Title             *string
	Details           *string
	State             *models.TaskState
	Priority          *int
	EstimatedDuration *int
}

// Board is a project split into its three sections.
type Board struct {
	ProjectID string        `json:"project_id"`
	Week      int           `json:"week"`
	Sprint    []models.Task `json:"sprint"`
	Backlog   []models.Task `json:"backlog"`
	Finished  []models.Task `json:"finished"`
}

// SprintPlan is the outcome of planning a sprint, committed or not.
type SprintPlan struct {
	Week         int            `json:"week"`
	MaxTime      int            `json:"max_time"`
	TotalMinutes int            `json:"total_minutes"`
	Tasks        []models.Task  `json:"tasks"`
	Sprint       *models.Sprint `json:"sprint,omitempty"`
}

// Stats summarises a project.
type Stats struct {
	Sprints int    `json:"sprints"`
	Tasks   int    `json:"tasks"`
	Minutes int    `json:"minutes"`
	Hours   string `json:"hours"`
}

// Dashboard reports progress of the current sprint.
type Dashboard struct {
	ProjectID    string     `json:"project_id"`
	Name         string     `json:"name"`
	Week         int        `json:"week"`
	SprintEndsAt *time.Time `json:"sprint_ends_at,omitempty"`
	NeedsSprint  bool       `json:"needs_sprint"`
	Unstarted    int        `json:"unstarted"`
	InProgress   int        `json:"in_progress"`
	Finished     int        `json:"finished"`
	Stats        Stats      `json:"stats"`
}

// Subscribe registers for committed changes. The caller must cancel the subscription.
//
// Handlers run synchronously while the service holds its write lock, so they
// may read (GetProject, Board, Dashboard) but must not call a mutating method;
// doing so deadlocks. Hand the change to another goroutine for that.
func (s *Service) Subscribe(filter events.Filter, handler events.Handler) *events.Subscription {
	return s.bus.Subscribe(filter, handler)
}

// CreateProject stores a new project with at least one task.
func (s *Service) CreateProject(ctx context.Context, name string, inputs []TaskInput) (models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(inputs) == 0 {
		return models.Project{}, ErrInvalidArgs
	}

	p := models.Project{
		ID:        models.NewID(),
		Name:      name,
		State:     models.ProjectUnstarted,
		StartDate: s.now(),
	}
	for _, in := range inputs {
		task, err := newTask(in)
		if err != nil {
			return models.Project{}, err
		}
		p.Tasks = append(p.Tasks, task)
	}
	board.Normalize(&p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.CreateProject(ctx, p); err != nil {
		return models.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.logger.Info("project created", slog.String("project", p.ID), slog.Int("tasks", len(p.Tasks)))
	s.tracker.LogEvent("project_created", map[string]any{"tasks": len(p.Tasks)})
	s.publish(events.ProjectCreated, p.ID, "")
	return p, nil
}

// GetProject returns a project by id.
func (s *Service) GetProject(ctx context.Context, id string) (models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return models.Project{}, translate(err)
	}
	return p, nil
}

// ListProjects returns active, finished or all projects.
func (s *Service) ListProjects(ctx context.Context, f storage.Filter) ([]models.Project, error) {
	projects, err := s.store.ListProjects(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project with everything it owns.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteProject(ctx, id); err != nil {
		return translate(err)
	}
	s.publish(events.ProjectDeleted, id, "")
	return nil
}

// Board splits a project into current sprint, backlog and finished tasks.
func (s *Service) Board(ctx context.Context, id string) (Board, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return Board{}, err
	}
	return boardOf(&p), nil
}

// AddTask appends a task to the end of the backlog, or of the finished
// section when it is created finished.
func (s *Service) AddTask(ctx context.Context, projectID string, in TaskInput) (models.Task, error) {
	task, err := newTask(in)
	if err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.update(ctx, projectID, func(p *models.Project) error {
		if p.State == models.ProjectFinished {
			return ErrProjectFinished
		}
		parts := board.Normalize(p)
		pos := len(p.Tasks)
		if task.State != models.TaskFinished {
			pos = len(parts.Sprint) + len(parts.Backlog)
		}
		p.Tasks = append(p.Tasks, models.Task{})
		copy(p.Tasks[pos+1:], p.Tasks[pos:])
		p.Tasks[pos] = task
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	s.publish(events.TaskAdded, projectID, task.ID)
	return task, nil
}

// UpdateTask applies a patch to a task.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) (models.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Task{}, ErrInvalidArgs
		}
		patch.Title = &title
	}
	if patch.EstimatedDuration != nil && *patch.EstimatedDuration <= 0 {
		return models.Task{}, ErrInvalidArgs
	}
	if patch.State != nil && !patch.State.Valid() {
		return models.Task{}, ErrInvalidArgs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out models.Task
	_, err := s.update(ctx, projectID, func(p *models.Project) error {
		if p.State == models.ProjectFinished {
			return ErrProjectFinished
		}
		task, ok := p.Task(taskID)
		if !ok {
			return ErrTaskNotFound
		}
		if patch.Title != nil {
			task.Title = *patch.Title
		}
		if patch.Details != nil {
			task.Details = *patch.Details
		}
		if patch.State != nil {
			task.State = *patch.State
		}
		if patch.Priority != nil {
			task.Priority = *patch.Priority
		}
		if patch.EstimatedDuration != nil {
			task.EstimatedDuration = *patch.EstimatedDuration
		}
		out = *task
		board.Normalize(p)
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	s.publish(events.TaskUpdated, projectID, taskID)
	return out, nil
}

// DeleteTask removes a task from the project and from all of its sprints.
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.update(ctx, projectID, func(p *models.Project) error {
		if p.State == models.ProjectFinished {
			return ErrProjectFinished
		}
		if !p.RemoveTask(taskID) {
			return ErrTaskNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(events.TaskDeleted, projectID, taskID)
	return nil
}

// MoveTask moves a task between or within sections and returns the new board.
func (s *Service) MoveTask(ctx context.Context, projectID string, from, to board.Location) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var moved string
	p, err := s.update(ctx, projectID, func(p *models.Project) error {
		if p.State == models.ProjectFinished {
			return ErrProjectFinished
		}
		if err := board.Validate(p, from, to); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMove, err)
		}
		moved = board.Move(p, from, to)
		return nil
	})
	if err != nil {
		return Board{}, err
	}

	s.tracker.LogEvent("task_moved", map[string]any{"from": from.Partition.String(), "to": to.Partition.String()})
	s.publish(events.TaskMoved, projectID, moved)
	return boardOf(&p), nil
}

// PreviewSprint shows which tasks a sprint with maxTime minutes would take.
func (s *Service) PreviewSprint(ctx context.Context, projectID string, maxTime int) (SprintPlan, error) {
	if maxTime < 0 {
		return SprintPlan{}, ErrInvalidArgs
	}
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return SprintPlan{}, err
	}
	if p.State == models.ProjectFinished {
		return SprintPlan{}, ErrProjectFinished
	}
	unstarted := planner.Unstarted(&p)
	if len(unstarted) == 0 {
		return SprintPlan{}, ErrNoUnstartedTasks
	}
	return planOf(&p, planner.Select(unstarted, maxTime), maxTime), nil
}

// StartSprint plans a sprint with maxTime minutes, commits it and schedules
// the end-of-sprint reminder.
func (s *Service) StartSprint(ctx context.Context, projectID string, maxTime int) (SprintPlan, error) {
	if maxTime < 0 {
		return SprintPlan{}, ErrInvalidArgs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var plan SprintPlan
	p, err := s.update(ctx, projectID, func(p *models.Project) error {
		if p.State == models.ProjectFinished {
			return ErrProjectFinished
		}
		unstarted := planner.Unstarted(p)
		if len(unstarted) == 0 {
			return ErrNoUnstartedTasks
		}
		selected := planner.Select(unstarted, maxTime)
		plan = planOf(p, selected, maxTime)

		sprint := planner.NewSprint(selected, s.now(), s.sprintLength)
		p.Sprints = append(p.Sprints, sprint)
		board.Normalize(p)
		if p.State == models.ProjectUnstarted {
			p.State = models.ProjectInProgress
		}
		plan.Sprint = &sprint
		return nil
	})
	if err != nil {
		return SprintPlan{}, err
	}

	s.notifier.Schedule(p.Name, sprintEndedBody, plan.Sprint.EndDate())
	s.logger.Info("sprint started",
		slog.String("project", projectID),
		slog.Int("week", plan.Week),
		slog.Int("tasks", len(plan.Tasks)),
		slog.Time("ends_at", plan.Sprint.EndDate()))
	s.tracker.LogEvent("sprint_started", map[string]any{"week": plan.Week, "tasks": len(plan.Tasks), "max_time": maxTime})
	s.publish(events.SprintStarted, projectID, "")
	return plan, nil
}

// FinishProject marks a project finished once all its tasks are finished.
// Finishing an already finished project changes nothing.
func (s *Service) FinishProject(ctx context.Context, projectID string) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	already := false
	p, err := s.update(ctx, projectID, func(p *models.Project) error {
		if p.State == models.ProjectFinished {
			already = true
			return nil
		}
		if p.Outstanding() > 0 {
			return ErrOutstandingTasks
		}
		p.FinishProject(s.now())
		return nil
	})
	if err != nil {
		return models.Project{}, err
	}
	if !already {
		s.tracker.LogEvent("project_finished", map[string]any{"sprints": len(p.Sprints), "tasks": len(p.Tasks)})
		s.publish(events.ProjectFinished, projectID, "")
	}
	return p, nil
}

// Dashboard reports the current sprint's progress and the project totals.
func (s *Service) Dashboard(ctx context.Context, projectID string) (Dashboard, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		ProjectID:   p.ID,
		Name:        p.Name,
		Week:        len(p.Sprints),
		NeedsSprint: true,
		Stats:       statsOf(&p),
	}
	if sprint := p.CurrentSprint(); sprint != nil {
		end := sprint.EndDate()
		d.SprintEndsAt = &end
		d.NeedsSprint = end.Before(s.now())
		for _, t := range board.Tasks(&p, sprint.TaskIDs) {
			switch t.State {
			case models.TaskUnstarted:
				d.Unstarted++
			case models.TaskInProgress:
				d.InProgress++
			case models.TaskFinished:
				d.Finished++
			}
		}
	}
	return d, nil
}

// Stats summarises a project.
func (s *Service) Stats(ctx context.Context, projectID string) (Stats, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(&p), nil
}

func (s *Service) update(ctx context.Context, id string, fn storage.Mutator) (models.Project, error) {
	p, err := s.store.Update(ctx, id, fn)
	if err != nil {
		return models.Project{}, translate(err)
	}
	return p, nil
}

func (s *Service) publish(kind events.Kind, projectID, taskID string) {
	s.bus.Publish(events.Change{Kind: kind, ProjectID: projectID, TaskID: taskID, At: s.now()})
}

func translate(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func newTask(in TaskInput) (models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.EstimatedDuration <= 0 || !in.State.Valid() {
		return models.Task{}, ErrInvalidArgs
	}
	return models.Task{
		ID:                models.NewID(),
		Title:             title,
		Details:           in.Details,
		State:             in.State,
		Priority:          in.Priority,
		EstimatedDuration: in.EstimatedDuration,
	}, nil
}

func boardOf(p *models.Project) Board {
	parts := board.Derive(p)
	return Board{
		ProjectID: p.ID,
		Week:      len(p.Sprints),
		Sprint:    board.Tasks(p, parts.Sprint),
		Backlog:   board.Tasks(p, parts.Backlog),
		Finished:  board.Tasks(p, parts.Finished),
	}
}

func planOf(p *models.Project, selected []models.Task, maxTime int) SprintPlan {
	return SprintPlan{
		Week:         len(p.Sprints) + 1,
		MaxTime:      maxTime,
		TotalMinutes: planner.TotalMinutes(selected),
		Tasks:        selected,
	}
}

func statsOf(p *models.Project) Stats {
	minutes := 0
	for _, t := range p.Tasks {
		minutes += t.EstimatedDuration
	}
	return Stats{
		Sprints: len(p.Sprints),
		Tasks:   len(p.Tasks),
		Minutes: minutes,
		Hours:   models.FormatHours(minutes),
	}
}
