package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSprintLength is the time box of a sprint unless configured otherwise.
const DefaultSprintLength = 7 * 24 * time.Hour

// TaskState tracks the progress of a single task.
type TaskState int

const (
	TaskUnstarted TaskState = iota
	TaskInProgress
	TaskFinished
)

// String returns the label shown to users for the state.
func (s TaskState) String() string {
	switch s {
	case TaskUnstarted:
		return "Unstarted"
	case TaskInProgress:
		return "In Progress"
	case TaskFinished:
		return "Finished"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// Valid reports whether s is one of the known states.
func (s TaskState) Valid() bool {
	return s >= TaskUnstarted && s <= TaskFinished
}

// ProjectState tracks the lifecycle of a project.
type ProjectState int

const (
	ProjectUnstarted ProjectState = iota
	ProjectInProgress
	ProjectFinished
)

// Task is a unit of work with an estimated duration in minutes.
type Task struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Details           string    `json:"details"`
	State             TaskState `json:"state"`
	Priority          int       `json:"priority"`
	EstimatedDuration int       `json:"estimated_duration"`
}

// Sprint is a time boxed, ordered selection of a project's tasks.
type Sprint struct {
	ID        string        `json:"id"`
	TaskIDs   []string      `json:"task_ids"`
	StartDate time.Time     `json:"start_date"`
	Duration  time.Duration `json:"duration"`
}

// EndDate is the instant the sprint's time box closes.
func (s Sprint) EndDate() time.Time {
	return s.StartDate.Add(s.Duration)
}

// Contains reports whether the task is part of the sprint.
func (s Sprint) Contains(taskID string) bool {
	for _, id := range s.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// Project owns the master task list and the chronological list of sprints.
type Project struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     ProjectState `json:"state"`
	StartDate time.Time    `json:"start_date"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	Tasks     []Task       `json:"tasks"`
	Sprints   []Sprint     `json:"sprints"`
}

// NewID returns a fresh identifier for tasks, sprints and projects.
func NewID() string {
	return uuid.NewString()
}

// CurrentSprint returns the most recently created sprint or nil.
func (p *Project) CurrentSprint() *Sprint {
	if len(p.Sprints) == 0 {
		return nil
	}
	return &p.Sprints[len(p.Sprints)-1]
}

// TaskIndex returns the position of the task in the master list or -1.
func (p *Project) TaskIndex(id string) int {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Task looks up a task of the master list by id.
func (p *Project) Task(id string) (*Task, bool) {
	i := p.TaskIndex(id)
	if i < 0 {
		return nil, false
	}
	return &p.Tasks[i], true
}

// RemoveTask drops the task from the master list and from every sprint.
func (p *Project) RemoveTask(id string) bool {
	i := p.TaskIndex(id)
	if i < 0 {
		return false
	}
	p.Tasks = append(p.Tasks[:i], p.Tasks[i+1:]...)
	for s := range p.Sprints {
		ids := p.Sprints[s].TaskIDs[:0]
		for _, tid := range p.Sprints[s].TaskIDs {
			if tid != id {
				ids = append(ids, tid)
			}
		}
		p.Sprints[s].TaskIDs = ids
	}
	return true
}

// Outstanding counts tasks that are not finished yet.
func (p *Project) Outstanding() int {
	n := 0
	for _, t := range p.Tasks {
		if t.State != TaskFinished {
			n++
		}
	}
	return n
}

// FinishProject marks the project finished once; later calls are no-ops.
func (p *Project) FinishProject(now time.Time) {
	if p.State == ProjectFinished {
		return
	}
	p.State = ProjectFinished
	end := now
	p.EndDate = &end
}

// FormatHours renders a minute count as hours, e.g. "2" or "1.5".
func FormatHours(minutes int) string {
	if minutes%60 == 0 {
		return fmt.Sprintf("%d", minutes/60)
	}
	return fmt.Sprintf("%.1f", float64(minutes)/60.0)
}
