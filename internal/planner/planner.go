// Package planner picks the tasks that go into a new sprint.
package planner

import (
	"time"

	"taskit/internal/models"
)

// Unstarted returns the project's tasks that are not finished, in master order.
func Unstarted(p *models.Project) []models.Task {
	var out []models.Task
	for _, t := range p.Tasks {
		if t.State != models.TaskFinished {
			out = append(out, t)
		}
	}
	return out
}

// Select returns the longest prefix of unstarted whose estimated durations fit
// into maxTime minutes. The first task is always selected, even when it alone
// exceeds the budget. Scanning stops at the first task that does not fit.
//
// Select panics when unstarted is empty; callers must check first.
func Select(unstarted []models.Task, maxTime int) []models.Task {
	if len(unstarted) == 0 {
		panic("planner: no unstarted tasks to plan a sprint from")
	}

	selected := []models.Task{unstarted[0]}
	total := unstarted[0].EstimatedDuration

	for _, task := range unstarted[1:] {
		if total+task.EstimatedDuration > maxTime {
			break
		}
		selected = append(selected, task)
		total += task.EstimatedDuration
	}
	return selected
}

// TotalMinutes sums the estimated durations of tasks.
func TotalMinutes(tasks []models.Task) int {
	total := 0
	for _, t := range tasks {
		total += t.EstimatedDuration
	}
	return total
}

// NewSprint packages a selection into a sprint starting at now.
func NewSprint(selected []models.Task, now time.Time, length time.Duration) models.Sprint {
	if length <= 0 {
		length = models.DefaultSprintLength
	}
	ids := make([]string, 0, len(selected))
	for _, t := range selected {
		ids = append(ids, t.ID)
	}
	return models.Sprint{
		ID:        models.NewID(),
		TaskIDs:   ids,
		StartDate: now,
		Duration:  length,
	}
}
