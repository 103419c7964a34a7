// Package board derives the sprint/backlog/finished view of a project and
// moves tasks between those sections.
package board

import (
	"errors"
	"fmt"

	"taskit/internal/models"
)

// Partition is one of the three sections a project's tasks are shown in.
type Partition int

const (
	InSprint Partition = iota
	Backlog
	Finished
)

var partitionNames = [...]string{"sprint", "backlog", "finished"}

func (p Partition) String() string {
	if p < InSprint || p > Finished {
		return fmt.Sprintf("Partition(%d)", int(p))
	}
	return partitionNames[p]
}

// MarshalText encodes the partition by name.
func (p Partition) MarshalText() ([]byte, error) {
	if p < InSprint || p > Finished {
		return nil, fmt.Errorf("unknown partition %d", int(p))
	}
	return []byte(partitionNames[p]), nil
}

// UnmarshalText accepts "sprint", "backlog" or "finished".
func (p *Partition) UnmarshalText(text []byte) error {
	for i, name := range partitionNames {
		if string(text) == name {
			*p = Partition(i)
			return nil
		}
	}
	return fmt.Errorf("unknown partition %q", string(text))
}

// Location addresses a task by section and row.
type Location struct {
	Partition Partition `json:"partition"`
	Index     int       `json:"index"`
}

var (
	ErrNoSprint        = errors.New("project has no sprint")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Partitions holds task ids per section, each in display order.
type Partitions struct {
	Sprint   []string `json:"sprint"`
	Backlog  []string `json:"backlog"`
	Finished []string `json:"finished"`
}

// Derive computes the sections from the master list and the current sprint.
// Membership in the current sprint wins over the task's state.
func Derive(p *models.Project) Partitions {
	var parts Partitions
	inSprint := map[string]bool{}

	if sprint := p.CurrentSprint(); sprint != nil {
		for _, id := range sprint.TaskIDs {
			if p.TaskIndex(id) < 0 || inSprint[id] {
				continue
			}
			inSprint[id] = true
			parts.Sprint = append(parts.Sprint, id)
		}
	}

	for _, t := range p.Tasks {
		switch {
		case inSprint[t.ID]:
		case t.State == models.TaskFinished:
			parts.Finished = append(parts.Finished, t.ID)
		default:
			parts.Backlog = append(parts.Backlog, t.ID)
		}
	}
	return parts
}

// Len returns the number of tasks in a section.
func (ps Partitions) Len(part Partition) int {
	return len(*ps.section(part))
}

func (ps *Partitions) section(part Partition) *[]string {
	switch part {
	case InSprint:
		return &ps.Sprint
	case Backlog:
		return &ps.Backlog
	case Finished:
		return &ps.Finished
	}
	panic(fmt.Sprintf("board: unknown partition %d", int(part)))
}

// Validate checks that a move can be applied to the project.
func Validate(p *models.Project, from, to Location) error {
	for _, loc := range []Location{from, to} {
		if loc.Partition < InSprint || loc.Partition > Finished {
			return fmt.Errorf("unknown partition %d", int(loc.Partition))
		}
		if loc.Partition == InSprint && p.CurrentSprint() == nil {
			return ErrNoSprint
		}
	}

	parts := Derive(p)
	if from.Index < 0 || from.Index >= parts.Len(from.Partition) {
		return fmt.Errorf("origin %s[%d]: %w", from.Partition, from.Index, ErrIndexOutOfRange)
	}

	limit := parts.Len(to.Partition)
	if from.Partition == to.Partition {
		limit--
	}
	if to.Index < 0 || to.Index > limit {
		return fmt.Errorf("destination %s[%d]: %w", to.Partition, to.Index, ErrIndexOutOfRange)
	}
	return nil
}

// Move relocates the task at from to to, updating the task state, the
// current sprint's sequence and the master list. It returns the moved task id.
//
// Move panics on a location that Validate rejects.
func Move(p *models.Project, from, to Location) string {
	if err := Validate(p, from, to); err != nil {
		panic(fmt.Sprintf("board: invalid move: %v", err))
	}

	parts := Derive(p)
	src := parts.section(from.Partition)
	id := (*src)[from.Index]
	*src = append((*src)[:from.Index], (*src)[from.Index+1:]...)

	dst := parts.section(to.Partition)
	*dst = append(*dst, "")
	copy((*dst)[to.Index+1:], (*dst)[to.Index:])
	(*dst)[to.Index] = id

	task, _ := p.Task(id)
	task.State = nextState(task.State, from.Partition, to.Partition)

	if sprint := p.CurrentSprint(); sprint != nil {
		sprint.TaskIDs = append([]string(nil), parts.Sprint...)
	}
	p.Tasks = reorder(p.Tasks, parts)
	return id
}

// nextState applies the transition table. Only crossing the finished
// boundary writes the state, plus the downgrade of a finished task leaving
// the sprint for the backlog.
func nextState(state models.TaskState, from, to Partition) models.TaskState {
	switch {
	case from == to:
		return state
	case to == Finished:
		return models.TaskFinished
	case from == Finished:
		return models.TaskUnstarted
	case from == InSprint && to == Backlog && state == models.TaskFinished:
		return models.TaskUnstarted
	}
	return state
}

// Normalize rewrites the master list as sprint ++ backlog ++ finished without
// changing any section's order.
func Normalize(p *models.Project) Partitions {
	parts := Derive(p)
	p.Tasks = reorder(p.Tasks, parts)
	return parts
}

// reorder lays the master list out as sprint ++ backlog ++ finished.
func reorder(tasks []models.Task, parts Partitions) []models.Task {
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	out := make([]models.Task, 0, len(tasks))
	for _, section := range [][]string{parts.Sprint, parts.Backlog, parts.Finished} {
		for _, id := range section {
			out = append(out, byID[id])
		}
	}
	return out
}

// Tasks resolves a section's ids to tasks.
func Tasks(p *models.Project, ids []string) []models.Task {
	out := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := p.Task(id); ok {
			out = append(out, *t)
		}
	}
	return out
}
