package service

import "errors"

// Project errors
var (
	ErrNotFound         = errors.New("project not found")
	ErrInvalidArgs      = errors.New("invalid arguments")
	ErrProjectFinished  = errors.New("project is finished")
	ErrOutstandingTasks = errors.New("project has unfinished tasks")
)

// Task and sprint errors
var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrNoUnstartedTasks = errors.New("no unstarted tasks to plan a sprint from")
	ErrInvalidMove      = errors.New("invalid move")
)
