package board

import (
	"context"
	"errors"
	"strings"

	"github.com/tailored-agentic-units/board-assistant/tools"
)

type getBoardArgs struct{}

type listTasksArgs struct {
	Column string `json:"column,omitempty" jsonschema:"description=Only return tasks in this column"`
}

type createTaskArgs struct {
	Title       string `json:"title" jsonschema:"description=Short task title"`
	Description string `json:"description,omitempty"`
	Column      string `json:"column,omitempty" jsonschema:"description=Column to create the task in; defaults to the first column"`
	Assignee    string `json:"assignee,omitempty"`
}

func (a createTaskArgs) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("title must not be empty")
	}
	return nil
}

type moveTaskArgs struct {
	TaskID string `json:"task_id"`
	Column string `json:"column" jsonschema:"description=Destination column"`
}

type updateTaskArgs struct {
	TaskID      string  `json:"task_id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Assignee    *string `json:"assignee,omitempty"`
}

func (a updateTaskArgs) Validate() error {
	if a.Title == nil && a.Description == nil && a.Assignee == nil {
		return errors.New("nothing to update")
	}
	if a.Title != nil && strings.TrimSpace(*a.Title) == "" {
		return errors.New("title must not be empty")
	}
	return nil
}

type deleteTaskArgs struct {
	TaskID string `json:"task_id"`
}

type deleted struct {
	Deleted string `json:"deleted"`
}

// Register adds the board tools to reg. Every tool acts on the board of
// the registry's principal.
func Register(reg *tools.Registry, svc *Service) error {
	steps := []func() error{
		func() error {
			return tools.Register(reg, tools.Definition{
				Name:        "get_board",
				Description: "Return the current board with its columns.",
			}, func(_ context.Context, p tools.Principal, _ getBoardArgs) (Board, error) {
				return svc.Board(p.BoardID)
			})
		},
		func() error {
			return tools.Register(reg, tools.Definition{
				Name:        "list_tasks",
				Description: "List the tasks on the current board, optionally filtered by column.",
			}, func(_ context.Context, p tools.Principal, a listTasksArgs) ([]Task, error) {
				return svc.Tasks(p.BoardID, a.Column)
			})
		},
		func() error {
			return tools.Register(reg, tools.Definition{
				Name:        "create_task",
				Description: "Create a task on the current board.",
				Mutating:    true,
			}, func(_ context.Context, p tools.Principal, a createTaskArgs) (Task, error) {
				return svc.CreateTask(p.BoardID, Task{
					Title:       a.Title,
					Description: a.Description,
					Column:      a.Column,
					Assignee:    a.Assignee,
				})
			})
		},
		func() error {
			return tools.Register(reg, tools.Definition{
				Name:        "move_task",
				Description: "Move a task to another column.",
				Mutating:    true,
			}, func(_ context.Context, p tools.Principal, a moveTaskArgs) (Task, error) {
				return svc.MoveTask(p.BoardID, a.TaskID, a.Column)
			})
		},
		func() error {
			return tools.Register(reg, tools.Definition{
				Name:        "update_task",
				Description: "Change the title, description or assignee of a task.",
				Mutating:    true,
			}, func(_ context.Context, p tools.Principal, a updateTaskArgs) (Task, error) {
				return svc.UpdateTask(p.BoardID, a.TaskID, func(_ Board, t *Task) error {
					if a.Title != nil {
						t.Title = *a.Title
					}
					if a.Description != nil {
						t.Description = *a.Description
					}
					if a.Assignee != nil {
						t.Assignee = *a.Assignee
					}
					return nil
				})
			})
		},
		func() error {
			return tools.Register(reg, tools.Definition{
				Name:        "delete_task",
				Description: "Delete a task from the current board.",
				Mutating:    true,
			}, func(_ context.Context, p tools.Principal, a deleteTaskArgs) (deleted, error) {
				if err := svc.DeleteTask(p.BoardID, a.TaskID); err != nil {
					return deleted{}, err
				}
				return deleted{Deleted: a.TaskID}, nil
			})
		},
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Toolset returns a factory building a principal-bound registry holding
// the board tools.
func Toolset(svc *Service) func(tools.Principal) (*tools.Registry, error) {
	return func(p tools.Principal) (*tools.Registry, error) {
		reg := tools.New(p)
		if err := Register(reg, svc); err != nil {
			return nil, err
		}
		return reg, nil
	}
}
