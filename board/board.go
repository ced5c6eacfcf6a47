// Package board is an in-memory task board and the assistant tools that
// operate on it. The tools are registered per conversation on a
// principal-bound tools.Registry, so every call acts on the principal's
// board only.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for board access and task operations.
var (
	ErrBoardNotFound = errors.New("board not found")
	ErrNotMember     = errors.New("user is not a member of the board")
	ErrTaskNotFound  = errors.New("task not found")
	ErrUnknownColumn = errors.New("unknown column")
)

// Board is a kanban board. A board without members is open to every user.
type Board struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Members []string `json:"members,omitempty" yaml:"members,omitempty"`
}

// Task is a card on a board.
type Task struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"boardId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Column      string    `json:"column"`
	Assignee    string    `json:"assignee,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Service holds boards and their tasks. Safe for concurrent use.
type Service struct {
	mu     sync.RWMutex
	boards map[string]Board
	tasks  map[string]*Task
	now    func() time.Time
}

// NewService creates a Service holding boards.
func NewService(boards ...Board) *Service {
	s := &Service{
		boards: make(map[string]Board, len(boards)),
		tasks:  make(map[string]*Task),
		now:    time.Now,
	}
	for _, b := range boards {
		s.boards[b.ID] = b
	}
	return s
}

// Access checks that userID may use boardID.
func (s *Service) Access(_ context.Context, boardID, userID string) error {
	s.mu.RLock()
	b, ok := s.boards[boardID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	if len(b.Members) > 0 && !slices.Contains(b.Members, userID) {
		return ErrNotMember
	}
	return nil
}

// Board returns a board by id.
func (s *Service) Board(boardID string) (Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[boardID]
	if !ok {
		return Board{}, fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	return b, nil
}

// Tasks returns the board's tasks in creation order, filtered to column
// when it is not empty.
func (s *Service) Tasks(boardID, column string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.boards[boardID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}

	out := make([]Task, 0)
	for _, t := range s.tasks {
		if t.BoardID != boardID || (column != "" && t.Column != column) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateTask adds a task. An empty column places it in the board's first
// column.
func (s *Service) CreateTask(boardID string, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[boardID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	if t.Column == "" && len(b.Columns) > 0 {
		t.Column = b.Columns[0]
	}
	if !slices.Contains(b.Columns, t.Column) {
		return Task{}, fmt.Errorf("%w: %q", ErrUnknownColumn, t.Column)
	}

	now := s.now()
	t.ID = uuid.NewString()
	t.BoardID = boardID
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tasks[t.ID] = &t
	return t, nil
}

// UpdateTask applies fn to a task of boardID and returns the result.
func (s *Service) UpdateTask(boardID, taskID string, fn func(b Board, t *Task) error) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[boardID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	t, ok := s.tasks[taskID]
	if !ok || t.BoardID != boardID {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	updated := *t
	if err := fn(b, &updated); err != nil {
		return Task{}, err
	}
	updated.UpdatedAt = s.now()
	*t = updated
	return updated, nil
}

// MoveTask moves a task to column.
func (s *Service) MoveTask(boardID, taskID, column string) (Task, error) {
	return s.UpdateTask(boardID, taskID, func(b Board, t *Task) error {
		if !slices.Contains(b.Columns, column) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
		}
		t.Column = column
		return nil
	})
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(boardID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.BoardID != boardID {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	delete(s.tasks, taskID)
	return nil
}
