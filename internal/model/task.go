package model

import "time"

// TaskStatus is the column a task sits in on the work-in-progress board.
type TaskStatus string

const (
	TaskToDo       TaskStatus = "TO_DO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
	TaskPartial    TaskStatus = "PARTIAL"
	TaskIssue      TaskStatus = "ISSUE"
	TaskPlanned    TaskStatus = "PLANNED"
	TaskOnHold     TaskStatus = "ON_HOLD"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// TaskStatuses lists the board columns in display order.
var TaskStatuses = []TaskStatus{
	TaskToDo, TaskInProgress, TaskDone, TaskPartial,
	TaskIssue, TaskPlanned, TaskOnHold, TaskCancelled,
}

func (s TaskStatus) Valid() bool {
	for _, st := range TaskStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Task belongs to one user and is optionally scoped to a ProjectScope.
type Task struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Text           string     `json:"text"`
	Status         TaskStatus `json:"status"`
	ProjectScopeID *string    `json:"projectScopeId"`
	Notes          string     `json:"notes"`
	DueDate        *time.Time `json:"dueDate"`
	OrderVal       int        `json:"orderVal"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ProjectScope groups tasks under a named project for one user.
type ProjectScope struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
