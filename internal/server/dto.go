package server

import (
	"time"

	"choreline/internal/domain"
	"choreline/internal/engine"
)

// Request payloads. Field names follow the RPC parameter convention of the
// household API (p_ prefix).

type RegisterUserRequest struct {
	Username string `json:"p_username" example:"user1"`
	Password string `json:"p_password" example:"password123"`
}

type LoginRequest struct {
	Username string `json:"p_username" example:"user1"`
	Password string `json:"p_password" example:"password123"`
}

type CreateTaskRequest struct {
	TaskName    string `json:"p_task_name" example:"Kitchen Cleaning"`
	Description string `json:"p_description,omitempty" example:"Clean the kitchen surfaces and floor."`
}

type AssignTaskRequest struct {
	TaskID int64 `json:"p_task_id" example:"1"`
	UserID int64 `json:"p_user_id,omitempty" example:"1"`
}

type CompleteTaskRequest struct {
	AssignmentID int64 `json:"p_assignment_id" example:"1"`
	// UserID may be omitted when a bearer token identifies the caller.
	UserID int64  `json:"p_user_id,omitempty" example:"1"`
	Notes  string `json:"p_notes,omitempty" example:"Wiped the counters"`
}

type RejectTaskRequest struct {
	AssignmentID int64  `json:"p_assignment_id" example:"1"`
	ReviewerID   int64  `json:"p_reviewer_id,omitempty" example:"2"`
	Reason       string `json:"p_reason" example:"Floor still sticky"`
}

// Responses

type UserResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type LoginResponse struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

type TaskResponse struct {
	TaskID      int64  `json:"task_id"`
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

type AssignTaskResponse struct {
	AssignmentID int64  `json:"assignment_id"`
	TaskID       int64  `json:"task_id"`
	UserID       int64  `json:"user_id"`
	AssignedAt   string `json:"assigned_at"`
	Message      string `json:"message"`
}

type AssignmentResponse struct {
	domain.Assignment
	State domain.State `json:"state" enum:"open,pending_review,approved,rejected"`
}

type TransitionResponse struct {
	Message    string             `json:"message"`
	Assignment AssignmentResponse `json:"assignment"`
}

type RotateTasksResponse struct {
	Rotated     int                  `json:"rotated"`
	Assignments []AssignmentResponse `json:"assignments"`
	Message     string               `json:"message"`
}

type AssignmentViewResponse struct {
	domain.AssignmentView
	State domain.State `json:"state" enum:"open,pending_review,approved,rejected"`
}

type WhoAmIResponse struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type IndexResponse struct {
	Name      string   `json:"name"`
	Household string   `json:"household"`
	Resources []string `json:"resources"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   *int64 `json:"entity_id,omitempty"`
	ActorID    *int64 `json:"actor_id,omitempty"`
	Payload    any    `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{Assignment: a, State: a.State()}
}

func assignmentResponses(items []domain.Assignment) []AssignmentResponse {
	out := make([]AssignmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, assignmentResponse(a))
	}
	return out
}

func rotateResponse(res engine.RotationResult) RotateTasksResponse {
	return RotateTasksResponse{
		Rotated:     res.Rotated,
		Assignments: assignmentResponses(res.Assignments),
		Message:     "Tasks rotated successfully",
	}
}
