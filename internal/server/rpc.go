package server

import (
	"context"
	"errors"
	"net/http"

	"choreline/internal/credentials"
	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/repo"

	"github.com/danielgtaylor/huma/v2"
)

var rpcErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
}

func requireBody(ctx context.Context) error {
	if len(bodyBytes(ctx)) == 0 {
		return newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	return nil
}

func registerAccounts(api huma.API, e engine.Engine, creds credentials.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/rpc/register_user",
		Summary:       "Register a household member",
		DefaultStatus: http.StatusCreated,
		Errors:        rpcErrors,
	}, func(ctx context.Context, input *struct {
		Body RegisterUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		u, err := creds.Register(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{UserID: u.ID, Username: u.Username, Message: "User registered successfully"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/rpc/login",
		Summary:     "Verify credentials and issue a token",
		Errors:      rpcErrors,
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		u, err := creds.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, exp, err := creds.IssueToken(ctx, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{
			UserID:    u.ID,
			Username:  u.Username,
			Token:     token,
			ExpiresAt: exp,
			Message:   "Login successful",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Describe the authenticated user",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		userID := tokenUser(ctx)
		if userID == 0 {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "bearer token required", nil)
		}
		who, err := e.Auth.Whoami(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			err = domain.ErrUserNotFound.WithMessage("user %d not found", userID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID:      who.User.ID,
			Username:    who.User.Username,
			Roles:       who.Roles,
			Permissions: who.Permissions,
		}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/rpc/create_task",
		Summary:       "Create a chore",
		DefaultStatus: http.StatusCreated,
		Errors:        rpcErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		t, err := e.CreateTask(ctx, input.Body.TaskName, input.Body.Description, tokenUser(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{
			TaskID:      t.ID,
			TaskName:    t.Name,
			Description: t.Description,
			Message:     "Task created successfully",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rotate-tasks",
		Method:      http.MethodPost,
		Path:        "/rpc/rotate_tasks",
		Summary:     "Assign every unassigned chore to the least-loaded members",
		Errors:      rpcErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RotateTasksResponse `json:"body"`
	}, error) {
		res, err := e.RotateTasks(ctx, tokenUser(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RotateTasksResponse `json:"body"`
		}{Body: rotateResponse(res)}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "assign-task",
		Method:        http.MethodPost,
		Path:          "/rpc/assign_task",
		Summary:       "Claim a chore for a member",
		DefaultStatus: http.StatusCreated,
		Errors:        rpcErrors,
	}, func(ctx context.Context, input *struct {
		Body AssignTaskRequest `json:"body"`
	}) (*struct {
		Body AssignTaskResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, err := actingUser(ctx, input.Body.UserID, "p_user_id")
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.AssignTask(ctx, input.Body.TaskID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignTaskResponse `json:"body"`
		}{Body: AssignTaskResponse{
			AssignmentID: a.ID,
			TaskID:       a.TaskID,
			UserID:       a.UserID,
			AssignedAt:   a.AssignedAt,
			Message:      "Task assigned successfully",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/rpc/complete_task",
		Summary:     "Mark an assignment done and submit it for review",
		Errors:      rpcErrors,
	}, func(ctx context.Context, input *struct {
		Body CompleteTaskRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, err := actingUser(ctx, input.Body.UserID, "p_user_id")
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.CompleteTask(ctx, input.Body.AssignmentID, userID, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: TransitionResponse{Message: "Task completed successfully", Assignment: assignmentResponse(a)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-task",
		Method:      http.MethodPost,
		Path:        "/rpc/reject_task",
		Summary:     "Reject a completed assignment",
		Errors:      rpcErrors,
	}, func(ctx context.Context, input *struct {
		Body RejectTaskRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		reviewerID, err := actingUser(ctx, input.Body.ReviewerID, "p_reviewer_id")
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.RejectTask(ctx, input.Body.AssignmentID, reviewerID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: TransitionResponse{Message: "Task rejected", Assignment: assignmentResponse(a)}}, nil
	})
}
