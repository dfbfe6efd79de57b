package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/repo"

	"github.com/danielgtaylor/huma/v2"
)

// rawQuery returns the untouched query string. Read filters use arbitrary
// column names, so they cannot be declared as huma input fields.
func rawQuery(ctx context.Context) url.Values {
	if req := requestFromContext(ctx); req != nil {
		return req.URL.Query()
	}
	return url.Values{}
}

func parseRead(ctx context.Context, res repo.Resource) (repo.Query, error) {
	q, err := repo.ParseQuery(res, rawQuery(ctx))
	if err != nil {
		return repo.Query{}, handleError(err)
	}
	return q, nil
}

func registerReads(api huma.API, e engine.Engine) {
	readErrors := []int{http.StatusBadRequest, http.StatusServiceUnavailable}

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Description: "Filters use column=op.value with op eq, neq or is; also order, limit and offset.",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		q, err := parseRead(ctx, repo.ResourceUsers)
		if err != nil {
			return nil, err
		}
		items, err := e.ListUsers(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		q, err := parseRead(ctx, repo.ResourceTasks)
		if err != nil {
			return nil, err
		}
		items, err := e.ListTasks(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-assignments",
		Method:      http.MethodGet,
		Path:        "/task_assignments",
		Summary:     "List assignments",
		Description: "Supports state=open|pending_review|approved|rejected and select=*,users(username),tasks(task_name) to embed related rows.",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AssignmentViewResponse `json:"body"`
	}, error) {
		q, err := parseRead(ctx, repo.ResourceAssignments)
		if err != nil {
			return nil, err
		}
		items, err := e.ListAssignments(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]AssignmentViewResponse, 0, len(items))
		for _, v := range items {
			out = append(out, AssignmentViewResponse{AssignmentView: v, State: v.State()})
		}
		return &struct {
			Body []AssignmentViewResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   int64  `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		if limit > 500 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "limit must be at most 500", nil)
		}
		var before int64
		if input.Cursor != "" {
			n, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || n <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			before = n
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: make([]EventResponse, 0, len(items))}
		for _, ev := range items {
			resp.Items = append(resp.Items, eventResponse(ev))
		}
		if len(items) == limit {
			resp.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func eventResponse(ev domain.Event) EventResponse {
	var payload any
	if ev.Payload != "" {
		if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
			payload = ev.Payload
		}
	}
	return EventResponse{
		ID:         ev.ID,
		TS:         ev.TS,
		Type:       ev.Type,
		EntityKind: ev.EntityKind,
		EntityID:   ev.EntityID,
		ActorID:    ev.ActorID,
		Payload:    payload,
	}
}
