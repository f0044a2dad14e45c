// Package server exposes the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"actionboard/internal/domain"
	"actionboard/internal/engine"
	"actionboard/internal/registry"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Registry *registry.Service
	BasePath string
	Session  SessionConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"Marcos is not allowed to delete activities"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Actionboard API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil || cfg.Registry == nil {
		return nil, errors.New("server: engine and registry are required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	cfg.Session.applyDefaults()

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newSessionMiddleware(cfg.Session))
	hcfg := huma.DefaultConfig("Actionboard API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerStatuses(group)
	registerSession(group, cfg.Registry, cfg.Session)
	registerActivities(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerResponsibles(group, cfg.Registry)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var verr domain.ValidationError
	if errors.As(err, &verr) {
		var details map[string]any
		if verr.Field != "" {
			details = map[string]any{"field": verr.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	var perr domain.PermissionError
	if errors.As(err, &perr) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var nfe domain.NotFoundError
	if errors.As(err, &nfe) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ise domain.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status"`
		}
	}, error) {
		out := &struct {
			Body struct {
				Status string `json:"status"`
			}
		}{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerStatuses(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "Status catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Statuses []statusDTO `json:"statuses"`
		}
	}, error) {
		out := &struct {
			Body struct {
				Statuses []statusDTO `json:"statuses"`
			}
		}{}
		for _, s := range domain.AllStatuses {
			out.Body.Statuses = append(out.Body.Statuses, statusDTO{Value: s, Label: s.Label()})
		}
		return out, nil
	})
}

type sessionBody struct {
	User     string `json:"user"`
	Director bool   `json:"director"`
	Selected bool   `json:"selected"`
}

func registerSession(api huma.API, reg *registry.Service, session SessionConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/session",
		Summary:     "Current user selection",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body sessionBody
	}, error) {
		out := &struct{ Body sessionBody }{}
		user := sessionUser(ctx)
		if user == "" {
			return out, nil
		}
		director, err := reg.IsDirector(ctx, user)
		if err != nil {
			return nil, handleError(err)
		}
		out.Body = sessionBody{User: user, Director: director, Selected: true}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-session",
		Method:      http.MethodPut,
		Path:        "/session",
		Summary:     "Select the current user",
		Description: "The selection is trusted as-is; any registered manager can be chosen.",
	}, func(ctx context.Context, input *struct {
		Body struct {
			User string `json:"user" minLength:"1"`
		}
	}) (*struct {
		SetCookie string `header:"Set-Cookie"`
		Body      sessionBody
	}, error) {
		snapshot, err := reg.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if !snapshot.HasManager(input.Body.User) {
			return nil, handleError(domain.NotFoundError{Kind: "manager", Ref: input.Body.User})
		}
		token, err := session.issueToken(input.Body.User, time.Now())
		if err != nil {
			return nil, handleError(fmt.Errorf("issue session token: %w", err))
		}
		return &struct {
			SetCookie string `header:"Set-Cookie"`
			Body      sessionBody
		}{
			SetCookie: session.cookieValue(token),
			Body: sessionBody{
				User:     input.Body.User,
				Director: snapshot.IsDirector(input.Body.User),
				Selected: true,
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-session",
		Method:        http.MethodDelete,
		Path:          "/session",
		Summary:       "Clear the user selection",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		SetCookie string `header:"Set-Cookie"`
	}, error) {
		return &struct {
			SetCookie string `header:"Set-Cookie"`
		}{SetCookie: session.cookieValue("")}, nil
	})
}

type activityBody struct {
	Body activityDTO
}

func registerActivities(api huma.API, e *engine.Engine) {
	type IDPath struct {
		ID int `path:"id" minimum:"1"`
	}
	type activityFields struct {
		Title       string   `json:"title" minLength:"1"`
		Description string   `json:"description" minLength:"1"`
		Deadline    string   `json:"deadline" example:"2026-10-15"`
		Responsible []string `json:"responsible" minItems:"1"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List visible activities",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Activities []activityDTO `json:"activities"`
		}
	}, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		activities, err := e.ListFor(ctx, user)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Activities []activityDTO `json:"activities"`
			}
		}{}
		out.Body.Activities = toActivityDTOs(activities)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create an activity",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body activityFields
	}) (*activityBody, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		act, err := e.Create(ctx, engine.CreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Deadline:    input.Body.Deadline,
			Responsible: input.Body.Responsible,
			Actor:       user,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: toActivityDTO(act)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{id}",
		Summary:     "Fetch one activity",
	}, func(ctx context.Context, input *IDPath) (*activityBody, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		act, err := e.Get(ctx, input.ID, user)
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: toActivityDTO(act)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-activity",
		Method:      http.MethodPut,
		Path:        "/activities/{id}",
		Summary:     "Edit an activity",
		Description: "Director only. The responsible list is diffed; new people start at pending.",
	}, func(ctx context.Context, input *struct {
		IDPath
		Body activityFields
	}) (*activityBody, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		act, err := e.Edit(ctx, engine.EditOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Deadline:    input.Body.Deadline,
			Responsible: input.Body.Responsible,
			Actor:       user,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: toActivityDTO(act)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-activity",
		Method:        http.MethodDelete,
		Path:          "/activities/{id}",
		Summary:       "Delete an activity",
		Description:   "Director only. Removes the activity and its history for good.",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *IDPath) (*struct{}, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Delete(ctx, input.ID, user); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-status",
		Method:      http.MethodPut,
		Path:        "/activities/{id}/status",
		Summary:     "Change a person's status",
		Description: "Person defaults to the current user; only the director may set someone else's.",
	}, func(ctx context.Context, input *struct {
		IDPath
		Body struct {
			Person        string        `json:"person,omitempty"`
			Status        domain.Status `json:"status" minLength:"1"`
			Comment       string        `json:"comment,omitempty"`
			Justification string        `json:"justification,omitempty"`
		}
	}) (*activityBody, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		person := input.Body.Person
		if person == "" {
			person = user
		}
		act, err := e.UpdateStatus(ctx, engine.StatusUpdateOptions{
			ID:            input.ID,
			Person:        person,
			Status:        input.Body.Status,
			Comment:       input.Body.Comment,
			Justification: input.Body.Justification,
			Actor:         user,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: toActivityDTO(act)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-justification",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/justifications/{person}/review",
		Summary:     "Approve or reject a justification",
		Description: "Director only. Rejecting resets the person's status to in_progress.",
	}, func(ctx context.Context, input *struct {
		IDPath
		Person string `path:"person"`
		Body   struct {
			Decision engine.Decision `json:"decision" enum:"approve,reject"`
			Comment  string          `json:"comment,omitempty"`
		}
	}) (*activityBody, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		act, err := e.Review(ctx, engine.ReviewOptions{
			ID:       input.ID,
			Person:   input.Person,
			Decision: input.Body.Decision,
			Comment:  input.Body.Comment,
			Actor:    user,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: toActivityDTO(act)}, nil
	})
}

func registerDashboard(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Justifications awaiting review",
		Description: "Director only.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Pending []pendingJustificationDTO `json:"pending_justifications"`
		}
	}, error) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pending, err := e.PendingJustifications(ctx, user)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Pending []pendingJustificationDTO `json:"pending_justifications"`
			}
		}{}
		out.Body.Pending = toPendingDTOs(pending)
		return out, nil
	})
}

func registerResponsibles(api huma.API, reg *registry.Service) {
	requireDirector := func(ctx context.Context) (string, huma.StatusError) {
		user, authErr := currentUser(ctx)
		if authErr != nil {
			return "", authErr
		}
		ok, err := reg.IsDirector(ctx, user)
		if err != nil {
			return "", handleError(err)
		}
		if !ok {
			return "", handleError(domain.PermissionError{Actor: user, Action: "manage responsibles"})
		}
		return user, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-responsibles",
		Method:      http.MethodGet,
		Path:        "/responsibles",
		Summary:     "List registered managers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Managers []managerDTO `json:"managers"`
			Director string       `json:"director"`
		}
	}, error) {
		if _, authErr := currentUser(ctx); authErr != nil {
			return nil, authErr
		}
		snapshot, err := reg.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := reg.Counts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Managers []managerDTO `json:"managers"`
				Director string       `json:"director"`
			}
		}{}
		out.Body.Director = snapshot.Director
		out.Body.Managers = make([]managerDTO, 0, len(snapshot.Managers))
		for _, m := range snapshot.Managers {
			out.Body.Managers = append(out.Body.Managers, managerDTO{
				Name:       m,
				Director:   snapshot.IsDirector(m),
				Activities: counts[m],
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-responsible",
		Method:        http.MethodPost,
		Path:          "/responsibles",
		Summary:       "Register a manager",
		Description:   "Director only.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name string `json:"name" minLength:"1"`
		}
	}) (*struct {
		Body struct {
			Name string `json:"name"`
		}
	}, error) {
		if _, authErr := requireDirector(ctx); authErr != nil {
			return nil, authErr
		}
		if err := reg.Add(ctx, input.Body.Name); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Name string `json:"name"`
			}
		}{}
		out.Body.Name = input.Body.Name
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-responsible",
		Method:        http.MethodDelete,
		Path:          "/responsibles/{name}",
		Summary:       "Deregister a manager",
		Description:   "Director only. Fails for the director or anyone still assigned to an activity.",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct{}, error) {
		if _, authErr := requireDirector(ctx); authErr != nil {
			return nil, authErr
		}
		if err := reg.Remove(ctx, input.Name); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
