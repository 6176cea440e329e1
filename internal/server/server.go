package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bountyline/internal/domain"
	"bountyline/internal/engine"
	"bountyline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"state_conflict"`
	Message string         `json:"message" example:"task is draft, expected published"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Bountyline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Bountyline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerAccounts(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerSubmissions(group, cfg.Engine)
	registerArbitration(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerRegistry(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

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
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalid):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrUnauthorized):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, engine.ErrAccessDenied):
		return newAPIError(http.StatusForbidden, "access_denied", err.Error(), nil)
	case errors.Is(err, engine.ErrPaused):
		return newAPIError(http.StatusConflict, "paused", err.Error(), nil)
	case errors.Is(err, engine.ErrStateConflict):
		return newAPIError(http.StatusConflict, "state_conflict", err.Error(), nil)
	case errors.Is(err, engine.ErrInsufficient):
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_funds", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bountyline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Marketplace status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		counts, err := e.Repo.CountTasksByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"marketplace_id": e.Config.Marketplace.ID,
			"paused":         e.Paused(),
			"task_counts":    counts,
		}}, nil
	})
}

func registerAccounts(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "init-account",
		Method:        http.MethodPost,
		Path:          "/accounts/init",
		Summary:       "Initialize the caller's reputation account",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.InitAccount(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return accountBody(e, a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/accounts/{actor}",
		Summary:     "Get a reputation account",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Actor string `path:"actor"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAccount(ctx, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return accountBody(e, a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-access",
		Method:      http.MethodGet,
		Path:        "/accounts/{actor}/access",
		Summary:     "Check marketplace access for an actor",
	}, func(ctx context.Context, input *struct {
		Actor string `path:"actor"`
	}) (*struct {
		Body AccessResponse `json:"body"`
	}, error) {
		ok, reason, err := e.ValidateAccess(ctx, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccessResponse `json:"body"`
		}{Body: AccessResponse{Allowed: ok, Reason: reason}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stake",
		Method:      http.MethodPost,
		Path:        "/accounts/stake",
		Summary:     "Stake collateral",
	}, func(ctx context.Context, input *struct {
		Body StakeRequest `json:"body"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Stake(ctx, actor, input.Body.Asset, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return accountBody(e, a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-unstake",
		Method:      http.MethodPost,
		Path:        "/accounts/unstake/request",
		Summary:     "Start the two-phase unstake",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RequestUnstake(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return accountBody(e, a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unstake",
		Method:      http.MethodPost,
		Path:        "/accounts/unstake",
		Summary:     "Complete an unstake after the lock window",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Unstake(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return accountBody(e, a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-category-scores",
		Method:      http.MethodGet,
		Path:        "/accounts/{actor}/category-scores",
		Summary:     "List category scores for an actor",
	}, func(ctx context.Context, input *struct {
		Actor string `path:"actor"`
	}) (*struct {
		Body []domain.CategoryScore `json:"body"`
	}, error) {
		items, err := e.Repo.ListCategoryScores(ctx, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CategoryScore `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-category-score",
		Method:      http.MethodPost,
		Path:        "/accounts/category-scores/claim",
		Summary:     "Claim pending category score",
	}, func(ctx context.Context, input *struct {
		Body ClaimCategoryScoreRequest `json:"body"`
	}) (*struct {
		Body domain.CategoryScore `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cs, err := e.ClaimCategoryScore(ctx, actor, input.Body.Category, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CategoryScore `json:"body"`
		}{Body: cs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-category-score",
		Method:      http.MethodPost,
		Path:        "/accounts/{actor}/category-scores",
		Summary:     "Accrue pending category score (admin)",
	}, func(ctx context.Context, input *struct {
		Actor string                    `path:"actor"`
		Body  GrantCategoryScoreRequest `json:"body"`
	}) (*struct {
		Body domain.CategoryScore `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantCategoryScore(ctx, actor, input.Actor, input.Body.Category, input.Body.Amount); err != nil {
			return nil, handleError(err)
		}
		cs, err := e.Repo.GetCategoryScore(ctx, input.Actor, input.Body.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CategoryScore `json:"body"`
		}{Body: cs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "adjust-reputation",
		Method:      http.MethodPost,
		Path:        "/accounts/{actor}/reputation",
		Summary:     "Adjust an account's score (admin)",
	}, func(ctx context.Context, input *struct {
		Actor string                  `path:"actor"`
		Body  AdjustReputationRequest `json:"body"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AdjustReputation(ctx, actor, input.Actor, input.Body.Delta, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return accountBody(e, a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-wallets",
		Method:      http.MethodGet,
		Path:        "/accounts/{actor}/wallets",
		Summary:     "List wallet balances for an actor",
	}, func(ctx context.Context, input *struct {
		Actor string `path:"actor"`
	}) (*struct {
		Body []domain.Wallet `json:"body"`
	}, error) {
		items, err := e.Repo.ListWallets(ctx, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Wallet `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func accountBody(e *engine.Engine, a domain.Account) *struct {
	Body AccountResponse `json:"body"`
} {
	return &struct {
		Body AccountResponse `json:"body"`
	}{Body: AccountResponse{Account: a, RequiredStake: e.RequiredStake(a)}}
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a draft task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, actor, engine.TaskDraft{
			Title:            input.Body.Title,
			Description:      input.Body.Description,
			Category:         input.Body.Category,
			RewardAmount:     input.Body.RewardAmount,
			RewardAsset:      input.Body.RewardAsset,
			Deadline:         input.Body.Deadline,
			SubmitGuard:      input.Body.SubmitGuard,
			ReviewGuard:      input.Body.ReviewGuard,
			AdoptionStrategy: input.Body.AdoptionStrategy,
			RewardStrategy:   input.Body.RewardStrategy,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Owner    string `query:"owner"`
		Status   string `query:"status"`
		Category string `query:"category"`
		Limit    int    `query:"limit"`
		Cursor   int64  `query:"cursor"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Owner:    input.Owner,
			Status:   input.Status,
			Category: input.Category,
			Limit:    input.Limit,
			CursorID: input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/publish",
		Summary:     "Publish a draft task, escrowing the reward",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.PublishTask(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/cancel",
		Summary:     "Cancel a draft or published task",
	}, func(ctx context.Context, input *struct {
		TaskID int64             `path:"task_id"`
		Body   CancelTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CancelTask(ctx, actor, input.TaskID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/expire",
		Summary:     "Settle a task whose deadline passed",
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ExpireTask(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-policies",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/policies",
		Summary:     "Update guard and strategy references on a draft task",
	}, func(ctx context.Context, input *struct {
		TaskID int64                     `path:"task_id"`
		Body   UpdateTaskPoliciesRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTaskPolicies(ctx, actor, input.TaskID,
			input.Body.SubmitGuard, input.Body.ReviewGuard,
			input.Body.AdoptionStrategy, input.Body.RewardStrategy)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "increase-reward",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/reward",
		Summary:     "Increase a task's reward",
	}, func(ctx context.Context, input *struct {
		TaskID int64                 `path:"task_id"`
		Body   IncreaseRewardRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.IncreaseReward(ctx, actor, input.TaskID, input.Body.Additional)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-submissions",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/submissions",
		Summary:     "List submissions for a task",
	}, func(ctx context.Context, input *struct {
		TaskID int64  `path:"task_id"`
		Status string `query:"status"`
	}) (*struct {
		Body []domain.Submission `json:"body"`
	}, error) {
		items, err := e.Repo.ListSubmissions(ctx, repo.SubmissionFilters{
			TaskID: input.TaskID,
			Status: input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Submission `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/submissions",
		Summary:       "Submit work for a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskID int64         `path:"task_id"`
		Body   SubmitRequest `json:"body"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Submit(ctx, actor, input.TaskID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})
}

func registerSubmissions(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}",
		Summary:     "Get a submission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubmissionID int64 `path:"submission_id"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		s, err := e.Repo.GetSubmission(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-submission",
		Method:      http.MethodPatch,
		Path:        "/submissions/{submission_id}",
		Summary:     "Replace submission content",
	}, func(ctx context.Context, input *struct {
		SubmissionID int64                   `path:"submission_id"`
		Body         UpdateSubmissionRequest `json:"body"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSubmission(ctx, actor, input.SubmissionID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-submission-versions",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}/versions",
		Summary:     "List content versions of a submission",
	}, func(ctx context.Context, input *struct {
		SubmissionID int64 `path:"submission_id"`
	}) (*struct {
		Body []domain.SubmissionVersion `json:"body"`
	}, error) {
		items, err := e.Repo.ListSubmissionVersions(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SubmissionVersion `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-review",
		Method:        http.MethodPost,
		Path:          "/submissions/{submission_id}/reviews",
		Summary:       "Review a submission",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		SubmissionID int64         `path:"submission_id"`
		Body         ReviewRequest `json:"body"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Review(ctx, actor, input.SubmissionID, input.Body.Outcome, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}/reviews",
		Summary:     "List reviews of a submission",
	}, func(ctx context.Context, input *struct {
		SubmissionID int64 `path:"submission_id"`
	}) (*struct {
		Body []domain.Review `json:"body"`
	}, error) {
		items, err := e.Repo.ListReviews(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Review `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{submission_id}/evaluate",
		Summary:     "Re-run the adoption strategy for a submission",
	}, func(ctx context.Context, input *struct {
		SubmissionID int64 `path:"submission_id"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		s, err := e.Evaluate(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{submission_id}/restore",
		Summary:     "Restore a removed submission (admin)",
	}, func(ctx context.Context, input *struct {
		SubmissionID int64                    `path:"submission_id"`
		Body         RestoreSubmissionRequest `json:"body"`
	}) (*struct {
		Body domain.Submission `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.RestoreSubmission(ctx, actor, input.SubmissionID, input.Body.Status, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Submission `json:"body"`
		}{Body: s}, nil
	})
}

func registerArbitration(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-user-arbitration",
		Method:        http.MethodPost,
		Path:          "/arbitration/user",
		Summary:       "Dispute a degraded reputation",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body UserArbitrationRequest `json:"body"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RequestUserArbitration(ctx, actor, input.Body.TargetActor, input.Body.Evidence, input.Body.Fee)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-submission-arbitration",
		Method:        http.MethodPost,
		Path:          "/arbitration/submission",
		Summary:       "Dispute a submission's status",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body SubmissionArbitrationRequest `json:"body"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RequestSubmissionArbitration(ctx, actor, input.Body.SubmissionID, input.Body.Evidence, input.Body.Fee)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-arbitration-cases",
		Method:      http.MethodGet,
		Path:        "/arbitration",
		Summary:     "List arbitration cases",
	}, func(ctx context.Context, input *struct {
		Requester string `query:"requester"`
		Status    string `query:"status"`
		Type      string `query:"type"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.ArbitrationCase `json:"body"`
	}, error) {
		items, err := e.Repo.ListCases(ctx, repo.CaseFilters{
			Requester: input.Requester,
			Status:    input.Status,
			Type:      input.Type,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ArbitrationCase `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-arbitration-case",
		Method:      http.MethodGet,
		Path:        "/arbitration/{case_id}",
		Summary:     "Get an arbitration case",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID int64 `path:"case_id"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		c, err := e.Repo.GetCase(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-arbitration",
		Method:      http.MethodPost,
		Path:        "/arbitration/{case_id}/resolve",
		Summary:     "Resolve a pending case (admin)",
	}, func(ctx context.Context, input *struct {
		CaseID int64                     `path:"case_id"`
		Body   ResolveArbitrationRequest `json:"body"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ResolveArbitration(ctx, actor, input.CaseID, input.Body.Decision, input.Body.Resolution)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-user-arbitration",
		Method:      http.MethodPost,
		Path:        "/arbitration/{case_id}/execute-user",
		Summary:     "Apply a reputation correction for an approved user case (admin)",
	}, func(ctx context.Context, input *struct {
		CaseID int64                         `path:"case_id"`
		Body   ExecuteUserArbitrationRequest `json:"body"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ExecuteUserArbitration(ctx, actor, input.CaseID, input.Body.Increase)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-submission-arbitration",
		Method:      http.MethodPost,
		Path:        "/arbitration/{case_id}/execute-submission",
		Summary:     "Restore the submission of an approved case (admin)",
	}, func(ctx context.Context, input *struct {
		CaseID int64                               `path:"case_id"`
		Body   ExecuteSubmissionArbitrationRequest `json:"body"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ExecuteSubmissionArbitration(ctx, actor, input.CaseID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-arbitration-refund",
		Method:      http.MethodPost,
		Path:        "/arbitration/{case_id}/claim-refund",
		Summary:     "Claim the fee refund of an approved case",
	}, func(ctx context.Context, input *struct {
		CaseID int64 `path:"case_id"`
	}) (*struct {
		Body domain.ArbitrationCase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ClaimRefund(ctx, actor, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArbitrationCase `json:"body"`
		}{Body: c}, nil
	})
}

func registerLedger(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-balances",
		Method:      http.MethodGet,
		Path:        "/ledger/balances",
		Summary:     "List custody balances",
	}, func(ctx context.Context, input *struct {
		Asset   string `query:"asset"`
		Purpose string `query:"purpose"`
	}) (*struct {
		Body []domain.BalanceEntry `json:"body"`
	}, error) {
		items, err := e.Repo.ListBalances(ctx, repo.BalanceFilters{
			Asset:   input.Asset,
			Purpose: input.Purpose,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BalanceEntry `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-conservation",
		Method:      http.MethodGet,
		Path:        "/ledger/conservation/{asset}",
		Summary:     "Check custody conservation for an asset",
	}, func(ctx context.Context, input *struct {
		Asset string `path:"asset"`
	}) (*struct {
		Body ConservationResponse `json:"body"`
	}, error) {
		custody, locked, err := e.VerifyConservation(ctx, input.Asset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConservationResponse `json:"body"`
		}{Body: ConservationResponse{
			Asset:   input.Asset,
			Custody: custody,
			Locked:  locked,
			Intact:  custody == locked,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-paused",
		Method:      http.MethodPost,
		Path:        "/ledger/pause",
		Summary:     "Engage or release the emergency breaker (admin)",
	}, func(ctx context.Context, input *struct {
		Body PauseRequest `json:"body"`
	}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetPaused(ctx, actor, input.Body.Paused); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"paused": input.Body.Paused}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mint",
		Method:      http.MethodPost,
		Path:        "/ledger/mint",
		Summary:     "Mint wallet funds (admin)",
	}, func(ctx context.Context, input *struct {
		Body MintRequest `json:"body"`
	}) (*struct {
		Body domain.Wallet `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Mint(ctx, actor, input.Body.Recipient, input.Body.Asset, input.Body.Amount); err != nil {
			return nil, handleError(err)
		}
		amount, err := e.Repo.GetWallet(ctx, input.Body.Recipient, input.Body.Asset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Wallet `json:"body"`
		}{Body: domain.Wallet{Actor: input.Body.Recipient, Asset: input.Body.Asset, Amount: amount}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-platform-fees",
		Method:      http.MethodPost,
		Path:        "/ledger/fees/withdraw",
		Summary:     "Withdraw accumulated platform fees (admin)",
	}, func(ctx context.Context, input *struct {
		Body WithdrawFeesRequest `json:"body"`
	}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.WithdrawPlatformFees(ctx, actor, input.Body.Asset, input.Body.Recipient, input.Body.Amount); err != nil {
			return nil, handleError(err)
		}
		remaining, err := e.Repo.PlatformFees(ctx, input.Body.Asset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"remaining": remaining}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "emergency-withdraw",
		Method:      http.MethodPost,
		Path:        "/ledger/emergency-withdraw",
		Summary:     "Extract custody value during an incident (admin)",
	}, func(ctx context.Context, input *struct {
		Body EmergencyWithdrawRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.EmergencyWithdraw(ctx, actor, input.Body.Asset, input.Body.Recipient, input.Body.Amount); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerRegistry(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-registry",
		Method:      http.MethodGet,
		Path:        "/registry",
		Summary:     "List allowed guards, strategies and assets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RegistryResponse `json:"body"`
	}, error) {
		return &struct {
			Body RegistryResponse `json:"body"`
		}{Body: RegistryResponse{
			Guards:             nonNilSlice(e.Registry.ListGuards()),
			AdoptionStrategies: nonNilSlice(e.Registry.ListAdoptionStrategies()),
			RewardStrategies:   nonNilSlice(e.Registry.ListRewardStrategies()),
			Assets:             nonNilSlice(e.Registry.ListAssets()),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-authorized-caller",
		Method:      http.MethodPatch,
		Path:        "/registry/callers",
		Summary:     "Rewire a component's caller allowlist (admin)",
	}, func(ctx context.Context, input *struct {
		Body SetCallerRequest `json:"body"`
	}) (*struct {
		Body map[string][]string `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetAuthorizedCaller(ctx, actor, input.Body.Component, engine.Caller(input.Body.Caller), input.Body.Allowed); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string][]string `json:"body"`
		}{Body: map[string][]string{
			input.Body.Component: nonNilSlice(e.AuthorizedCallers(input.Body.Component)),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-registry-entry",
		Method:      http.MethodPatch,
		Path:        "/registry/entries",
		Summary:     "Allow or deny a guard, strategy or asset (admin)",
	}, func(ctx context.Context, input *struct {
		Body SetRegistryEntryRequest `json:"body"`
	}) (*struct {
		Body RegistryResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetRegistryEntry(ctx, actor, input.Body.Kind, input.Body.Name, input.Body.Allowed); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RegistryResponse `json:"body"`
		}{Body: RegistryResponse{
			Guards:             nonNilSlice(e.Registry.ListGuards()),
			AdoptionStrategies: nonNilSlice(e.Registry.ListAdoptionStrategies()),
			RewardStrategies:   nonNilSlice(e.Registry.ListRewardStrategies()),
			Assets:             nonNilSlice(e.Registry.ListAssets()),
		}}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events, newest first",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      input.Limit,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerAPIKeys(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: actor,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(raw),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
		if err != nil {
			return nil, handleError(err)
		}
		// The raw key is shown exactly once.
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{
			ID:        stored.ID,
			Name:      stored.Name,
			Key:       raw,
			CreatedAt: stored.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		for i := range items {
			items[i].KeyHash = ""
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Delete one of the caller's API keys",
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		owned := false
		for _, k := range items {
			if k.ID == input.KeyID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, newAPIError(http.StatusNotFound, "not_found", "api key not found", nil)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

func registerMe(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.Actor == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			Actor:  p.Actor,
			Source: p.Source,
			Admin:  e.Config.IsAdmin(p.Actor),
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.Actor)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
