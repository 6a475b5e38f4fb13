// Package server exposes the publishing engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"pressgate/internal/domain"
	"pressgate/internal/engine"
	"pressgate/internal/repo"
	"pressgate/internal/status"
	"pressgate/internal/taxonomy"
	"pressgate/internal/wp"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"invalid request: title: required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Pressgate API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Pressgate API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPublish(group, cfg.Engine)
	registerValidate(group, cfg.Engine)
	registerTaxonomyCheck(group, cfg.Engine)
	registerStatuses(group)
	registerPostStatus(group, cfg.Engine)
	registerPublishes(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

// handleError maps engine errors to the envelope. Validation errors
// are the caller's fault; remote store failures surface as 502 so a
// client can tell them apart from local bugs.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		fields := make([]map[string]string, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = map[string]string{"field": f.Field, "message": f.Message}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", verr.Error(), map[string]any{"fields": fields})
	}
	var apiErr *wp.APIError
	if errors.As(err, &apiErr) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), map[string]any{
			"upstream_status": apiErr.StatusCode,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "create post"):
		return newAPIError(http.StatusBadGateway, "upstream_error", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
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
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerPublish(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "publish-post",
		Method:        http.MethodPost,
		Path:          "/publish",
		Summary:       "Publish a post",
		Description:   "Validates the request, resolves categories and tags, creates the post, then attaches media and SEO metadata best-effort.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body domain.PublishRequest
	}) (*struct {
		Body domain.PublishResult
	}, error) {
		result, err := e.Publish(ctx, input.Body, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PublishResult
		}{Body: result}, nil
	})
}

func registerValidate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-post",
		Method:      http.MethodPost,
		Path:        "/validate",
		Summary:     "Dry-run a publish request",
		Description: "Runs validation and previews slugs and SEO normalization without contacting the remote store.",
	}, func(ctx context.Context, input *struct {
		Body domain.PublishRequest
	}) (*struct {
		Body engine.Preview
	}, error) {
		return &struct {
			Body engine.Preview
		}{Body: e.DryRun(input.Body)}, nil
	})
}

func registerTaxonomyCheck(api huma.API, e engine.Engine) {
	type hierarchyBody struct {
		Categories []taxonomy.Category `json:"categories"`
		MaxDepth   int                 `json:"max_depth,omitempty" minimum:"0"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "check-taxonomy",
		Method:      http.MethodPost,
		Path:        "/taxonomy/check",
		Summary:     "Validate a category hierarchy",
		Description: "Checks depth limits and cycles across a full category set and returns it sorted depth-first with ancestry paths.",
	}, func(ctx context.Context, input *struct {
		Body hierarchyBody
	}) (*struct {
		Body engine.HierarchyReport
	}, error) {
		return &struct {
			Body engine.HierarchyReport
		}{Body: e.CheckHierarchy(input.Body.Categories, input.Body.MaxDepth)}, nil
	})
}

func registerStatuses(api huma.API) {
	type statusCatalog struct {
		Statuses []domain.StatusDisplay `json:"statuses"`
		Default  string                 `json:"default"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "List post statuses",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body statusCatalog
	}, error) {
		catalog := statusCatalog{Default: string(status.Default)}
		for _, s := range status.All {
			catalog.Statuses = append(catalog.Statuses, status.Display(s))
		}
		return &struct {
			Body statusCatalog
		}{Body: catalog}, nil
	})
}

func registerPostStatus(api huma.API, e engine.Engine) {
	type statusUpdateBody struct {
		Status             string `json:"status" enum:"draft,publish,private"`
		Reason             string `json:"reason,omitempty" maxLength:"500"`
		ValidateTransition *bool  `json:"validate_transition,omitempty" default:"true"`
		IncludeMetadata    bool   `json:"include_metadata,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "update-post-status",
		Method:      http.MethodPost,
		Path:        "/posts/{post_id}/status",
		Summary:     "Update a post's status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		PostID int64 `path:"post_id"`
		Body   statusUpdateBody
	}) (*struct {
		Body domain.StatusUpdateResult
	}, error) {
		// The advisory check runs unless the caller opts out.
		validate := true
		if input.Body.ValidateTransition != nil {
			validate = *input.Body.ValidateTransition
		}
		result, err := e.UpdateStatus(ctx, engine.StatusUpdateOptions{
			PostID:             input.PostID,
			NewStatus:          input.Body.Status,
			Reason:             input.Body.Reason,
			ChangedBy:          actorIDFromContext(ctx),
			ValidateTransition: validate,
			IncludeMetadata:    input.Body.IncludeMetadata,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StatusUpdateResult
		}{Body: result}, nil
	})
}

func registerPublishes(api huma.API, e engine.Engine) {
	type publishList struct {
		Publishes []domain.PublishRecord `json:"publishes"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-publishes",
		Method:      http.MethodGet,
		Path:        "/publishes",
		Summary:     "List publish history",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"1" maximum:"500" required:"false"`
	}) (*struct {
		Body publishList
	}, error) {
		records, err := e.Repo.ListPublishes(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body publishList
		}{Body: publishList{Publishes: records}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-publish",
		Method:      http.MethodGet,
		Path:        "/publishes/{id}",
		Summary:     "Get one publish record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.PublishRecord
	}, error) {
		rec, err := e.Repo.GetPublish(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PublishRecord
		}{Body: rec}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	type eventList struct {
		Events []domain.Event `json:"events"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit" minimum:"1" maximum:"500" required:"false"`
		Type  string `query:"type" required:"false"`
	}) (*struct {
		Body eventList
	}, error) {
		events, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body eventList
		}{Body: eventList{Events: events}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
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
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
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
    <title>Pressgate API Docs</title>
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
