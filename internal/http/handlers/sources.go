package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/repository"
	"github.com/jmylchreest/tvgrid/pkg/format"
)

// Refresher triggers an immediate reload from the enabled sources.
// *scheduler.Scheduler satisfies it.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// SourceHandler handles playlist and EPG source management endpoints.
type SourceHandler struct {
	repo        repository.SourceRepository
	refresher   Refresher
	defaultCron string
	logger      *slog.Logger
}

// NewSourceHandler creates a new source handler. defaultCron is the
// schedule applied to sources without their own refresh_cron; it feeds
// the human-readable schedule description in responses.
func NewSourceHandler(repo repository.SourceRepository, refresher Refresher, defaultCron string, logger *slog.Logger) *SourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceHandler{
		repo:        repo,
		refresher:   refresher,
		defaultCron: defaultCron,
		logger:      logger,
	}
}

// Register registers the source routes with the API.
func (h *SourceHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSources",
		Method:      "GET",
		Path:        "/api/v1/sources",
		Summary:     "List sources",
		Description: "Returns all configured playlist and EPG sources",
		Tags:        []string{"Sources"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "createSource",
		Method:      "POST",
		Path:        "/api/v1/sources",
		Summary:     "Create source",
		Description: "Creates a new playlist or EPG source",
		Tags:        []string{"Sources"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "refreshSources",
		Method:      "POST",
		Path:        "/api/v1/sources/refresh",
		Summary:     "Trigger reload",
		Description: "Starts a reload from the enabled sources. The reload runs in the background; poll the status endpoint for the outcome",
		Tags:        []string{"Sources"},
	}, h.Refresh)

	huma.Register(api, huma.Operation{
		OperationID: "getSource",
		Method:      "GET",
		Path:        "/api/v1/sources/{id}",
		Summary:     "Get source",
		Description: "Returns a source by ID",
		Tags:        []string{"Sources"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "updateSource",
		Method:      "PUT",
		Path:        "/api/v1/sources/{id}",
		Summary:     "Update source",
		Description: "Updates an existing source",
		Tags:        []string{"Sources"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "deleteSource",
		Method:      "DELETE",
		Path:        "/api/v1/sources/{id}",
		Summary:     "Delete source",
		Description: "Deletes a source by ID",
		Tags:        []string{"Sources"},
	}, h.Delete)
}

// sourceResponse converts a model and fills in the human-readable
// schedule description for the effective cron.
func (h *SourceHandler) sourceResponse(s *models.Source) SourceResponse {
	resp := SourceFromModel(s)
	cronExpr := s.RefreshCron
	if cronExpr == "" {
		cronExpr = h.defaultCron
	}
	if cronExpr != "" {
		resp.RefreshDescription = format.CronDescription(cronExpr)
	}
	return resp
}

// ListSourcesInput is the input for listing sources.
type ListSourcesInput struct {
	Type string `query:"type" doc:"Filter by source type: playlist or epg"`
}

// ListSourcesOutput is the output for listing sources.
type ListSourcesOutput struct {
	Body struct {
		Success bool             `json:"success"`
		Items   []SourceResponse `json:"items"`
		Total   int              `json:"total"`
	}
}

// List returns all sources, optionally filtered by type.
func (h *SourceHandler) List(ctx context.Context, input *ListSourcesInput) (*ListSourcesOutput, error) {
	sources, err := h.repo.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch sources")
	}

	items := make([]SourceResponse, 0, len(sources))
	for _, s := range sources {
		if input.Type != "" && string(s.Type) != input.Type {
			continue
		}
		items = append(items, h.sourceResponse(s))
	}

	resp := &ListSourcesOutput{}
	resp.Body.Success = true
	resp.Body.Items = items
	resp.Body.Total = len(items)
	return resp, nil
}

// CreateSourceRequest is the request body for creating a source.
type CreateSourceRequest struct {
	Name        string            `json:"name" minLength:"1" maxLength:"255" doc:"User-friendly name, unique across sources"`
	Type        models.SourceType `json:"type" enum:"playlist,epg" doc:"Source type"`
	URL         string            `json:"url" minLength:"1" maxLength:"2048" doc:"http(s) URL, file:// URL or local path"`
	Enabled     *bool             `json:"enabled,omitempty" doc:"Whether the source participates in reloads. Defaults to true"`
	RefreshCron string            `json:"refresh_cron,omitempty" maxLength:"100" doc:"Cron schedule for automatic reloads"`
}

// CreateSourceInput is the input for creating a source.
type CreateSourceInput struct {
	Body CreateSourceRequest
}

// SourceOutput is the output carrying one source.
type SourceOutput struct {
	Body SourceResponse
}

// Create creates a new source.
func (h *SourceHandler) Create(ctx context.Context, input *CreateSourceInput) (*SourceOutput, error) {
	source := &models.Source{
		Name:        input.Body.Name,
		Type:        input.Body.Type,
		URL:         input.Body.URL,
		Enabled:     input.Body.Enabled,
		RefreshCron: input.Body.RefreshCron,
	}

	if err := source.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err := h.repo.Create(ctx, source); err != nil {
		if isUniqueConstraintError(err) {
			return nil, huma.Error409Conflict("Source with this name already exists")
		}
		h.logger.ErrorContext(ctx, "creating source", slog.Any("error", err))
		return nil, huma.Error500InternalServerError("Failed to create source")
	}

	return &SourceOutput{Body: h.sourceResponse(source)}, nil
}

// GetSourceInput is the input for getting a source.
type GetSourceInput struct {
	ID string `path:"id" doc:"Source ID"`
}

// GetByID returns a source by id.
func (h *SourceHandler) GetByID(ctx context.Context, input *GetSourceInput) (*SourceOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid source ID")
	}

	source, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch source")
	}
	if source == nil {
		return nil, huma.Error404NotFound("Source not found")
	}

	return &SourceOutput{Body: h.sourceResponse(source)}, nil
}

// UpdateSourceRequest is the request body for updating a source. Nil
// fields keep their stored value.
type UpdateSourceRequest struct {
	Name        *string            `json:"name,omitempty" maxLength:"255"`
	Type        *models.SourceType `json:"type,omitempty" enum:"playlist,epg"`
	URL         *string            `json:"url,omitempty" maxLength:"2048"`
	Enabled     *bool              `json:"enabled,omitempty"`
	RefreshCron *string            `json:"refresh_cron,omitempty" maxLength:"100"`
}

// UpdateSourceInput is the input for updating a source.
type UpdateSourceInput struct {
	ID   string `path:"id" doc:"Source ID"`
	Body UpdateSourceRequest
}

// Update applies a partial update to a source.
func (h *SourceHandler) Update(ctx context.Context, input *UpdateSourceInput) (*SourceOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid source ID")
	}

	source, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch source")
	}
	if source == nil {
		return nil, huma.Error404NotFound("Source not found")
	}

	if input.Body.Name != nil {
		source.Name = *input.Body.Name
	}
	if input.Body.Type != nil {
		source.Type = *input.Body.Type
	}
	if input.Body.URL != nil {
		source.URL = *input.Body.URL
	}
	if input.Body.Enabled != nil {
		source.Enabled = input.Body.Enabled
	}
	if input.Body.RefreshCron != nil {
		source.RefreshCron = *input.Body.RefreshCron
	}

	if err := source.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err := h.repo.Update(ctx, source); err != nil {
		if isUniqueConstraintError(err) {
			return nil, huma.Error409Conflict("Source with this name already exists")
		}
		h.logger.ErrorContext(ctx, "updating source", slog.Any("error", err))
		return nil, huma.Error500InternalServerError("Failed to update source")
	}

	return &SourceOutput{Body: h.sourceResponse(source)}, nil
}

// DeleteSourceInput is the input for deleting a source.
type DeleteSourceInput struct {
	ID string `path:"id" doc:"Source ID"`
}

// DeleteSourceOutput is the output for deleting a source.
type DeleteSourceOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

// Delete removes a source. Already loaded channels stay active until
// the next reload.
func (h *SourceHandler) Delete(ctx context.Context, input *DeleteSourceInput) (*DeleteSourceOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid source ID")
	}

	source, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch source")
	}
	if source == nil {
		return nil, huma.Error404NotFound("Source not found")
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete source")
	}

	resp := &DeleteSourceOutput{}
	resp.Body.Success = true
	resp.Body.Message = "Source deleted"
	return resp, nil
}

// RefreshOutput is the output for the reload trigger.
type RefreshOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

// Refresh starts a background reload from the enabled sources. A reload
// already in flight is superseded; the newest trigger always wins.
func (h *SourceHandler) Refresh(ctx context.Context, _ *struct{}) (*RefreshOutput, error) {
	if h.refresher == nil {
		return nil, huma.Error500InternalServerError("Reload is not available")
	}

	// Detached from the request context: the reload must not die with
	// the HTTP request that triggered it.
	go func() {
		if err := h.refresher.RefreshNow(context.Background()); err != nil {
			h.logger.ErrorContext(context.Background(), "manual reload failed", slog.Any("error", err))
		}
	}()

	resp := &RefreshOutput{}
	resp.Body.Success = true
	resp.Body.Message = "Reload started"
	return resp, nil
}
