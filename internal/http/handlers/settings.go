package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/repository"
)

// SettingsHandler handles the flat key/value settings store. Reads
// merge stored values over the defaults, so a key that was never
// written still reads as its default.
type SettingsHandler struct {
	repo   repository.SettingRepository
	logger *slog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(repo repository.SettingRepository, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{
		repo:   repo,
		logger: logger,
	}
}

// Register registers the settings routes with the API.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSettings",
		Method:      "GET",
		Path:        "/api/v1/settings",
		Summary:     "Get all settings",
		Description: "Returns all settings, with defaults for keys never written",
		Tags:        []string{"Settings"},
	}, h.GetAll)

	huma.Register(api, huma.Operation{
		OperationID: "updateSettings",
		Method:      "PUT",
		Path:        "/api/v1/settings",
		Summary:     "Update settings",
		Description: "Updates multiple settings in one call",
		Tags:        []string{"Settings"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "getSetting",
		Method:      "GET",
		Path:        "/api/v1/settings/{key}",
		Summary:     "Get setting",
		Description: "Returns one setting by key",
		Tags:        []string{"Settings"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateSetting",
		Method:      "PUT",
		Path:        "/api/v1/settings/{key}",
		Summary:     "Update setting",
		Description: "Sets one setting by key",
		Tags:        []string{"Settings"},
	}, h.Set)

	huma.Register(api, huma.Operation{
		OperationID: "deleteSetting",
		Method:      "DELETE",
		Path:        "/api/v1/settings/{key}",
		Summary:     "Reset setting",
		Description: "Deletes the stored value so the key reads as its default again",
		Tags:        []string{"Settings"},
	}, h.Delete)
}

// merged returns defaults overlaid with everything stored.
func (h *SettingsHandler) merged(ctx context.Context) (map[string]string, error) {
	settings, err := h.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := models.DefaultSettings()
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	return out, nil
}

// GetSettingsOutput is the output for reading all settings.
type GetSettingsOutput struct {
	Body struct {
		Success  bool              `json:"success"`
		Settings map[string]string `json:"settings"`
	}
}

// GetAll returns every setting, merged over defaults.
func (h *SettingsHandler) GetAll(ctx context.Context, _ *struct{}) (*GetSettingsOutput, error) {
	merged, err := h.merged(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch settings")
	}

	resp := &GetSettingsOutput{}
	resp.Body.Success = true
	resp.Body.Settings = merged
	return resp, nil
}

// UpdateSettingsInput is the input for the bulk settings update.
type UpdateSettingsInput struct {
	Body struct {
		Settings map[string]string `json:"settings" doc:"Key/value pairs to store"`
	}
}

// Update stores several settings in one call and returns the merged
// result. Unknown keys are stored as-is; clients may keep their own
// keys alongside the built-in ones.
func (h *SettingsHandler) Update(ctx context.Context, input *UpdateSettingsInput) (*GetSettingsOutput, error) {
	if len(input.Body.Settings) == 0 {
		return nil, huma.Error400BadRequest("No settings provided")
	}

	for key, value := range input.Body.Settings {
		if key == "" {
			return nil, huma.Error400BadRequest(models.ErrKeyRequired.Error())
		}
		if err := h.repo.Set(ctx, key, value); err != nil {
			h.logger.ErrorContext(ctx, "storing setting",
				slog.String("key", key),
				slog.Any("error", err),
			)
			return nil, huma.Error500InternalServerError("Failed to store setting")
		}
	}

	merged, err := h.merged(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch settings")
	}

	resp := &GetSettingsOutput{}
	resp.Body.Success = true
	resp.Body.Settings = merged
	return resp, nil
}

// GetSettingInput is the input for reading one setting.
type GetSettingInput struct {
	Key string `path:"key" doc:"Setting key"`
}

// SettingOutput is the output for one setting.
type SettingOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Key     string `json:"key"`
		Value   string `json:"value"`
		// Default is true when the value comes from the defaults rather
		// than a stored row.
		Default bool `json:"default"`
	}
}

// Get returns one setting. A key that was never written but has a
// default returns that default; a completely unknown key is a 404.
func (h *SettingsHandler) Get(ctx context.Context, input *GetSettingInput) (*SettingOutput, error) {
	setting, err := h.repo.Get(ctx, input.Key)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch setting")
	}

	resp := &SettingOutput{}
	resp.Body.Success = true
	resp.Body.Key = input.Key

	if setting != nil {
		resp.Body.Value = setting.Value
		return resp, nil
	}

	if value, ok := models.DefaultSettings()[input.Key]; ok {
		resp.Body.Value = value
		resp.Body.Default = true
		return resp, nil
	}

	return nil, huma.Error404NotFound("Setting not found")
}

// SetSettingInput is the input for writing one setting.
type SetSettingInput struct {
	Key  string `path:"key" doc:"Setting key"`
	Body struct {
		Value string `json:"value" doc:"New value"`
	}
}

// Set writes one setting.
func (h *SettingsHandler) Set(ctx context.Context, input *SetSettingInput) (*SettingOutput, error) {
	if err := h.repo.Set(ctx, input.Key, input.Body.Value); err != nil {
		h.logger.ErrorContext(ctx, "storing setting",
			slog.String("key", input.Key),
			slog.Any("error", err),
		)
		return nil, huma.Error500InternalServerError("Failed to store setting")
	}

	resp := &SettingOutput{}
	resp.Body.Success = true
	resp.Body.Key = input.Key
	resp.Body.Value = input.Body.Value
	return resp, nil
}

// DeleteSettingInput is the input for resetting one setting.
type DeleteSettingInput struct {
	Key string `path:"key" doc:"Setting key"`
}

// DeleteSettingOutput is the output for resetting one setting.
type DeleteSettingOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

// Delete removes the stored value for a key. The delete is idempotent;
// deleting a key that was never written still succeeds.
func (h *SettingsHandler) Delete(ctx context.Context, input *DeleteSettingInput) (*DeleteSettingOutput, error) {
	if err := h.repo.Delete(ctx, input.Key); err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete setting")
	}

	resp := &DeleteSettingOutput{}
	resp.Body.Success = true
	resp.Body.Message = "Setting reset"
	return resp, nil
}
