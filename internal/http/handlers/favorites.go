package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/models"
	"github.com/jmylchreest/tvgrid/internal/repository"
)

// FavoriteHandler handles favorite channel endpoints. Favorites live in
// the database and survive playlist reloads; the snapshot is only
// consulted to fill in channel details at starring time and to report
// whether a favorite is still present in the playlist.
type FavoriteHandler struct {
	repo    repository.FavoriteRepository
	session SnapshotProvider
	logger  *slog.Logger
}

// NewFavoriteHandler creates a new favorite handler.
func NewFavoriteHandler(repo repository.FavoriteRepository, session SnapshotProvider, logger *slog.Logger) *FavoriteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FavoriteHandler{
		repo:    repo,
		session: session,
		logger:  logger,
	}
}

// Register registers the favorite routes with the API.
func (h *FavoriteHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listFavorites",
		Method:      "GET",
		Path:        "/api/v1/favorites",
		Summary:     "List favorites",
		Description: "Returns all favorites ordered by name",
		Tags:        []string{"Favorites"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "createFavorite",
		Method:      "POST",
		Path:        "/api/v1/favorites",
		Summary:     "Create favorite",
		Description: "Stars a channel. Channel details are filled in from the current playlist when only channel_id is given",
		Tags:        []string{"Favorites"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getFavorite",
		Method:      "GET",
		Path:        "/api/v1/favorites/{id}",
		Summary:     "Get favorite",
		Description: "Returns a favorite by ID",
		Tags:        []string{"Favorites"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "deleteFavorite",
		Method:      "DELETE",
		Path:        "/api/v1/favorites/{id}",
		Summary:     "Delete favorite",
		Description: "Deletes a favorite by ID",
		Tags:        []string{"Favorites"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "deleteFavoriteByChannel",
		Method:      "DELETE",
		Path:        "/api/v1/favorites/channel/{channelId}",
		Summary:     "Delete favorite by channel",
		Description: "Deletes the favorite for a channel ID, for unstar toggles keyed by channel",
		Tags:        []string{"Favorites"},
	}, h.DeleteByChannel)
}

// ListFavoritesOutput is the output for listing favorites.
type ListFavoritesOutput struct {
	Body struct {
		Success bool               `json:"success"`
		Items   []FavoriteResponse `json:"items"`
		Total   int                `json:"total"`
	}
}

// List returns all favorites, flagging those still present in the
// current playlist.
func (h *FavoriteHandler) List(ctx context.Context, _ *struct{}) (*ListFavoritesOutput, error) {
	favorites, err := h.repo.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch favorites")
	}

	snap := h.session.Current()
	liveURLs := make(map[string]bool)
	for _, ch := range snap.Channels() {
		liveURLs[ch.StreamURL] = true
	}

	items := make([]FavoriteResponse, 0, len(favorites))
	for _, f := range favorites {
		item := FavoriteFromModel(f)
		if _, ok := snap.Channel(f.ChannelID); ok {
			item.Live = true
		} else if liveURLs[f.URL] {
			item.Live = true
		}
		items = append(items, item)
	}

	resp := &ListFavoritesOutput{}
	resp.Body.Success = true
	resp.Body.Items = items
	resp.Body.Total = len(items)
	return resp, nil
}

// CreateFavoriteRequest is the request body for creating a favorite.
type CreateFavoriteRequest struct {
	ChannelID  string `json:"channel_id" minLength:"1" maxLength:"255" doc:"Channel ID from the playlist"`
	Name       string `json:"name,omitempty" maxLength:"512" doc:"Channel name. Defaults to the playlist value"`
	URL        string `json:"url,omitempty" maxLength:"2048" doc:"Stream URL. Defaults to the playlist value"`
	GroupTitle string `json:"group_title,omitempty" maxLength:"255"`
	LogoURL    string `json:"logo_url,omitempty" maxLength:"2048"`
	EpgID      string `json:"epg_id,omitempty" maxLength:"255"`
}

// CreateFavoriteInput is the input for creating a favorite.
type CreateFavoriteInput struct {
	Body CreateFavoriteRequest
}

// CreateFavoriteOutput is the output for creating a favorite.
type CreateFavoriteOutput struct {
	Body FavoriteResponse
}

// Create stars a channel. Empty detail fields are filled in from the
// current playlist, so clients normally send just the channel id.
func (h *FavoriteHandler) Create(ctx context.Context, input *CreateFavoriteInput) (*CreateFavoriteOutput, error) {
	favorite := &models.Favorite{
		ChannelID:  input.Body.ChannelID,
		Name:       input.Body.Name,
		URL:        input.Body.URL,
		GroupTitle: input.Body.GroupTitle,
		LogoURL:    input.Body.LogoURL,
		EpgID:      input.Body.EpgID,
	}

	if ch, ok := h.session.Current().Channel(favorite.ChannelID); ok {
		if favorite.Name == "" {
			favorite.Name = ch.Name
		}
		if favorite.URL == "" {
			favorite.URL = ch.StreamURL
		}
		if favorite.GroupTitle == "" {
			favorite.GroupTitle = ch.Group
		}
		if favorite.LogoURL == "" {
			favorite.LogoURL = ch.LogoURL
		}
		if favorite.EpgID == "" {
			favorite.EpgID = ch.TvgID
		}
	}

	if err := favorite.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	if err := h.repo.Create(ctx, favorite); err != nil {
		if isUniqueConstraintError(err) {
			return nil, huma.Error409Conflict("Channel is already a favorite")
		}
		h.logger.ErrorContext(ctx, "creating favorite", slog.Any("error", err))
		return nil, huma.Error500InternalServerError("Failed to create favorite")
	}

	item := FavoriteFromModel(favorite)
	item.Live = true
	return &CreateFavoriteOutput{Body: item}, nil
}

// GetFavoriteInput is the input for getting a favorite.
type GetFavoriteInput struct {
	ID string `path:"id" doc:"Favorite ID"`
}

// GetFavoriteOutput is the output for getting a favorite.
type GetFavoriteOutput struct {
	Body FavoriteResponse
}

// GetByID returns a favorite by id.
func (h *FavoriteHandler) GetByID(ctx context.Context, input *GetFavoriteInput) (*GetFavoriteOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid favorite ID")
	}

	favorite, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch favorite")
	}
	if favorite == nil {
		return nil, huma.Error404NotFound("Favorite not found")
	}

	item := FavoriteFromModel(favorite)
	if _, ok := h.session.Current().Channel(favorite.ChannelID); ok {
		item.Live = true
	}
	return &GetFavoriteOutput{Body: item}, nil
}

// DeleteFavoriteInput is the input for deleting a favorite.
type DeleteFavoriteInput struct {
	ID string `path:"id" doc:"Favorite ID"`
}

// DeleteFavoriteOutput is the output for deleting a favorite.
type DeleteFavoriteOutput struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

// Delete removes a favorite by id.
func (h *FavoriteHandler) Delete(ctx context.Context, input *DeleteFavoriteInput) (*DeleteFavoriteOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid favorite ID")
	}

	favorite, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch favorite")
	}
	if favorite == nil {
		return nil, huma.Error404NotFound("Favorite not found")
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete favorite")
	}

	resp := &DeleteFavoriteOutput{}
	resp.Body.Success = true
	resp.Body.Message = "Favorite deleted"
	return resp, nil
}

// DeleteFavoriteByChannelInput is the input for deleting by channel id.
type DeleteFavoriteByChannelInput struct {
	ChannelID string `path:"channelId" doc:"Channel ID"`
}

// DeleteByChannel removes the favorite for a channel id.
func (h *FavoriteHandler) DeleteByChannel(ctx context.Context, input *DeleteFavoriteByChannelInput) (*DeleteFavoriteOutput, error) {
	favorite, err := h.repo.GetByChannelID(ctx, input.ChannelID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch favorite")
	}
	if favorite == nil {
		return nil, huma.Error404NotFound("Favorite not found")
	}

	if err := h.repo.DeleteByChannelID(ctx, input.ChannelID); err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete favorite")
	}

	resp := &DeleteFavoriteOutput{}
	resp.Body.Success = true
	resp.Body.Message = "Favorite deleted"
	return resp, nil
}

// isUniqueConstraintError detects unique constraint violations across
// sqlite and postgres drivers.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key")
}
