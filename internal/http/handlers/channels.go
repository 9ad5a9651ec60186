package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/guide"
	"github.com/jmylchreest/tvgrid/internal/logocache"
	"github.com/jmylchreest/tvgrid/internal/models"
)

// FavoriteLister reads the stored favorites for channel decoration.
type FavoriteLister interface {
	GetAll(ctx context.Context) ([]*models.Favorite, error)
}

// LogoIndex answers whether a logo URL is already in the local cache.
// *logocache.Cache satisfies it.
type LogoIndex interface {
	Cached(logoURL string) (*logocache.Entry, bool)
}

// ChannelHandler handles channel listing and lookup endpoints. All
// reads go against the current snapshot, so responses within one
// request are internally consistent even while a reload is running.
type ChannelHandler struct {
	session   SnapshotProvider
	favorites FavoriteLister
	logos     LogoIndex
	logger    *slog.Logger
}

// NewChannelHandler creates a new channel handler. The logo index may
// be nil when logo caching is disabled.
func NewChannelHandler(session SnapshotProvider, favorites FavoriteLister, logos LogoIndex, logger *slog.Logger) *ChannelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelHandler{
		session:   session,
		favorites: favorites,
		logos:     logos,
		logger:    logger,
	}
}

// Register registers the channel routes with the API.
func (h *ChannelHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listChannels",
		Method:      "GET",
		Path:        "/api/v1/channels",
		Summary:     "List channels",
		Description: "Returns a paginated list of channels from the current playlist",
		Tags:        []string{"Channels"},
	}, h.ListChannels)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelGroups",
		Method:      "GET",
		Path:        "/api/v1/channels/groups",
		Summary:     "List channel groups",
		Description: "Returns the distinct channel groups with channel counts",
		Tags:        []string{"Channels"},
	}, h.GetGroups)

	huma.Register(api, huma.Operation{
		OperationID: "getChannel",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}",
		Summary:     "Get channel by ID",
		Description: "Returns a specific channel by ID",
		Tags:        []string{"Channels"},
	}, h.GetChannel)
}

// ListChannelsInput is the input for listing channels.
type ListChannelsInput struct {
	Page          int    `query:"page" default:"1" minimum:"1"`
	Limit         int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	Search        string `query:"search" doc:"Filter by channel name, case-insensitive substring"`
	Group         string `query:"group" doc:"Filter by exact group title"`
	FavoritesOnly bool   `query:"favorites_only" doc:"Only return starred channels"`
}

// ListChannelsOutput is the output for listing channels.
type ListChannelsOutput struct {
	Body struct {
		Success    bool              `json:"success"`
		Items      []ChannelResponse `json:"items"`
		Total      int               `json:"total"`
		Page       int               `json:"page"`
		PerPage    int               `json:"per_page"`
		TotalPages int               `json:"total_pages"`
		HasNext    bool              `json:"has_next"`
		HasPrev    bool              `json:"has_previous"`
	}
}

// ListChannels returns a paginated, filtered channel list.
func (h *ChannelHandler) ListChannels(ctx context.Context, input *ListChannelsInput) (*ListChannelsOutput, error) {
	snap := h.session.Current()

	channels := snap.Channels()
	if input.Search != "" {
		channels = snap.Search(input.Search)
	}
	if input.Group != "" {
		filtered := make([]*guide.Channel, 0, len(channels))
		for _, ch := range channels {
			if ch.Group == input.Group {
				filtered = append(filtered, ch)
			}
		}
		channels = filtered
	}

	favByID, favByURL, err := h.favoriteSets(ctx)
	if err != nil {
		if input.FavoritesOnly {
			return nil, huma.Error500InternalServerError("Failed to fetch favorites")
		}
		// Favorite flags degrade to false; the listing itself still works.
		h.logger.WarnContext(ctx, "favorite decoration unavailable", slog.Any("error", err))
	}
	isFavorite := func(ch *guide.Channel) bool {
		return favByID[ch.ID] || favByURL[ch.StreamURL]
	}

	if input.FavoritesOnly {
		filtered := make([]*guide.Channel, 0, len(channels))
		for _, ch := range channels {
			if isFavorite(ch) {
				filtered = append(filtered, ch)
			}
		}
		channels = filtered
	}

	total := len(channels)
	offset := (input.Page - 1) * input.Limit
	if offset > total {
		offset = total
	}
	end := offset + input.Limit
	if end > total {
		end = total
	}

	items := make([]ChannelResponse, 0, end-offset)
	for _, ch := range channels[offset:end] {
		items = append(items, h.channelResponse(snap, ch, isFavorite(ch)))
	}

	totalPages, hasNext, hasPrev := pageMeta(total, input.Page, input.Limit)

	resp := &ListChannelsOutput{}
	resp.Body.Success = true
	resp.Body.Items = items
	resp.Body.Total = total
	resp.Body.Page = input.Page
	resp.Body.PerPage = input.Limit
	resp.Body.TotalPages = totalPages
	resp.Body.HasNext = hasNext
	resp.Body.HasPrev = hasPrev

	return resp, nil
}

// GetChannelInput is the input for getting a channel.
type GetChannelInput struct {
	ID string `path:"id" doc:"Channel ID"`
}

// GetChannelOutput is the output for getting a channel.
type GetChannelOutput struct {
	Body ChannelResponse
}

// GetChannel returns a single channel by id.
func (h *ChannelHandler) GetChannel(ctx context.Context, input *GetChannelInput) (*GetChannelOutput, error) {
	snap := h.session.Current()

	ch, ok := snap.Channel(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("Channel not found")
	}

	favByID, favByURL, err := h.favoriteSets(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "favorite decoration unavailable", slog.Any("error", err))
	}

	return &GetChannelOutput{
		Body: h.channelResponse(snap, ch, favByID[ch.ID] || favByURL[ch.StreamURL]),
	}, nil
}

// GroupResponse is one channel group with its channel count.
type GroupResponse struct {
	Name     string `json:"name"`
	Channels int    `json:"channels"`
}

// GetGroupsOutput is the output for listing groups.
type GetGroupsOutput struct {
	Body struct {
		Success bool            `json:"success"`
		Items   []GroupResponse `json:"items"`
		Total   int             `json:"total"`
	}
}

// GetGroups returns all distinct groups with channel counts, sorted by
// group name.
func (h *ChannelHandler) GetGroups(ctx context.Context, _ *struct{}) (*GetGroupsOutput, error) {
	snap := h.session.Current()

	counts := make(map[string]int)
	for _, ch := range snap.Channels() {
		if ch.Group != "" {
			counts[ch.Group]++
		}
	}

	groups := snap.Groups()
	items := make([]GroupResponse, 0, len(groups))
	for _, name := range groups {
		items = append(items, GroupResponse{Name: name, Channels: counts[name]})
	}

	resp := &GetGroupsOutput{}
	resp.Body.Success = true
	resp.Body.Items = items
	resp.Body.Total = len(items)
	return resp, nil
}

// channelResponse decorates a snapshot channel with binding, favorite
// and cached-logo state.
func (h *ChannelHandler) channelResponse(snap *guide.Snapshot, ch *guide.Channel, favorite bool) ChannelResponse {
	resp := ChannelResponse{
		Channel:  *ch,
		Match:    guide.MatchNone,
		Favorite: favorite,
	}
	if b, ok := snap.Binding(ch.ID); ok {
		resp.Match = b.Kind
	}
	if h.logos != nil && ch.LogoURL != "" {
		if entry, ok := h.logos.Cached(ch.LogoURL); ok {
			resp.LogoPath = "/logos/" + entry.Filename()
		}
	}
	return resp
}

// favoriteSets loads the favorites and indexes them by channel id and
// by stream URL. URL membership covers playlists that regenerate
// channel ids between reloads.
func (h *ChannelHandler) favoriteSets(ctx context.Context) (byID, byURL map[string]bool, err error) {
	byID = make(map[string]bool)
	byURL = make(map[string]bool)
	if h.favorites == nil {
		return byID, byURL, nil
	}
	favorites, err := h.favorites.GetAll(ctx)
	if err != nil {
		return byID, byURL, err
	}
	for _, f := range favorites {
		byID[f.ChannelID] = true
		byURL[f.URL] = true
	}
	return byID, byURL, nil
}
