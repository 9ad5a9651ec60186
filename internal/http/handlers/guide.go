package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/guide"
)

// GuideHandler handles programme guide endpoints.
type GuideHandler struct {
	session SnapshotProvider
}

// NewGuideHandler creates a new guide handler.
func NewGuideHandler(session SnapshotProvider) *GuideHandler {
	return &GuideHandler{session: session}
}

// Register registers the guide routes with the API.
func (h *GuideHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getGuideNow",
		Method:      "GET",
		Path:        "/api/v1/guide/now",
		Summary:     "Now and next for many channels",
		Description: "Returns the current and next programme for a set of channels in one call",
		Tags:        []string{"Guide"},
	}, h.GetNow)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelNow",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}/guide/now",
		Summary:     "Now and next for one channel",
		Description: "Returns the current and next programme for a channel",
		Tags:        []string{"Guide"},
	}, h.GetChannelNow)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelUpcoming",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}/guide/upcoming",
		Summary:     "Upcoming programmes",
		Description: "Returns the next programmes for a channel",
		Tags:        []string{"Guide"},
	}, h.GetChannelUpcoming)

	huma.Register(api, huma.Operation{
		OperationID: "getChannelSchedule",
		Method:      "GET",
		Path:        "/api/v1/channels/{id}/guide",
		Summary:     "Channel schedule",
		Description: "Returns the full programme schedule for a channel, optionally windowed",
		Tags:        []string{"Guide"},
	}, h.GetChannelSchedule)
}

// guideInstant resolves the optional at parameter, defaulting to the
// current time.
func guideInstant(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, huma.Error400BadRequest("Invalid at timestamp, expected RFC 3339")
	}
	return t, nil
}

// GetNowInput is the input for the batch now/next lookup.
type GetNowInput struct {
	IDs   string `query:"ids" doc:"Comma-separated channel IDs. Empty means all channels"`
	Group string `query:"group" doc:"Restrict to one group when ids is empty"`
	At    string `query:"at" doc:"Instant to evaluate, RFC 3339. Defaults to now"`
}

// GetNowOutput is the output for the batch now/next lookup.
type GetNowOutput struct {
	Body struct {
		Success    bool            `json:"success"`
		At         time.Time       `json:"at"`
		Generation uint64          `json:"generation"`
		Items      []guide.NowNext `json:"items"`
	}
}

// GetNow evaluates now/next for a set of channels against one snapshot,
// so a grid row never mixes programme data from two generations.
// Unknown ids are skipped rather than failing the whole batch.
func (h *GuideHandler) GetNow(ctx context.Context, input *GetNowInput) (*GetNowOutput, error) {
	at, err := guideInstant(input.At)
	if err != nil {
		return nil, err
	}

	snap := h.session.Current()

	var channels []*guide.Channel
	switch {
	case input.IDs != "":
		for _, id := range strings.Split(input.IDs, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if ch, ok := snap.Channel(id); ok {
				channels = append(channels, ch)
			}
		}
	case input.Group != "":
		channels = snap.GroupChannels(input.Group)
	default:
		channels = snap.Channels()
	}

	items := make([]guide.NowNext, 0, len(channels))
	for _, ch := range channels {
		if nn, ok := snap.NowNext(ch.ID, at); ok {
			items = append(items, *nn)
		}
	}

	resp := &GetNowOutput{}
	resp.Body.Success = true
	resp.Body.At = at
	resp.Body.Generation = snap.Generation()
	resp.Body.Items = items
	return resp, nil
}

// GetChannelNowInput is the input for a single-channel now/next lookup.
type GetChannelNowInput struct {
	ID string `path:"id" doc:"Channel ID"`
	At string `query:"at" doc:"Instant to evaluate, RFC 3339. Defaults to now"`
}

// GetChannelNowOutput is the output for a single-channel now/next lookup.
type GetChannelNowOutput struct {
	Body guide.NowNext
}

// GetChannelNow returns the current and next programme for one channel.
// A channel without a guide binding still succeeds, with match "none"
// and no programmes.
func (h *GuideHandler) GetChannelNow(ctx context.Context, input *GetChannelNowInput) (*GetChannelNowOutput, error) {
	at, err := guideInstant(input.At)
	if err != nil {
		return nil, err
	}

	nn, ok := h.session.Current().NowNext(input.ID, at)
	if !ok {
		return nil, huma.Error404NotFound("Channel not found")
	}
	return &GetChannelNowOutput{Body: *nn}, nil
}

// GetChannelUpcomingInput is the input for the upcoming-programmes lookup.
type GetChannelUpcomingInput struct {
	ID    string `path:"id" doc:"Channel ID"`
	Count int    `query:"count" default:"5" minimum:"1" maximum:"100"`
	At    string `query:"at" doc:"Instant to evaluate, RFC 3339. Defaults to now"`
}

// GetChannelUpcomingOutput is the output for the upcoming-programmes lookup.
type GetChannelUpcomingOutput struct {
	Body struct {
		Success   bool            `json:"success"`
		ChannelID string          `json:"channel_id"`
		Programs  []guide.Program `json:"programs"`
	}
}

// GetChannelUpcoming returns the next programmes for a channel. An
// unbound channel returns an empty list.
func (h *GuideHandler) GetChannelUpcoming(ctx context.Context, input *GetChannelUpcomingInput) (*GetChannelUpcomingOutput, error) {
	at, err := guideInstant(input.At)
	if err != nil {
		return nil, err
	}

	programs, ok := h.session.Current().Upcoming(input.ID, at, input.Count)
	if !ok {
		return nil, huma.Error404NotFound("Channel not found")
	}

	resp := &GetChannelUpcomingOutput{}
	resp.Body.Success = true
	resp.Body.ChannelID = input.ID
	resp.Body.Programs = programs
	if resp.Body.Programs == nil {
		resp.Body.Programs = []guide.Program{}
	}
	return resp, nil
}

// GetChannelScheduleInput is the input for the channel schedule lookup.
type GetChannelScheduleInput struct {
	ID   string `path:"id" doc:"Channel ID"`
	From string `query:"from" doc:"Window start, RFC 3339. Empty returns the full schedule"`
	To   string `query:"to" doc:"Window end, RFC 3339. Required when from is set"`
}

// GetChannelScheduleOutput is the output for the channel schedule lookup.
type GetChannelScheduleOutput struct {
	Body struct {
		Success   bool              `json:"success"`
		ChannelID string            `json:"channel_id"`
		Match     guide.MatchKind   `json:"match"`
		EpgID     string            `json:"epg_id,omitempty"`
		Epg       *guide.EpgChannel `json:"epg,omitempty"`
		Programs  []guide.Program   `json:"programs"`
	}
}

// GetChannelSchedule returns the full bound schedule for a channel.
// With from and to set, only programmes overlapping the window are
// returned, including one already airing at the window start.
func (h *GuideHandler) GetChannelSchedule(ctx context.Context, input *GetChannelScheduleInput) (*GetChannelScheduleOutput, error) {
	snap := h.session.Current()

	if _, ok := snap.Channel(input.ID); !ok {
		return nil, huma.Error404NotFound("Channel not found")
	}

	resp := &GetChannelScheduleOutput{}
	resp.Body.Success = true
	resp.Body.ChannelID = input.ID
	resp.Body.Match = guide.MatchNone
	resp.Body.Programs = []guide.Program{}

	b, ok := snap.Binding(input.ID)
	if !ok {
		return resp, nil
	}
	resp.Body.Match = b.Kind
	resp.Body.EpgID = b.EpgID
	if epg, ok := snap.EpgChannel(b.EpgID); ok {
		resp.Body.Epg = epg
	}

	sched, ok := snap.Schedule(input.ID)
	if !ok {
		return resp, nil
	}

	if input.From == "" && input.To == "" {
		if programs := sched.Programs(); programs != nil {
			resp.Body.Programs = programs
		}
		return resp, nil
	}

	from, err := time.Parse(time.RFC3339, input.From)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid from timestamp, expected RFC 3339")
	}
	to, err := time.Parse(time.RFC3339, input.To)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid to timestamp, expected RFC 3339")
	}
	if !from.Before(to) {
		return nil, huma.Error400BadRequest("Window start must be before window end")
	}
	resp.Body.Programs = sched.Window(from, to)
	if resp.Body.Programs == nil {
		resp.Body.Programs = []guide.Program{}
	}
	return resp, nil
}
