package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/tvgrid/internal/version"
)

// VersionHandler reports build version information.
type VersionHandler struct{}

// NewVersionHandler creates a new version handler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// Register registers the version routes with the API.
func (h *VersionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      "GET",
		Path:        "/api/v1/version",
		Summary:     "Version information",
		Description: "Returns build version, commit and platform details",
		Tags:        []string{"System"},
	}, h.Get)
}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body version.Info
}

// Get returns build version information.
func (h *VersionHandler) Get(ctx context.Context, _ *struct{}) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}
