package api

import (
	"context"
	"net/url"

	"github.com/tjddyd55-crypto/global-audition/client"
)

const unknownVersion = "n/a"

// Version identifies the deployed backend build.
type Version struct {
	Version string `json:"version"`
	BuildID string `json:"buildId"`
}

// MediaStatus is UP or DOWN.
type MediaStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// HealthAPI probes the backend. Probes never carry the session token.
type HealthAPI struct {
	c *client.Client
}

// Backend reports whether /api/health answered {"ok": true}.
func (h *HealthAPI) Backend(ctx context.Context) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err := h.c.Do(ctx, client.Request{Path: "/api/health", FromOrigin: true, Anonymous: true}, &out)
	return out.OK, err
}

// Version returns the backend build, "n/a" for fields it does not report.
func (h *HealthAPI) Version(ctx context.Context) (Version, error) {
	var out Version
	if err := h.c.Do(ctx, client.Request{Path: "/api/version", FromOrigin: true, Anonymous: true}, &out); err != nil {
		return Version{}, err
	}
	if out.Version == "" {
		out.Version = unknownVersion
	}
	if out.BuildID == "" {
		out.BuildID = unknownVersion
	}
	return out, nil
}

// Media probes the media endpoints with a one item video page. Failures are reported as DOWN.
func (h *HealthAPI) Media(ctx context.Context) MediaStatus {
	status := MediaStatus{Status: "UP", Service: "media-service"}
	q := url.Values{"page": {"0"}, "size": {"1"}}
	if err := h.c.Do(ctx, client.Request{Path: "/videos", Query: q, Anonymous: true}, nil); err != nil {
		status.Status = "DOWN"
	}
	return status
}
