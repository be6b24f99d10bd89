package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/cristianoliveira/freshshell/internal/policy"
)

// VersionPath is where the origin publishes its current version manifest.
const VersionPath = "/version.json"

// VersionManifest describes a deployed build.
type VersionManifest struct {
	Version string   `json:"version"`
	Assets  []string `json:"assets"`
}

// FetchVersionManifest downloads and decodes the origin's version manifest,
// bypassing every cache.
func FetchVersionManifest(ctx context.Context, f Fetcher, origin *url.URL) (VersionManifest, error) {
	u := origin.ResolveReference(&url.URL{Path: VersionPath})
	req := policy.Request{
		Method: http.MethodGet,
		URL:    u,
		Mode:   policy.ModeSameOrigin,
		Header: http.Header{"Cache-Control": {"no-cache"}, "Accept": {"application/json"}},
	}
	resp, err := fetchWithTimeout(ctx, f, req, 0)
	if err != nil {
		return VersionManifest{}, err
	}
	if !resp.OK() {
		return VersionManifest{}, fmt.Errorf("fetch %s: unexpected status %d", u, resp.Status)
	}

	var m VersionManifest
	if err := sonic.Unmarshal(resp.Body, &m); err != nil {
		return VersionManifest{}, fmt.Errorf("decode %s: %w", u, err)
	}
	if m.Version == "" {
		return VersionManifest{}, errors.New("version manifest has no version")
	}
	return m, nil
}
