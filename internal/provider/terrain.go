package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// TerrainProvider answers ground elevation (metres AMSL) for a point.
type TerrainProvider interface {
	GroundElevation(ctx context.Context, lat, lng float64) (float64, error)
}

type TerrainClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewTerrainClient(baseURL string) *TerrainClient {
	return &TerrainClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: lookupTimeout},
	}
}

type elevationResponse struct {
	ElevationM float64 `json:"elevation_m"`
}

// GroundElevation returns 0 (flat ground) whenever the provider cannot
// answer in time; the optimizer's terrain clearance pass treats that as
// sea-level terrain.
func (c *TerrainClient) GroundElevation(ctx context.Context, lat, lng float64) (float64, error) {
	if c.BaseURL == "" {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/elevation?lat=%f&lng=%f", c.BaseURL, lat, lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("terrain request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		slog.Warn("terrain lookup failed, assuming flat ground", slog.String("error", err.Error()))
		return 0, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, nil
	}

	var e elevationResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return 0, nil
	}
	return e.ElevationM, nil
}
