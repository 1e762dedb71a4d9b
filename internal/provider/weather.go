// Package provider holds the narrow clients for the external weather and
// terrain services. Both are read-only, consulted with a short timeout, and
// fall back to defaults when unreachable so routing never blocks on them.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const lookupTimeout = 2 * time.Second

// Weather is a snapshot of conditions at a point.
type Weather struct {
	TemperatureC     float64 `json:"temperature_c"`
	WindSpeedKMH     float64 `json:"wind_speed_kmh"`
	WindDirectionDeg float64 `json:"wind_direction_deg"`
	Precipitation    float64 `json:"precipitation"` // 0..1
	VisibilityKM     float64 `json:"visibility_km"`
	AirPressureHPA   float64 `json:"air_pressure_hpa"`
}

// DefaultWeather is assumed when the provider is unavailable: calm, clear.
func DefaultWeather() Weather {
	return Weather{
		TemperatureC:   25,
		VisibilityKM:   10,
		AirPressureHPA: 1013,
	}
}

type WeatherProvider interface {
	Current(ctx context.Context, lat, lng float64) (Weather, error)
}

type WeatherClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewWeatherClient(baseURL string) *WeatherClient {
	return &WeatherClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: lookupTimeout},
	}
}

func (c *WeatherClient) Current(ctx context.Context, lat, lng float64) (Weather, error) {
	if c.BaseURL == "" {
		return DefaultWeather(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/current?lat=%f&lng=%f", c.BaseURL, lat, lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DefaultWeather(), fmt.Errorf("weather request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		slog.Warn("weather lookup failed, using defaults", slog.String("error", err.Error()))
		return DefaultWeather(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("weather lookup failed, using defaults", slog.Int("status", resp.StatusCode))
		return DefaultWeather(), nil
	}

	var w Weather
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return DefaultWeather(), nil
	}
	return w, nil
}
