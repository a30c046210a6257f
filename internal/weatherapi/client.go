// Package weatherapi provides the anti-corruption layer between the ingestion
// domain and the external current-weather REST provider. All outbound calls
// go through a resty client wrapped in a circuit breaker so a flapping
// provider cannot stall ingestion or exhaust the rate budget.
package weatherapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"agroclima/internal/types"
)

// Config holds provider connection parameters.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Units   string
	Lang    string
}

// Client fetches real-time conditions. It implements
// types.CurrentWeatherProvider.
type Client struct {
	rest    *resty.Client
	breaker *gobreaker.CircuitBreaker[*providerResponse]
	cfg     Config
	clock   types.Clock
	logger  *slog.Logger
}

// NewClient creates a provider client with a 10s default timeout and a
// circuit breaker that trips after 5 consecutive failures.
func NewClient(cfg Config, clock types.Clock, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	if cfg.Lang == "" {
		cfg.Lang = "es"
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	cb := gobreaker.NewCircuitBreaker[*providerResponse](gobreaker.Settings{
		Name:        "weather-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Client{rest: rest, breaker: cb, cfg: cfg, clock: clock, logger: logger}
}

// providerResponse mirrors the provider's /weather payload shape.
type providerResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64  `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  float64  `json:"humidity"`
		Pressure  float64  `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"`
	// Visibility is reported in meters.
	Visibility float64 `json:"visibility"`
	Name       string  `json:"name"`
	Dt         int64   `json:"dt"`
}

// Fetch returns current conditions for the location. A 401 means the
// configured credentials are bad and retrying is pointless; a 429 means the
// rate budget is exhausted and retrying would make it worse. Both surface as
// typed errors without passing through the breaker's failure count twice.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	body, err := c.breaker.Execute(func() (*providerResponse, error) {
		return c.doFetch(ctx, lat, lon)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &types.AppError{
				Code:    types.ErrCodeUpstreamWeatherAPI,
				Message: "weather provider circuit open",
				Err:     err,
			}
		}
		return nil, err
	}
	return c.transform(lat, lon, body), nil
}

func (c *Client) doFetch(ctx context.Context, lat, lon float64) (*providerResponse, error) {
	var body providerResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%f", lat),
			"lon":   fmt.Sprintf("%f", lon),
			"appid": c.cfg.APIKey,
			"units": c.cfg.Units,
			"lang":  c.cfg.Lang,
		}).
		SetResult(&body).
		Get("/weather")
	if err != nil {
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamWeatherAPI,
			Message: "calling weather provider",
			Err:     err,
		}
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &body, nil
	case http.StatusUnauthorized:
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamBadCreds,
			Message: "weather provider rejected credentials",
		}
	case http.StatusTooManyRequests:
		c.logger.WarnContext(ctx, "weather provider rate limited", "lat", lat, "lon", lon)
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamRateLimited,
			Message: "weather provider rate limit exceeded",
		}
	default:
		return nil, &types.AppError{
			Code:    types.ErrCodeUpstreamWeatherAPI,
			Message: fmt.Sprintf("weather provider returned status %d", resp.StatusCode()),
		}
	}
}

// transform converts the provider payload into domain units: visibility
// meters to kilometers, the trailing-hour rain bucket to precipitation.
func (c *Client) transform(lat, lon float64, body *providerResponse) *types.CurrentConditions {
	cond := &types.CurrentConditions{
		Latitude:      lat,
		Longitude:     lon,
		Temperature:   body.Main.Temp,
		FeelsLike:     body.Main.FeelsLike,
		Humidity:      body.Main.Humidity,
		Pressure:      body.Main.Pressure,
		WindSpeed:     body.Wind.Speed,
		WindDirection: body.Wind.Deg,
		VisibilityKm:  body.Visibility / 1000,
		Source:        "openweathermap",
		ObservedAt:    c.clock.Now(),
	}
	if len(body.Weather) > 0 {
		cond.Description = body.Weather[0].Description
	}
	if mm, ok := body.Rain["1h"]; ok {
		cond.Precipitation = mm
	}
	if body.Dt > 0 {
		cond.ObservedAt = time.Unix(body.Dt, 0).UTC()
	}
	return cond
}
