// Package handlers implements the HTTP handlers mounted on the API chassis.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agroclima/internal/core"
	"agroclima/internal/types"
)

// WeatherService is the slice of the ingestion service the weather routes
// depend on.
type WeatherService interface {
	ParseTargetDate(value string) (time.Time, error)
	PopulateAllZones(ctx context.Context, at time.Time) (*types.PopulateSummary, error)
	CurrentWeather(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error)
	LatestWeather(ctx context.Context, lat, lon float64) (*types.WeatherObservation, error)
	ForecastWeather(ctx context.Context, lat, lon float64, date time.Time) (*types.WeatherObservation, error)
	History(ctx context.Context, lat, lon float64, window time.Duration) ([]*types.WeatherObservation, error)
	Aggregate(ctx context.Context, lat, lon float64, bucket time.Duration, from, to time.Time) ([]*types.AggregateRow, error)
}

// WeatherHandler serves ingestion triggers and weather reads.
type WeatherHandler struct {
	service WeatherService
}

// NewWeatherHandler creates the handler.
func NewWeatherHandler(service WeatherService) *WeatherHandler {
	return &WeatherHandler{service: service}
}

// Mount registers the weather routes.
func (h *WeatherHandler) Mount(r chi.Router) {
	r.Route("/v1/weather", func(r chi.Router) {
		r.Post("/ingest", h.Ingest)
		r.Get("/current", h.Current)
		r.Get("/latest", h.Latest)
		r.Get("/forecast", h.Forecast)
		r.Get("/history", h.History)
		r.Get("/aggregate", h.Aggregate)
	})
}

type ingestRequest struct {
	Date string `json:"date,omitempty"`
}

// Ingest triggers a full ingestion pass. The response is always a summary;
// zones that yielded no data appear in the skipped count rather than failing
// the request.
func (h *WeatherHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if r.ContentLength > 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	at, err := h.service.ParseTargetDate(req.Date)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	summary, err := h.service.PopulateAllZones(r.Context(), at)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

// Current serves real-time conditions through the cache read-through.
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := latLonParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cond, err := h.service.CurrentWeather(r.Context(), lat, lon)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cond})
}

// Latest serves the newest stored observation for a location.
func (h *WeatherHandler) Latest(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := latLonParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	obs, err := h.service.LatestWeather(r.Context(), lat, lon)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if obs == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundObservation,
			"no observation stored for location",
			nil,
		))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: obs})
}

// Forecast serves the cached forecast for a location and date.
func (h *WeatherHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := latLonParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	date := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		date, err = time.Parse("2006-01-02", v)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidDate,
				"date must be formatted YYYY-MM-DD",
				err,
			))
			return
		}
	}

	obs, err := h.service.ForecastWeather(r.Context(), lat, lon, date)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if obs == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundObservation,
			"no forecast cached for location and date",
			nil,
		))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: obs})
}

// History serves a location's trailing-window observations. The window is
// given in hours and defaults to 24.
func (h *WeatherHandler) History(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := latLonParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		hours, err = strconv.Atoi(v)
		if err != nil || hours <= 0 || hours > 24*365 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"hours must be a positive integer up to 8760",
				nil,
			))
			return
		}
	}

	obs, err := h.service.History(r.Context(), lat, lon, time.Duration(hours)*time.Hour)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: obs})
}

// Aggregate serves bucketed statistics for a location.
func (h *WeatherHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := latLonParams(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	q := r.URL.Query()

	bucket := time.Hour
	if v := q.Get("bucket"); v != "" {
		bucket, err = time.ParseDuration(v)
		if err != nil || bucket < time.Minute {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"bucket must be a duration of at least 1m",
				nil,
			))
			return
		}
	}

	var from, to time.Time
	if v := q.Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidDate, "from must be RFC3339", err))
			return
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidDate, "to must be RFC3339", err))
			return
		}
	}

	rows, err := h.service.Aggregate(r.Context(), lat, lon, bucket, from, to)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rows})
}

// latLonParams parses and validates the lat/lon query parameters shared by
// the read endpoints.
func latLonParams(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return 0, 0, types.NewAppError(
			types.ErrCodeValidationInvalidLat,
			"lat query parameter must be a number",
			err,
		)
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return 0, 0, types.NewAppError(
			types.ErrCodeValidationInvalidLon,
			"lon query parameter must be a number",
			err,
		)
	}

	if err := (types.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
