package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agroclima/internal/core"
	"agroclima/internal/types"
	"agroclima/internal/zones"
)

// ZoneService is the slice of the assignment service the zone routes depend
// on.
type ZoneService interface {
	FindOrCreateZoneForField(ctx context.Context, fieldID string, maxDistanceKm float64) (*types.WeatherZone, error)
	CreateZone(ctx context.Context, zone *types.WeatherZone) error
	GetZone(ctx context.Context, id string) (*types.WeatherZone, error)
	UpdateZone(ctx context.Context, zone *types.WeatherZone) error
	DeleteZone(ctx context.Context, id string) error
	ListZones(ctx context.Context, activeOnly bool) ([]*types.WeatherZone, error)
	OptimizeZones(ctx context.Context) ([]zones.OptimizeResult, error)
}

// ZoneHandler serves zone administration and field-to-zone resolution.
type ZoneHandler struct {
	service ZoneService
}

// NewZoneHandler creates the handler.
func NewZoneHandler(service ZoneService) *ZoneHandler {
	return &ZoneHandler{service: service}
}

// Mount registers the zone routes.
func (h *ZoneHandler) Mount(r chi.Router) {
	r.Route("/v1/zones", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/resolve", h.Resolve)
		r.Post("/optimize", h.Optimize)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

type resolveRequest struct {
	FieldID       string  `json:"field_id"`
	MaxDistanceKm float64 `json:"max_distance_km,omitempty"`
}

// Resolve links a field to its closest zone, creating one when none is in
// range, and returns the zone.
func (h *ZoneHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.FieldID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"field_id is required",
			nil,
		))
		return
	}

	zone, err := h.service.FindOrCreateZoneForField(r.Context(), req.FieldID, req.MaxDistanceKm)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: zone})
}

// List returns all zones; ?active=true restricts to active ones.
func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	list, err := h.service.ListZones(r.Context(), activeOnly)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

type zoneRequest struct {
	Name            string  `json:"name"`
	CenterLatitude  float64 `json:"center_latitude"`
	CenterLongitude float64 `json:"center_longitude"`
	RadiusKm        float64 `json:"radius_km"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

// Create adds a zone. Validation lives in the repository so a bad radius or
// coordinate comes back as a typed validation error.
func (h *ZoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Name == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"name is required",
			nil,
		))
		return
	}

	zone := &types.WeatherZone{
		Name:            req.Name,
		CenterLatitude:  req.CenterLatitude,
		CenterLongitude: req.CenterLongitude,
		RadiusKm:        req.RadiusKm,
		IsActive:        true,
	}
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}

	if err := h.service.CreateZone(r.Context(), zone); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: zone})
}

// Get returns a zone by ID.
func (h *ZoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	zone, err := h.service.GetZone(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: zone})
}

// Update replaces a zone's mutable attributes.
func (h *ZoneHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	zone, err := h.service.GetZone(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req zoneRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != "" {
		zone.Name = req.Name
	}
	zone.CenterLatitude = req.CenterLatitude
	zone.CenterLongitude = req.CenterLongitude
	zone.RadiusKm = req.RadiusKm
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}

	if err := h.service.UpdateZone(r.Context(), zone); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: zone})
}

// Delete removes a zone.
func (h *ZoneHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteZone(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Optimize recenters and resizes active zones around their member fields.
func (h *ZoneHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.OptimizeZones(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if results == nil {
		results = []zones.OptimizeResult{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: results})
}
