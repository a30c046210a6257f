package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"agroclima/internal/types"
	"agroclima/internal/zones"
)

// --- Mock Service ---

type mockZoneService struct {
	resolveZone *types.WeatherZone
	resolveErr  error
	gotFieldID  string
	gotMaxDist  float64

	createErr error
	zone      *types.WeatherZone
	getErr    error
	updateErr error
	deleteErr error
	list      []*types.WeatherZone
	listErr   error
	gotActive bool

	optimizeResults []zones.OptimizeResult
	optimizeErr     error
}

func (m *mockZoneService) FindOrCreateZoneForField(_ context.Context, fieldID string, maxDistanceKm float64) (*types.WeatherZone, error) {
	m.gotFieldID = fieldID
	m.gotMaxDist = maxDistanceKm
	return m.resolveZone, m.resolveErr
}

func (m *mockZoneService) CreateZone(_ context.Context, zone *types.WeatherZone) error {
	if m.createErr != nil {
		return m.createErr
	}
	zone.ID = "zone-created"
	return nil
}

func (m *mockZoneService) GetZone(_ context.Context, _ string) (*types.WeatherZone, error) {
	return m.zone, m.getErr
}

func (m *mockZoneService) UpdateZone(_ context.Context, _ *types.WeatherZone) error {
	return m.updateErr
}

func (m *mockZoneService) DeleteZone(_ context.Context, _ string) error {
	return m.deleteErr
}

func (m *mockZoneService) ListZones(_ context.Context, activeOnly bool) ([]*types.WeatherZone, error) {
	m.gotActive = activeOnly
	return m.list, m.listErr
}

func (m *mockZoneService) OptimizeZones(_ context.Context) ([]zones.OptimizeResult, error) {
	return m.optimizeResults, m.optimizeErr
}

func makeZoneRouter(svc ZoneService) http.Handler {
	r := chi.NewRouter()
	NewZoneHandler(svc).Mount(r)
	return r
}

// --- Resolve Tests ---

func TestResolve_Success(t *testing.T) {
	svc := &mockZoneService{
		resolveZone: &types.WeatherZone{ID: "zone-1", Name: "Zone Cordoba 1"},
	}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"field_id":"field-1","max_distance_km":15}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/resolve", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if svc.gotFieldID != "field-1" {
		t.Errorf("expected field-1, got %s", svc.gotFieldID)
	}
	if svc.gotMaxDist != 15 {
		t.Errorf("expected max distance 15, got %v", svc.gotMaxDist)
	}
}

func TestResolve_MissingFieldID(t *testing.T) {
	svc := &mockZoneService{}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"max_distance_km":15}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/resolve", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeValidationMissingField) {
		t.Errorf("expected validation_missing_required_field, got %s", code)
	}
}

func TestResolve_FieldNotFound(t *testing.T) {
	svc := &mockZoneService{
		resolveErr: types.NewAppError(types.ErrCodeNotFoundField, "field not found", nil),
	}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"field_id":"missing"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/resolve", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestResolve_EmptyBody(t *testing.T) {
	svc := &mockZoneService{}
	router := makeZoneRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/zones/resolve", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

// --- CRUD Tests ---

func TestCreateZone_Success(t *testing.T) {
	svc := &mockZoneService{}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"name":"Zone Rosario 1","center_latitude":-32.9,"center_longitude":-60.6,"radius_km":10}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var resp struct {
		Data types.WeatherZone `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.ID != "zone-created" {
		t.Errorf("expected generated ID in response, got %q", resp.Data.ID)
	}
	if !resp.Data.IsActive {
		t.Error("expected zone to default to active")
	}
}

func TestCreateZone_MissingName(t *testing.T) {
	svc := &mockZoneService{}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"center_latitude":-32.9,"center_longitude":-60.6,"radius_km":10}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCreateZone_InvalidRadius(t *testing.T) {
	svc := &mockZoneService{
		createErr: types.NewAppError(types.ErrCodeValidationInvalidRadius, "radius_km must be within [1, 50]", nil),
	}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"name":"Zone Rosario 1","center_latitude":-32.9,"center_longitude":-60.6,"radius_km":80}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeValidationInvalidRadius) {
		t.Errorf("expected validation_invalid_radius, got %s", code)
	}
}

func TestGetZone_NotFound(t *testing.T) {
	svc := &mockZoneService{
		getErr: types.NewAppError(types.ErrCodeNotFoundZone, "zone not found", nil),
	}
	router := makeZoneRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/zones/nope", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestListZones_ActiveFilter(t *testing.T) {
	svc := &mockZoneService{list: []*types.WeatherZone{}}
	router := makeZoneRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/zones/?active=true", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !svc.gotActive {
		t.Error("expected active-only listing")
	}
}

func TestUpdateZone_Success(t *testing.T) {
	svc := &mockZoneService{
		zone: &types.WeatherZone{ID: "zone-1", Name: "Zone Cordoba 1", RadiusKm: 10, IsActive: true},
	}
	router := makeZoneRouter(svc)

	body := bytes.NewBufferString(`{"name":"Zone Cordoba Norte","center_latitude":-31.3,"center_longitude":-64.1,"radius_km":12}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/zones/zone-1", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Data types.WeatherZone `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Name != "Zone Cordoba Norte" {
		t.Errorf("expected renamed zone, got %q", resp.Data.Name)
	}
	if resp.Data.RadiusKm != 12 {
		t.Errorf("expected radius 12, got %v", resp.Data.RadiusKm)
	}
}

func TestDeleteZone_Success(t *testing.T) {
	svc := &mockZoneService{}
	router := makeZoneRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/v1/zones/zone-1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
}

// --- Optimize Tests ---

func TestOptimize_EmptyResultIsArray(t *testing.T) {
	svc := &mockZoneService{}
	router := makeZoneRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/zones/optimize", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Data []zones.OptimizeResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data == nil {
		t.Error("expected empty array, got null")
	}
}

func TestOptimize_Adjusted(t *testing.T) {
	svc := &mockZoneService{
		optimizeResults: []zones.OptimizeResult{
			{ZoneID: "zone-1", OldRadius: 10, NewRadius: 7.2, Moved: true},
		},
	}
	router := makeZoneRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/zones/optimize", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Data []zones.OptimizeResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ZoneID != "zone-1" {
		t.Errorf("unexpected results: %+v", resp.Data)
	}
}
