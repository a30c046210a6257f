package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agroclima/internal/types"
)

func TestJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusOK, APIResponse{Data: map[string]string{"hello": "world"}})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data == nil {
		t.Error("expected data in response")
	}
}

func TestError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-123"))

	Error(rec, req, types.NewAppError(types.ErrCodeNotFoundZone, "zone not found", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeNotFoundZone) {
		t.Errorf("expected not_found_zone, got %q", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-123" {
		t.Errorf("expected request ID echoed, got %q", resp.Error.RequestID)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeUpstreamRateLimited, "rate limit exceeded", nil)
	Error(rec, req, inner)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rec.Code)
	}
}

func TestError_UnknownErrorDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, errors.New("password=hunter2 connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("internal error detail leaked to client")
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected internal_unexpected_error, got %q", resp.Error.Code)
	}
}

func TestDecodeJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"test"}`))

	var dst struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON(rec, req, &dst); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if dst.Name != "test" {
		t.Errorf("expected name test, got %q", dst.Name)
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"nmae":"typo"}`))

	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(rec, req, &dst)
	assertInvalidJSON(t, err)
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	var dst struct{}
	err := DecodeJSON(rec, req, &dst)
	assertInvalidJSON(t, err)
}

func TestDecodeJSON_TrailingGarbage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"a"}{"name":"b"}`))

	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(rec, req, &dst)
	assertInvalidJSON(t, err)
}

func TestDecodeJSON_TypeMismatchCarriesField(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"count":"twelve"}`))

	var dst struct {
		Count int `json:"count"`
	}
	err := DecodeJSON(rec, req, &dst)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Details["field"] != "count" {
		t.Errorf("expected field detail, got %v", appErr.Details)
	}
}

func assertInvalidJSON(t *testing.T, err error) {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T (%v)", err, err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidJSON {
		t.Errorf("expected validation_invalid_json, got %s", appErr.Code)
	}
}
