// Pulseboard - Developer Time Tracking and Activity Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulseboard

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulseboard/internal/logging"
	"github.com/tomtom215/pulseboard/internal/validation"
)

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name        string
		write       func(rw *ResponseWriter)
		wantStatus  int
		wantSuccess bool
		wantCode    string
	}{
		{"success", func(rw *ResponseWriter) { rw.Success(map[string]int{"n": 1}) }, http.StatusOK, true, ""},
		{"created", func(rw *ResponseWriter) { rw.Created("ok") }, http.StatusCreated, true, ""},
		{"multi status", func(rw *ResponseWriter) { rw.MultiStatus([]int{1}, "1 rejected") }, http.StatusMultiStatus, false, ErrCodePartialSuccess},
		{"bad request", func(rw *ResponseWriter) { rw.BadRequest("nope") }, http.StatusBadRequest, false, ErrCodeBadRequest},
		{"unauthorized", func(rw *ResponseWriter) { rw.Unauthorized("who") }, http.StatusUnauthorized, false, ErrCodeUnauthorized},
		{"forbidden", func(rw *ResponseWriter) { rw.Forbidden("no") }, http.StatusForbidden, false, ErrCodeForbidden},
		{"not found", func(rw *ResponseWriter) { rw.NotFound("gone") }, http.StatusNotFound, false, ErrCodeNotFound},
		{"too many", func(rw *ResponseWriter) { rw.TooManyRequests("slow") }, http.StatusTooManyRequests, false, ErrCodeTooManyRequests},
		{"internal", func(rw *ResponseWriter) { rw.InternalError(errors.New("boom")) }, http.StatusInternalServerError, false, ErrCodeInternalError},
		{"database", func(rw *ResponseWriter) { rw.DatabaseError(errors.New("boom")) }, http.StatusInternalServerError, false, ErrCodeDatabaseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-123"))
			rec := httptest.NewRecorder()

			tt.write(NewResponseWriter(rec, req))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("expected Cache-Control: no-store")
			}
			var resp APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Meta == nil || resp.Meta.RequestID != "req-123" {
				t.Errorf("meta = %+v", resp.Meta)
			}
			if tt.wantCode == "" {
				if resp.Error != nil {
					t.Errorf("unexpected error %+v", resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if resp.Error != nil && resp.Error.RequestID != "req-123" {
				t.Errorf("error request id = %q", resp.Error.RequestID)
			}
		})
	}
}

func TestResponseWriter_InternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponseWriter(rec, httptest.NewRequest(http.MethodGet, "/", nil)).InternalError(errors.New("pq: password authentication failed"))

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Message != "An internal error occurred" {
		t.Errorf("message leaks cause: %q", resp.Error.Message)
	}
}

func TestResponseWriter_ValidationError(t *testing.T) {
	verr := validation.ValidateStruct(&RegisterRequest{Email: "bad", Password: "x"})
	if verr == nil {
		t.Fatal("expected validation error")
	}

	rec := httptest.NewRecorder()
	NewResponseWriter(rec, httptest.NewRequest(http.MethodPost, "/", nil)).ValidationError(verr)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed || resp.Error.Details == nil {
		t.Errorf("error = %+v", resp.Error)
	}
}
