package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storyreel/internal/domain"
)

func newTestApp() *App {
	return NewApp(nil, nil, zerolog.Nop())
}

func TestJobsCreateRejectsBadPayload(t *testing.T) {
	app := newTestApp()
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing input", `{}`},
		{"blank locale tag", `{"input":"a story","locale":"???"}`},
		{"slide count too large", `{"input":"a story","slide_count":100}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			app.JobsCreate(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "bad_request") {
				t.Errorf("body = %q, want bad_request error code", rec.Body.String())
			}
		})
	}
}

func TestStagesStartRejectsUnknownStage(t *testing.T) {
	app := newTestApp()
	r := chi.NewRouter()
	r.Post("/v1/jobs/{id}/stages/{stage}", app.StagesStart)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/j1/stages/scenario", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	app := newTestApp()
	tests := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("input: %w", domain.ErrValidation), http.StatusBadRequest, "bad_request"},
		{domain.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
		{fmt.Errorf("CHATTING -> VIDEO_GENERATING: %w", domain.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		app.domainError(rec, tc.err)
		if rec.Code != tc.wantCode {
			t.Errorf("domainError(%v) status = %d, want %d", tc.err, rec.Code, tc.wantCode)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Errorf("domainError(%v) body = %q, want %q", tc.err, rec.Body.String(), tc.wantBody)
		}
	}
}

func TestHealthWithoutPool(t *testing.T) {
	app := newTestApp()
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	app.Health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
