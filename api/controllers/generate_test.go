package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/api/middleware"
	"github.com/forgelabs-ai/mediaforge-backend/internal/generation"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

type stubGenerationService struct {
	generation.Service

	resp    *generation.GenerateResponse
	err     error
	lastReq generation.GenerateRequest
}

func (s *stubGenerationService) Handle(ctx context.Context, userID uuid.UUID, req generation.GenerateRequest) (*generation.GenerateResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestGenerateCreatesJob(t *testing.T) {
	jobID := uuid.New()
	svc := &stubGenerationService{resp: &generation.GenerateResponse{
		JobID:     jobID,
		Operation: enums.OperationImageGenerate,
		Status:    enums.JobStatusCompleted,
		Cost:      500,
		Balance:   2500,
	}}
	handler := Generate(svc, testLogger())

	body := `{"operation":"image_generate","prompt":"a lighthouse at dusk","idempotency_key":"abc"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var envelope struct {
		Data generation.GenerateResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.JobID != jobID || envelope.Data.Balance != 2500 {
		t.Fatalf("payload = %+v", envelope.Data)
	}
	if svc.lastReq.IdempotencyKey != "abc" {
		t.Fatalf("idempotency key = %q", svc.lastReq.IdempotencyKey)
	}
}

func TestGenerateReplayReturns200(t *testing.T) {
	svc := &stubGenerationService{resp: &generation.GenerateResponse{
		JobID:    uuid.New(),
		Status:   enums.JobStatusCompleted,
		Replayed: true,
	}}
	handler := Generate(svc, testLogger())

	body := `{"operation":"image_generate","prompt":"a lighthouse at dusk"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", rec.Code)
	}
}

func TestGenerateHeaderKeyUsedWhenBodyOmitsIt(t *testing.T) {
	svc := &stubGenerationService{resp: &generation.GenerateResponse{JobID: uuid.New()}}
	handler := Generate(svc, testLogger())

	body := `{"operation":"image_generate","prompt":"a lighthouse at dusk"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "hdr-key")
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if svc.lastReq.IdempotencyKey != "hdr-key" {
		t.Fatalf("idempotency key = %q, want hdr-key", svc.lastReq.IdempotencyKey)
	}
}

func TestGenerateInsufficientCreditsMapsTo409(t *testing.T) {
	svc := &stubGenerationService{err: pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")}
	handler := Generate(svc, testLogger())

	body := `{"operation":"video_generate","prompt":"a lighthouse at dusk"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestGenerateRequiresAuthContext(t *testing.T) {
	svc := &stubGenerationService{}
	handler := Generate(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGenerateRejectsMalformedBody(t *testing.T) {
	svc := &stubGenerationService{}
	handler := Generate(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(`{"operation":`))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
