package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crateside/sleeve/internal/cost"
	"github.com/crateside/sleeve/internal/model"
	"github.com/crateside/sleeve/internal/scan"
)

type fixedTier1 struct {
	result *scan.Tier1Result
	err    error
}

func (f *fixedTier1) Identify(context.Context, model.Capture) (*scan.Tier1Result, error) {
	return f.result, f.err
}

type fixedTier2 struct{}

func (f *fixedTier2) Identify(context.Context, model.EscalationCandidate) (*model.Identity, error) {
	return nil, context.Canceled
}

type fixedEnricher struct {
	payload *model.Enrichment
}

func (f *fixedEnricher) Generate(context.Context, model.Identity, bool) (*model.Enrichment, error) {
	return f.payload, nil
}

func testServerEnv() *serverEnv {
	orch := scan.NewOrchestrator(
		&fixedTier1{result: &scan.Tier1Result{Identity: &model.Identity{Artist: "Nico", Album: "Chelsea Girl"}}},
		&fixedTier2{},
		&fixedEnricher{payload: &model.Enrichment{Review: "sparse and lovely", Score: 8.8, Tier: model.TierStandard}},
		nil, nil, nil, nil,
		scan.Config{},
	)
	return &serverEnv{
		baseCtx:      context.Background(),
		orchestrator: orch,
		tracker:      cost.NewTracker(cost.DefaultRates()),
		registry:     newSessionRegistry(),
	}
}

func multipartImage(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "cover.jpg")
	require.NoError(t, err)
	// Minimal JPEG magic so content sniffing sees an image.
	_, err = part.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestServeHealth(t *testing.T) {
	router := newRouter(testServerEnv())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeScanLifecycle(t *testing.T) {
	env := testServerEnv()
	router := newRouter(env)

	body, contentType := multipartImage(t, "image")
	req := httptest.NewRequest(http.MethodPost, "/scans", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.ID)

	session, ok := env.registry.get(accepted.ID)
	require.True(t, ok)
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scans/"+accepted.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, model.StateComplete, snap.State)
	require.NotNil(t, snap.Enrichment)
	assert.Equal(t, 8.8, snap.Enrichment.Score)
}

func TestServeScanRejectsNonImage(t *testing.T) {
	router := newRouter(testServerEnv())

	req := httptest.NewRequest(http.MethodPost, "/scans", bytes.NewBufferString("just some text"))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeScanRejectsWrongField(t *testing.T) {
	router := newRouter(testServerEnv())

	body, contentType := multipartImage(t, "photo")
	req := httptest.NewRequest(http.MethodPost, "/scans", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeUnknownSession(t *testing.T) {
	router := newRouter(testServerEnv())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scans/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeCostReport(t *testing.T) {
	router := newRouter(testServerEnv())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cost", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report cost.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.TotalUSD)
}

func TestValidateCapture(t *testing.T) {
	_, err := validateCapture(nil, "image/jpeg")
	assert.Error(t, err)

	_, err = validateCapture([]byte("x"), "application/pdf")
	assert.Error(t, err)

	capture, err := validateCapture([]byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", capture.MediaType)
}
