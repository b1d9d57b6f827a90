package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/models"
)

type fakeDownloads struct {
	lastRequest *models.DownloadRequest
	result      *models.DownloadResult
	records     []*models.DownloadRecord
}

func (f *fakeDownloads) Fetch(ctx context.Context, request *models.DownloadRequest) (*models.DownloadResult, error) {
	f.lastRequest = request
	return f.result, nil
}

func (f *fakeDownloads) History(userID string, limit int) ([]*models.DownloadRecord, error) {
	return f.records, nil
}

type fakeDetect struct {
	lastOpts *models.DetectOptions
}

func (f *fakeDetect) DetectAuthRequirement(ctx context.Context, rawURL string, opts *models.DetectOptions) *models.AuthRequirementResult {
	f.lastOpts = opts
	return f.QuickCheck(rawURL)
}

func (f *fakeDetect) QuickCheck(rawURL string) *models.AuthRequirementResult {
	return &models.AuthRequirementResult{
		RequiresAuth: true,
		Confidence:   models.ConfidenceHigh,
		Indicators:   []string{"Institutional domain (.edu)"},
	}
}

func TestDownloadHandler_Success(t *testing.T) {
	downloads := &fakeDownloads{result: &models.DownloadResult{
		Success:  true,
		Filename: "lecture.mp4",
	}}
	h := NewDownloadHandler(downloads, &fakeDetect{}, common.GetLogger())

	body, _ := json.Marshal(map[string]string{"url": "https://media.example.com/v/1"})
	req := httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.DownloadHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, downloads.lastRequest)
	assert.Equal(t, "default", downloads.lastRequest.UserID)

	var result models.DownloadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "lecture.mp4", result.Filename)
}

func TestDownloadHandler_FailureMapsTo422(t *testing.T) {
	downloads := &fakeDownloads{result: &models.DownloadResult{
		Success:    false,
		ErrorClass: models.ErrClassAuth,
		Error:      "authentication required",
	}}
	h := NewDownloadHandler(downloads, &fakeDetect{}, common.GetLogger())

	body, _ := json.Marshal(map[string]string{"url": "https://media.example.com/v/1"})
	req := httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.DownloadHandler(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDownloadHandler_RejectsBadBody(t *testing.T) {
	h := NewDownloadHandler(&fakeDownloads{}, &fakeDetect{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing URL fails validation.
	req = httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewReader([]byte(`{"user_id":"u1"}`)))
	rec = httptest.NewRecorder()
	h.DownloadHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadHandler_MethodNotAllowed(t *testing.T) {
	h := NewDownloadHandler(&fakeDownloads{}, &fakeDetect{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDetectHandler(t *testing.T) {
	detect := &fakeDetect{}
	h := NewDownloadHandler(&fakeDownloads{}, detect, common.GetLogger())

	body, _ := json.Marshal(map[string]string{"url": "https://moodle.university.edu/course"})
	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.DetectHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result models.AuthRequirementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.RequiresAuth)
	assert.Equal(t, models.ConfidenceHigh, result.Confidence)
	assert.Nil(t, detect.lastOpts, "bare request carries no per-call options")
}

func TestDetectHandler_PerCallOptions(t *testing.T) {
	detect := &fakeDetect{}
	h := NewDownloadHandler(&fakeDownloads{}, detect, common.GetLogger())

	body, _ := json.Marshal(map[string]interface{}{
		"url":              "https://moodle.university.edu/course",
		"user_agent":       "course-tool/2.1",
		"follow_redirects": false,
		"timeout_seconds":  3,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.DetectHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, detect.lastOpts)
	assert.Equal(t, "course-tool/2.1", detect.lastOpts.UserAgent)
	require.NotNil(t, detect.lastOpts.FollowRedirects)
	assert.False(t, *detect.lastOpts.FollowRedirects)
	assert.Equal(t, 3*time.Second, detect.lastOpts.ProbeTimeout)
}

func TestListDownloadsHandler(t *testing.T) {
	downloads := &fakeDownloads{records: []*models.DownloadRecord{
		{ID: "dl_1", Filename: "a.mp4"},
		{ID: "dl_2", Filename: "b.mp4"},
	}}
	h := NewDownloadHandler(downloads, &fakeDetect{}, common.GetLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/downloads?limit=10", nil)
	rec := httptest.NewRecorder()

	h.ListDownloadsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Count     int                      `json:"count"`
		Downloads []*models.DownloadRecord `json:"downloads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload.Count)
}
