package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/gray247/gitbridge/internal/bridge"
	"github.com/gray247/gitbridge/internal/bridge/mocks"
	"github.com/gray247/gitbridge/internal/pathutil"
	"github.com/gray247/gitbridge/internal/status"
	"github.com/gray247/gitbridge/internal/workspace"
)

func setupRouter(t *testing.T) (*mocks.MockService, http.Handler) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	return svc, Router(svc)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestGetIndex(t *testing.T) {
	t.Parallel()

	_, handler := setupRouter(t)
	rec := doJSON(t, handler, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[IndexResponse](t, rec)
	assert.Equal(t, "GitBridge is live", resp.Status)
	assert.Contains(t, resp.Endpoints, "/upload")
	assert.Contains(t, resp.Endpoints, "/profiles/activate")
}

func TestPostUpload(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Upload(gomock.Any(), "dir/file.txt", "hello").
		Return("dir/file.txt", nil)

	rec := doJSON(t, handler, http.MethodPost, "/upload", `{"path":"dir/file.txt","content":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[UploadResponse](t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "dir/file.txt", resp.Path)
}

func TestPostUploadValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "missing path", body: `{"content":"hello"}`},
		{name: "malformed json", body: `{"path":`},
		{name: "empty body", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, handler := setupRouter(t)
			rec := doJSON(t, handler, http.MethodPost, "/upload", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid path", err: fmt.Errorf("%w: a//b", pathutil.ErrInvalidPath), wantStatus: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("%w: a.txt", workspace.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "conflict", err: fmt.Errorf("%w: b.txt", workspace.ErrConflict), wantStatus: http.StatusConflict},
		{name: "safe mode", err: bridge.ErrSafeModeViolation, wantStatus: http.StatusForbidden},
		{name: "no active profile", err: bridge.ErrNoActiveProfile, wantStatus: http.StatusServiceUnavailable},
		{name: "push failure", err: &bridge.PushError{CommitHash: "abc123", Err: errors.New("remote rejected")}, wantStatus: http.StatusBadGateway},
		{name: "destination unwritable", err: workspace.ErrDestinationUnwritable, wantStatus: http.StatusInternalServerError},
		{name: "unexpected", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, handler := setupRouter(t)
			svc.EXPECT().
				Upload(gomock.Any(), "a.txt", "x").
				Return("", tt.err)

			rec := doJSON(t, handler, http.MethodPost, "/upload", `{"path":"a.txt","content":"x"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPostMove(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Move(gomock.Any(), "a.txt", "b.txt").
		Return(nil)

	rec := doJSON(t, handler, http.MethodPost, "/move", `{"src":"a.txt","dst":"b.txt"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[StatusResponse](t, rec)
	assert.Equal(t, "success", resp.Status)
}

func TestPostMoveMissingFields(t *testing.T) {
	t.Parallel()

	_, handler := setupRouter(t)
	rec := doJSON(t, handler, http.MethodPost, "/move", `{"src":"a.txt"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostDelete(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Delete(gomock.Any(), "old.txt").
		Return(nil)

	rec := doJSON(t, handler, http.MethodPost, "/delete", `{"path":"old.txt"}`)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPostDeleteSafeMode(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Delete(gomock.Any(), "keep.txt").
		Return(fmt.Errorf("%w: profile 'main'", bridge.ErrSafeModeViolation))

	rec := doJSON(t, handler, http.MethodPost, "/delete", `{"path":"keep.txt"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetTree(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Tree(gomock.Any()).
		Return([]string{"README.md", "a/b.txt"}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/tree", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[TreeResponse](t, rec)
	assert.Equal(t, []string{"README.md", "a/b.txt"}, resp.Files)
}

func TestGetTreeEmpty(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Tree(gomock.Any()).
		Return(nil, nil)

	rec := doJSON(t, handler, http.MethodGet, "/tree", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[]}`, rec.Body.String())
}

func TestGetHealth(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	svc, handler := setupRouter(t)
	svc.EXPECT().
		Health(gomock.Any()).
		Return(&bridge.HealthReport{
			Repository: "gray247/demo",
			Branch:     "main",
			Path:       "/srv/clones/demo",
			Clean:      true,
			SafeMode:   true,
			LastPush: &status.PushStatus{
				Phase:      status.PushPhaseComplete,
				CommitHash: "abc123",
				Time:       &now,
			},
		}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "gray247/demo", resp.Repo)
	assert.Equal(t, "main", resp.Branch)
	assert.Equal(t, "clean", resp.GitStatus)
	assert.True(t, resp.SafeMode)
	require.NotNil(t, resp.Remote)
	assert.Equal(t, status.PushPhaseComplete, resp.Remote.Phase)
}

func TestGetHealthNoActiveProfile(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Health(gomock.Any()).
		Return(nil, bridge.ErrNoActiveProfile)

	rec := doJSON(t, handler, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostVerifyUpload(t *testing.T) {
	t.Parallel()

	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, handler := setupRouter(t)
	svc.EXPECT().
		VerifyUpload(gomock.Any(), "a/b.txt").
		Return(&workspace.FileInfo{Exists: true, Path: "a/b.txt", Size: 42, Modified: modified}, nil)

	rec := doJSON(t, handler, http.MethodPost, "/verify_upload", `{"path":"a/b.txt"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[VerifyUploadResponse](t, rec)
	assert.True(t, resp.Exists)
	assert.Equal(t, "a/b.txt", resp.Path)
	assert.EqualValues(t, 42, resp.Size)
	require.NotNil(t, resp.Modified)
	assert.True(t, resp.Modified.Equal(modified))
}

func TestPostVerifyUploadMissingFile(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		VerifyUpload(gomock.Any(), "gone.txt").
		Return(&workspace.FileInfo{Exists: false, Path: "gone.txt"}, nil)

	rec := doJSON(t, handler, http.MethodPost, "/verify_upload", `{"path":"gone.txt"}`)

	// A missing file is a normal answer, not an error status.
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[VerifyUploadResponse](t, rec)
	assert.False(t, resp.Exists)
	assert.Nil(t, resp.Modified)
}

func TestGetProfiles(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Profiles(gomock.Any()).
		Return([]bridge.ProfileSummary{
			{Name: "main", Repository: "gray247/demo"},
			{Name: "staging", Repository: "gray247/demo-staging"},
		}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/profiles", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"profiles": [
			{"name":"main","repo":"gray247/demo"},
			{"name":"staging","repo":"gray247/demo-staging"}
		]
	}`, rec.Body.String())
}

func TestPostActivate(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Activate(gomock.Any(), "staging").
		Return(nil)

	rec := doJSON(t, handler, http.MethodPost, "/profiles/activate", `{"name":"staging"}`)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPostActivateUnknownProfile(t *testing.T) {
	t.Parallel()

	svc, handler := setupRouter(t)
	svc.EXPECT().
		Activate(gomock.Any(), "nope").
		Return(fmt.Errorf("%w: nope", bridge.ErrUnknownProfile))

	rec := doJSON(t, handler, http.MethodPost, "/profiles/activate", `{"name":"nope"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	_, handler := setupRouter(t)
	rec := doJSON(t, handler, http.MethodGet, "/version", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp["version"])
	assert.NotEmpty(t, resp["go_version"])
}
