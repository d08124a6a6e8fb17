// Package v1 provides the REST API handlers for GitBridge.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gray247/gitbridge/internal/bridge"
	"github.com/gray247/gitbridge/internal/config"
	"github.com/gray247/gitbridge/internal/pathutil"
	"github.com/gray247/gitbridge/internal/status"
	"github.com/gray247/gitbridge/internal/versions"
	"github.com/gray247/gitbridge/internal/workspace"
)

// statusSuccess is the status string mutating endpoints report
const statusSuccess = "success"

// UploadRequest is the body for POST /upload
type UploadRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// MoveRequest is the body for POST /move
type MoveRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// PathRequest is the body for POST /delete and POST /verify_upload
type PathRequest struct {
	Path string `json:"path"`
}

// ActivateRequest is the body for POST /profiles/activate
type ActivateRequest struct {
	Name string `json:"name"`
}

// IndexResponse describes the service and its endpoints
type IndexResponse struct {
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

// UploadResponse confirms an upload with the normalized path
type UploadResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// StatusResponse confirms a mutation that returns no payload
type StatusResponse struct {
	Status string `json:"status"`
}

// TreeResponse lists the files in the working copy
type TreeResponse struct {
	Files []string `json:"files"`
}

// HealthResponse is the working copy state of the active profile. GitStatus
// is "clean" or "dirty" against the last commit; Remote carries the outcome
// of the most recent push.
type HealthResponse struct {
	Status    string             `json:"status"`
	Repo      string             `json:"repo"`
	Branch    string             `json:"branch"`
	Path      string             `json:"path"`
	GitStatus string             `json:"git_status"`
	Remote    *status.PushStatus `json:"remote,omitempty"`
	SafeMode  bool               `json:"safe_mode"`
}

// VerifyUploadResponse reports the on-disk state of a path
type VerifyUploadResponse struct {
	Exists   bool       `json:"exists"`
	Path     string     `json:"path"`
	Size     int64      `json:"size,omitempty"`
	Modified *time.Time `json:"modified,omitempty"`
}

// ProfilesResponse lists the configured profiles without credentials
type ProfilesResponse struct {
	Profiles []bridge.ProfileSummary `json:"profiles"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the GitBridge API with dependency injection
type Routes struct {
	service bridge.Service
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc bridge.Service) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates a new router for the GitBridge API
func Router(svc bridge.Service) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/", routes.getIndex)
	r.Get("/version", versionHandler)

	// File mutations
	r.Post("/upload", routes.postUpload)
	r.Post("/move", routes.postMove)
	r.Post("/delete", routes.postDelete)

	// Read-only queries
	r.Get("/tree", routes.getTree)
	r.Get("/health", routes.getHealth)
	r.Post("/verify_upload", routes.postVerifyUpload)

	// Profile management
	r.Get("/profiles", routes.getProfiles)
	r.Post("/profiles/activate", routes.postActivate)

	return r
}

// getIndex handles GET /
func (rr *Routes) getIndex(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, IndexResponse{
		Status: "GitBridge is live",
		Endpoints: []string{
			"/upload", "/move", "/delete",
			"/tree", "/health", "/verify_upload",
			"/profiles", "/profiles/activate", "/version",
		},
	})
}

// postUpload handles POST /upload
func (rr *Routes) postUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		rr.writeErrorResponse(w, "Missing required field: path", http.StatusBadRequest)
		return
	}

	path, err := rr.service.Upload(r.Context(), req.Path, req.Content)
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	rr.writeJSONResponse(w, UploadResponse{Status: statusSuccess, Path: path})
}

// postMove handles POST /move
func (rr *Routes) postMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Src == "" || req.Dst == "" {
		rr.writeErrorResponse(w, "Missing required fields: src, dst", http.StatusBadRequest)
		return
	}

	if err := rr.service.Move(r.Context(), req.Src, req.Dst); err != nil {
		rr.writeServiceError(w, err)
		return
	}

	rr.writeJSONResponse(w, StatusResponse{Status: statusSuccess})
}

// postDelete handles POST /delete
func (rr *Routes) postDelete(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		rr.writeErrorResponse(w, "Missing required field: path", http.StatusBadRequest)
		return
	}

	if err := rr.service.Delete(r.Context(), req.Path); err != nil {
		rr.writeServiceError(w, err)
		return
	}

	rr.writeJSONResponse(w, StatusResponse{Status: statusSuccess})
}

// getTree handles GET /tree
func (rr *Routes) getTree(w http.ResponseWriter, r *http.Request) {
	files, err := rr.service.Tree(r.Context())
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}

	rr.writeJSONResponse(w, TreeResponse{Files: files})
}

// getHealth handles GET /health
func (rr *Routes) getHealth(w http.ResponseWriter, r *http.Request) {
	report, err := rr.service.Health(r.Context())
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	gitStatus := "clean"
	if !report.Clean {
		gitStatus = "dirty"
	}

	rr.writeJSONResponse(w, HealthResponse{
		Status:    "ok",
		Repo:      report.Repository,
		Branch:    report.Branch,
		Path:      report.Path,
		GitStatus: gitStatus,
		Remote:    report.LastPush,
		SafeMode:  report.SafeMode,
	})
}

// postVerifyUpload handles POST /verify_upload
func (rr *Routes) postVerifyUpload(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		rr.writeErrorResponse(w, "Missing required field: path", http.StatusBadRequest)
		return
	}

	info, err := rr.service.VerifyUpload(r.Context(), req.Path)
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	resp := VerifyUploadResponse{Exists: info.Exists, Path: info.Path}
	if info.Exists {
		resp.Size = info.Size
		resp.Modified = &info.Modified
	}

	rr.writeJSONResponse(w, resp)
}

// getProfiles handles GET /profiles
func (rr *Routes) getProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := rr.service.Profiles(r.Context())
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	rr.writeJSONResponse(w, ProfilesResponse{Profiles: profiles})
}

// postActivate handles POST /profiles/activate
func (rr *Routes) postActivate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		rr.writeErrorResponse(w, "Missing required field: name", http.StatusBadRequest)
		return
	}

	if err := rr.service.Activate(r.Context(), req.Name); err != nil {
		rr.writeServiceError(w, err)
		return
	}

	rr.writeJSONResponse(w, StatusResponse{Status: statusSuccess})
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// writeServiceError maps a service error to its HTTP status. The raw error
// text goes to the client; these are operator-facing responses and the
// credential never appears in error chains.
func (rr *Routes) writeServiceError(w http.ResponseWriter, err error) {
	var pushErr *bridge.PushError

	switch {
	case errors.Is(err, pathutil.ErrInvalidPath):
		rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, workspace.ErrNotFound):
		rr.writeErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workspace.ErrConflict):
		rr.writeErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bridge.ErrSafeModeViolation):
		rr.writeErrorResponse(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, bridge.ErrUnknownProfile):
		rr.writeErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, bridge.ErrNoActiveProfile):
		rr.writeErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &pushErr):
		rr.writeErrorResponse(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, config.ErrNoCredential):
		rr.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
	default:
		slog.Error("Request failed", "error", err)
		rr.writeErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
