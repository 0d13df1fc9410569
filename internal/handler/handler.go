// Package handler exposes the discourse services over a JSON HTTP API.
//
// Writes require the caller's signing key in the X-Secret-Key header (hex or
// nsec form). The key never leaves the request: it signs the outbound events
// and is gone when the request ends.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jimd-den/BlackPaper/internal/domain"
	"github.com/jimd-den/BlackPaper/internal/service"
	"github.com/jimd-den/BlackPaper/internal/signer"
)

// SecretKeyHeader carries the caller's signing key on write requests.
const SecretKeyHeader = "X-Secret-Key"

// DiscourseHandler handles the discourse API requests.
type DiscourseHandler struct {
	hypotheses *service.HypothesisService
	sources    *service.SourceService
	comments   *service.CommentService
	profiles   *service.ProfileService
	log        *slog.Logger
}

// New creates a discourse handler. A nil logger falls back to slog.Default.
func New(hyp *service.HypothesisService, src *service.SourceService, cmt *service.CommentService, prof *service.ProfileService, log *slog.Logger) *DiscourseHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DiscourseHandler{
		hypotheses: hyp,
		sources:    src,
		comments:   cmt,
		profiles:   prof,
		log:        log,
	}
}

// Register mounts all API routes on the mux.
func (h *DiscourseHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/hypotheses", h.SearchHypotheses)
	mux.HandleFunc("POST /api/hypotheses", h.PublishHypothesis)
	mux.HandleFunc("GET /api/hypotheses/{event}", h.GetHypothesis)

	mux.HandleFunc("GET /api/hypotheses/{event}/sources", h.ListSources)
	mux.HandleFunc("POST /api/hypotheses/{event}/sources", h.PublishSource)
	mux.HandleFunc("POST /api/sources/{event}/vote", h.VoteSource)

	mux.HandleFunc("GET /api/hypotheses/{event}/comments", h.ListComments)
	mux.HandleFunc("POST /api/hypotheses/{event}/comments", h.PublishComment)
	mux.HandleFunc("DELETE /api/comments/{event}", h.DeleteComment)

	mux.HandleFunc("GET /api/profiles/{pubkey}", h.GetProfile)
	mux.HandleFunc("GET /api/profiles/{pubkey}/reputation", h.GetReputation)
	mux.HandleFunc("PUT /api/profile", h.UpdateProfile)

	mux.HandleFunc("GET /api/health", h.Health)
}

// Health reports liveness.
func (h *DiscourseHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// identity builds the acting key pair from the request header.
func (h *DiscourseHandler) identity(w http.ResponseWriter, r *http.Request) (*signer.KeyPair, bool) {
	secret := r.Header.Get(SecretKeyHeader)
	if secret == "" {
		h.writeError(w, "Missing identity", "provide your signing key in the "+SecretKeyHeader+" header", http.StatusUnauthorized)
		return nil, false
	}
	kp, err := signer.FromSecret(secret)
	if err != nil {
		h.writeError(w, "Invalid identity", err.Error(), http.StatusUnauthorized)
		return nil, false
	}
	return kp, true
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *DiscourseHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}

func (h *DiscourseHandler) writeError(w http.ResponseWriter, msg, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Details: details}); err != nil {
		h.log.Warn("failed to encode error response", "error", err)
	}
}

// writeServiceError maps domain failures to client errors and everything else
// to a 500.
func (h *DiscourseHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, "Validation failed", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvariant):
		h.writeError(w, "Conflict", err.Error(), http.StatusConflict)
	default:
		h.log.Error(op, "error", err)
		h.writeError(w, op, err.Error(), http.StatusInternalServerError)
	}
}
