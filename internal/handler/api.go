package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

// ================= Hypotheses =================

// PublishHypothesisRequest is the body of POST /api/hypotheses.
type PublishHypothesisRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

// PublishHypothesis signs and broadcasts a new hypothesis.
func (h *DiscourseHandler) PublishHypothesis(w http.ResponseWriter, r *http.Request) {
	kp, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req PublishHypothesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	hyp, err := h.hypotheses.Publish(r.Context(), kp, req.Title, req.Body, req.Category)
	if err != nil {
		h.writeServiceError(w, "Failed to publish hypothesis", err)
		return
	}
	h.writeJSON(w, hyp.Summary(), http.StatusCreated)
}

// SearchHypotheses queries the relays. Query parameters: category (repeatable),
// q (text), limit, offset.
func (h *DiscourseHandler) SearchHypotheses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria, err := domain.NewHypothesisSearchCriteria(
		q["category"], q.Get("q"), intParam(q.Get("limit"), 20), intParam(q.Get("offset"), 0))
	if err != nil {
		h.writeError(w, "Invalid search criteria", err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.hypotheses.Search(r.Context(), criteria)
	if err != nil {
		h.writeServiceError(w, "Failed to search hypotheses", err)
		return
	}

	summaries := make([]domain.HypothesisSummary, 0, len(results))
	for _, hyp := range results {
		summaries = append(summaries, hyp.Summary())
	}
	h.writeJSON(w, summaries, http.StatusOK)
}

// GetHypothesis returns a single hypothesis by event id.
func (h *DiscourseHandler) GetHypothesis(w http.ResponseWriter, r *http.Request) {
	hyp, err := h.hypotheses.Get(r.Context(), r.PathValue("event"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.writeServiceError(w, "Failed to get hypothesis", err)
		return
	}
	h.writeJSON(w, hyp.Summary(), http.StatusOK)
}

// ================= Sources =================

// PublishSourceRequest is the body of POST /api/hypotheses/{event}/sources.
type PublishSourceRequest struct {
	HypothesisID string `json:"hypothesis_id"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	Stance       string `json:"stance"`
}

// PublishSource attaches an evidence source to a hypothesis.
func (h *DiscourseHandler) PublishSource(w http.ResponseWriter, r *http.Request) {
	kp, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req PublishSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	src, err := h.sources.Publish(r.Context(), kp, r.PathValue("event"),
		req.HypothesisID, req.URL, req.Description, req.Stance)
	if err != nil {
		h.writeServiceError(w, "Failed to publish source", err)
		return
	}
	h.writeJSON(w, src.Summary(), http.StatusCreated)
}

// ListSources returns the sources attached to a hypothesis. Query parameters:
// stance, limit.
func (h *DiscourseHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria, err := domain.NewSourceFilterCriteria(
		r.PathValue("event"), q.Get("stance"), intParam(q.Get("limit"), 100))
	if err != nil {
		h.writeError(w, "Invalid filter criteria", err.Error(), http.StatusBadRequest)
		return
	}

	sources, err := h.sources.ListForHypothesis(r.Context(), criteria)
	if err != nil {
		h.writeServiceError(w, "Failed to list sources", err)
		return
	}

	summaries := make([]domain.SourceSummary, 0, len(sources))
	for _, src := range sources {
		summaries = append(summaries, src.Summary())
	}
	h.writeJSON(w, summaries, http.StatusOK)
}

// VoteRequest is the body of POST /api/sources/{event}/vote.
type VoteRequest struct {
	Value        int    `json:"value"`
	SourceAuthor string `json:"source_author"`
}

// VoteSource casts a vote on a source.
func (h *DiscourseHandler) VoteSource(w http.ResponseWriter, r *http.Request) {
	kp, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	author, err := domain.NewPublicKey(req.SourceAuthor)
	if err != nil {
		h.writeError(w, "Invalid source author", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.sources.Vote(r.Context(), kp, r.PathValue("event"), author, req.Value); err != nil {
		h.writeServiceError(w, "Failed to vote", err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "voted"}, http.StatusCreated)
}

// ================= Comments =================

// PublishCommentRequest is the body of POST /api/hypotheses/{event}/comments.
// For replies, parent_type is "comment" and the parent fields reference the
// parent comment; depth is the parent's depth + 1.
type PublishCommentRequest struct {
	Content       string `json:"content"`
	ParentType    string `json:"parent_type"`
	ParentID      string `json:"parent_id"`
	ParentEventID string `json:"parent_event_id"`
	ParentAuthor  string `json:"parent_author"`
	Depth         int    `json:"depth"`
}

// PublishComment posts a comment or reply under a hypothesis.
func (h *DiscourseHandler) PublishComment(w http.ResponseWriter, r *http.Request) {
	kp, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req PublishCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	parentAuthor, err := domain.NewPublicKey(req.ParentAuthor)
	if err != nil {
		h.writeError(w, "Invalid parent author", err.Error(), http.StatusBadRequest)
		return
	}
	parent, err := domain.NewParentRef(req.ParentType, req.ParentID, parentAuthor)
	if err != nil {
		h.writeServiceError(w, "Invalid parent reference", err)
		return
	}

	parentEventID := req.ParentEventID
	if parentEventID == "" {
		parentEventID = r.PathValue("event")
	}
	cm, err := h.comments.Publish(r.Context(), kp, req.Content, parent, parentEventID, req.Depth)
	if err != nil {
		h.writeServiceError(w, "Failed to publish comment", err)
		return
	}
	h.writeJSON(w, cm.Summary(), http.StatusCreated)
}

// ListComments returns the assembled comment tree under a hypothesis. Query
// parameters: sort (recent, chronological, engagement), limit.
func (h *DiscourseHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria, err := domain.NewCommentFilterCriteria(r.PathValue("event"), intParam(q.Get("limit"), 200))
	if err != nil {
		h.writeError(w, "Invalid filter criteria", err.Error(), http.StatusBadRequest)
		return
	}

	roots, err := h.comments.ListForHypothesis(r.Context(), criteria, domain.SortMode(q.Get("sort")))
	if err != nil {
		h.writeServiceError(w, "Failed to list comments", err)
		return
	}

	summaries := make([]domain.CommentSummary, 0, len(roots))
	for _, c := range roots {
		summaries = append(summaries, c.Summary())
	}
	h.writeJSON(w, summaries, http.StatusOK)
}

// DeleteComment broadcasts a deletion for the caller's own comment.
func (h *DiscourseHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	kp, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.comments.Delete(r.Context(), kp, r.PathValue("event"), r.URL.Query().Get("reason")); err != nil {
		h.writeServiceError(w, "Failed to delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ================= Profiles =================

// UpdateProfileRequest is the body of PUT /api/profile.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	Identifier  string `json:"identifier"`
}

// UpdateProfile publishes the caller's profile metadata.
func (h *DiscourseHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	kp, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.profiles.Update(r.Context(), kp, req.DisplayName, req.Identifier)
	if err != nil {
		h.writeServiceError(w, "Failed to update profile", err)
		return
	}
	h.writeJSON(w, u.Summary(), http.StatusOK)
}

// GetProfile returns the profile published by a key (hex or npub).
func (h *DiscourseHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	pk, err := domain.NewPublicKey(r.PathValue("pubkey"))
	if err != nil {
		h.writeError(w, "Invalid public key", err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.profiles.Fetch(r.Context(), pk)
	if err != nil {
		h.writeServiceError(w, "Failed to fetch profile", err)
		return
	}

	rep, err := h.profiles.Reputation(r.Context(), pk)
	if err != nil {
		h.log.Warn("failed to compute reputation", "pubkey", pk.Hex(), "error", err)
	} else {
		u.SetReputation(rep)
	}
	h.writeJSON(w, u.Summary(), http.StatusOK)
}

// GetReputation returns the derived reputation of a key.
func (h *DiscourseHandler) GetReputation(w http.ResponseWriter, r *http.Request) {
	pk, err := domain.NewPublicKey(r.PathValue("pubkey"))
	if err != nil {
		h.writeError(w, "Invalid public key", err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := h.profiles.Reputation(r.Context(), pk)
	if err != nil {
		h.writeServiceError(w, "Failed to compute reputation", err)
		return
	}
	h.writeJSON(w, map[string]any{
		"pubkey":     pk.Hex(),
		"score":      rep.Score(),
		"tier":       rep.Tier(),
		"vote_ratio": rep.VoteRatio(),
		"reputation": rep,
	}, http.StatusOK)
}

// intParam parses a positive integer query value, returning fallback when the
// value is absent or malformed.
func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
