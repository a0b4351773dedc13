// Package api exposes the post service over HTTP using chi.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/acri-st/post/pkg/post"
)

// authorRefHeader carries the caller identity, as resolved by the gateway in
// front of this service. Identity extraction itself is the Auth service's job.
const authorRefHeader = "X-Author-Ref"

// Handler handles HTTP requests for discussions, topics and posts.
type Handler struct {
	service post.Service
}

// NewHandler creates a new HTTP handler around the post service.
func NewHandler(service post.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the routes for the post API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/discussions", func(r chi.Router) {
		r.Post("/", h.CreateDiscussion)
		r.Get("/", h.ListDiscussions)
		r.Get("/{id}", h.GetDiscussion)
		r.Post("/{id}/archive", h.ArchiveDiscussion)
		r.Post("/{id}/topics", h.CreateTopic)
		r.Get("/{id}/topics", h.ListTopics)
	})

	r.Route("/topics", func(r chi.Router) {
		r.Get("/{id}", h.GetTopic)
		r.Post("/{id}/submit", h.SubmitTopic)
		r.Post("/{id}/archive", h.ArchiveTopic)
		r.Post("/{id}/posts", h.CreatePost)
		r.Get("/{id}/posts", h.ListPosts)
	})

	r.Route("/posts", func(r chi.Router) {
		r.Get("/{id}", h.GetPost)
		r.Put("/{id}", h.EditPost)
		r.Post("/{id}/submit", h.SubmitPost)
		r.Post("/{id}/archive", h.ArchivePost)
	})

	r.Post("/moderation/callback", h.ModerationCallback)
	r.Get("/authors/{authorRef}/posts/count", h.CountPostsByAuthor)

	return r
}

// Request bodies

// CreateDiscussionRequest is the request body for creating a discussion
type CreateDiscussionRequest struct {
	AssetID string `json:"asset_id"`
	Title   string `json:"title"`
}

// CreateTopicRequest is the request body for creating a topic
type CreateTopicRequest struct {
	Title string `json:"title"`
}

// CreatePostRequest is the request body for creating a post
type CreatePostRequest struct {
	Body string `json:"body"`
}

// EditPostRequest is the request body for editing a post
type EditPostRequest struct {
	Body string `json:"body"`
}

// ModerationCallbackRequest is the request body for the verdict callback
type ModerationCallbackRequest struct {
	CorrelationID string `json:"correlation_id"`
	Verdict       string `json:"verdict"`
	Reason        string `json:"reason,omitempty"`
}

// SubmitResponse is the response body for a moderation submission
type SubmitResponse struct {
	CorrelationID string `json:"correlation_id"`
	ContentID     string `json:"content_id"`
	Kind          string `json:"kind"`
	Attempt       int    `json:"attempt"`
}

// CountResponse is the response body for the author post count
type CountResponse struct {
	AuthorRef string `json:"author_ref"`
	Count     int64  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Discussion handlers

func (h *Handler) CreateDiscussion(w http.ResponseWriter, r *http.Request) {
	var req CreateDiscussionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		slog.Error("Invalid asset ID", "asset_id", req.AssetID, "error", err)
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	discussion, err := h.service.CreateDiscussion(r.Context(), post.CreateDiscussionRequest{
		AssetID: assetID,
		Title:   req.Title,
	})
	if err != nil {
		h.renderError(w, r, "Failed to create discussion", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, discussion)
}

func (h *Handler) GetDiscussion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	discussion, err := h.service.GetDiscussion(r.Context(), id)
	if err != nil {
		h.renderError(w, r, "Failed to get discussion", err)
		return
	}

	render.JSON(w, r, discussion)
}

func (h *Handler) ListDiscussions(w http.ResponseWriter, r *http.Request) {
	req := post.ListDiscussionsRequest{
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
	}
	if asset := r.URL.Query().Get("asset"); asset != "" {
		assetID, err := uuid.Parse(asset)
		if err != nil {
			http.Error(w, "Invalid asset ID", http.StatusBadRequest)
			return
		}
		req.AssetID = &assetID
	}

	discussions, err := h.service.ListDiscussions(r.Context(), req)
	if err != nil {
		h.renderError(w, r, "Failed to list discussions", err)
		return
	}
	if discussions == nil {
		discussions = []*post.Discussion{}
	}

	render.JSON(w, r, discussions)
}

func (h *Handler) ArchiveDiscussion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	err := h.service.ArchiveDiscussion(r.Context(), post.ArchiveDiscussionRequest{
		DiscussionID: id,
		AuthorRef:    r.Header.Get(authorRefHeader),
	})
	if err != nil {
		h.renderError(w, r, "Failed to archive discussion", err)
		return
	}

	render.NoContent(w, r)
}

// Topic handlers

func (h *Handler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	discussionID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	topic, err := h.service.CreateTopic(r.Context(), post.CreateTopicRequest{
		DiscussionID: discussionID,
		AuthorRef:    r.Header.Get(authorRefHeader),
		Title:        req.Title,
	})
	if err != nil {
		h.renderError(w, r, "Failed to create topic", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, topic)
}

func (h *Handler) GetTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	topic, err := h.service.GetTopic(r.Context(), id)
	if err != nil {
		h.renderError(w, r, "Failed to get topic", err)
		return
	}

	render.JSON(w, r, topic)
}

func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	discussionID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	topics, err := h.service.ListTopics(r.Context(), discussionID)
	if err != nil {
		h.renderError(w, r, "Failed to list topics", err)
		return
	}
	if topics == nil {
		topics = []*post.Topic{}
	}

	render.JSON(w, r, topics)
}

func (h *Handler) SubmitTopic(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, post.KindTopic)
}

func (h *Handler) ArchiveTopic(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, post.KindTopic)
}

// Post handlers

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	topicID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreatePost(r.Context(), post.CreatePostRequest{
		TopicID:   topicID,
		AuthorRef: r.Header.Get(authorRefHeader),
		Body:      req.Body,
	})
	if err != nil {
		h.renderError(w, r, "Failed to create post", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		h.renderError(w, r, "Failed to get post", err)
		return
	}

	render.JSON(w, r, p)
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	topicID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	posts, err := h.service.ListPosts(r.Context(), topicID)
	if err != nil {
		h.renderError(w, r, "Failed to list posts", err)
		return
	}
	if posts == nil {
		posts = []*post.Post{}
	}

	render.JSON(w, r, posts)
}

func (h *Handler) EditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req EditPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.service.EditPost(r.Context(), post.EditPostRequest{
		PostID:    id,
		AuthorRef: r.Header.Get(authorRefHeader),
		Body:      req.Body,
	})
	if err != nil {
		h.renderError(w, r, "Failed to edit post", err)
		return
	}

	render.JSON(w, r, updated)
}

func (h *Handler) SubmitPost(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, post.KindPost)
}

func (h *Handler) ArchivePost(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, post.KindPost)
}

// Moderation handlers

func (h *Handler) ModerationCallback(w http.ResponseWriter, r *http.Request) {
	var req ModerationCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	correlationID, err := uuid.Parse(req.CorrelationID)
	if err != nil {
		slog.Error("Invalid correlation ID", "correlation_id", req.CorrelationID, "error", err)
		http.Error(w, "Invalid correlation ID", http.StatusBadRequest)
		return
	}

	err = h.service.ApplyVerdict(r.Context(), post.ApplyVerdictRequest{
		CorrelationID: correlationID,
		Verdict:       post.Verdict(req.Verdict),
		Reason:        req.Reason,
	})
	if err != nil {
		h.renderError(w, r, "Failed to apply verdict", err)
		return
	}

	render.NoContent(w, r)
}

func (h *Handler) CountPostsByAuthor(w http.ResponseWriter, r *http.Request) {
	authorRef := chi.URLParam(r, "authorRef")
	if authorRef == "" {
		http.Error(w, "author reference is required", http.StatusBadRequest)
		return
	}

	count, err := h.service.CountPostsByAuthor(r.Context(), authorRef)
	if err != nil {
		h.renderError(w, r, "Failed to count posts", err)
		return
	}

	render.JSON(w, r, CountResponse{AuthorRef: authorRef, Count: count})
}

// Shared helpers

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind post.ContentKind) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	mr, err := h.service.Submit(r.Context(), post.SubmitRequest{ContentID: id, Kind: kind})
	if err != nil {
		h.renderError(w, r, "Failed to submit for moderation", err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, SubmitResponse{
		CorrelationID: mr.CorrelationID.String(),
		ContentID:     mr.ContentID.String(),
		Kind:          string(mr.Kind),
		Attempt:       mr.Attempt,
	})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request, kind post.ContentKind) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	err := h.service.Archive(r.Context(), post.ArchiveRequest{
		ContentID: id,
		Kind:      kind,
		AuthorRef: r.Header.Get(authorRefHeader),
	})
	if err != nil {
		h.renderError(w, r, "Failed to archive content", err)
		return
	}

	render.NoContent(w, r)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		slog.Error("Invalid ID", "id", raw, "error", err)
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	} else {
		slog.Warn(msg, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	var validationErr *post.ValidationError
	switch {
	case post.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, post.ErrConflict), errors.Is(err, post.ErrDiscussionExists):
		return http.StatusConflict
	case errors.Is(err, post.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, post.ErrModerationUnavailable), errors.Is(err, post.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &validationErr),
		errors.Is(err, post.ErrInvalidVerdict),
		errors.Is(err, post.ErrInvalidStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
