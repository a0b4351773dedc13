// Package integration contains the HTTP adapters through which the Post
// service talks to its sibling services: Asset (existence checks), Auth
// (permission checks), Notification (event emission) and Moderation
// (content submission). Each adapter implements the matching capability
// interface from pkg/post, so the core never depends on a concrete client.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acri-st/post/pkg/post"
)

// defaultTimeout bounds every cross-service call.
const defaultTimeout = 10 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// HTTPAssetService resolves asset references against the Asset service.
type HTTPAssetService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAssetService creates an Asset service client.
func NewHTTPAssetService(baseURL string, timeout time.Duration) *HTTPAssetService {
	return &HTTPAssetService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

// AssetExists reports whether the asset resolves on the Asset service.
// A 404 is a definitive "no"; transport failures and 5xx responses surface
// as ErrUpstreamUnavailable so the caller can distinguish "absent" from
// "unknown".
func (s *HTTPAssetService) AssetExists(ctx context.Context, assetID uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/assets/%s", s.baseURL, assetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: asset service: %v", post.ErrUpstreamUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: asset service answered %d", post.ErrUpstreamUnavailable, resp.StatusCode)
	}
}

// HTTPAuthorizer checks permissions against the Auth service.
type HTTPAuthorizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAuthorizer creates an Auth service client.
func NewHTTPAuthorizer(baseURL string, timeout time.Duration) *HTTPAuthorizer {
	return &HTTPAuthorizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

type authorizeRequest struct {
	AuthorRef  string `json:"author_ref"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
}

type authorizeResponse struct {
	Allowed bool `json:"allowed"`
}

// Authorize asks the Auth service whether authorRef may perform action on
// the resource. Denials are not retried.
func (a *HTTPAuthorizer) Authorize(ctx context.Context, authorRef, action string, resourceID uuid.UUID) (bool, error) {
	payload, err := json.Marshal(authorizeRequest{
		AuthorRef:  authorRef,
		Action:     action,
		ResourceID: resourceID.String(),
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/authorize", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: auth service: %v", post.ErrUpstreamUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var body authorizeResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("decoding auth response: %w", err)
		}
		return body.Allowed, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("%w: auth service answered %d", post.ErrUpstreamUnavailable, resp.StatusCode)
	}
}

// HTTPEventSink emits lifecycle events to the Notification service.
// Emission is fire-and-forget: failures are logged, never returned upstream
// in a way that would roll back a transition (the service layer already
// treats sink errors as best-effort).
type HTTPEventSink struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPEventSink creates a Notification service client.
func NewHTTPEventSink(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPEventSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		logger:  logger,
	}
}

type event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

func (s *HTTPEventSink) emit(ctx context.Context, name string, payload interface{}) error {
	body, err := json.Marshal(event{Event: name, Payload: payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: notification service: %v", post.ErrUpstreamUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification service answered %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPEventSink) DiscussionCreated(ctx context.Context, discussion *post.Discussion) error {
	return s.emit(ctx, "discussion.created", discussion)
}

func (s *HTTPEventSink) DiscussionArchived(ctx context.Context, discussionID uuid.UUID) error {
	return s.emit(ctx, "discussion.archived", map[string]string{"discussion_id": discussionID.String()})
}

func (s *HTTPEventSink) TopicCreated(ctx context.Context, topic *post.Topic) error {
	return s.emit(ctx, "topic.created", topic)
}

func (s *HTTPEventSink) PostCreated(ctx context.Context, p *post.Post) error {
	return s.emit(ctx, "post.created", p)
}

func (s *HTTPEventSink) ContentSubmitted(ctx context.Context, kind post.ContentKind, contentID uuid.UUID) error {
	return s.emit(ctx, "content.submitted", contentPayload(kind, contentID, ""))
}

func (s *HTTPEventSink) ContentPublished(ctx context.Context, kind post.ContentKind, contentID uuid.UUID) error {
	return s.emit(ctx, "content.published", contentPayload(kind, contentID, ""))
}

func (s *HTTPEventSink) ContentRejected(ctx context.Context, kind post.ContentKind, contentID uuid.UUID, reason string) error {
	return s.emit(ctx, "content.rejected", contentPayload(kind, contentID, reason))
}

func (s *HTTPEventSink) ContentArchived(ctx context.Context, kind post.ContentKind, contentID uuid.UUID) error {
	return s.emit(ctx, "content.archived", contentPayload(kind, contentID, ""))
}

func contentPayload(kind post.ContentKind, contentID uuid.UUID, reason string) map[string]string {
	payload := map[string]string{
		"kind":       string(kind),
		"content_id": contentID.String(),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return payload
}

// HTTPModerationClient submits content to the moderation service.
type HTTPModerationClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPModerationClient creates a moderation service client.
func NewHTTPModerationClient(baseURL string, timeout time.Duration) *HTTPModerationClient {
	return &HTTPModerationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

// SubmitContent submits one item for asynchronous moderation. The call
// acknowledges receipt only; the verdict arrives later on the callback
// endpoint, correlated by id.
func (c *HTTPModerationClient) SubmitContent(ctx context.Context, submission post.ModerationSubmission) error {
	body, err := json.Marshal(submission)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: moderation service: %v", post.ErrUpstreamUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusAccepted, resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: moderation service answered %d", post.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("moderation service rejected submission: %d", resp.StatusCode)
	}
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
